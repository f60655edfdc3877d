package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"staffdesk.org/internal/identity"
)

const testSecret = "0123456789abcdef0123"

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("STAFFDESK_PG_DSN", "")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "status"})
	require.ErrorContains(t, root.Execute(), "missing DSN")
}

func TestBootstrapSysadminOnMemoryBackend(t *testing.T) {
	t.Setenv("STAFFDESK_BACKEND", "memory")
	t.Setenv("STAFFDESK_TOKEN_SECRET", "0123456789abcdef0123")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"bootstrap-sysadmin", "--email", "Root@Example.com", "--first-name", "Root", "--last-name", "User"})
	require.NoError(t, root.Execute())
}

func TestBootstrapSysadminValidatesInput(t *testing.T) {
	t.Setenv("STAFFDESK_BACKEND", "memory")
	t.Setenv("STAFFDESK_TOKEN_SECRET", "0123456789abcdef0123")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"bootstrap-sysadmin", "--email", "not-an-email"})
	require.Error(t, root.Execute())
}

func TestBootstrapSysadminSetsPassword(t *testing.T) {
	t.Setenv("STAFFDESK_BACKEND", "memory")
	t.Setenv("STAFFDESK_TOKEN_SECRET", testSecret)
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"bootstrap-sysadmin", "--email", "root@example.com", "--first-name", "Root", "--last-name", "User",
		"--password", "a long enough secret"})
	require.NoError(t, root.Execute())

	var p struct {
		UID  string `json:"uid"`
		Role string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &p))
	require.NotEmpty(t, p.UID)
	require.Equal(t, "sysadmin", p.Role)
}

func TestBootstrapSysadminRejectsShortPassword(t *testing.T) {
	t.Setenv("STAFFDESK_BACKEND", "memory")
	t.Setenv("STAFFDESK_TOKEN_SECRET", testSecret)
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"bootstrap-sysadmin", "--email", "root@example.com", "--first-name", "Root", "--last-name", "User",
		"--password", "short"})
	require.ErrorContains(t, root.Execute(), "at least")
}

func TestIssueTokenPrintsCurrentRole(t *testing.T) {
	t.Setenv("STAFFDESK_BACKEND", "memory")
	t.Setenv("STAFFDESK_TOKEN_SECRET", testSecret)
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"issue-token", "--email", "SYSADMIN@localhost"})
	require.NoError(t, root.Execute())

	signer, err := identity.NewSigner(testSecret, "staffdesk", time.Hour)
	require.NoError(t, err)
	claims, err := signer.Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, "sysadmin", claims.Role)
	require.Equal(t, "sysadmin@localhost", claims.Email)
}

func TestIssueTokenUnknownEmail(t *testing.T) {
	t.Setenv("STAFFDESK_BACKEND", "memory")
	t.Setenv("STAFFDESK_TOKEN_SECRET", testSecret)
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"issue-token", "--email", "nobody@example.com"})
	require.Error(t, root.Execute())
}
