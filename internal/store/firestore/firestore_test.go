package firestore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"staffdesk.org/internal/account"
	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/employee"
)

func TestProfileDocRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := account.Profile{
		UID: "u-1", Email: "ana@example.com", FirstName: "Ana", LastName: "Li",
		Role: auth.RoleAdmin, CreatedAt: ts, UpdatedAt: ts,
	}
	d := toProfileDoc(p)
	require.Equal(t, "admin", d.Role)
	require.Equal(t, p, d.profile("ignored"))
}

func TestProfileDocFallsBackToDocumentID(t *testing.T) {
	// Documents written by older clients may lack the uid field.
	d := profileDoc{Email: "x@example.com", Role: "sysadmin"}
	p := d.profile("doc-id")
	require.Equal(t, "doc-id", p.UID)
	require.Equal(t, auth.RoleSysadmin, p.Role)
}

func TestUnknownRoleReadsAsUser(t *testing.T) {
	require.Equal(t, auth.RoleUser, profileDoc{Role: "owner"}.profile("u").Role)
}

func TestEmployeeDocUsesAddedBy(t *testing.T) {
	r := employee.Record{ID: "01H", Name: "Bob", Age: 40, Role: "driver", CreatedBy: "u-1"}
	d := toEmployeeDoc(r)
	require.Equal(t, "u-1", d.AddedBy)
	require.Equal(t, r, d.record("01H"))
}

func TestIsNotFound(t *testing.T) {
	require.True(t, isNotFound(status.Error(codes.NotFound, "missing")))
	require.False(t, isNotFound(status.Error(codes.Unavailable, "down")))
	require.False(t, isNotFound(errors.New("plain")))
	require.False(t, isNotFound(nil))
}
