package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithSecret(t *testing.T) {
	t.Setenv("STAFFDESK_TOKEN_SECRET", "0123456789abcdef")

	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "memory", c.Backend)
	require.Equal(t, ":8000", c.Server.Addr)
	require.Equal(t, 5*time.Second, c.UpstreamTimeout)
	require.Len(t, c.Server.CORSAllowedOrigins, 4)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "staffdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: postgres
postgres:
  dsn: postgres://file
token:
  secret: file-secret-0123456789
server:
  addr: ":9000"
  cors_allowed_origins: ["https://admin.example.com"]
upstream_timeout: 2s
`), 0o600))
	t.Setenv("STAFFDESK_PG_DSN", "postgres://env")
	t.Setenv("STAFFDESK_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres", c.Backend)
	require.Equal(t, "postgres://env", c.Postgres.DSN)
	require.Equal(t, ":9000", c.Server.Addr)
	require.Equal(t, 2*time.Second, c.UpstreamTimeout)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, c.Server.CORSAllowedOrigins)
	require.Equal(t, "staffdesk", c.Token.Issuer)
}

func TestValidate(t *testing.T) {
	c := Default()
	require.Error(t, c.Validate(), "missing token secret")

	c.Token.Secret = "0123456789abcdef"
	require.NoError(t, c.Validate())

	c.Backend = "postgres"
	require.Error(t, c.Validate())

	c.Backend = "firebase"
	c.Token.Secret = ""
	c.Firebase.ProjectID = "demo"
	require.NoError(t, c.Validate())

	c.Backend = "mongo"
	require.Error(t, c.Validate())

	c.Backend = "memory"
	c.Token.Secret = "0123456789abcdef"
	c.Lock.Kind = "etcd"
	require.Error(t, c.Validate())
}

func TestValidateTrustedProxies(t *testing.T) {
	c := Default()
	c.Token.Secret = "0123456789abcdef"
	c.Server.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.10", "::1"}
	require.NoError(t, c.Validate())

	c.Server.TrustedProxies = []string{"10.0.0.0/8", "proxy.internal"}
	require.ErrorContains(t, c.Validate(), "proxy.internal")
}
