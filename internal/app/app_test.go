package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/config"
	"staffdesk.org/internal/employee"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Token.Secret = "0123456789abcdef0123"
	return cfg
}

func TestBuildMemoryBackend(t *testing.T) {
	ctx := context.Background()
	c, err := Build(ctx, memoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	require.NotEmpty(t, c.DevToken)
	require.Nil(t, c.Postgres)

	ident, err := c.Identity.Verify(ctx, c.DevToken)
	require.NoError(t, err)
	require.Equal(t, auth.RoleSysadmin, ident.Role)

	caller := ident.Caller()
	rec, err := c.Registry.Create(ctx, caller, employee.NewEmployee{Name: "Grace Hopper", Role: "engineer"})
	require.NoError(t, err)
	require.Equal(t, caller.UID, rec.CreatedBy)

	info, err := c.Directory.SuperAdmin(ctx, caller)
	require.NoError(t, err)
	require.Equal(t, devSysadminUID, info.UID)
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Backend = "etcd"
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}

func TestBuildFailsWhenRedisIsUnreachable(t *testing.T) {
	cfg := memoryConfig()
	cfg.Lock.Kind = "redis"
	cfg.Lock.Redis.Addr = "127.0.0.1:1"
	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "redis ping failed")
}

func TestVerifyCacheDisabledForRedisLock(t *testing.T) {
	cfg := memoryConfig()
	cfg.VerifyCacheTTL = 30 * time.Second
	require.Equal(t, 30*time.Second, verifyCacheTTL(cfg))

	cfg.Lock.Kind = "redis"
	require.Zero(t, verifyCacheTTL(cfg))
}

func TestBuildMemoryBackendSupportsPasswords(t *testing.T) {
	ctx := context.Background()
	c, err := Build(ctx, memoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	require.NotNil(t, c.Passwords)
	require.NoError(t, c.Passwords.SetPassword(ctx, devSysadminUID, "correct horse battery"))
	ident, err := c.Passwords.SignIn(ctx, devSysadminEmail, "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, auth.RoleSysadmin, ident.Role)
}
