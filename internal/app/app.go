// Package app assembles the identity provider, record stores and lock for
// the configured backend.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"staffdesk.org/internal/account"
	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/config"
	"staffdesk.org/internal/employee"
	"staffdesk.org/internal/identity"
	"staffdesk.org/internal/identity/firebase"
	"staffdesk.org/internal/identity/local"
	"staffdesk.org/internal/identity/memory"
	"staffdesk.org/internal/lock"
	"staffdesk.org/internal/obs"
	"staffdesk.org/internal/store/firestore"
	"staffdesk.org/internal/store/pg"
)

const (
	devSysadminUID   = "dev-sysadmin"
	devSysadminEmail = "sysadmin@localhost"
)

// Container holds everything cmd/api and cmd/staffctl need.
type Container struct {
	Identity identity.Provider
	// Passwords is nil for backends that do not keep credentials.
	Passwords identity.PasswordAuthenticator
	Directory *account.Directory
	Registry  *employee.Registry
	// Postgres is set only for the postgres backend.
	Postgres *pg.Store
	// Checks back the readiness probe.
	Checks []func(context.Context) error
	// DevToken is a sysadmin token minted for the memory backend.
	DevToken string

	closers []func() error
}

// Close releases every backend connection. Errors are joined.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires the backend selected by cfg.Backend.
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{}

	var (
		idp       identity.Provider
		profiles  account.Store
		employees employee.Store
	)
	switch cfg.Backend {
	case "memory":
		signer, err := identity.NewSigner(cfg.Token.Secret, cfg.Token.Issuer, cfg.Token.TTL)
		if err != nil {
			return nil, err
		}
		mem := memory.New(signer)
		token, err := mem.Seed(devSysadminUID, devSysadminEmail, auth.RoleSysadmin)
		if err != nil {
			return nil, err
		}
		c.DevToken = token
		c.Passwords = mem
		idp = mem
		profiles = account.NewInMemory()
		employees = employee.NewInMemory()

	case "postgres":
		signer, err := identity.NewSigner(cfg.Token.Secret, cfg.Token.Issuer, cfg.Token.TTL)
		if err != nil {
			return nil, err
		}
		store, err := pg.Open(cfg.Postgres.DSN, pg.Pool{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		c.closers = append(c.closers, store.Close)
		lp, err := local.New(store.DB(), signer)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Postgres = store
		c.Passwords = lp
		c.Checks = append(c.Checks, store.Ping)
		idp = lp
		profiles = store
		employees = store

	case "firebase":
		fbApp, err := firebase.NewApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		fp, err := firebase.New(ctx, fbApp)
		if err != nil {
			return nil, err
		}
		store, err := firestore.Open(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store.Close)
		idp = fp
		profiles = store
		employees = store

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	locker, err := c.buildLocker(ctx, cfg)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	cacheTTL := verifyCacheTTL(cfg)
	c.Identity = identity.NewCachingProvider(idp, cacheTTL)
	c.Directory = account.NewDirectory(c.Identity, profiles,
		account.WithLocker(locker),
		account.WithTimeout(cfg.UpstreamTimeout),
	)
	c.Registry = employee.NewRegistry(employees, employee.WithTimeout(cfg.UpstreamTimeout))

	obs.L().Info("backend ready",
		zap.String("backend", cfg.Backend),
		zap.String("lock", cfg.Lock.Kind),
		zap.Duration("verify_cache_ttl", cacheTTL),
	)
	return c, nil
}

// verifyCacheTTL disables the verify cache when several instances share a
// redis lock: SetRole evicts cached identities only on the instance that
// ran it, so a demoted caller would keep the old role elsewhere.
func verifyCacheTTL(cfg *config.Config) time.Duration {
	if cfg.Lock.Kind == "redis" {
		if cfg.VerifyCacheTTL > 0 {
			obs.L().Info("verify cache disabled for multi-instance lock", zap.Duration("configured_ttl", cfg.VerifyCacheTTL))
		}
		return 0
	}
	return cfg.VerifyCacheTTL
}

func (c *Container) buildLocker(ctx context.Context, cfg *config.Config) (lock.Locker, error) {
	if cfg.Lock.Kind != "redis" {
		return lock.NewMemory(), nil
	}
	client := rdb.NewClient(&rdb.Options{
		Addr:     cfg.Lock.Redis.Addr,
		Password: cfg.Lock.Redis.Password,
		DB:       cfg.Lock.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	c.closers = append(c.closers, client.Close)
	c.Checks = append(c.Checks, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	return lock.NewRedis(client, cfg.Lock.Redis.Prefix, cfg.Lock.Redis.TTL)
}
