package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"staffdesk.org/internal/account"
	"staffdesk.org/internal/app"
	"staffdesk.org/internal/config"
	"staffdesk.org/internal/identity"
	"staffdesk.org/internal/migrate"
	"staffdesk.org/internal/obs"
	"staffdesk.org/internal/store/pg"
)

func main() {
	_ = godotenv.Load()
	obs.InitLogger(obs.LogConfig{
		Env:         envOr("STAFFDESK_ENV", "dev"),
		Level:       envOr("STAFFDESK_LOG_LEVEL", "info"),
		ServiceName: "staffctl",
	})
	defer func() { _ = obs.SyncLogger() }()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		timeout    time.Duration
	)
	root := &cobra.Command{
		Use:           "staffctl",
		Short:         "Operational commands for staffdesk",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (optional)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Overall command timeout")

	withContainer := func(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		c, err := app.Build(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(ctx, c)
	}

	root.AddCommand(
		newMigrateCmd(&timeout),
		newReconcileCmd(withContainer),
		newBootstrapCmd(withContainer),
		newIssueTokenCmd(withContainer),
	)
	return root
}

func newMigrateCmd(timeout *time.Duration) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the embedded PostgreSQL schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("STAFFDESK_PG_DSN"), "PostgreSQL DSN (env STAFFDESK_PG_DSN)")

	run := func(fn func(ctx context.Context, m *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return errors.New("missing DSN: provide via --dsn or STAFFDESK_PG_DSN")
			}
			store, err := pg.Open(dsn, pg.Pool{MaxOpenConns: 2, MaxIdleConns: 1})
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer store.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), *timeout)
			defer cancel()
			return fn(ctx, migrate.NewManager(store.DB(), pg.Migrations, migrate.WithDir("migrations")))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: run(func(ctx context.Context, m *migrate.Manager) error {
				applied, err := m.Up(ctx)
				for _, name := range applied {
					fmt.Println("applied", name)
				}
				if err == nil && len(applied) == 0 {
					fmt.Println("nothing to apply")
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: run(func(ctx context.Context, m *migrate.Manager) error {
				name, err := m.Down(ctx)
				if errors.Is(err, migrate.ErrNothingApplied) {
					fmt.Println("nothing to roll back")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Println("rolled back", name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations",
			RunE: run(func(ctx context.Context, m *migrate.Manager) error {
				history, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, name := range history {
					fmt.Println(name)
				}
				return nil
			}),
		},
	)
	return cmd
}

type containerFunc func(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error

func newReconcileCmd(withContainer containerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rewrite profile roles that disagree with identity role claims",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				rep, err := c.Directory.Reconcile(ctx)
				if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
					return perr
				}
				if err != nil {
					obs.L().Warn("reconcile incomplete", zap.Int("failed", rep.Failed), zap.Error(err))
				}
				return err
			})
		},
	}
}

func newBootstrapCmd(withContainer containerFunc) *cobra.Command {
	var (
		in       account.PromoteInput
		password string
	)
	cmd := &cobra.Command{
		Use:   "bootstrap-sysadmin",
		Short: "Grant the sysadmin role to an identity, creating it if needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password != "" {
				if err := identity.ValidatePassword(password); err != nil {
					return err
				}
			}
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				if password != "" && c.Passwords == nil {
					return errors.New("backend does not keep passwords; sign in through the identity provider")
				}
				p, err := c.Directory.BootstrapSysadmin(ctx, in)
				if err != nil {
					return err
				}
				if password != "" {
					if err := c.Passwords.SetPassword(ctx, p.UID, password); err != nil {
						return fmt.Errorf("set password: %w", err)
					}
					obs.L().Info("sysadmin password set", obs.UserID(p.UID))
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "Email of the sysadmin (required)")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "First name (required)")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "Last name (required)")
	cmd.Flags().StringVar(&in.PhotoURL, "photo-url", "", "Profile photo URL")
	cmd.Flags().StringVar(&password, "password", os.Getenv("STAFFDESK_BOOTSTRAP_PASSWORD"),
		"Sign-in password for the sysadmin (env STAFFDESK_BOOTSTRAP_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newIssueTokenCmd(withContainer containerFunc) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a bearer token for an existing identity at its current role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				ident, err := c.Identity.LookupEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
				if err != nil {
					return err
				}
				token, err := c.Identity.IssueToken(ctx, ident.UID, ident.Role)
				if err != nil {
					return err
				}
				obs.L().Info("token issued", obs.UserID(ident.UID), zap.String("role", ident.Role.String()))
				_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email of the identity (required)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
