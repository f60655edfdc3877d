// Package local implements a self-hosted identity provider on PostgreSQL.
package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/identity"
)

const pgErrUniqueViolation = "23505"

var (
	_ identity.Provider              = (*Provider)(nil)
	_ identity.PasswordAuthenticator = (*Provider)(nil)
)

// Provider stores identities in the identities table and signs HS256 tokens.
type Provider struct {
	db     *sql.DB
	signer *identity.Signer
}

func New(db *sql.DB, signer *identity.Signer) (*Provider, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	if signer == nil {
		return nil, errors.New("token signer is required")
	}
	return &Provider{db: db, signer: signer}, nil
}

// Verify checks the token signature and loads the identity so that the
// returned role is the one currently stored, not the one baked into the token.
func (p *Provider) Verify(ctx context.Context, token string) (identity.Identity, error) {
	claims, err := p.signer.Parse(token)
	if err != nil {
		return identity.Identity{}, err
	}
	id, err := p.Get(ctx, claims.Subject)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	return id, err
}

func (p *Provider) Get(ctx context.Context, uid string) (identity.Identity, error) {
	row := p.db.QueryRowContext(ctx, `
		select uid, email, display_name, photo_url, role
		from identities
		where uid = $1
	`, uid)
	id, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Identity{}, identity.ErrUserNotFound
	}
	return id, err
}

func (p *Provider) LookupEmail(ctx context.Context, email string) (identity.Identity, error) {
	rows, err := p.db.QueryContext(ctx, `
		select uid, email, display_name, photo_url, role
		from identities
		where lower(email) = $1
		limit 2
	`, normalizeEmail(email))
	if err != nil {
		return identity.Identity{}, err
	}
	defer rows.Close()

	var found []identity.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return identity.Identity{}, err
		}
		found = append(found, id)
	}
	if err := rows.Err(); err != nil {
		return identity.Identity{}, err
	}
	switch len(found) {
	case 0:
		return identity.Identity{}, identity.ErrUserNotFound
	case 1:
		return found[0], nil
	default:
		return identity.Identity{}, identity.ErrAmbiguous
	}
}

func (p *Provider) Create(ctx context.Context, in identity.NewIdentity) (identity.Identity, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return identity.Identity{}, fmt.Errorf("%w: email is required", auth.ErrInvalidInput)
	}
	password := in.Password
	if password == "" {
		generated, err := identity.GeneratePassword()
		if err != nil {
			return identity.Identity{}, err
		}
		password = generated
	}
	hash, err := identity.HashPassword(password)
	if err != nil {
		return identity.Identity{}, err
	}

	id := identity.Identity{
		UID:         uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(in.DisplayName),
		PhotoURL:    strings.TrimSpace(in.PhotoURL),
		Role:        auth.RoleUser,
	}
	_, err = p.db.ExecContext(ctx, `
		insert into identities (uid, email, display_name, photo_url, password_hash, role)
		values ($1, $2, $3, $4, $5, $6)
	`, id.UID, id.Email, id.DisplayName, id.PhotoURL, hash, id.Role.String())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return identity.Identity{}, identity.ErrEmailExists
		}
		return identity.Identity{}, err
	}
	return id, nil
}

func (p *Provider) SetRole(ctx context.Context, uid string, role auth.Role) error {
	res, err := p.db.ExecContext(ctx, `
		update identities set role = $2, updated_at = now()
		where uid = $1
	`, uid, role.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

func (p *Provider) IssueToken(ctx context.Context, uid string, role auth.Role) (string, error) {
	id, err := p.Get(ctx, uid)
	if err != nil {
		return "", err
	}
	return p.signer.Sign(id.UID, id.Email, role)
}

// SignIn checks password against the stored argon2id hash. Unknown emails
// and wrong passwords both yield identity.ErrInvalidCredentials.
func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.Identity, error) {
	row := p.db.QueryRowContext(ctx, `
		select uid, email, display_name, photo_url, role, password_hash
		from identities
		where lower(email) = $1
	`, normalizeEmail(email))
	var (
		id   identity.Identity
		role string
		hash string
	)
	err := row.Scan(&id.UID, &id.Email, &id.DisplayName, &id.PhotoURL, &role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Identity{}, identity.ErrInvalidCredentials
	}
	if err != nil {
		return identity.Identity{}, err
	}
	if err := identity.VerifyPassword(hash, password); err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return identity.Identity{}, err
		}
		return identity.Identity{}, fmt.Errorf("verify password for %s: %w", id.UID, err)
	}
	id.Role = auth.ParseRole(role)
	return id, nil
}

// SetPassword replaces the stored hash for uid.
func (p *Provider) SetPassword(ctx context.Context, uid, password string) error {
	if err := identity.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := identity.HashPassword(password)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		update identities set password_hash = $2, updated_at = now()
		where uid = $1
	`, uid, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (identity.Identity, error) {
	var (
		id   identity.Identity
		role string
	)
	if err := row.Scan(&id.UID, &id.Email, &id.DisplayName, &id.PhotoURL, &role); err != nil {
		return identity.Identity{}, err
	}
	id.Role = auth.ParseRole(role)
	return id, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
