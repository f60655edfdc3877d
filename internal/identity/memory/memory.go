// Package memory is an in-process identity provider for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/identity"
)

var (
	_ identity.Provider              = (*Provider)(nil)
	_ identity.PasswordAuthenticator = (*Provider)(nil)
)

// Provider keeps identities in memory and issues HS256 tokens.
type Provider struct {
	signer *identity.Signer

	mu      sync.RWMutex
	byUID   map[string]*identity.Identity
	byEmail map[string]string
	// Only passwords set through SetPassword are kept; placeholder
	// credentials handed to Create are never usable.
	hashes map[string]string
}

// New creates an empty provider that signs tokens with signer.
func New(signer *identity.Signer) *Provider {
	return &Provider{
		signer:  signer,
		byUID:   make(map[string]*identity.Identity),
		byEmail: make(map[string]string),
		hashes:  make(map[string]string),
	}
}

func (p *Provider) Verify(ctx context.Context, token string) (identity.Identity, error) {
	claims, err := p.signer.Parse(token)
	if err != nil {
		return identity.Identity{}, err
	}
	id, err := p.Get(ctx, claims.Subject)
	if err != nil {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	return id, nil
}

func (p *Provider) Get(ctx context.Context, uid string) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byUID[uid]
	if !ok {
		return identity.Identity{}, identity.ErrUserNotFound
	}
	return *id, nil
}

func (p *Provider) LookupEmail(ctx context.Context, email string) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	uid, ok := p.byEmail[normalizeEmail(email)]
	if !ok {
		return identity.Identity{}, identity.ErrUserNotFound
	}
	return *p.byUID[uid], nil
}

func (p *Provider) Create(ctx context.Context, in identity.NewIdentity) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	email := normalizeEmail(in.Email)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byEmail[email]; ok {
		return identity.Identity{}, identity.ErrEmailExists
	}
	id := &identity.Identity{
		UID:         uuid.NewString(),
		Email:       email,
		DisplayName: in.DisplayName,
		PhotoURL:    in.PhotoURL,
		Role:        auth.RoleUser,
	}
	p.byUID[id.UID] = id
	p.byEmail[email] = id.UID
	return *id, nil
}

func (p *Provider) SetRole(ctx context.Context, uid string, role auth.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byUID[uid]
	if !ok {
		return identity.ErrUserNotFound
	}
	id.Role = role
	return nil
}

func (p *Provider) IssueToken(ctx context.Context, uid string, role auth.Role) (string, error) {
	id, err := p.Get(ctx, uid)
	if err != nil {
		return "", err
	}
	return p.signer.Sign(id.UID, id.Email, role)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	p.mu.RLock()
	uid, ok := p.byEmail[normalizeEmail(email)]
	hash := p.hashes[uid]
	var id identity.Identity
	if ok {
		id = *p.byUID[uid]
	}
	p.mu.RUnlock()
	if !ok || hash == "" {
		return identity.Identity{}, identity.ErrInvalidCredentials
	}
	if err := identity.VerifyPassword(hash, password); err != nil {
		return identity.Identity{}, err
	}
	return id, nil
}

func (p *Provider) SetPassword(ctx context.Context, uid, password string) error {
	if err := identity.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := identity.HashPassword(password)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byUID[uid]; !ok {
		return identity.ErrUserNotFound
	}
	p.hashes[uid] = hash
	return nil
}

// Seed registers an identity with a fixed uid and role and returns a token
// for it. Used by bootstrap code and tests.
func (p *Provider) Seed(uid, email string, role auth.Role) (string, error) {
	email = normalizeEmail(email)
	p.mu.Lock()
	p.byUID[uid] = &identity.Identity{UID: uid, Email: email, Role: role}
	p.byEmail[email] = uid
	p.mu.Unlock()
	return p.signer.Sign(uid, email, role)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
