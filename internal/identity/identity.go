// Package identity abstracts the identity provider that verifies bearer
// credentials and owns role claims.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"staffdesk.org/internal/auth"
)

var (
	ErrInvalidToken = fmt.Errorf("identity: invalid token: %w", auth.ErrUnauthenticated)
	ErrUserNotFound = fmt.Errorf("identity: user %w", auth.ErrNotFound)
	// ErrAmbiguous is returned when an email resolves to more than one identity.
	ErrAmbiguous   = fmt.Errorf("identity: ambiguous email lookup: %w", auth.ErrNotFound)
	ErrEmailExists = errors.New("identity: email already registered")
)

// Identity is a provider-issued account and its current role claim.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	Role        auth.Role
}

// Caller converts the identity into a request caller.
func (i Identity) Caller() auth.Caller {
	return auth.Caller{UID: i.UID, Email: i.Email, Role: i.Role}
}

// NewIdentity describes an account to be created.
type NewIdentity struct {
	Email       string
	Password    string
	DisplayName string
	PhotoURL    string
}

// Verifier turns a bearer credential into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Provider is the full identity provider surface used by the account directory.
type Provider interface {
	Verifier
	Get(ctx context.Context, uid string) (Identity, error)
	LookupEmail(ctx context.Context, email string) (Identity, error)
	Create(ctx context.Context, in NewIdentity) (Identity, error)
	SetRole(ctx context.Context, uid string, role auth.Role) error
	IssueToken(ctx context.Context, uid string, role auth.Role) (string, error)
}

// GeneratePassword returns a random placeholder credential for accounts
// created on promotion. The owner is expected to reset it through the provider.
func GeneratePassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
