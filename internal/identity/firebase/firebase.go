// Package firebase adapts Firebase Authentication to identity.Provider.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	fb "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/identity"
)

var _ identity.Provider = (*Provider)(nil)

// NewApp initialises a Firebase app. An empty credentialsFile falls back to
// Application Default Credentials.
func NewApp(ctx context.Context, projectID, credentialsFile string) (*fb.App, error) {
	var opts []option.ClientOption
	if f := strings.TrimSpace(credentialsFile); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	var cfg *fb.Config
	if p := strings.TrimSpace(projectID); p != "" {
		cfg = &fb.Config{ProjectID: p}
	}
	app, err := fb.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

// Provider wraps the Firebase Auth admin client. Role claims are stored as
// the "role" custom claim.
type Provider struct {
	client *fbauth.Client
}

func New(ctx context.Context, app *fb.App) (*Provider, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &Provider{client: client}, nil
}

// Verify validates a Firebase ID token. The role is read from the token's
// custom claims, so a role change becomes visible once the client refreshes
// its ID token.
func (p *Provider) Verify(ctx context.Context, token string) (identity.Identity, error) {
	tok, err := p.client.VerifyIDToken(ctx, token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return identity.Identity{}, ctxErr
		}
		return identity.Identity{}, identity.ErrInvalidToken
	}
	email, _ := tok.Claims["email"].(string)
	return identity.Identity{
		UID:   tok.UID,
		Email: email,
		Role:  auth.RoleFromClaims(tok.Claims),
	}, nil
}

func (p *Provider) Get(ctx context.Context, uid string) (identity.Identity, error) {
	rec, err := p.client.GetUser(ctx, uid)
	if err != nil {
		return identity.Identity{}, mapError(err)
	}
	return fromRecord(rec), nil
}

func (p *Provider) LookupEmail(ctx context.Context, email string) (identity.Identity, error) {
	rec, err := p.client.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return identity.Identity{}, mapError(err)
	}
	return fromRecord(rec), nil
}

func (p *Provider) Create(ctx context.Context, in identity.NewIdentity) (identity.Identity, error) {
	password := in.Password
	if password == "" {
		generated, err := identity.GeneratePassword()
		if err != nil {
			return identity.Identity{}, err
		}
		password = generated
	}
	params := (&fbauth.UserToCreate{}).
		Email(strings.ToLower(strings.TrimSpace(in.Email))).
		EmailVerified(false).
		Password(password)
	if name := strings.TrimSpace(in.DisplayName); name != "" {
		params = params.DisplayName(name)
	}
	if photo := strings.TrimSpace(in.PhotoURL); photo != "" {
		params = params.PhotoURL(photo)
	}
	rec, err := p.client.CreateUser(ctx, params)
	if err != nil {
		return identity.Identity{}, mapError(err)
	}
	return fromRecord(rec), nil
}

func (p *Provider) SetRole(ctx context.Context, uid string, role auth.Role) error {
	if err := p.client.SetCustomUserClaims(ctx, uid, map[string]any{"role": role.String()}); err != nil {
		return mapError(err)
	}
	return nil
}

// IssueToken mints a Firebase custom token carrying the role claim. Clients
// exchange it for an ID token through the Firebase client SDK.
func (p *Provider) IssueToken(ctx context.Context, uid string, role auth.Role) (string, error) {
	tok, err := p.client.CustomTokenWithClaims(ctx, uid, map[string]any{"role": role.String()})
	if err != nil {
		return "", mapError(err)
	}
	return tok, nil
}

func fromRecord(rec *fbauth.UserRecord) identity.Identity {
	if rec == nil || rec.UserInfo == nil {
		return identity.Identity{}
	}
	return identity.Identity{
		UID:         rec.UID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		PhotoURL:    rec.PhotoURL,
		Role:        auth.RoleFromClaims(rec.CustomClaims),
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case fbauth.IsUserNotFound(err):
		return identity.ErrUserNotFound
	case fbauth.IsEmailAlreadyExists(err):
		return identity.ErrEmailExists
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("firebase auth: %w", err)
	}
}
