// Package account binds identities to admin roles and keeps the mirrored
// admin profiles consistent with the identity provider.
package account

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"staffdesk.org/internal/auth"
)

// ErrProfileNotFound is returned by stores when no profile exists for a uid.
var ErrProfileNotFound = fmt.Errorf("account: profile %w", auth.ErrNotFound)

// Profile is the admin record mirrored from an identity, keyed by uid.
type Profile struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	PhotoURL  string    `json:"photoURL"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PromoteInput names the identity to promote and the profile to record.
type PromoteInput struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	PhotoURL  string `json:"photoURL"`
}

func (in *PromoteInput) normalize() error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.PhotoURL = strings.TrimSpace(in.PhotoURL)
	if in.Email == "" || in.FirstName == "" || in.LastName == "" {
		return fmt.Errorf("%w: email, first name, and last name are required", auth.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: malformed email %q", auth.ErrInvalidInput, in.Email)
	}
	return nil
}

// ProfileUpdate carries the mutable profile fields. The role is never
// changed through an update.
type ProfileUpdate struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	PhotoURL  string `json:"photoURL"`
}

func (u *ProfileUpdate) normalize() error {
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	u.PhotoURL = strings.TrimSpace(u.PhotoURL)
	if u.FirstName == "" || u.LastName == "" {
		return fmt.Errorf("%w: first name and last name are required", auth.ErrInvalidInput)
	}
	return nil
}

// SuperAdmin identifies the system administrator shown to clients.
type SuperAdmin struct {
	UID       string `json:"uid"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Store persists admin profiles.
type Store interface {
	// UpsertProfile writes p, keeping CreatedAt of an existing profile.
	UpsertProfile(ctx context.Context, p Profile) (Profile, error)
	GetProfile(ctx context.Context, uid string) (Profile, error)
	UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate, at time.Time) (Profile, error)
	SetProfileRole(ctx context.Context, uid string, role auth.Role, at time.Time) error
	// ListProfilesByRole returns profiles ordered by creation time.
	ListProfilesByRole(ctx context.Context, role auth.Role) ([]Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
}
