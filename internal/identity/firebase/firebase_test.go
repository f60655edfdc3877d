package firebase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"

	"staffdesk.org/internal/auth"
)

func TestFromRecord(t *testing.T) {
	rec := &fbauth.UserRecord{
		UserInfo: &fbauth.UserInfo{
			UID:         "uid-1",
			Email:       "ann@example.com",
			DisplayName: "Ann Lee",
			PhotoURL:    "https://example.com/a.png",
		},
		CustomClaims: map[string]any{"role": "sysadmin"},
	}
	id := fromRecord(rec)
	if id.UID != "uid-1" || id.Email != "ann@example.com" || id.Role != auth.RoleSysadmin {
		t.Fatalf("unexpected identity: %+v", id)
	}

	if got := fromRecord(&fbauth.UserRecord{UserInfo: &fbauth.UserInfo{UID: "uid-2"}}); got.Role != auth.RoleUser {
		t.Fatalf("missing claim must map to user, got %s", got.Role)
	}
	if got := fromRecord(nil); got.UID != "" {
		t.Fatalf("nil record must map to zero identity, got %+v", got)
	}
}

func TestMapErrorPassesContextErrors(t *testing.T) {
	if mapError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	wrapped := fmt.Errorf("request: %w", context.DeadlineExceeded)
	if err := mapError(wrapped); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline passthrough, got %v", err)
	}
	if err := mapError(errors.New("quota exceeded")); err == nil || errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unexpected mapping: %v", err)
	}
}
