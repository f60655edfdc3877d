package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"staffdesk.org/internal/auth"
)

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]bool{
		"":               false,
		"Bearer":         false,
		"Bearer   ":      false,
		"Basic abc":      false,
		"Bearer abc":     true,
		"bearer abc":     true,
		"  Bearer abc  ": true,
	}
	for header, ok := range cases {
		_, err := extractBearerToken(header)
		if (err == nil) != ok {
			t.Fatalf("extractBearerToken(%q) err=%v, want ok=%v", header, err, ok)
		}
	}
}

func TestWithAuthPlacesCallerInContext(t *testing.T) {
	env := newTestEnv(t)
	var got auth.Caller
	handler := env.api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = callerFrom(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin-users", nil)
	req.Header.Set(authHeader, "Bearer "+env.adminToken)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.UID != "admin-1" || got.Role != auth.RoleAdmin {
		t.Fatalf("unexpected caller %+v", got)
	}
}

func TestWithAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	env := newTestEnv(t)
	called := false
	handler := RequestID(env.api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})))

	for _, header := range []string{"", "Bearer not-a-jwt", "Token abc"} {
		req := httptest.NewRequest(http.MethodGet, "/admin-users", nil)
		if header != "" {
			req.Header.Set(authHeader, header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", header, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%q: expected WWW-Authenticate header", header)
		}
	}
	if called {
		t.Fatalf("handler must not run without a valid credential")
	}
}
