package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth verifies the bearer credential and places the caller in the
// request context. It never evaluates policy, so a missing or invalid
// credential is always 401 and never 403.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			handleError(w, r, fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), a.opts.UpstreamTimeout)
		ident, err := a.identity.Verify(ctx, token)
		cancel()
		if err != nil {
			handleError(w, r, auth.Upstream("identity verify", err))
			return
		}

		caller := ident.Caller()
		ctx = auth.ContextWithCaller(r.Context(), caller)
		ctx = auth.ContextWithToken(ctx, token)
		ctx = obs.With(ctx, obs.UserID(caller.UID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerFrom returns the caller placed by withAuth. Handlers only run
// behind withAuth, so a missing caller yields an unauthenticated one that
// the policy rejects.
func callerFrom(r *http.Request) auth.Caller {
	c, _ := auth.CallerFromContext(r.Context())
	return c
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
