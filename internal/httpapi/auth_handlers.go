package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"staffdesk.org/internal/audit"
	"staffdesk.org/internal/auth"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleAuthToken exchanges an email and password for a bearer token on
// backends that keep credentials themselves. Firebase clients obtain their
// ID token from the Firebase SDK instead.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, fmt.Errorf("%w: %v", auth.ErrInvalidInput, err))
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		handleError(w, r, fmt.Errorf("%w: email and password are required", auth.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.opts.UpstreamTimeout)
	defer cancel()
	ident, err := a.opts.Passwords.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		handleError(w, r, auth.Upstream("identity sign_in", err))
		return
	}
	token, err := a.identity.IssueToken(ctx, ident.UID, ident.Role)
	if err != nil {
		handleError(w, r, auth.Upstream("identity issue_token", err))
		return
	}

	ctx = auth.ContextWithCaller(r.Context(), ident.Caller())
	_ = audit.LogEvent(ctx, audit.EventTokenIssued, zap.String("uid", ident.UID))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: ident.Role})
}
