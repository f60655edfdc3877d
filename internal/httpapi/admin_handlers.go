package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"staffdesk.org/internal/account"
	"staffdesk.org/internal/auth"
)

type loginResponse struct {
	Token string    `json:"token"`
	Role  auth.Role `json:"role"`
}

type removeAdminRequest struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

type updateAdminRequest struct {
	UID       string `json:"uid"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	PhotoURL  string `json:"photoURL"`
}

// handleLogin exchanges a verified credential for a token carrying the role
// currently attached to the identity. The bearer token may predate a
// promotion, so the role is read from the provider rather than the token.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if caller.UID == "" {
		handleError(w, r, auth.ErrUnauthenticated)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.opts.UpstreamTimeout)
	defer cancel()

	current, err := a.identity.Get(ctx, caller.UID)
	if err != nil {
		handleError(w, r, auth.Upstream("identity get", err))
		return
	}
	caller.Role = current.Role
	if err := auth.Require(caller, auth.ActionLogin); err != nil {
		handleError(w, r, err)
		return
	}
	token, err := a.identity.IssueToken(ctx, caller.UID, caller.Role)
	if err != nil {
		handleError(w, r, auth.Upstream("identity issue_token", err))
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: caller.Role})
}

func (a *API) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := auth.Check(caller, auth.ActionPromoteAdmin); err != nil {
		handleError(w, r, err)
		return
	}
	var req account.PromoteInput
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, fmt.Errorf("%w: %v", auth.ErrInvalidInput, err))
		return
	}
	p, err := a.directory.Promote(r.Context(), caller, req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRemoveAdmin accepts either a uid or an email; an email is
// translated to the identity's uid first.
func (a *API) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := auth.Check(caller, auth.ActionDemoteAdmin); err != nil {
		handleError(w, r, err)
		return
	}
	var req removeAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, fmt.Errorf("%w: %v", auth.ErrInvalidInput, err))
		return
	}
	uid := strings.TrimSpace(req.UID)
	var err error
	switch {
	case uid != "":
		err = a.directory.Demote(r.Context(), caller, uid)
	case strings.TrimSpace(req.Email) != "":
		uid, err = a.directory.DemoteEmail(r.Context(), caller, req.Email)
	default:
		err = fmt.Errorf("%w: uid or email is required", auth.ErrInvalidInput)
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uid": uid, "role": auth.RoleUser})
}

func (a *API) handleUpdateAdmin(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := auth.Check(caller, auth.ActionUpdateAdmin); err != nil {
		handleError(w, r, err)
		return
	}
	var req updateAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, fmt.Errorf("%w: %v", auth.ErrInvalidInput, err))
		return
	}
	p, err := a.directory.UpdateProfile(r.Context(), caller, req.UID, account.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		PhotoURL:  req.PhotoURL,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	admins, err := a.directory.ListAdmins(r.Context(), callerFrom(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, admins)
}

func (a *API) handleSuperAdmin(w http.ResponseWriter, r *http.Request) {
	info, err := a.directory.SuperAdmin(r.Context(), callerFrom(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
