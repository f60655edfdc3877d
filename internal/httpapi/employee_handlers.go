package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/employee"
)

func (a *API) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := auth.Check(caller, auth.ActionCreateEmployee); err != nil {
		handleError(w, r, err)
		return
	}
	var req employee.NewEmployee
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, fmt.Errorf("%w: %v", auth.ErrInvalidInput, err))
		return
	}
	rec, err := a.registry.Create(r.Context(), caller, req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/employees/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	out, err := a.registry.List(r.Context(), callerFrom(r), employee.Filter{
		AddedBy: r.URL.Query().Get("addedBy"),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	rec, err := a.registry.Get(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := a.registry.Delete(r.Context(), callerFrom(r), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
