package handlers

import (
	"net/http"

	"github.com/alpha-ultimate/yusra/pkg/gateway/apierror"
	"github.com/alpha-ultimate/yusra/pkg/gateway/auth"
	"github.com/alpha-ultimate/yusra/pkg/gateway/managers"
)

// SessionsHandler serves the session collection: list and create.
type SessionsHandler struct {
	Managers *managers.Registry
}

func (h SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeAPIError(w, r, http.StatusUnauthorized, apierror.ErrAuthentication, "no principal")
		return
	}
	m := h.Managers.For(r.Context(), p)

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, m.Sessions())
	case http.MethodPost:
		s, err := m.EnsureSession(r.Context(), "")
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, s)
	default:
		writeAPIError(w, r, http.StatusMethodNotAllowed, apierror.ErrInvalidRequest, "method not allowed")
	}
}

// SessionHandler serves a single session: fetch, rename, delete.
type SessionHandler struct {
	Managers *managers.Registry
}

func (h SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeAPIError(w, r, http.StatusUnauthorized, apierror.ErrAuthentication, "no principal")
		return
	}
	m := h.Managers.For(r.Context(), p)
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		s, err := m.Session(id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)

	case http.MethodPatch:
		var body struct {
			Title string `json:"title"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if body.Title == "" {
			writeAPIError(w, r, http.StatusBadRequest, apierror.ErrInvalidRequest, "title must not be empty")
			return
		}
		if err := m.RenameSession(r.Context(), id, body.Title); err != nil {
			writeError(w, r, err)
			return
		}
		s, err := m.Session(id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)

	case http.MethodDelete:
		urls, err := m.DeleteSession(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		// Returned URLs are the client's transient object references; it
		// revokes them on receipt.
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id, "revokeUrls": urls})

	default:
		writeAPIError(w, r, http.StatusMethodNotAllowed, apierror.ErrInvalidRequest, "method not allowed")
	}
}
