package handlers

import (
	"net/http"

	"github.com/alpha-ultimate/yusra/pkg/gateway/apierror"
	"github.com/alpha-ultimate/yusra/pkg/gateway/auth"
	"github.com/alpha-ultimate/yusra/pkg/settings"
)

// SettingsHandler round-trips the per-user settings document.
type SettingsHandler struct {
	// Durable backs authenticated users. Fallback holds everyone else and is
	// also used when no database is configured.
	Durable  settings.Store
	Fallback settings.Store
}

func (h SettingsHandler) storeFor(p *auth.Principal) settings.Store {
	if p.Authenticated && h.Durable != nil {
		return h.Durable
	}
	return h.Fallback
}

func (h SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeAPIError(w, r, http.StatusUnauthorized, apierror.ErrAuthentication, "no principal")
		return
	}
	store := h.storeFor(p)

	switch r.Method {
	case http.MethodGet:
		s, err := store.LoadSettings(r.Context(), p.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)

	case http.MethodPut:
		var s settings.Settings
		if !decodeJSON(w, r, &s) {
			return
		}
		if s.WakeWord == "" {
			s.WakeWord = settings.Defaults().WakeWord
		}
		if err := store.SaveSettings(r.Context(), p.UserID, s); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)

	default:
		writeAPIError(w, r, http.StatusMethodNotAllowed, apierror.ErrInvalidRequest, "method not allowed")
	}
}
