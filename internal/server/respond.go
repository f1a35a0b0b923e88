package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/teemow/vapormail/internal/mailtm"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondMailError translates mail.tm client errors to API responses:
// bad credentials map to 401, duplicates to 409, provider rejections
// keep their upstream detail behind a 502, and transport failures
// become a plain 502.
func respondMailError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mailtm.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, mailtm.ErrDuplicateUsername):
		respondError(w, http.StatusConflict, "that address is already taken")
	default:
		var provErr *mailtm.ProviderError
		if errors.As(err, &provErr) {
			if provErr.StatusCode == http.StatusNotFound {
				respondError(w, http.StatusNotFound, "not found")
				return
			}
			if provErr.StatusCode == http.StatusUnauthorized {
				respondError(w, http.StatusUnauthorized, "session expired")
				return
			}
			respondError(w, http.StatusBadGateway, provErr.Detail)
			return
		}
		respondError(w, http.StatusBadGateway, "mail provider unavailable")
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
