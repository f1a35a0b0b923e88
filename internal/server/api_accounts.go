package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/vapormail/internal/inbox"
	"github.com/teemow/vapormail/internal/logging"
)

// maxImportSize bounds account import uploads.
const maxImportSize = 1 << 20

// handleAPIAccounts lists the saved accounts from the cookie jar.
func (s *Server) handleAPIAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := s.sessions.Saved(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "saved account list is unreadable")
		return
	}
	respondJSON(w, http.StatusOK, accts)
}

type switchRequest struct {
	Email string `json:"email"`
}

// handleAPIAccountSwitch makes a saved account the active one. Saved
// accounts carry no credentials, so the session token is discarded and
// the client has to log the account in again.
func (s *Server) handleAPIAccountSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}

	accts, err := s.sessions.Saved(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "saved account list is unreadable")
		return
	}

	for _, a := range accts {
		if strings.EqualFold(a.Email, req.Email) {
			s.sessions.ClearActive(w)
			s.logger.Info("switched account",
				logging.Operation("account.switch"),
				logging.Account(a.Email))
			respondJSON(w, http.StatusOK, map[string]any{
				"email":         a.Email,
				"loginRequired": true,
			})
			return
		}
	}
	respondError(w, http.StatusNotFound, "no saved account with that address")
}

// handleAPIAccountRemove forgets a saved account. Removing an unknown
// address is a no-op.
func (s *Server) handleAPIAccountRemove(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")
	if email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := s.sessions.Remove(w, r, email); err != nil {
		respondError(w, http.StatusBadRequest, "saved account list is unreadable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAPIAccountsExport downloads the saved account list as JSON.
// Tokens and passwords are never part of the export.
func (s *Server) handleAPIAccountsExport(w http.ResponseWriter, r *http.Request) {
	accts, err := s.sessions.Saved(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "saved account list is unreadable")
		return
	}

	result := inbox.ExportAccounts(accts, time.Now())
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	_, _ = w.Write(result.Content)
}

// handleAPIAccountsImport merges a previously exported account list
// into the cookie jar. Existing entries are updated by email.
func (s *Server) handleAPIAccountsImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	accts, err := inbox.ImportAccounts(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "not a valid account export")
		return
	}

	if err := s.sessions.Merge(w, r, accts); err != nil {
		respondError(w, http.StatusInternalServerError, "could not store accounts")
		return
	}

	s.logger.Info("imported accounts",
		logging.Operation("account.import"),
		"count", len(accts))
	respondJSON(w, http.StatusOK, map[string]int{"imported": len(accts)})
}
