package server

import (
	"net/http"

	"github.com/teemow/vapormail/internal/instrumentation"
	"github.com/teemow/vapormail/internal/logging"
	"github.com/teemow/vapormail/internal/mailtm"
	"github.com/teemow/vapormail/internal/session"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// handleAPILogin authenticates against mail.tm and writes the session
// cookies. Bare usernames are completed with the default domain by the
// client before they reach the provider.
func (s *Server) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	logger := logging.WithOperation(s.logger, "login")

	sess, err := s.mail.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		logger.Warn("login failed",
			logging.Account(mailtm.NormalizeAddress(req.Username)),
			logging.Err(err))
		respondMailError(w, err)
		return
	}

	if err := s.saveSession(w, r, sess); err != nil {
		logger.Error("session save failed", logging.Err(err))
		respondError(w, http.StatusInternalServerError, "could not store session")
		return
	}

	logger.Info("login complete", logging.Account(sess.Account.Address))
	respondJSON(w, http.StatusOK, accountResponse{ID: sess.Account.ID, Email: sess.Account.Address})
}

// handleAPIRegister creates a mailbox and logs it in immediately.
func (s *Server) handleAPIRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	logger := logging.WithOperation(s.logger, "register")
	address := mailtm.NormalizeAddress(req.Username)

	if _, err := s.mail.CreateAccount(r.Context(), address, req.Password); err != nil {
		logger.Warn("account creation failed",
			logging.Account(address),
			logging.Err(err))
		respondMailError(w, err)
		return
	}

	sess, err := s.mail.Login(r.Context(), address, req.Password)
	if err != nil {
		logger.Error("login after registration failed",
			logging.Account(address),
			logging.Err(err))
		respondMailError(w, err)
		return
	}

	if err := s.saveSession(w, r, sess); err != nil {
		logger.Error("session save failed", logging.Err(err))
		respondError(w, http.StatusInternalServerError, "could not store session")
		return
	}

	logger.Info("mailbox created", logging.Account(sess.Account.Address))
	respondJSON(w, http.StatusCreated, accountResponse{ID: sess.Account.ID, Email: sess.Account.Address})
}

// handleAPILogout clears the active session cookies. It is idempotent
// and succeeds even without a session.
func (s *Server) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearActive(w)
	if s.metrics != nil {
		s.metrics.DecrementActiveSessions(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAPIDomains lists the domains available for new mailboxes. The
// endpoint is public so the registration form can populate its
// selector.
func (s *Server) handleAPIDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := s.mail.Domains(r.Context())
	if err != nil {
		s.logger.Error("domain listing failed", logging.Err(err))
		respondMailError(w, err)
		return
	}

	type domainResponse struct {
		ID       string `json:"id"`
		Domain   string `json:"domain"`
		IsActive bool   `json:"isActive"`
	}
	out := make([]domainResponse, 0, len(domains))
	for _, d := range domains {
		out = append(out, domainResponse{ID: d.ID, Domain: d.Domain, IsActive: d.IsActive})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleAPIMe returns the active account as the provider sees it.
func (s *Server) handleAPIMe(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}

	acct, err := s.mail.Me(r.Context(), token)
	if err != nil {
		respondMailError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, accountResponse{ID: acct.ID, Email: acct.Address})
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *mailtm.Session) error {
	err := s.sessions.SaveActive(w, r, session.Session{
		Account: session.Account{ID: sess.Account.ID, Email: sess.Account.Address},
		Token:   sess.Token,
	})
	if err == nil && s.metrics != nil {
		s.metrics.IncrementActiveSessions(r.Context())
		s.metrics.RecordAuthFlow(r.Context(), instrumentation.AuthMethodPassword, instrumentation.StatusSuccess)
	}
	return err
}

// requireToken resolves the session token or writes a 401.
func (s *Server) requireToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := s.sessions.Token(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "not signed in")
		return "", false
	}
	return token, true
}
