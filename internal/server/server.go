package server

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/teemow/vapormail/internal/githubauth"
	"github.com/teemow/vapormail/internal/instrumentation"
	"github.com/teemow/vapormail/internal/logging"
	"github.com/teemow/vapormail/internal/mailtm"
	"github.com/teemow/vapormail/internal/session"
)

const (
	// DefaultReadHeaderTimeout bounds how long the server waits for
	// request headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds response writes.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultIdleTimeout closes idle keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Config holds the dependencies and settings for the web server.
type Config struct {
	// Addr is the address the server binds to (e.g., ":8080").
	Addr string

	// BaseURL is the externally visible URL of the server. HTTPS is
	// required unless the host is a loopback address.
	BaseURL string

	// Sessions stores the active and saved mailbox accounts.
	Sessions session.Repository

	// Mail is the mail.tm API client.
	Mail *mailtm.Client

	// GitHub handles the optional GitHub OAuth login bridge. May be nil.
	GitHub *githubauth.Handler

	// Templates renders the HTML pages.
	Templates *template.Template

	// StaticFS serves the stylesheet and scripts under /static/.
	StaticFS fs.FS

	// Logger receives request and handler logs. Defaults to slog.Default.
	Logger *slog.Logger

	// Metrics records request and export metrics. May be nil.
	Metrics *instrumentation.Metrics

	// Health exposes the liveness and readiness probes. May be nil.
	Health *HealthChecker
}

// Server is the vapormail web server: HTML pages, the JSON API, and the
// GitHub OAuth bridge behind a cookie-based route guard.
type Server struct {
	addr      string
	sessions  session.Repository
	mail      *mailtm.Client
	github    *githubauth.Handler
	templates *template.Template
	staticFS  fs.FS
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	health    *HealthChecker

	httpServer *http.Server
}

// New creates a Server from the given configuration.
func New(cfg Config) (*Server, error) {
	if err := validateHTTPSRequirement(cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if cfg.Mail == nil {
		return nil, fmt.Errorf("mail.tm client is required")
	}
	if cfg.Templates == nil {
		return nil, fmt.Errorf("templates are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      cfg.Addr,
		sessions:  cfg.Sessions,
		mail:      cfg.Mail,
		github:    cfg.GitHub,
		templates: cfg.Templates,
		staticFS:  cfg.StaticFS,
		logger:    logger,
		metrics:   cfg.Metrics,
		health:    cfg.Health,
	}, nil
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Pages
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /auth/login", s.guardAuthPage(http.HandlerFunc(s.handleLoginPage)))
	mux.Handle("GET /auth/register", s.guardAuthPage(http.HandlerFunc(s.handleRegisterPage)))
	mux.Handle("GET /dashboard", s.guardDashboard(http.HandlerFunc(s.handleDashboardPage)))
	mux.HandleFunc("GET /auth/logout", s.handleLogout)

	// GitHub OAuth bridge
	if s.github != nil {
		mux.HandleFunc("GET /auth/github", s.github.Begin)
		mux.HandleFunc("GET /auth/callback", s.github.Callback)
	}

	// JSON API
	mux.HandleFunc("POST /api/login", s.handleAPILogin)
	mux.HandleFunc("POST /api/register", s.handleAPIRegister)
	mux.HandleFunc("POST /api/logout", s.handleAPILogout)
	mux.HandleFunc("GET /api/domains", s.handleAPIDomains)
	mux.HandleFunc("GET /api/me", s.handleAPIMe)
	mux.HandleFunc("GET /api/accounts", s.handleAPIAccounts)
	mux.HandleFunc("GET /api/accounts/export", s.handleAPIAccountsExport)
	mux.HandleFunc("POST /api/accounts/import", s.handleAPIAccountsImport)
	mux.HandleFunc("POST /api/accounts/switch", s.handleAPIAccountSwitch)
	mux.HandleFunc("DELETE /api/accounts/{email}", s.handleAPIAccountRemove)
	mux.HandleFunc("GET /api/messages", s.handleAPIMessages)
	mux.HandleFunc("GET /api/messages/{id}", s.handleAPIMessage)
	mux.HandleFunc("DELETE /api/messages/{id}", s.handleAPIMessageDelete)
	mux.HandleFunc("GET /api/export", s.handleAPIExport)

	// Static assets
	if s.staticFS != nil {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(s.staticFS)))
	}

	if s.health != nil {
		s.health.RegisterHealthEndpoints(mux)
	}

	return s.instrumentationMiddleware(mux)
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	s.logger.Info("starting web server", slog.String("addr", s.addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.health != nil {
		s.health.SetReady(false)
		s.health.SetShuttingDown(true)
	}
	if s.httpServer != nil {
		s.logger.Info("shutting down web server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleIndex routes the bare root to the dashboard or the login page
// depending on whether a session token is present.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessions.Token(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, "login.html", map[string]any{
		"Error":         loginErrorMessage(r.URL.Query().Get("error")),
		"GitHubEnabled": s.github != nil && s.github.Enabled(),
	})
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, "register.html", nil)
}

func (s *Server) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Active(r)
	if err != nil || sess == nil {
		// The guard already checked the token; a corrupt account cookie
		// still lands here.
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	s.renderPage(w, "dashboard.html", map[string]any{
		"Email": sess.Account.Email,
	})
}

// handleLogout discards the active session cookies. Saved accounts are
// kept, and the token is never revoked upstream.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearActive(w)
	if s.metrics != nil {
		s.metrics.DecrementActiveSessions(r.Context())
	}
	s.logger.Info("logged out", logging.Operation("logout"))
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template render failed",
			slog.String("template", name),
			logging.Err(err))
	}
}

// loginErrorMessage maps redirect error codes to user-facing text.
func loginErrorMessage(code string) string {
	switch code {
	case "":
		return ""
	case "github_not_configured":
		return "GitHub login is not configured on this server"
	case "github_denied":
		return "GitHub authorization was denied"
	case "github_state", "github_exchange", "github_user":
		return "GitHub login failed, please try again"
	default:
		return "Login failed, please try again"
	}
}

// validateHTTPSRequirement rejects non-HTTPS base URLs outside of
// loopback development setups.
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("HTTPS is required for non-local deployments (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
