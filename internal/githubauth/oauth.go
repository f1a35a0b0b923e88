package githubauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/teemow/vapormail/internal/instrumentation"
	"github.com/teemow/vapormail/internal/logging"
	"github.com/teemow/vapormail/internal/mailtm"
	"github.com/teemow/vapormail/internal/session"
)

const (
	// stateCookie carries the CSRF state between Begin and Callback.
	stateCookie = "gh_oauth_state"

	// stateMaxAge bounds how long an authorization round trip may take.
	stateMaxAge = 10 * time.Minute

	// usernamePrefix namespaces provisioned mailbox usernames so they
	// cannot collide with manually registered ones.
	usernamePrefix = "gh_"

	githubAPIBase = "https://api.github.com"
)

// MailProvider is the subset of the mail API the bridge needs.
type MailProvider interface {
	Login(ctx context.Context, username, password string) (*mailtm.Session, error)
	CreateAccount(ctx context.Context, address, password string) (*mailtm.Account, error)
}

// Handler bridges GitHub OAuth logins onto provider mailbox accounts.
type Handler struct {
	oauth        *oauth2.Config
	mail         MailProvider
	sessions     session.Repository
	logger       *slog.Logger
	metrics      *instrumentation.Metrics
	secure       bool
	apiBase      string
	httpClient   *http.Client
	exchangeFunc func(ctx context.Context, code string) (*oauth2.Token, error)
}

// Config holds the GitHub OAuth application credentials and wiring.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the absolute URL of the callback endpoint.
	RedirectURL string
	// SecureCookies controls the Secure flag on the state cookie.
	SecureCookies bool
}

// NewHandler creates the OAuth bridge.
func NewHandler(cfg Config, mail MailProvider, sessions session.Repository, opts ...Option) *Handler {
	h := &Handler{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoints.GitHub,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
		},
		mail:       mail,
		sessions:   sessions,
		logger:     slog.Default(),
		secure:     cfg.SecureCookies,
		apiBase:    githubAPIBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	h.exchangeFunc = func(ctx context.Context, code string) (*oauth2.Token, error) {
		return h.oauth.Exchange(ctx, code)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics attaches a metrics recorder for auth flow outcomes.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithAPIBase overrides the GitHub API base URL. Used by tests.
func WithAPIBase(base string) Option {
	return func(h *Handler) { h.apiBase = base }
}

// WithExchange overrides the token exchange. Used by tests.
func WithExchange(fn func(ctx context.Context, code string) (*oauth2.Token, error)) Option {
	return func(h *Handler) { h.exchangeFunc = fn }
}

// Enabled reports whether OAuth credentials are configured.
func (h *Handler) Enabled() bool {
	return h.oauth.ClientID != "" && h.oauth.ClientSecret != ""
}

// Begin starts the authorization flow: it issues a random state cookie
// and redirects to GitHub's authorize URL.
func (h *Handler) Begin(w http.ResponseWriter, r *http.Request) {
	if !h.Enabled() {
		http.Redirect(w, r, "/auth/login?error=github_not_configured", http.StatusSeeOther)
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusSeeOther)
}

// Callback completes the flow. Provisioning failures are logged and the
// user is sent to the dashboard regardless; without session cookies the
// route guard bounces them back to the login page.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithOperation(h.logger, "github.callback")

	// Consume the state cookie regardless of outcome.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		logger.Warn("authorization denied", slog.String("oauth_error", errParam))
		http.Redirect(w, r, "/auth/login?error=github_denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if code == "" || state == "" || err != nil || cookie.Value != state {
		logger.Warn("state validation failed", logging.Err(err))
		http.Redirect(w, r, "/auth/login?error=github_state", http.StatusSeeOther)
		return
	}

	token, err := h.exchangeFunc(r.Context(), code)
	if err != nil {
		logger.Error("code exchange failed", logging.Err(err))
		h.recordAuth(r.Context(), instrumentation.StatusError)
		http.Redirect(w, r, "/auth/login?error=github_exchange", http.StatusSeeOther)
		return
	}

	user, err := h.fetchUser(r.Context(), token.AccessToken)
	if err != nil {
		logger.Error("user lookup failed", logging.Err(err))
		h.recordAuth(r.Context(), instrumentation.StatusError)
		http.Redirect(w, r, "/auth/login?error=github_user", http.StatusSeeOther)
		return
	}

	sess, err := h.Provision(r.Context(), user)
	if err != nil {
		// Swallowed on purpose: the user lands on the dashboard and the
		// route guard sends them to login when no session was written.
		logger.Error("mailbox provisioning failed",
			logging.Err(err),
			slog.String("github_user", user.Login))
		h.recordAuth(r.Context(), instrumentation.StatusError)
	} else {
		if err := h.sessions.SaveActive(w, r, session.Session{
			Account: session.Account{ID: sess.Account.ID, Email: sess.Account.Address},
			Token:   sess.Token,
		}); err != nil {
			logger.Error("session save failed", logging.Err(err))
		}
		h.recordAuth(r.Context(), instrumentation.StatusSuccess)
		logger.Info("github login complete", logging.Account(sess.Account.Address))
	}

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// User is the GitHub identity the bridge derives mailbox credentials from.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

// Credentials derives the deterministic mailbox credentials for a
// GitHub user: username gh_<id>, password from the primary email with
// the username itself as fallback.
func Credentials(user User) (username, password string) {
	username = usernamePrefix + strconv.FormatInt(user.ID, 10)
	password = user.Email
	if password == "" {
		password = username
	}
	return username, password
}

// Provision logs the derived credentials in, creating the mailbox
// account on first use: login, then on any failure create-and-login
// once more. A duplicate on create is tolerated since it means the
// account exists and only the login needs retrying.
func (h *Handler) Provision(ctx context.Context, user User) (*mailtm.Session, error) {
	username, password := Credentials(user)

	sess, err := h.mail.Login(ctx, username, password)
	if err == nil {
		return sess, nil
	}

	if _, createErr := h.mail.CreateAccount(ctx, mailtm.NormalizeAddress(username), password); createErr != nil {
		if !errors.Is(createErr, mailtm.ErrDuplicateUsername) {
			return nil, fmt.Errorf("create mailbox: %w", createErr)
		}
	}

	sess, err = h.mail.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("login after create: %w", err)
	}
	return sess, nil
}

// fetchUser resolves the authenticated GitHub user, falling back to the
// primary address from /user/emails when the profile email is private.
func (h *Handler) fetchUser(ctx context.Context, accessToken string) (User, error) {
	var user User
	if err := h.githubGet(ctx, accessToken, "/user", &user); err != nil {
		return User{}, err
	}
	if user.ID == 0 {
		return User{}, fmt.Errorf("github user response has no id")
	}

	if user.Email == "" {
		var emails []struct {
			Email   string `json:"email"`
			Primary bool   `json:"primary"`
		}
		if err := h.githubGet(ctx, accessToken, "/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary {
					user.Email = e.Email
					break
				}
			}
		}
	}

	return user, nil
}

func (h *Handler) githubGet(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("github returned status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (h *Handler) recordAuth(ctx context.Context, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordAuthFlow(ctx, instrumentation.AuthMethodGitHub, outcome)
	}
}
