package mailtm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/vapormail/internal/instrumentation"
	"github.com/teemow/vapormail/internal/logging"
)

const (
	// DefaultBaseURL is the public API endpoint of the mail.tm service.
	DefaultBaseURL = "https://api.mail.tm"

	// DefaultTimeout is the per-request timeout for provider calls.
	DefaultTimeout = 15 * time.Second

	// DefaultDomain is appended to bare usernames that carry no domain.
	DefaultDomain = "mail.tm"

	// DefaultPageSize is the number of messages per list page.
	DefaultPageSize = 20
)

// Client talks to the mail.tm REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics attaches a metrics recorder for provider API operations.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for provider call diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the given API base URL.
// An empty baseURL selects the public mail.tm endpoint.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeAddress turns a bare username into a full address on the
// default domain. Addresses that already carry a domain pass through
// unchanged, lowercased.
func NormalizeAddress(username string) string {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return ""
	}
	if !strings.Contains(username, "@") {
		return username + "@" + DefaultDomain
	}
	return username
}

// Domains lists the domains available for registration.
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	var list hydraList[Domain]
	if err := c.do(ctx, http.MethodGet, "/domains", "", nil, &list, "domains"); err != nil {
		return nil, err
	}
	return list.Member, nil
}

// CreateAccount registers a new mailbox with the given full address and
// password. A registration for an existing address returns
// ErrDuplicateUsername.
func (c *Client) CreateAccount(ctx context.Context, address, password string) (*Account, error) {
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	body := map[string]string{"address": address, "password": password}
	var acct Account
	err := c.do(ctx, http.MethodPost, "/accounts", "", body, &acct, "create_account")
	if err != nil {
		var provErr *ProviderError
		if errors.As(err, &provErr) && isDuplicate(provErr) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUsername, address)
		}
		return nil, err
	}
	return &acct, nil
}

// Login authenticates against the provider and resolves the account the
// token belongs to. A bare username without a domain is normalized to
// the default domain first. Wrong credentials return
// ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	address := NormalizeAddress(username)

	body := map[string]string{"address": address, "password": password}
	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", "", body, &tok, "login")
	if err != nil {
		var provErr *ProviderError
		if errors.As(err, &provErr) && provErr.StatusCode == http.StatusUnauthorized {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	acct, err := c.Me(ctx, tok.Token)
	if err != nil {
		return nil, fmt.Errorf("resolve account after login: %w", err)
	}

	c.logger.Debug("provider login succeeded",
		logging.Operation("mailtm.login"),
		logging.Account(acct.Address))

	return &Session{Token: tok.Token, Account: *acct}, nil
}

// Me returns the account the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	var acct Account
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &acct, "me"); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Messages lists one page of the mailbox for the given token.
// Page numbers start at 1; pageSize 0 selects the default.
func (c *Client) Messages(ctx context.Context, token string, page, pageSize int) (*MessageList, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var list hydraList[Message]
	if err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), token, nil, &list, "list_messages"); err != nil {
		return nil, err
	}
	return &MessageList{Messages: list.Member, Total: list.TotalItems}, nil
}

// Message fetches the full message body for the given message ID.
func (c *Client) Message(ctx context.Context, token, id string) (*MessageDetail, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if id == "" {
		return nil, fmt.Errorf("message id is required")
	}
	var detail MessageDetail
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(id), token, nil, &detail, "get_message"); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeleteMessage removes a message from the mailbox.
func (c *Client) DeleteMessage(ctx context.Context, token, id string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}
	if id == "" {
		return fmt.Errorf("message id is required")
	}
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(id), token, nil, nil, "delete_message")
}

// MarkSeen flags a message as read.
func (c *Client) MarkSeen(ctx context.Context, token, id string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}
	if id == "" {
		return fmt.Errorf("message id is required")
	}
	body := map[string]bool{"seen": true}
	return c.doWithContentType(ctx, http.MethodPatch, "/messages/"+url.PathEscape(id), token, body, nil, "mark_seen", "application/merge-patch+json")
}

// do executes a provider request with a JSON body and decodes a JSON
// response into out (which may be nil for empty responses).
func (c *Client) do(ctx context.Context, method, path, token string, body, out any, op string) error {
	return c.doWithContentType(ctx, method, path, token, body, out, op, "application/json")
}

func (c *Client) doWithContentType(ctx context.Context, method, path, token string, body, out any, op, contentType string) error {
	ctx, span := instrumentation.StartMailAPISpan(ctx, op)
	defer span.End()

	start := time.Now()
	err := c.execute(ctx, method, path, token, body, out, op, contentType)

	if err != nil {
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	if c.metrics != nil {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordMailAPIOperation(ctx, op, status, time.Since(start))
	}

	return err
}

func (c *Client) execute(ctx context.Context, method, path, token string, body, out any, op, contentType string) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp, op)
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrParse, err)
	}
	return nil
}

// errorFromResponse turns a non-2xx provider response into a ProviderError,
// extracting the human-readable detail from the hydra error body.
func (c *Client) errorFromResponse(resp *http.Response, op string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var he hydraError
	_ = json.Unmarshal(raw, &he)

	provErr := &ProviderError{
		StatusCode: resp.StatusCode,
		Detail:     he.detail(),
	}

	c.logger.Debug("provider request failed",
		logging.Operation("mailtm."+op),
		logging.StatusCode(resp.StatusCode),
		logging.Err(provErr))

	return provErr
}

// isDuplicate reports whether a provider error describes a registration
// for an address that already exists.
func isDuplicate(err *ProviderError) bool {
	if err.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	return strings.Contains(strings.ToLower(err.Detail), "already exists") ||
		strings.Contains(strings.ToLower(err.Detail), "already used")
}
