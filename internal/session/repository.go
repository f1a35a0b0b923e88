package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// Cookie names. These are the only place in the codebase that knows them.
const (
	TokenCookie    = "mail_tm_token"
	AccountCookie  = "mail_tm_account"
	AccountsCookie = "mail_tm_accounts"
)

// DefaultMaxAge is the session cookie lifetime in seconds (24 hours).
const DefaultMaxAge = 24 * 60 * 60

// ErrCorruptCookie indicates a session cookie that is present but cannot
// be decoded. Callers can distinguish this from a plain missing cookie,
// which is reported as a nil account with a nil error.
var ErrCorruptCookie = errors.New("corrupt session cookie")

// Account is a mailbox identity as stored client-side. It deliberately
// has no password field: credentials are never persisted in cookies.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the active account together with its bearer token.
type Session struct {
	Account Account
	Token   string
}

// Repository owns all session cookie access: names, encoding, lifetime,
// and flags live behind this interface.
type Repository interface {
	// Active returns the current session, nil when no session cookies
	// are set, or ErrCorruptCookie when they cannot be decoded.
	Active(r *http.Request) (*Session, error)

	// Token returns the raw bearer token and whether one is present.
	Token(r *http.Request) (string, bool)

	// SaveActive stores the session as the active one and upserts the
	// account into the saved list.
	SaveActive(w http.ResponseWriter, r *http.Request, sess Session) error

	// Saved returns the saved account list. Absent cookie means an
	// empty list; a corrupt cookie is an error.
	Saved(r *http.Request) ([]Account, error)

	// Upsert merges an account into the saved list by email, last
	// write wins, preserving first-appearance order.
	Upsert(w http.ResponseWriter, r *http.Request, acct Account) error

	// Merge upserts several accounts in one write. Cookies only reach
	// the client once per response, so batch imports must not call
	// Upsert per account.
	Merge(w http.ResponseWriter, r *http.Request, accts []Account) error

	// Remove drops the account with the given email from the saved
	// list. Removing an unknown email is a no-op.
	Remove(w http.ResponseWriter, r *http.Request, email string) error

	// ClearActive expires the token and active-account cookies. The
	// saved list is untouched. Idempotent.
	ClearActive(w http.ResponseWriter)
}

// CookieRepository implements Repository over HTTP cookies.
type CookieRepository struct {
	// Secure controls the cookie Secure flag. Disable only for plain
	// HTTP development setups.
	Secure bool

	// MaxAge is the cookie lifetime in seconds. Zero selects
	// DefaultMaxAge.
	MaxAge int
}

// NewCookieRepository returns a repository issuing cookies with the
// given Secure flag and the default 24h lifetime.
func NewCookieRepository(secure bool) *CookieRepository {
	return &CookieRepository{Secure: secure}
}

func (cr *CookieRepository) maxAge() int {
	if cr.MaxAge > 0 {
		return cr.MaxAge
	}
	return DefaultMaxAge
}

func (cr *CookieRepository) setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   cr.maxAge(),
		HttpOnly: true,
		Secure:   cr.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (cr *CookieRepository) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cr.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Token returns the raw bearer token cookie value.
func (cr *CookieRepository) Token(r *http.Request) (string, bool) {
	c, err := r.Cookie(TokenCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Active returns the current session.
func (cr *CookieRepository) Active(r *http.Request) (*Session, error) {
	token, ok := cr.Token(r)
	if !ok {
		return nil, nil
	}

	c, err := r.Cookie(AccountCookie)
	if err != nil {
		// Token without account data is a half-written session.
		return nil, ErrCorruptCookie
	}

	acct, err := decodeAccount(c.Value)
	if err != nil {
		return nil, err
	}

	return &Session{Account: *acct, Token: token}, nil
}

// SaveActive stores the session cookies and upserts into the saved list.
func (cr *CookieRepository) SaveActive(w http.ResponseWriter, r *http.Request, sess Session) error {
	encoded, err := encodeAccount(sess.Account)
	if err != nil {
		return err
	}

	cr.setCookie(w, TokenCookie, sess.Token)
	cr.setCookie(w, AccountCookie, encoded)

	return cr.Upsert(w, r, sess.Account)
}

// Saved returns the saved account list.
func (cr *CookieRepository) Saved(r *http.Request) ([]Account, error) {
	c, err := r.Cookie(AccountsCookie)
	if err != nil || c.Value == "" {
		return []Account{}, nil
	}

	decoded, err := url.QueryUnescape(c.Value)
	if err != nil {
		return nil, ErrCorruptCookie
	}

	var accounts []Account
	if err := json.Unmarshal([]byte(decoded), &accounts); err != nil {
		return nil, ErrCorruptCookie
	}
	return accounts, nil
}

// Upsert merges by email, last write wins, preserving order.
func (cr *CookieRepository) Upsert(w http.ResponseWriter, r *http.Request, acct Account) error {
	return cr.Merge(w, r, []Account{acct})
}

// Merge upserts all given accounts into the saved list in one cookie
// write.
func (cr *CookieRepository) Merge(w http.ResponseWriter, r *http.Request, accts []Account) error {
	accounts, err := cr.Saved(r)
	if err != nil {
		// A corrupt list is replaced rather than propagated; the new
		// accounts are still worth saving.
		accounts = []Account{}
	}

	for _, acct := range accts {
		replaced := false
		for i := range accounts {
			if strings.EqualFold(accounts[i].Email, acct.Email) {
				accounts[i] = acct
				replaced = true
				break
			}
		}
		if !replaced {
			accounts = append(accounts, acct)
		}
	}

	return cr.writeSaved(w, accounts)
}

// Remove drops one account from the saved list.
func (cr *CookieRepository) Remove(w http.ResponseWriter, r *http.Request, email string) error {
	accounts, err := cr.Saved(r)
	if err != nil {
		return err
	}

	kept := accounts[:0]
	for _, a := range accounts {
		if !strings.EqualFold(a.Email, email) {
			kept = append(kept, a)
		}
	}

	return cr.writeSaved(w, kept)
}

// ClearActive expires the active-session cookies only.
func (cr *CookieRepository) ClearActive(w http.ResponseWriter) {
	cr.expireCookie(w, TokenCookie)
	cr.expireCookie(w, AccountCookie)
}

func (cr *CookieRepository) writeSaved(w http.ResponseWriter, accounts []Account) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return err
	}
	cr.setCookie(w, AccountsCookie, url.QueryEscape(string(data)))
	return nil
}

func encodeAccount(acct Account) (string, error) {
	data, err := json.Marshal(acct)
	if err != nil {
		return "", err
	}
	return url.QueryEscape(string(data)), nil
}

func decodeAccount(value string) (*Account, error) {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return nil, ErrCorruptCookie
	}
	var acct Account
	if err := json.Unmarshal([]byte(decoded), &acct); err != nil {
		return nil, ErrCorruptCookie
	}
	if acct.Email == "" {
		return nil, ErrCorruptCookie
	}
	return &acct, nil
}
