package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/vapormail/internal/mailtm"
	"github.com/teemow/vapormail/internal/session"
	"github.com/teemow/vapormail/web"
)

const (
	testToken    = "tok-abc123"
	testPassword = "hunter2hunter2"
)

// newFakeMailAPI returns an httptest server speaking the mail.tm wire
// format with one account (alice@mail.tm) and two messages.
func newFakeMailAPI(t *testing.T) (*httptest.Server, *fakeMailState) {
	t.Helper()

	state := &fakeMailState{}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /domains", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"hydra:member": []map[string]any{
				{"id": "dom1", "domain": "mail.tm", "isActive": true},
				{"id": "dom2", "domain": "retired.example", "isActive": false},
			},
			"hydra:totalItems": 2,
		})
	})

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Address  string `json:"address"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Address != "alice@mail.tm" || req.Password != testPassword {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid credentials."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": testToken, "id": "acc1"})
	})

	mux.HandleFunc("POST /accounts", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Address string `json:"address"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Address == "taken@mail.tm" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"hydra:description": "address: This value is already used.",
			})
			return
		}
		if req.Address == "alice@mail.tm" {
			writeJSON(w, http.StatusCreated, map[string]any{"id": "acc1", "address": req.Address})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": "acc2", "address": req.Address})
	})

	requireToken := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "JWT Token not found"})
			return false
		}
		return true
	}

	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "acc1", "address": "alice@mail.tm"})
	})

	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"hydra:member": []map[string]any{
				{
					"id":      "msg1",
					"from":    map[string]any{"address": "news@service.io", "name": "Service"},
					"to":      []map[string]any{{"address": "alice@mail.tm"}},
					"subject": "Welcome",
					"intro":   "Thanks for signing up",
					"seen":    false,
				},
				{
					"id":      "msg2",
					"from":    map[string]any{"address": "billing@service.io"},
					"to":      []map[string]any{{"address": "alice@mail.tm"}},
					"subject": "Invoice #2",
					"intro":   "Your invoice is attached",
					"seen":    true,
				},
			},
			"hydra:totalItems": 2,
		})
	})

	mux.HandleFunc("GET /messages/msg1", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "msg1",
			"from":    map[string]any{"address": "news@service.io", "name": "Service"},
			"subject": "Welcome",
			"seen":    false,
			"text":    "Thanks for signing up!",
			"html":    []string{"<p>Thanks for signing up!</p>"},
		})
	})

	mux.HandleFunc("PATCH /messages/msg1", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		state.markedSeen = true
		writeJSON(w, http.StatusOK, map[string]any{"id": "msg1", "seen": true})
	})

	mux.HandleFunc("DELETE /messages/msg1", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		state.deleted = true
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, state
}

type fakeMailState struct {
	markedSeen bool
	deleted    bool
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newTestServer(t *testing.T) (*Server, *fakeMailState) {
	t.Helper()

	upstream, state := newFakeMailAPI(t)

	templates, err := web.Templates()
	require.NoError(t, err)

	srv, err := New(Config{
		Addr:      ":0",
		BaseURL:   "http://localhost:8080",
		Sessions:  session.NewCookieRepository(false),
		Mail:      mailtm.NewClient(upstream.URL),
		Templates: templates,
		Health:    NewHealthChecker(),
	})
	require.NoError(t, err)
	return srv, state
}

// sessionCookies returns the cookies a logged-in browser would carry.
func sessionCookies(t *testing.T) []*http.Cookie {
	t.Helper()

	repo := session.NewCookieRepository(false)
	rec := httptest.NewRecorder()
	err := repo.SaveActive(rec, httptest.NewRequest(http.MethodGet, "/", nil), session.Session{
		Account: session.Account{ID: "acc1", Email: "alice@mail.tm"},
		Token:   testToken,
	})
	require.NoError(t, err)
	return rec.Result().Cookies()
}

func doRequest(t *testing.T, srv *Server, method, target, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRouteGuard(t *testing.T) {
	srv, _ := newTestServer(t)
	signedIn := sessionCookies(t)

	tests := []struct {
		name         string
		target       string
		cookies      []*http.Cookie
		wantStatus   int
		wantLocation string
	}{
		{
			name:         "dashboard without session redirects to login",
			target:       "/dashboard",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/auth/login",
		},
		{
			name:       "dashboard with session renders",
			target:     "/dashboard",
			cookies:    signedIn,
			wantStatus: http.StatusOK,
		},
		{
			name:         "login page with session redirects to dashboard",
			target:       "/auth/login",
			cookies:      signedIn,
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/dashboard",
		},
		{
			name:         "register page with session redirects to dashboard",
			target:       "/auth/register",
			cookies:      signedIn,
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/dashboard",
		},
		{
			name:       "login page without session renders",
			target:     "/auth/login",
			wantStatus: http.StatusOK,
		},
		{
			name:         "root without session goes to login",
			target:       "/",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/auth/login",
		},
		{
			name:         "root with session goes to dashboard",
			target:       "/",
			cookies:      signedIn,
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/dashboard",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodGet, tt.target, "", tt.cookies)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
		})
	}
}

func TestDashboardWithCorruptAccountCookie(t *testing.T) {
	srv, _ := newTestServer(t)

	cookies := []*http.Cookie{
		{Name: session.TokenCookie, Value: testToken},
		{Name: session.AccountCookie, Value: "%%%not-json"},
	}
	rec := doRequest(t, srv, http.MethodGet, "/dashboard", "", cookies)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
}

func TestAPILogin(t *testing.T) {
	t.Run("valid credentials set session cookies", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodPost, "/api/login",
			`{"username":"alice","password":"`+testPassword+`"}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Email string `json:"email"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "alice@mail.tm", resp.Email)

		names := cookieNames(rec.Result().Cookies())
		assert.Contains(t, names, session.TokenCookie)
		assert.Contains(t, names, session.AccountCookie)
		assert.Contains(t, names, session.AccountsCookie)
	})

	t.Run("wrong password is a 401", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodPost, "/api/login",
			`{"username":"alice","password":"wrong"}`, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid credentials")
	})

	t.Run("missing fields are a 400", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodPost, "/api/login", `{"username":"alice"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPIRegister(t *testing.T) {
	t.Run("creates the mailbox and signs in", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodPost, "/api/register",
			`{"username":"alice","password":"`+testPassword+`"}`, nil)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, cookieNames(rec.Result().Cookies()), session.TokenCookie)
	})

	t.Run("duplicate address is a 409", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodPost, "/api/register",
			`{"username":"taken","password":"`+testPassword+`"}`, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestAPILogout(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/logout", "", sessionCookies(t))
	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case session.TokenCookie, session.AccountCookie:
			assert.Less(t, c.MaxAge, 0, "cookie %s should be expired", c.Name)
		case session.AccountsCookie:
			t.Error("saved accounts must survive logout")
		}
	}

	t.Run("idempotent without a session", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/logout", "", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestAPIDomains(t *testing.T) {
	srv, _ := newTestServer(t)

	// No session required: the registration form needs this.
	rec := doRequest(t, srv, http.MethodGet, "/api/domains", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var domains []struct {
		Domain   string `json:"domain"`
		IsActive bool   `json:"isActive"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &domains))
	require.Len(t, domains, 2)
	assert.Equal(t, "mail.tm", domains[0].Domain)
	assert.True(t, domains[0].IsActive)
}

func TestAPIMessages(t *testing.T) {
	t.Run("lists the inbox", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodGet, "/api/messages", "", sessionCookies(t))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Messages []struct {
				From    string `json:"from"`
				Subject string `json:"subject"`
			} `json:"messages"`
			Total int `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, 2, resp.Total)
		assert.Equal(t, "Service <news@service.io>", resp.Messages[0].From)
	})

	t.Run("filters with the q parameter", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodGet, "/api/messages?q=invoice", "", sessionCookies(t))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Messages []struct {
				Subject string `json:"subject"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Messages, 1)
		assert.Equal(t, "Invoice #2", resp.Messages[0].Subject)
	})

	t.Run("rejects a bad page parameter", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodGet, "/api/messages?page=zero", "", sessionCookies(t))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires a session", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodGet, "/api/messages", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAPIMessageDetail(t *testing.T) {
	srv, state := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/messages/msg1", "", sessionCookies(t))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Subject string   `json:"subject"`
		Text    string   `json:"text"`
		HTML    []string `json:"html"`
		Seen    bool     `json:"seen"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Welcome", resp.Subject)
	assert.Equal(t, "Thanks for signing up!", resp.Text)
	assert.True(t, resp.Seen)
	assert.True(t, state.markedSeen, "opening an unseen message must mark it seen upstream")
}

func TestAPIMessageDelete(t *testing.T) {
	srv, state := newTestServer(t)

	rec := doRequest(t, srv, http.MethodDelete, "/api/messages/msg1", "", sessionCookies(t))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, state.deleted)
}

func TestAPIExport(t *testing.T) {
	t.Run("json export downloads a file", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodGet, "/api/export?format=json", "", sessionCookies(t))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "inbox_")
		assert.Contains(t, rec.Body.String(), "Invoice #2")
	})

	t.Run("unsupported format is a 400", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(t, srv, http.MethodGet, "/api/export?format=pdf", "", sessionCookies(t))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPIMe(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/me", "", sessionCookies(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice@mail.tm")

	t.Run("requires a session", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func cookieNames(cookies []*http.Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return names
}
