package session

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestWithCookies builds a request carrying every cookie the recorder set.
func requestWithCookies(t *testing.T, rec *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			req.AddCookie(c)
		}
	}
	return req
}

func TestActiveAbsentVsCorrupt(t *testing.T) {
	repo := NewCookieRepository(false)

	t.Run("no cookies means no session and no error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		sess, err := repo.Active(req)
		assert.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("garbage account cookie is corrupt", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "tok"})
		req.AddCookie(&http.Cookie{Name: AccountCookie, Value: "%%%not-json"})
		_, err := repo.Active(req)
		assert.ErrorIs(t, err, ErrCorruptCookie)
	})

	t.Run("token without account cookie is corrupt", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "tok"})
		_, err := repo.Active(req)
		assert.ErrorIs(t, err, ErrCorruptCookie)
	})

	t.Run("account json missing email is corrupt", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "tok"})
		req.AddCookie(&http.Cookie{Name: AccountCookie, Value: url.QueryEscape(`{"id":"a1"}`)})
		_, err := repo.Active(req)
		assert.ErrorIs(t, err, ErrCorruptCookie)
	})
}

func TestSaveActiveRoundTrip(t *testing.T) {
	repo := NewCookieRepository(false)
	rec := httptest.NewRecorder()

	sess := Session{
		Account: Account{ID: "a1", Email: "alice@mail.tm"},
		Token:   "tok-1",
	}
	require.NoError(t, repo.SaveActive(rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))

	req := requestWithCookies(t, rec)

	got, err := repo.Active(req)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok-1", got.Token)
	assert.Equal(t, "alice@mail.tm", got.Account.Email)
	assert.Equal(t, "a1", got.Account.ID)

	// SaveActive also upserts into the saved list.
	saved, err := repo.Saved(req)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "alice@mail.tm", saved[0].Email)
}

func TestSaveActiveCookieAttributes(t *testing.T) {
	repo := NewCookieRepository(true)
	rec := httptest.NewRecorder()

	sess := Session{Account: Account{ID: "a1", Email: "alice@mail.tm"}, Token: "tok"}
	require.NoError(t, repo.SaveActive(rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	for _, c := range cookies {
		assert.Equal(t, "/", c.Path, "cookie %s", c.Name)
		assert.Equal(t, DefaultMaxAge, c.MaxAge, "cookie %s", c.Name)
		assert.True(t, c.HttpOnly, "cookie %s", c.Name)
		assert.True(t, c.Secure, "cookie %s", c.Name)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite, "cookie %s", c.Name)
	}
}

func TestClearActivePreservesSavedList(t *testing.T) {
	repo := NewCookieRepository(false)

	// Build a request with an active session and two saved accounts.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, repo.SaveActive(rec, req, Session{Account: Account{ID: "a1", Email: "alice@mail.tm"}, Token: "t1"}))

	req = requestWithCookies(t, rec)
	rec = httptest.NewRecorder()
	require.NoError(t, repo.Upsert(rec, req, Account{ID: "a2", Email: "bob@mail.tm"}))

	// Merge both recorders' view into one request.
	merged := httptest.NewRequest(http.MethodGet, "/", nil)
	merged.AddCookie(&http.Cookie{Name: TokenCookie, Value: "t1"})
	for _, c := range rec.Result().Cookies() {
		merged.AddCookie(c)
	}

	clearRec := httptest.NewRecorder()
	repo.ClearActive(clearRec)

	var expiredToken, expiredAccount, touchedAccounts bool
	for _, c := range clearRec.Result().Cookies() {
		switch c.Name {
		case TokenCookie:
			expiredToken = c.MaxAge < 0
		case AccountCookie:
			expiredAccount = c.MaxAge < 0
		case AccountsCookie:
			touchedAccounts = true
		}
	}
	assert.True(t, expiredToken, "token cookie should be expired")
	assert.True(t, expiredAccount, "account cookie should be expired")
	assert.False(t, touchedAccounts, "saved accounts cookie must not be touched")

	// Idempotent: clearing again produces the same result without error.
	again := httptest.NewRecorder()
	repo.ClearActive(again)
	assert.Len(t, again.Result().Cookies(), 2)
}

func TestSavedAbsentIsEmpty(t *testing.T) {
	repo := NewCookieRepository(false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	saved, err := repo.Saved(req)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestSavedCorrupt(t *testing.T) {
	repo := NewCookieRepository(false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccountsCookie, Value: url.QueryEscape("[{broken")})

	_, err := repo.Saved(req)
	assert.ErrorIs(t, err, ErrCorruptCookie)
}

func TestUpsertMergesByEmailLastWriteWins(t *testing.T) {
	repo := NewCookieRepository(false)

	// Start with alice and bob.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, repo.Upsert(rec, req, Account{ID: "a1", Email: "alice@mail.tm"}))
	req = requestWithCookies(t, rec)

	rec = httptest.NewRecorder()
	require.NoError(t, repo.Upsert(rec, req, Account{ID: "b1", Email: "bob@mail.tm"}))
	req = requestWithCookies(t, rec)

	// Re-upsert alice with a new ID; order must be stable and the
	// entry replaced.
	rec = httptest.NewRecorder()
	require.NoError(t, repo.Upsert(rec, req, Account{ID: "a2", Email: "ALICE@mail.tm"}))
	req = requestWithCookies(t, rec)

	saved, err := repo.Saved(req)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "a2", saved[0].ID)
	assert.Equal(t, "bob@mail.tm", saved[1].Email)
}

func TestRemove(t *testing.T) {
	repo := NewCookieRepository(false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, repo.Upsert(rec, req, Account{ID: "a1", Email: "alice@mail.tm"}))
	req = requestWithCookies(t, rec)

	rec = httptest.NewRecorder()
	require.NoError(t, repo.Upsert(rec, req, Account{ID: "b1", Email: "bob@mail.tm"}))
	req = requestWithCookies(t, rec)

	rec = httptest.NewRecorder()
	require.NoError(t, repo.Remove(rec, req, "alice@mail.tm"))
	req = requestWithCookies(t, rec)

	saved, err := repo.Saved(req)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "bob@mail.tm", saved[0].Email)

	// Removing an unknown email is a no-op.
	rec = httptest.NewRecorder()
	require.NoError(t, repo.Remove(rec, req, "nobody@mail.tm"))
}

func TestTokenPresence(t *testing.T) {
	repo := NewCookieRepository(false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := repo.Token(req)
	assert.False(t, ok)

	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "tok"})
	tok, ok := repo.Token(req)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)
}

func TestMergeUpsertsInOneWrite(t *testing.T) {
	repo := NewCookieRepository(false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, repo.Upsert(rec, req, Account{ID: "a1", Email: "alice@mail.tm"}))
	req = requestWithCookies(t, rec)

	rec = httptest.NewRecorder()
	require.NoError(t, repo.Merge(rec, req, []Account{
		{ID: "a2", Email: "ALICE@mail.tm"},
		{ID: "b1", Email: "bob@mail.tm"},
		{ID: "c1", Email: "carol@mail.tm"},
	}))
	req = requestWithCookies(t, rec)

	saved, err := repo.Saved(req)
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Equal(t, "a2", saved[0].ID, "merge replaces by email case-insensitively")
	assert.Equal(t, "bob@mail.tm", saved[1].Email)
	assert.Equal(t, "carol@mail.tm", saved[2].Email)
}
