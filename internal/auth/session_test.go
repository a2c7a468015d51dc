package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cormons/controlstock/internal/db"
)

func newSessions(t *testing.T, defaultAddr string) *Sessions {
	t.Helper()
	keys, err := DeriveKeys("master-secret-for-tests")
	require.NoError(t, err)
	return &Sessions{DB: db.NewTestDB(t), Keys: keys, DefaultAddr: defaultAddr}
}

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

const connJSON = `{"ip":"10.1.2.3","puerto":"5555","codigo":"EMP1","nombre":"Empresa Uno"}`

func TestTokenCookieNormalized(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: TokenCookie, Value: url.QueryEscape(`"abc\123"`)})
	assert.Equal(t, "abc123", Token(r))

	assert.Empty(t, Token(httptest.NewRequest("GET", "/", nil)))
}

func TestConnectionFromCookieStartsSession(t *testing.T) {
	s := newSessions(t, "")

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: ConnectionCookie, Value: url.QueryEscape(connJSON)})
	rec := httptest.NewRecorder()

	cfg, err := s.Connection(rec, r)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3:5555", cfg.Addr())
	assert.Equal(t, "Empresa Uno", cfg.Name)

	session := cookieFrom(t, rec, SessionCookie)
	require.NotNil(t, session, "session cookie set")
	assert.True(t, session.HttpOnly)

	// The cached session resolves without the portal cookie.
	r2 := httptest.NewRequest("GET", "/", nil)
	r2.AddCookie(session)
	cfg2, err := s.Connection(httptest.NewRecorder(), r2)
	require.NoError(t, err)
	assert.Equal(t, cfg, cfg2)
}

func TestConnectionFallsBackToDefault(t *testing.T) {
	s := newSessions(t, "127.0.0.1:5555")

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: ConnectionCookie, Value: "not json"})
	cfg, err := s.Connection(httptest.NewRecorder(), r)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5555", cfg.Addr())
}

func TestConnectionNone(t *testing.T) {
	s := newSessions(t, "")
	_, err := s.Connection(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.ErrorIs(t, err, ErrNoConnection)
}

func TestEndRevokesSession(t *testing.T) {
	s := newSessions(t, "")

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: ConnectionCookie, Value: connJSON})
	rec := httptest.NewRecorder()
	_, err := s.Connection(rec, r)
	require.NoError(t, err)
	session := cookieFrom(t, rec, SessionCookie)
	require.NotNil(t, session)

	logout := httptest.NewRequest("GET", "/", nil)
	logout.AddCookie(session)
	out := httptest.NewRecorder()
	require.NoError(t, s.End(out, logout))

	for _, name := range []string{SessionCookie, TokenCookie, ConnectionCookie, CSRFCookie} {
		c := cookieFrom(t, out, name)
		require.NotNil(t, c, name)
		assert.Negative(t, c.MaxAge, name)
	}

	// The revoked session no longer resolves.
	again := httptest.NewRequest("GET", "/", nil)
	again.AddCookie(session)
	_, err = s.Connection(httptest.NewRecorder(), again)
	assert.ErrorIs(t, err, ErrNoConnection)
}

func TestCSRFMiddleware(t *testing.T) {
	s := newSessions(t, "")

	var failures []error
	onFail := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		failures = append(failures, CSRFFailure(r))
		w.WriteHeader(http.StatusForbidden)
	})
	h := s.CSRF(onFail)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ExposeCSRF(w, r)
		w.WriteHeader(http.StatusNoContent)
	}))

	// A safe request issues the cookie and exposes the masked token.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	token := rec.Header().Get(CSRFHeader)
	require.NotEmpty(t, token)
	c := cookieFrom(t, rec, CSRFCookie)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)

	post := func(cookie *http.Cookie, header string) int {
		r := httptest.NewRequest("POST", "/", nil)
		if cookie != nil {
			r.AddCookie(cookie)
		}
		if header != "" {
			r.Header.Set(CSRFHeader, header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, post(c, token))
	assert.Equal(t, http.StatusForbidden, post(c, ""), "missing header")
	assert.Equal(t, http.StatusForbidden, post(nil, token), "missing cookie")
	assert.Equal(t, http.StatusForbidden, post(&http.Cookie{Name: CSRFCookie, Value: "forged"}, token), "forged cookie")
	assert.Len(t, failures, 3)

	// Another key cannot read the cookie.
	other := &Sessions{Keys: &Keys{CSRF: []byte("0123456789abcdef0123456789abcdef")}}
	oh := other.CSRF(onFail)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r := httptest.NewRequest("POST", "/", nil)
	r.AddCookie(c)
	r.Header.Set(CSRFHeader, token)
	rec = httptest.NewRecorder()
	oh.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
