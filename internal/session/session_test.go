package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/internal/token"
)

func testIdentity() models.Identity {
	return models.Identity{
		ID:           "user-123",
		Username:     "alice",
		Email:        "alice@example.com",
		Role:         models.RoleUser,
		ProviderType: models.ProviderEmail,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	codec, err := token.NewCodec("session-test-secret", time.Hour, 30*24*time.Hour)
	require.NoError(t, err)
	return NewManager(codec, true, 24*time.Hour)
}

func cookiesByName(res *http.Response) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range res.Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestWriteSetsSessionCookies(t *testing.T) {
	m := newTestManager(t)
	rec := httptest.NewRecorder()

	csrf, err := m.Write(rec, testIdentity(), Options{})
	require.NoError(t, err)
	require.NotEmpty(t, csrf)

	cookies := cookiesByName(rec.Result())
	require.Contains(t, cookies, CookieAuthToken)
	require.Contains(t, cookies, CookieUserDisplay)
	require.Contains(t, cookies, CookieCSRFToken)
	assert.NotContains(t, cookies, CookieRememberMe)

	auth := cookies[CookieAuthToken]
	assert.True(t, auth.HttpOnly)
	assert.True(t, auth.Secure)
	assert.Equal(t, http.SameSiteStrictMode, auth.SameSite)
	assert.Equal(t, int(time.Hour.Seconds()), auth.MaxAge)

	display := cookies[CookieUserDisplay]
	assert.False(t, display.HttpOnly, "display cookie must be client-readable")

	csrfCookie := cookies[CookieCSRFToken]
	assert.False(t, csrfCookie.HttpOnly, "csrf cookie must be client-readable")
	assert.Equal(t, csrf, csrfCookie.Value)
	assert.Equal(t, int((24 * time.Hour).Seconds()), csrfCookie.MaxAge)
}

func TestWriteRememberMeSetsRefreshCookie(t *testing.T) {
	m := newTestManager(t)
	rec := httptest.NewRecorder()

	_, err := m.Write(rec, testIdentity(), Options{RememberMe: true})
	require.NoError(t, err)

	cookies := cookiesByName(rec.Result())
	require.Contains(t, cookies, CookieRememberMe)

	refresh := cookies[CookieRememberMe]
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, int((30 * 24 * time.Hour).Seconds()), refresh.MaxAge)
}

func TestReadRoundTrip(t *testing.T) {
	m := newTestManager(t)
	rec := httptest.NewRecorder()

	csrf, err := m.Write(rec, testIdentity(), Options{RememberMe: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	s := m.Read(req)
	assert.True(t, s.HasAccess)
	assert.True(t, s.HasDisplay)
	assert.True(t, s.HasCSRF)
	assert.True(t, s.HasRefresh)
	assert.Equal(t, csrf, s.CSRFToken())

	require.NotNil(t, s.Display)
	assert.Equal(t, "alice", s.Display.Username)
	assert.Equal(t, "user", s.Display.Role)
	assert.False(t, s.Display.LastLoginAt.IsZero())
}

func TestReadEmptyRequest(t *testing.T) {
	m := newTestManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	s := m.Read(req)
	assert.False(t, s.HasAccess)
	assert.False(t, s.HasDisplay)
	assert.False(t, s.HasCSRF)
	assert.False(t, s.HasRefresh)
	assert.Nil(t, s.Display)
	assert.Empty(t, s.AccessToken())
}

func TestReadMalformedDisplayCookie(t *testing.T) {
	m := newTestManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieUserDisplay, Value: "not-json"})

	s := m.Read(req)
	assert.True(t, s.HasDisplay)
	assert.Nil(t, s.Display, "malformed display payload is ignored, not an error")
}

func TestClearDeletesAllCookies(t *testing.T) {
	m := newTestManager(t)
	rec := httptest.NewRecorder()

	m.Clear(rec)

	cookies := cookiesByName(rec.Result())
	for _, name := range []string{CookieAuthToken, CookieUserDisplay, CookieCSRFToken, CookieRememberMe} {
		c, ok := cookies[name]
		require.True(t, ok, "cookie %s must be deleted", name)
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
}

func TestRotateAccessAndDisplay(t *testing.T) {
	m := newTestManager(t)
	rec := httptest.NewRecorder()

	loginAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	prev := &DisplayPayload{LastLoginAt: loginAt}

	err := m.RotateAccessAndDisplay(rec, testIdentity(), prev)
	require.NoError(t, err)

	cookies := cookiesByName(rec.Result())
	require.Contains(t, cookies, CookieAuthToken)
	require.Contains(t, cookies, CookieUserDisplay)
	assert.NotContains(t, cookies, CookieCSRFToken, "csrf cookie must survive rotation")
	assert.NotContains(t, cookies, CookieRememberMe, "refresh cookie must survive rotation")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	s := m.Read(req)
	require.NotNil(t, s.Display)
	assert.Equal(t, loginAt, s.Display.LastLoginAt.UTC(), "login time preserved across refresh")
	assert.True(t, s.Display.LastRefreshAt.After(loginAt))
}

func TestRotateCSRF(t *testing.T) {
	m := newTestManager(t)
	rec := httptest.NewRecorder()

	first := m.RotateCSRF(rec)
	second := m.RotateCSRF(rec)
	assert.NotEqual(t, first, second)
	assert.Len(t, first, csrfTokenBytes*2) // hex encoding
}

func TestEnsureCSRF(t *testing.T) {
	m := newTestManager(t)

	t.Run("existing cookie is kept", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieCSRFToken, Value: "existing-token"})

		got := m.EnsureCSRF(rec, req)
		assert.Equal(t, "existing-token", got)
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("missing cookie is issued", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		got := m.EnsureCSRF(rec, req)
		require.NotEmpty(t, got)

		cookies := cookiesByName(rec.Result())
		require.Contains(t, cookies, CookieCSRFToken)
		assert.Equal(t, got, cookies[CookieCSRFToken].Value)
	})
}
