package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encorehub/authd/internal/auth"
	"github.com/encorehub/authd/internal/csrf"
	"github.com/encorehub/authd/internal/metrics"
	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/internal/server/middleware"
	"github.com/encorehub/authd/internal/session"
	"github.com/encorehub/authd/internal/token"
	"github.com/encorehub/authd/pkg/api"
)

type sessionEnv struct {
	codec   *token.Codec
	service *auth.Service
	handler *SessionHandler
}

func newSessionEnv(t *testing.T) *sessionEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec, err := token.NewCodec("session-handler-secret", time.Hour, 30*24*time.Hour)
	require.NoError(t, err)
	sessions := session.NewManager(codec, true, 24*time.Hour)
	service := auth.NewService(codec, sessions, logger)
	guard := csrf.NewGuard(sessions)
	recorder := metrics.NewCollector(prometheus.NewRegistry())

	return &sessionEnv{
		codec:   codec,
		service: service,
		handler: NewSessionHandler(logger, service, guard, recorder),
	}
}

func (e *sessionEnv) identity() models.Identity {
	return models.Identity{
		ID:           "user-123",
		Username:     "alice",
		Email:        "alice@example.com",
		Role:         models.RoleModerator,
		ProviderType: models.ProviderEmail,
	}
}

func (e *sessionEnv) accessCookie(t *testing.T) *http.Cookie {
	t.Helper()
	access, err := e.codec.Issue(e.identity(), token.KindAccess)
	require.NoError(t, err)
	return &http.Cookie{Name: session.CookieAuthToken, Value: access}
}

func TestStatus(t *testing.T) {
	env := newSessionEnv(t)
	handler := middleware.OptionalAuth(env.service)(http.HandlerFunc(env.handler.Status))

	t.Run("anonymous gets csrf token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.StatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.False(t, resp.Authenticated)
		assert.Nil(t, resp.User)
		assert.NotEmpty(t, resp.CSRFToken)

		// cookie выпущен
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, session.CookieCSRFToken, cookies[0].Name)
	})

	t.Run("authenticated user is reported", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
		req.AddCookie(env.accessCookie(t))

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.StatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.Authenticated)
		require.NotNil(t, resp.User)
		assert.Equal(t, "user-123", resp.User.ID)
		assert.Equal(t, "moderator", resp.User.Role)
	})
}

func TestCSRFTokenEndpoint(t *testing.T) {
	env := newSessionEnv(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieCSRFToken, Value: "old"})

	env.handler.CSRFToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.CSRFTokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.CSRFToken)
	assert.NotEqual(t, "old", resp.CSRFToken, "endpoint always rotates")
}

func TestRefreshEndpoint(t *testing.T) {
	env := newSessionEnv(t)

	t.Run("without refresh cookie clears session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.handler.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, api.CodeSessionExpired, decodeErrorCode(t, rec))

		// все cookie удалены
		assert.Len(t, rec.Result().Cookies(), 4)
	})

	t.Run("with valid refresh cookie", func(t *testing.T) {
		refresh, err := env.codec.Issue(env.identity(), token.KindRefresh)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: session.CookieRememberMe, Value: refresh})

		env.handler.Refresh(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.RefreshResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "user-123", resp.User.ID)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	env := newSessionEnv(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(env.accessCookie(t))

	env.handler.Logout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 4)
	for _, c := range cookies {
		assert.Negative(t, c.MaxAge)
	}
}

func TestProfileEndpoint(t *testing.T) {
	env := newSessionEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := middleware.RequireAuth(env.service, logger)(http.HandlerFunc(env.handler.Profile))

	t.Run("requires auth", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("returns permission flags", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
		req.AddCookie(env.accessCookie(t))

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.ProfileResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "user-123", resp.User.ID)
		assert.True(t, resp.IsModerator)
		assert.False(t, resp.IsAdmin)
	})
}

func TestSystemHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewSystemHandler(logger, "Authd", time.Hour, 720*time.Hour)

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "ok", resp.Status)
	})

	t.Run("info", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Info(rec, httptest.NewRequest(http.MethodGet, "/api/system/info", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.SystemInfoResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "Authd", resp.AppName)
		assert.Contains(t, resp.SupportedProviders, "email")
		assert.Contains(t, resp.Roles, "admin")
	})
}
