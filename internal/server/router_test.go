package server

import (
	"bytes"
	"context"
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
	"github.com/encorehub/authd/internal/email"
	"github.com/encorehub/authd/internal/metrics"
	"github.com/encorehub/authd/internal/server/handlers"
	"github.com/encorehub/authd/internal/server/middleware"
	"github.com/encorehub/authd/internal/server/storage/sqlite"
	"github.com/encorehub/authd/internal/session"
	"github.com/encorehub/authd/internal/token"
	"github.com/encorehub/authd/pkg/api"
)

// recordingMailer хранит письма в памяти вместо отправки
type recordingMailer struct {
	verifyTokens []string
	welcomes     int
}

func (m *recordingMailer) SendVerificationEmail(_ context.Context, _, tok, _ string) (email.Result, error) {
	m.verifyTokens = append(m.verifyTokens, tok)
	return email.Result{MessageID: "msg"}, nil
}

func (m *recordingMailer) SendWelcomeEmail(context.Context, string, string) (email.Result, error) {
	m.welcomes++
	return email.Result{MessageID: "msg"}, nil
}

// testClient эмулирует браузер: хранит cookie между запросами и
// повторяет CSRF-токен в заголовке мутирующих запросов
type testClient struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]*http.Cookie
	storage *sqlite.Storage
	mailer  *recordingMailer
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()

	st, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec, err := token.NewCodec("router-test-secret", time.Hour, 30*24*time.Hour)
	require.NoError(t, err)
	sessions := session.NewManager(codec, true, 24*time.Hour)
	guard := csrf.NewGuard(sessions)
	authService := auth.NewService(codec, sessions, logger)
	mailer := &recordingMailer{}
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	loginLimiter := middleware.NewRateLimiter("/login", 100, collector, logger)
	t.Cleanup(loginLimiter.Stop)
	signupLimiter := middleware.NewRateLimiter("/signup", 100, collector, logger)
	t.Cleanup(signupLimiter.Stop)
	resendLimiter := middleware.NewRateLimiter("/resend", 100, collector, logger)
	t.Cleanup(resendLimiter.Stop)

	router := NewRouter(&RouterDeps{
		Logger:      logger,
		AuthService: authService,
		Guard:       guard,
		EmailHandler: handlers.NewEmailAuthHandler(
			logger, st, mailer, authService, collector, 24*time.Hour, 5*time.Minute),
		SessionHandler: handlers.NewSessionHandler(logger, authService, guard, collector),
		SystemHandler:  handlers.NewSystemHandler(logger, "Authd", time.Hour, 720*time.Hour),
		Metrics:        collector,
		Registry:       registry,
		LoginLimiter:   loginLimiter,
		SignupLimiter:  signupLimiter,
		ResendLimiter:  resendLimiter,
	})

	return &testClient{
		t:       t,
		router:  router,
		cookies: make(map[string]*http.Cookie),
		storage: st,
		mailer:  mailer,
	}
}

func (c *testClient) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	// браузерный клиент повторяет csrf-cookie в заголовке
	if cookie, ok := c.cookies[session.CookieCSRFToken]; ok && !csrf.SafeMethod(method) {
		req.Header.Set(csrf.HeaderName, cookie.Value)
	}

	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 || cookie.Value == "" {
			delete(c.cookies, cookie.Name)
			continue
		}
		c.cookies[cookie.Name] = cookie
	}

	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestFullAuthFlow(t *testing.T) {
	c := newTestClient(t)

	// служебные маршруты открыты
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", nil).Code)
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/metrics", nil).Code)

	// анонимный статус выдает csrf-cookie
	rec := c.do(http.MethodGet, "/api/auth/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status api.StatusResponse
	decodeInto(t, rec, &status)
	require.False(t, status.Authenticated)
	require.NotEmpty(t, status.CSRFToken)

	// регистрация
	rec = c.do(http.MethodPost, "/api/auth/email/signup", api.SignupRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Passw0rd123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// вход до подтверждения запрещен
	login := api.LoginRequest{Email: "alice@example.com", Password: "Passw0rd123", RememberMe: true}
	rec = c.do(http.MethodPost, "/api/auth/email/login", login)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// повторная отправка сразу после регистрации — cooldown
	rec = c.do(http.MethodPost, "/api/auth/email/resend",
		api.ResendVerificationRequest{Email: "alice@example.com"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// подтверждение по токену из письма
	require.NotEmpty(t, c.mailer.verifyTokens)
	rec = c.do(http.MethodGet, "/api/auth/email/verify/"+c.mailer.verifyTokens[0], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, c.mailer.welcomes)

	// вход
	rec = c.do(http.MethodPost, "/api/auth/email/login", login)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var loginResp api.LoginResponse
	decodeInto(t, rec, &loginResp)
	assert.Equal(t, "alice", loginResp.User.Username)
	assert.Equal(t, "/dashboard", loginResp.RedirectURL)

	// статус теперь аутентифицирован
	rec = c.do(http.MethodGet, "/api/auth/status", nil)
	decodeInto(t, rec, &status)
	assert.True(t, status.Authenticated)

	// профиль доступен
	rec = c.do(http.MethodGet, "/api/auth/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile api.ProfileResponse
	decodeInto(t, rec, &profile)
	assert.False(t, profile.IsAdmin)

	// обычному пользователю закрыт admin-маршрут
	rec = c.do(http.MethodGet, "/api/system/info", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// явное обновление токена
	rec = c.do(http.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// выход
	rec = c.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// сессия завершена
	rec = c.do(http.MethodGet, "/api/auth/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCSRFEnforcedOnLogin(t *testing.T) {
	c := newTestClient(t)

	// запрос без csrf-cookie и эха отклоняется до проверки учетных данных
	req := httptest.NewRequest(http.MethodPost, "/api/auth/email/login", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp api.ErrorResponse
	decodeInto(t, rec, &resp)
	assert.Equal(t, api.CodeMissingCSRFToken, resp.Code)
}

func TestLogoutRequiresSession(t *testing.T) {
	c := newTestClient(t)

	// csrf есть (после GET), но сессии нет
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/auth/csrf-token", nil).Code)

	rec := c.do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
