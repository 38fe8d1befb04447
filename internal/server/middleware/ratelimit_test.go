package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encorehub/authd/internal/metrics"
	"github.com/encorehub/authd/pkg/api"
)

func TestRateLimiterMiddleware(t *testing.T) {
	recorder := metrics.NewCollector(prometheus.NewRegistry())
	rl := NewRateLimiter("/login", 3, recorder, testLogger())
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	doRequest := func(ip string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":12345"
		handler.ServeHTTP(rec, req)
		return rec
	}

	// первые три запроса в пределах burst проходят
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest("10.0.0.1").Code)
	}

	// четвертый отклоняется
	rec := doRequest("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, api.CodeRateLimited, decodeError(t, rec).Code)

	// другой IP не затронут
	assert.Equal(t, http.StatusOK, doRequest("10.0.0.2").Code)
}

func TestRateLimiterForwardedFor(t *testing.T) {
	recorder := metrics.NewCollector(prometheus.NewRegistry())
	rl := NewRateLimiter("/login", 1, recorder, testLogger())
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	doRequest := func(xff string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "127.0.0.1:9999"
		req.Header.Set("X-Forwarded-For", xff)
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, doRequest("203.0.113.1, 10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest("203.0.113.1").Code)
	assert.Equal(t, http.StatusOK, doRequest("203.0.113.2").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.5:443"
	assert.Equal(t, "192.0.2.5", clientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(req))
}
