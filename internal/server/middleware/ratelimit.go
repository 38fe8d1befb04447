package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/encorehub/authd/internal/metrics"
	"github.com/encorehub/authd/pkg/api"
)

// ipLimiter хранит лимитер и время последнего обращения для одного IP
type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter ограничивает частоту запросов по клиентскому IP.
// Каждый инстанс защищает один маршрут со своим лимитом.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter

	limit  rate.Limit
	burst  int
	route  string
	logger *slog.Logger

	recorder metrics.Recorder
	stopCh   chan struct{}
}

// NewRateLimiter создает rate limiter для маршрута.
// perMinute — допустимое число запросов в минуту с одного IP.
func NewRateLimiter(route string, perMinute int, recorder metrics.Recorder, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		route:    route,
		logger:   logger,
		recorder: recorder,
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop останавливает фоновую очистку.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Middleware возвращает middleware, отклоняющее запросы сверх лимита
// со статусом 429.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !rl.allow(ip) {
				rl.recorder.RecordRateLimited(rl.route)
				rl.logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("route", rl.route),
					slog.String("ip", ip),
				)
				w.Header().Set("Retry-After", "60")
				sendError(w, api.CodeRateLimited, "too many requests, please try again later", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = l
	}
	l.lastAccess = time.Now()

	return l.limiter.Allow()
}

// cleanupLoop периодически удаляет неактивные лимитеры для экономии памяти
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(10 * time.Minute)
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(ttl time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, l := range rl.limiters {
		if now.Sub(l.lastAccess) > ttl {
			delete(rl.limiters, ip)
		}
	}
}

// clientIP извлекает IP клиента: сначала X-Forwarded-For (первый
// адрес цепочки), затем RemoteAddr
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
