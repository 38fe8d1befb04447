// Package server собирает HTTP-поверхность сервиса: маршруты,
// цепочки middleware и сам http.Server.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/encorehub/authd/internal/auth"
	"github.com/encorehub/authd/internal/csrf"
	"github.com/encorehub/authd/internal/metrics"
	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/internal/server/handlers"
	"github.com/encorehub/authd/internal/server/middleware"
)

// RouterDeps перечисляет зависимости, необходимые для сборки маршрутов
type RouterDeps struct {
	Logger *slog.Logger

	AuthService *auth.Service
	Guard       *csrf.Guard

	EmailHandler   *handlers.EmailAuthHandler
	SessionHandler *handlers.SessionHandler
	SystemHandler  *handlers.SystemHandler

	Metrics  *metrics.Collector
	Registry *prometheus.Registry

	LoginLimiter  *middleware.RateLimiter
	SignupLimiter *middleware.RateLimiter
	ResendLimiter *middleware.RateLimiter
}

// NewRouter собирает chi.Router со всеми маршрутами сервиса.
//
// Порядок глобальных middleware: Recovery → Logging. CSRF-защита
// вешается на /api: безопасные методы получают csrf-cookie,
// мутирующие проверяются, кроме путей, по которым клиент легитимно
// приходит без сессии.
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RecoveryMiddleware(deps.Logger))
	r.Use(middleware.LoggingMiddleware(deps.Logger))

	// --- служебные маршруты вне /api ---

	r.Get("/health", deps.SystemHandler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Registry))

	// --- API ---

	requireAuth := middleware.RequireAuth(deps.AuthService, deps.Logger)
	optionalAuth := middleware.OptionalAuth(deps.AuthService)
	requireAdmin := middleware.RequireRole(models.RoleAdmin, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CSRFProtection(deps.Guard, deps.Metrics, deps.Logger,
			"/api/auth/email/signup",
			"/api/auth/email/resend",
			"/api/auth/refresh",
		))

		r.Route("/auth", func(r chi.Router) {
			r.With(optionalAuth).Get("/status", deps.SessionHandler.Status)
			r.Get("/csrf-token", deps.SessionHandler.CSRFToken)
			r.Post("/refresh", deps.SessionHandler.Refresh)
			r.With(requireAuth).Post("/logout", deps.SessionHandler.Logout)
			r.With(requireAuth).Get("/profile", deps.SessionHandler.Profile)

			r.Route("/email", func(r chi.Router) {
				r.With(deps.SignupLimiter.Middleware()).Post("/signup", deps.EmailHandler.Signup)
				r.With(deps.LoginLimiter.Middleware()).Post("/login", deps.EmailHandler.Login)
				r.Get("/verify/{token}", deps.EmailHandler.Verify)
				r.With(deps.ResendLimiter.Middleware()).Post("/resend", deps.EmailHandler.Resend)
			})
		})

		r.Route("/system", func(r chi.Router) {
			r.With(requireAuth, requireAdmin).Get("/info", deps.SystemHandler.Info)
		})
	})

	return r
}
