package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/encorehub/authd/internal/auth"
	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/pkg/api"
)

// contextKey — собственный тип ключей контекста, чтобы исключить
// коллизии с другими пакетами
type contextKey string

const identityKey contextKey = "identity"

// IdentityFromContext извлекает идентичность, положенную RequireAuth
// или OptionalAuth. Второе значение false, если запрос не
// аутентифицирован.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}

// withIdentity кладет идентичность в контекст запроса.
func withIdentity(r *http.Request, id models.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), identityKey, id))
}

// RequireAuth создает middleware, пропускающее только запросы с
// действительной сессией. Истекший access-токен прозрачно обновляется
// по refresh-cookie; терминально истекшая сессия и битый токен дают
// 401 с различимыми кодами.
func RequireAuth(service *auth.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := service.Verify(w, r)

			switch res.Status {
			case auth.StatusValid:
				next.ServeHTTP(w, withIdentity(r, res.Identity))

			case auth.StatusUnauthenticated:
				sendError(w, api.CodeAuthenticationRequired, "authentication required", http.StatusUnauthorized)

			case auth.StatusExpiredTerminal:
				logger.DebugContext(r.Context(), "session expired", slog.Any("error", res.Err))
				sendError(w, api.CodeSessionExpired, "session has expired, please log in again", http.StatusUnauthorized)

			default: // StatusInvalid
				logger.WarnContext(r.Context(), "invalid access token",
					slog.String("path", r.URL.Path),
					slog.Any("error", res.Err),
				)
				sendError(w, api.CodeTokenInvalid, "invalid authentication token", http.StatusUnauthorized)
			}
		})
	}
}

// OptionalAuth создает middleware, кладущее идентичность в контекст,
// если сессия действительна, и пропускающее запрос дальше в любом
// случае. Автообновление работает так же, как в RequireAuth.
func OptionalAuth(service *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := service.Verify(w, r)
			if res.Status == auth.StatusValid {
				r = withIdentity(r, res.Identity)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole создает middleware, требующее роль не ниже указанной.
// Ставится после RequireAuth: запрос без идентичности в контексте
// получает 401, недостаточная роль — 403.
func RequireRole(required models.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				sendError(w, api.CodeAuthenticationRequired, "authentication required", http.StatusUnauthorized)
				return
			}

			if !auth.HasPermission(id, required) {
				logger.WarnContext(r.Context(), "insufficient role",
					slog.String("user_id", id.ID),
					slog.String("role", string(id.Role)),
					slog.String("required", string(required)),
				)
				sendError(w, api.CodeInsufficientPermissions, "insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
