package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/encorehub/authd/internal/csrf"
	"github.com/encorehub/authd/internal/metrics"
	"github.com/encorehub/authd/pkg/api"
)

// CSRFProtection создает middleware защиты double submit cookie.
// Безопасные методы проходят без проверки и получают csrf-cookie,
// если его еще нет. Мутирующие методы обязаны повторить значение
// cookie в заголовке или теле. Пути из exempt освобождены от
// проверки: это мутирующие запросы, легитимно приходящие до того,
// как у клиента появилась сессия (регистрация, повторная отправка
// письма, обновление токена).
func CSRFProtection(guard *csrf.Guard, recorder metrics.Recorder, logger *slog.Logger, exempt ...string) func(http.Handler) http.Handler {
	exemptPaths := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		exemptPaths[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if csrf.SafeMethod(r.Method) {
				guard.EnsureToken(w, r)
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if err := guard.Check(r); err != nil {
				recorder.RecordCSRFFailure()
				logger.WarnContext(r.Context(), "csrf validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)

				if errors.Is(err, csrf.ErrMissing) {
					sendError(w, api.CodeMissingCSRFToken, "csrf token is required", http.StatusForbidden)
					return
				}
				sendError(w, api.CodeCSRFTokenMismatch, "csrf token mismatch", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
