package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/encorehub/authd/internal/auth"
	"github.com/encorehub/authd/internal/csrf"
	"github.com/encorehub/authd/internal/metrics"
	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/internal/server/middleware"
	"github.com/encorehub/authd/pkg/api"
)

// SessionHandler обрабатывает запросы жизненного цикла сессии:
// статус, CSRF-токены, обновление, выход, профиль
type SessionHandler struct {
	logger      *slog.Logger
	authService *auth.Service
	guard       *csrf.Guard
	metrics     metrics.Recorder
}

// NewSessionHandler создает handler сессионных endpoint'ов
func NewSessionHandler(logger *slog.Logger, authService *auth.Service, guard *csrf.Guard, recorder metrics.Recorder) *SessionHandler {
	return &SessionHandler{
		logger:      logger,
		authService: authService,
		guard:       guard,
		metrics:     recorder,
	}
}

// Status обрабатывает GET /api/auth/status
// Сообщает состояние сессии и гарантирует клиенту CSRF-токен.
// Ставится за OptionalAuth: анонимный запрос — тоже валидный ответ.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	csrfToken := h.guard.EnsureToken(w, r)

	resp := api.StatusResponse{CSRFToken: csrfToken}
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		payload := userPayload(id)
		resp.Authenticated = true
		resp.User = &payload
	}

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// CSRFToken обрабатывает GET /api/auth/csrf-token
// Принудительно выпускает новый CSRF-токен
func (h *SessionHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	tok := h.guard.Rotate(w)
	sendJSON(h.logger, w, api.CSRFTokenResponse{CSRFToken: tok}, http.StatusOK)
}

// Refresh обрабатывает POST /api/auth/refresh
// Явное обновление access-токена по refresh-cookie. Негодный
// refresh-токен завершает сессию: cookie очищаются, клиент должен
// войти заново.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, err := h.authService.Refresh(w, r)
	if err != nil {
		h.metrics.RecordRefresh("failure")
		h.logger.WarnContext(r.Context(), "refresh failed", slog.Any("error", err))
		h.authService.Logout(w, r, auth.LogoutOptions{})
		sendError(h.logger, w, api.CodeSessionExpired, "session has expired, please log in again", http.StatusUnauthorized)
		return
	}

	h.metrics.RecordRefresh("success")

	sendJSON(h.logger, w, api.RefreshResponse{
		User:    userPayload(id),
		Message: "Token refreshed.",
	}, http.StatusOK)
}

// Logout обрабатывает POST /api/auth/logout
// Очищает cookie сессии; всегда успешен
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req api.LogoutRequest
	// тело опционально
	_ = json.NewDecoder(r.Body).Decode(&req)

	h.authService.Logout(w, r, auth.LogoutOptions{AllDevices: req.AllDevices})

	sendJSON(h.logger, w, api.LogoutResponse{Message: "Logged out."}, http.StatusOK)
}

// Profile обрабатывает GET /api/auth/profile
// Возвращает идентичность и вычисленные флаги прав. Ставится за
// RequireAuth.
func (h *SessionHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		sendError(h.logger, w, api.CodeAuthenticationRequired, "authentication required", http.StatusUnauthorized)
		return
	}

	sendJSON(h.logger, w, api.ProfileResponse{
		User:        userPayload(id),
		IsAdmin:     auth.HasPermission(id, models.RoleAdmin),
		IsModerator: auth.HasPermission(id, models.RoleModerator),
	}, http.StatusOK)
}
