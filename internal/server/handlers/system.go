package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/pkg/api"
)

// SystemHandler обрабатывает служебные endpoint'ы
type SystemHandler struct {
	logger          *slog.Logger
	appName         string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// NewSystemHandler создает handler служебных endpoint'ов
func NewSystemHandler(logger *slog.Logger, appName string, accessTokenTTL, refreshTokenTTL time.Duration) *SystemHandler {
	return &SystemHandler{
		logger:          logger,
		appName:         appName,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

// Health обрабатывает GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, _ *http.Request) {
	sendJSON(h.logger, w, api.HealthResponse{Status: "ok"}, http.StatusOK)
}

// Info обрабатывает GET /api/system/info
// Доступен только администраторам (RequireRole(admin))
func (h *SystemHandler) Info(w http.ResponseWriter, _ *http.Request) {
	sendJSON(h.logger, w, api.SystemInfoResponse{
		AppName: h.appName,
		SupportedProviders: []string{
			string(models.ProviderEmail),
			string(models.ProviderGoogle),
			string(models.ProviderLine),
		},
		Roles: []string{
			string(models.RoleUser),
			string(models.RoleModerator),
			string(models.RoleAdmin),
		},
		AccessTokenTTL:  h.accessTokenTTL,
		RefreshTokenTTL: h.refreshTokenTTL,
	}, http.StatusOK)
}
