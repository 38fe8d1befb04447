package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/pkg/api"
)

// sendJSON отправляет JSON ответ с указанным статусом
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой и машиночитаемым кодом
func sendError(logger *slog.Logger, w http.ResponseWriter, code, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    code,
		Message: message,
	}
	sendJSON(logger, w, resp, statusCode)
}

// userPayload собирает публичное представление идентичности
func userPayload(id models.Identity) api.UserPayload {
	return api.UserPayload{
		ID:           id.ID,
		Username:     id.Username,
		Email:        id.Email,
		Role:         string(id.Role),
		ProviderType: string(id.ProviderType),
		AvatarURL:    id.AvatarURL,
	}
}
