package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/encorehub/authd/pkg/api"
)

// sendError отправляет JSON ответ с ошибкой и машиночитаемым кодом
func sendError(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    code,
		Message: message,
	})
}
