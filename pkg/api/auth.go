// Package api содержит контракты HTTP API: структуры запросов,
// ответов и коды ошибок.
package api

import "time"

// Machine-readable error codes, возвращаемые в ErrorResponse.Code.
const (
	CodeAuthenticationRequired  = "AUTHENTICATION_REQUIRED"
	CodeTokenInvalid            = "TOKEN_INVALID"
	CodeSessionExpired          = "SESSION_EXPIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeMissingCSRFToken        = "MISSING_CSRF_TOKEN"
	CodeCSRFTokenMismatch       = "CSRF_TOKEN_MISMATCH"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeEmailNotVerified        = "EMAIL_NOT_VERIFIED"
	CodeEmailAlreadyExists      = "EMAIL_ALREADY_EXISTS"
	CodeTokenExpired            = "TOKEN_EXPIRED"
	CodeResendCooldown          = "RESEND_COOLDOWN"
	CodeUserNotFound            = "USER_NOT_FOUND"
	CodeAlreadyVerified         = "ALREADY_VERIFIED"
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInternalError           = "INTERNAL_ERROR"
)

// UserPayload представляет публичные данные пользователя в ответах
type UserPayload struct {
	ID           string `json:"id"`            // UUID пользователя
	Username     string `json:"username"`      // отображаемое имя
	Email        string `json:"email,omitempty"`
	Role         string `json:"role"`          // user / moderator / admin
	ProviderType string `json:"provider_type"` // email / google / line
	AvatarURL    string `json:"avatar_url,omitempty"`
}

// SignupRequest представляет запрос на регистрацию через email
type SignupRequest struct {
	Username string `json:"username" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Birthday string `json:"birthday,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,e164"`
}

// SignupResponse представляет ответ на успешную регистрацию
type SignupResponse struct {
	UserID               string `json:"user_id"` // UUID пользователя
	Message              string `json:"message"`
	RequiresVerification bool   `json:"requires_verification"` // вход возможен только после подтверждения почты
}

// LoginRequest представляет запрос на вход через email
type LoginRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	RememberMe  bool   `json:"remember_me"`            // включает refresh-cookie
	RedirectURL string `json:"redirect_url,omitempty"` // адрес после входа
}

// LoginResponse представляет ответ на успешный вход
type LoginResponse struct {
	User        UserPayload `json:"user"`
	RedirectURL string      `json:"redirect_url"`
	CSRFToken   string      `json:"csrf_token"` // дубль значения csrf-cookie
}

// StatusResponse представляет ответ о состоянии сессии
type StatusResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *UserPayload `json:"user,omitempty"`
	CSRFToken     string       `json:"csrf_token"`
}

// CSRFTokenResponse представляет ответ с новым CSRF-токеном
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// RefreshResponse представляет ответ на обновление access-токена
type RefreshResponse struct {
	User    UserPayload `json:"user"`
	Message string      `json:"message"`
}

// LogoutRequest представляет запрос на выход
type LogoutRequest struct {
	// AllDevices принимается для совместимости; сессии живут в cookie,
	// поэтому очищается только текущий клиент
	AllDevices bool `json:"all_devices"`
}

// LogoutResponse представляет ответ на выход
type LogoutResponse struct {
	Message string `json:"message"`
}

// ProfileResponse представляет ответ с профилем пользователя
type ProfileResponse struct {
	User        UserPayload `json:"user"`
	IsAdmin     bool        `json:"is_admin"`
	IsModerator bool        `json:"is_moderator"`
}

// VerifyEmailResponse представляет ответ на подтверждение почты
type VerifyEmailResponse struct {
	Message         string `json:"message"`
	AlreadyVerified bool   `json:"already_verified"`
}

// ResendVerificationRequest представляет запрос повторной отправки
// письма подтверждения
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResendVerificationResponse представляет ответ на повторную отправку
type ResendVerificationResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
}

// SystemInfoResponse представляет служебную информацию (admin only)
type SystemInfoResponse struct {
	AppName            string        `json:"app_name"`
	SupportedProviders []string      `json:"supported_providers"`
	Roles              []string      `json:"roles"`
	AccessTokenTTL     time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `json:"refresh_token_ttl"`
}

// HealthResponse представляет ответ liveness-проверки
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // HTTP status text
	Code    string `json:"code"`              // машиночитаемый код ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
