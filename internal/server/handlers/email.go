package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/encorehub/authd/internal/auth"
	"github.com/encorehub/authd/internal/email"
	"github.com/encorehub/authd/internal/metrics"
	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/internal/server/storage"
	"github.com/encorehub/authd/internal/validation"
	"github.com/encorehub/authd/pkg/api"
)

// EmailAuthHandler обрабатывает регистрацию и вход через email-провайдер
type EmailAuthHandler struct {
	logger      *slog.Logger
	userStorage storage.UserStorage
	mailer      email.Sender
	authService *auth.Service
	metrics     metrics.Recorder
	validate    *validator.Validate

	verificationTTL time.Duration
	resendCooldown  time.Duration
}

// NewEmailAuthHandler создает handler для email-аутентификации
func NewEmailAuthHandler(
	logger *slog.Logger,
	userStorage storage.UserStorage,
	mailer email.Sender,
	authService *auth.Service,
	recorder metrics.Recorder,
	verificationTTL, resendCooldown time.Duration,
) *EmailAuthHandler {
	return &EmailAuthHandler{
		logger:          logger,
		userStorage:     userStorage,
		mailer:          mailer,
		authService:     authService,
		metrics:         recorder,
		validate:        validator.New(),
		verificationTTL: verificationTTL,
		resendCooldown:  resendCooldown,
	}
}

// Signup обрабатывает POST /api/auth/email/signup
// Создает непроверенного пользователя и отправляет письмо подтверждения
func (h *EmailAuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode signup request", slog.Any("error", err))
		sendError(h.logger, w, api.CodeValidationFailed, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		sendError(h.logger, w, api.CodeValidationFailed, err.Error(), http.StatusBadRequest)
		return
	}

	// Требования к составу пароля строже, чем min/max в тегах
	if err := validation.ValidatePassword(req.Password); err != nil {
		sendError(h.logger, w, api.CodeValidationFailed, err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternalError, "internal server error", http.StatusInternalServerError)
		return
	}

	userID := uuid.New().String()
	now := time.Now()
	verificationToken := newVerificationToken()
	expires := now.Add(h.verificationTTL)

	nu := storage.NewEmailUser{
		User: &models.User{
			ID:           userID,
			Username:     req.Username,
			Email:        req.Email,
			Role:         models.RoleUser,
			ProviderType: models.ProviderEmail,
			Status:       models.StatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		Credential: &models.EmailCredential{
			UserID:               userID,
			PasswordHash:         string(hash),
			VerificationToken:    verificationToken,
			VerificationExpires:  &expires,
			LastVerificationSent: &now,
			CreatedAt:            now,
			UpdatedAt:            now,
		},
	}
	if req.Birthday != "" || req.Phone != "" {
		nu.Profile = &models.Profile{
			UserID:   userID,
			Birthday: req.Birthday,
			Phone:    req.Phone,
		}
	}

	if err := h.userStorage.CreateEmailUser(ctx, nu); err != nil {
		if errors.Is(err, storage.ErrEmailAlreadyExists) {
			h.logger.WarnContext(ctx, "email already registered", slog.String("email", req.Email))
			sendError(h.logger, w, api.CodeEmailAlreadyExists, "email is already registered", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternalError, "internal server error", http.StatusInternalServerError)
		return
	}

	// Письмо отправляется best-effort: учетная запись уже создана,
	// повторную отправку клиент может запросить отдельно
	if _, err := h.mailer.SendVerificationEmail(ctx, req.Email, verificationToken, req.Username); err != nil {
		h.logger.ErrorContext(ctx, "failed to send verification email",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	h.metrics.RecordSignup()
	h.logger.InfoContext(ctx, "user signed up",
		slog.String("user_id", userID),
		slog.String("email", req.Email),
	)

	sendJSON(h.logger, w, api.SignupResponse{
		UserID:               userID,
		Message:              "Account created. Please verify your email address.",
		RequiresVerification: true,
	}, http.StatusCreated)
}

// Login обрабатывает POST /api/auth/email/login
// Проверяет учетные данные и устанавливает cookie сессии
func (h *EmailAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(h.logger, w, api.CodeValidationFailed, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		sendError(h.logger, w, api.CodeValidationFailed, err.Error(), http.StatusBadRequest)
		return
	}

	user, cred, err := h.userStorage.FindActiveUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.metrics.RecordLoginFailure("unknown_email")
			sendError(h.logger, w, api.CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to look up user", slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternalError, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.Password)); err != nil {
		h.metrics.RecordLoginFailure("wrong_password")
		h.logger.WarnContext(ctx, "wrong password", slog.String("user_id", user.ID))
		sendError(h.logger, w, api.CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized)
		return
	}

	if !cred.IsVerified {
		h.metrics.RecordLoginFailure("email_not_verified")
		sendError(h.logger, w, api.CodeEmailNotVerified, "please verify your email address before logging in", http.StatusForbidden)
		return
	}

	res, err := h.authService.Login(w, user.Identity(), auth.LoginOptions{
		RememberMe:  req.RememberMe,
		RedirectURL: req.RedirectURL,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to establish session", slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternalError, "internal server error", http.StatusInternalServerError)
		return
	}

	// фиксация времени входа не должна ронять сам вход
	if err := h.userStorage.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		h.logger.WarnContext(ctx, "failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	h.metrics.RecordLoginSuccess()

	sendJSON(h.logger, w, api.LoginResponse{
		User:        userPayload(res.Identity),
		RedirectURL: res.RedirectURL,
		CSRFToken:   res.CSRFToken,
	}, http.StatusOK)
}

// Verify обрабатывает GET /api/auth/email/verify/{token}
// Подтверждение адреса почты по токену из письма
func (h *EmailAuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenValue := chi.URLParam(r, "token")
	if tokenValue == "" {
		sendError(h.logger, w, api.CodeTokenInvalid, "verification token is required", http.StatusBadRequest)
		return
	}

	user, cred, err := h.userStorage.FindByVerificationToken(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, storage.ErrVerificationNotFound) {
			sendError(h.logger, w, api.CodeTokenInvalid, "invalid verification token", http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to look up verification token", slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternalError, "internal server error", http.StatusInternalServerError)
		return
	}

	// Повторный переход по уже использованной ссылке — не ошибка
	if cred.IsVerified {
		sendJSON(h.logger, w, api.VerifyEmailResponse{
			Message:         "Email is already verified.",
			AlreadyVerified: true,
		}, http.StatusOK)
		return
	}

	if cred.VerificationExpires == nil || time.Now().After(*cred.VerificationExpires) {
		sendError(h.logger, w, api.CodeTokenExpired, "verification token has expired, please request a new one", http.StatusBadRequest)
		return
	}

	if err := h.userStorage.MarkEmailVerified(ctx, user.ID); err != nil {
		h.logger.ErrorContext(ctx, "failed to mark email verified", slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternalError, "internal server error", http.StatusInternalServerError)
		return
	}

	if _, err := h.mailer.SendWelcomeEmail(ctx, user.Email, user.Username); err != nil {
		h.logger.WarnContext(ctx, "failed to send welcome email",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	h.metrics.RecordVerification()
	h.logger.InfoContext(ctx, "email verified", slog.String("user_id", user.ID))

	sendJSON(h.logger, w, api.VerifyEmailResponse{
		Message: "Email verified successfully. You can now log in.",
	}, http.StatusOK)
}

// Resend обрабатывает POST /api/auth/email/resend
// Повторная отправка письма подтверждения с cooldown
func (h *EmailAuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ResendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(h.logger, w, api.CodeValidationFailed, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		sendError(h.logger, w, api.CodeValidationFailed, err.Error(), http.StatusBadRequest)
		return
	}

	user, cred, err := h.userStorage.FindActiveUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			sendError(h.logger, w, api.CodeUserNotFound, "no account found for this email", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to look up user", slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternalError, "internal server error", http.StatusInternalServerError)
		return
	}

	if cred.IsVerified {
		sendError(h.logger, w, api.CodeAlreadyVerified, "email is already verified", http.StatusBadRequest)
		return
	}

	if cred.LastVerificationSent != nil {
		elapsed := time.Since(*cred.LastVerificationSent)
		if elapsed < h.resendCooldown {
			wait := int((h.resendCooldown - elapsed).Minutes()) + 1
			sendError(h.logger, w, api.CodeResendCooldown,
				fmt.Sprintf("please wait %d minute(s) before requesting another email", wait),
				http.StatusTooManyRequests)
			return
		}
	}

	now := time.Now()
	verificationToken := newVerificationToken()
	if err := h.userStorage.UpdateVerification(ctx, user.ID, verificationToken, now.Add(h.verificationTTL), now); err != nil {
		h.logger.ErrorContext(ctx, "failed to update verification", slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternalError, "internal server error", http.StatusInternalServerError)
		return
	}

	res, err := h.mailer.SendVerificationEmail(ctx, user.Email, verificationToken, user.Username)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to send verification email",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
		sendError(h.logger, w, api.CodeInternalError, "failed to send verification email", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "verification email resent", slog.String("user_id", user.ID))

	sendJSON(h.logger, w, api.ResendVerificationResponse{
		Message:   "Verification email sent.",
		MessageID: res.MessageID,
	}, http.StatusOK)
}

// newVerificationToken генерирует непредсказуемый токен подтверждения
func newVerificationToken() string {
	b := make([]byte, 32)
	rand.Read(b) //nolint:errcheck // crypto/rand.Read не возвращает ошибку начиная с go1.24
	return hex.EncodeToString(b)
}
