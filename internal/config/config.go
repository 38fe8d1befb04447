// Package config загружает конфигурацию сервиса из окружения.
// Конфигурация читается один раз на старте и далее неизменяема.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full service configuration.
type Config struct {
	// Server
	ServerPort string
	BaseURL    string

	// Tokens
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CSRFTokenTTL    time.Duration

	// Database
	DatabasePath string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Application
	AppName     string
	FrontendURL string

	// Rate limit (запросов в минуту на клиентский IP)
	RateLimitLogin  int
	RateLimitSignup int
	RateLimitResend int

	// Verification
	VerificationTTL time.Duration
	ResendCooldown  time.Duration

	// Cookie
	CookieSecure bool

	// Logging
	LogLevel string
}

// Load читает конфигурацию из переменных окружения.
// Отсутствие обязательной переменной — ошибка: сервис без секрета
// подписи стартовать не должен.
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", time.Hour)
	cfg.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", 720*time.Hour)
	cfg.CSRFTokenTTL = getEnvDuration("CSRF_TOKEN_TTL", 24*time.Hour)
	cfg.DatabasePath = getEnvString("DATABASE_PATH", "authd.db")
	cfg.SMTPHost = getEnvString("SMTP_HOST", "localhost")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "noreply@localhost")
	cfg.AppName = getEnvString("APP_NAME", "Authd")
	cfg.FrontendURL = getEnvString("FRONTEND_URL", cfg.BaseURL)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.RateLimitSignup = getEnvInt("RATE_LIMIT_SIGNUP", 5)
	cfg.RateLimitResend = getEnvInt("RATE_LIMIT_RESEND", 3)
	cfg.VerificationTTL = getEnvDuration("VERIFICATION_TTL", 24*time.Hour)
	cfg.ResendCooldown = getEnvDuration("RESEND_COOLDOWN", 5*time.Minute)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
