// Package token реализует выпуск и проверку подписанных токенов
// доступа и обновления. Токены самодостаточны: валидность определяется
// только подписью и сроком действия, без обращения к хранилищу.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/encorehub/authd/internal/models"
)

// Kind различает токен доступа и токен обновления.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Token layer errors. Каждая ошибка различима, чтобы вызывающий мог
// корректно выбрать ветку: Expired допускает попытку refresh,
// InvalidSignature и Malformed — нет.
var (
	// ErrNoSecret indicates that the signing secret is not configured.
	// Fatal at startup, never per-request.
	ErrNoSecret = errors.New("signing secret is not configured")

	// ErrMalformed indicates a structurally invalid token.
	ErrMalformed = errors.New("token is malformed")

	// ErrInvalidSignature indicates a signature mismatch.
	ErrInvalidSignature = errors.New("token signature is invalid")

	// ErrExpired indicates a correctly signed token past its expiry.
	ErrExpired = errors.New("token has expired")

	// ErrRefreshInvalid indicates an expired or malformed refresh token;
	// the caller must force re-login.
	ErrRefreshInvalid = errors.New("refresh token is invalid")
)

const issuer = "authd"

// Доля времени жизни токена, в пределах которой выполняется
// упреждающее обновление (последние 20% срока действия).
const refreshLeadFraction = 0.2

// Claims представляет полный набор утверждений токена: идентичность
// плюс служебные поля. Поле kind отличает access от refresh, чтобы
// refresh-токен нельзя было предъявить как access и наоборот.
type Claims struct {
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role"`
	ProviderType string `json:"provider_type"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	TokenKind    string `json:"token_kind"`
	jwt.RegisteredClaims
}

// Identity восстанавливает идентичность из claims.
func (c *Claims) Identity() models.Identity {
	return models.Identity{
		ID:           c.Subject,
		Username:     c.Username,
		Email:        c.Email,
		Role:         models.Role(c.Role),
		ProviderType: models.ProviderType(c.ProviderType),
		AvatarURL:    c.AvatarURL,
	}
}

// Codec выпускает и проверяет подписанные токены (HMAC-SHA256).
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option настраивает кодек.
type Option func(*Codec)

// WithTimeFunc подменяет источник времени. Используется в тестах для
// выпуска токенов со сдвинутыми часами.
func WithTimeFunc(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec создает кодек токенов. Возвращает ErrNoSecret, если
// секрет подписи пуст.
func NewCodec(secret string, accessTTL, refreshTTL time.Duration, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	c := &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// AccessTTL возвращает время жизни токена доступа.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL возвращает время жизни токена обновления.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue выпускает подписанный токен указанного вида для идентичности.
func (c *Codec) Issue(id models.Identity, kind Kind) (string, error) {
	now := c.now()

	ttl := c.accessTTL
	if kind == KindRefresh {
		ttl = c.refreshTTL
	}

	claims := Claims{
		Username:     id.Username,
		Email:        id.Email,
		Role:         string(id.Role),
		ProviderType: string(id.ProviderType),
		AvatarURL:    id.AvatarURL,
		TokenKind:    string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return signed, nil
}

// Verify проверяет подпись и срок действия токена и возвращает
// идентичность из claims. Проверки подписи и срока независимы:
// просроченный, но корректно подписанный токен дает ErrExpired,
// а не ErrInvalidSignature, чтобы вызывающий мог отличить
// "попробовать refresh" от "отклонить".
func (c *Codec) Verify(tokenString string, kind Kind) (models.Identity, error) {
	claims, err := c.parse(tokenString)
	if err != nil {
		return models.Identity{}, err
	}

	if claims.TokenKind != string(kind) {
		return models.Identity{}, fmt.Errorf("%w: %s token presented as %s", ErrMalformed, claims.TokenKind, kind)
	}

	return claims.Identity(), nil
}

// IsExpiringSoon сообщает, истекает ли токен в пределах окна
// упреждающего обновления (последние 20% времени жизни). Для
// некорректных или уже просроченных токенов возвращает false.
func (c *Codec) IsExpiringSoon(tokenString string) bool {
	claims, err := c.parse(tokenString)
	if err != nil {
		return false
	}

	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return false
	}

	lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if lifetime <= 0 {
		return false
	}

	remaining := claims.ExpiresAt.Sub(c.now())
	lead := time.Duration(float64(lifetime) * refreshLeadFraction)

	return remaining > 0 && remaining < lead
}

// Refresh выпускает новый access-токен по действительному refresh-токену.
// Валидность access-токена не требуется — в этом смысл refresh.
// Идентичность берется из проверенных claims самого refresh-токена,
// а не из клиентских данных. Любой дефект refresh-токена дает
// ErrRefreshInvalid: вызывающий должен принудить повторный вход.
func (c *Codec) Refresh(refreshToken string) (string, models.Identity, error) {
	id, err := c.Verify(refreshToken, KindRefresh)
	if err != nil {
		return "", models.Identity{}, fmt.Errorf("%w: %w", ErrRefreshInvalid, err)
	}

	access, err := c.Issue(id, KindAccess)
	if err != nil {
		return "", models.Identity{}, err
	}

	return access, id, nil
}

// parse разбирает токен и отображает ошибки библиотеки на
// ошибки слоя токенов.
func (c *Codec) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
