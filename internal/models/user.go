package models

import (
	"errors"
	"time"
)

// Role представляет уровень прав пользователя.
// Иерархия: user < moderator < admin.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Level returns the numeric capability level of the role.
// Unknown roles map to 0 and are denied by default.
func (r Role) Level() int {
	switch r {
	case RoleUser:
		return 1
	case RoleModerator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Valid reports whether the role is one of the known set.
func (r Role) Valid() bool {
	return r.Level() > 0
}

// ProviderType представляет способ входа пользователя.
type ProviderType string

const (
	ProviderEmail  ProviderType = "email"
	ProviderGoogle ProviderType = "google"
	ProviderLine   ProviderType = "line"
)

// Valid reports whether the provider type is supported.
func (p ProviderType) Valid() bool {
	switch p {
	case ProviderEmail, ProviderGoogle, ProviderLine:
		return true
	default:
		return false
	}
}

// Status представляет состояние учетной записи.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Identity-shape validation errors. Проверка формы идентичности
// выполняется до записи cookie и до обращения к хранилищу.
var (
	ErrInvalidUserInfo     = errors.New("missing required user info field")
	ErrEmailRequired       = errors.New("email is required for email provider")
	ErrInvalidProviderType = errors.New("unsupported provider type")
	ErrInvalidRole         = errors.New("invalid user role")
)

// Identity представляет аутентифицированного принципала.
// После выпуска токена идентичность неизменяема: любое изменение
// требует перевыпуска токена.
type Identity struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email,omitempty"`
	Role         Role         `json:"role"`
	ProviderType ProviderType `json:"provider_type"`
	AvatarURL    string       `json:"avatar_url,omitempty"`
}

// Validate проверяет форму идентичности: обязательные поля
// id/username/providerType, email обязателен только для providerType=email,
// роль из известного набора. Пустая роль допустима и трактуется
// вызывающим как RoleUser.
func (id Identity) Validate() error {
	if id.ID == "" || id.Username == "" || id.ProviderType == "" {
		return ErrInvalidUserInfo
	}

	if !id.ProviderType.Valid() {
		return ErrInvalidProviderType
	}

	if id.ProviderType == ProviderEmail && id.Email == "" {
		return ErrEmailRequired
	}

	if id.Role != "" && !id.Role.Valid() {
		return ErrInvalidRole
	}

	return nil
}

// User представляет пользователя в системе.
type User struct {
	ID           string       `json:"id"`            // UUID пользователя
	Username     string       `json:"username"`      // отображаемое имя
	Email        string       `json:"email"`         // уникален в рамках провайдера
	Role         Role         `json:"role"`          // user / moderator / admin
	ProviderType ProviderType `json:"provider_type"` // email / google / line
	Status       Status       `json:"status"`        // active / suspended / deleted
	AvatarURL    string       `json:"avatar_url"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	LastLogin    *time.Time   `json:"last_login,omitempty"`
}

// Identity возвращает идентичность пользователя для выпуска токенов.
func (u *User) Identity() Identity {
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         role,
		ProviderType: u.ProviderType,
		AvatarURL:    u.AvatarURL,
	}
}

// EmailCredential представляет учетные данные email-провайдера вместе
// с записью верификации. Жизненный цикл записи верификации: создается
// при регистрации, помечается использованной при подтверждении,
// перегенерируется при повторной отправке с учетом cooldown.
type EmailCredential struct {
	UserID               string     `json:"user_id"`
	PasswordHash         string     `json:"-"` // bcrypt хеш пароля
	IsVerified           bool       `json:"is_verified"`
	VerificationToken    string     `json:"-"`
	VerificationExpires  *time.Time `json:"-"`
	LastVerificationSent *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Profile представляет дополнительные данные пользователя,
// заполняемые при регистрации.
type Profile struct {
	UserID   string `json:"user_id"`
	Birthday string `json:"birthday,omitempty"` // формат YYYY-MM-DD
	Phone    string `json:"phone,omitempty"`
}
