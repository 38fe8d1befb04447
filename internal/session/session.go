// Package session управляет набором cookie, образующих сессию.
// Сервер не хранит состояние сессий: вся сессия живет на клиенте
// в четырех cookie с разными ролями и атрибутами.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/internal/token"
)

// Имена cookie сессии.
const (
	// CookieAuthToken — access-токен, httpOnly, единственный источник
	// доверия при аутентификации.
	CookieAuthToken = "auth_token"

	// CookieUserDisplay — читаемое клиентом зеркало идентичности для
	// отрисовки UI. Никогда не используется как источник доверия.
	CookieUserDisplay = "user_display"

	// CookieCSRFToken — читаемый клиентом CSRF-токен (double submit).
	CookieCSRFToken = "csrf_token"

	// CookieRememberMe — refresh-токен, httpOnly. Ставится только при
	// rememberMe.
	CookieRememberMe = "remember_me"
)

const csrfTokenBytes = 32

// DisplayPayload — содержимое display-cookie. Поля отражают
// идентичность плюс временные метки для клиентской стороны.
type DisplayPayload struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email,omitempty"`
	Role          string    `json:"role"`
	ProviderType  string    `json:"provider_type"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	LastLoginAt   time.Time `json:"last_login_at"`
	LastRefreshAt time.Time `json:"last_refresh_at"`
}

// Options задает параметры записи сессии.
type Options struct {
	// RememberMe включает установку refresh-cookie.
	RememberMe bool
}

// State — результат чтения cookie входящего запроса. Отсутствие
// cookie не является ошибкой: флаги и аксессоры отражают то, что
// клиент прислал.
type State struct {
	accessToken  string
	refreshToken string
	csrfToken    string

	HasAccess  bool
	HasDisplay bool
	HasRefresh bool
	HasCSRF    bool

	// Display — разобранное display-cookie; nil, если cookie
	// отсутствует или содержит некорректный JSON. Advisory only.
	Display *DisplayPayload
}

// AccessToken возвращает значение access-cookie ("" если нет).
func (s State) AccessToken() string { return s.accessToken }

// RefreshToken возвращает значение refresh-cookie ("" если нет).
func (s State) RefreshToken() string { return s.refreshToken }

// CSRFToken возвращает значение csrf-cookie ("" если нет).
func (s State) CSRFToken() string { return s.csrfToken }

// Manager записывает, читает и очищает cookie сессии. Все сроки
// жизни берутся из кодека токенов, чтобы cookie и токен внутри
// истекали согласованно.
type Manager struct {
	codec   *token.Codec
	secure  bool
	csrfTTL time.Duration
	now     func() time.Time
}

// NewManager создает менеджер cookie. secure=false допустим только
// для локальной разработки по http.
func NewManager(codec *token.Codec, secure bool, csrfTTL time.Duration) *Manager {
	return &Manager{
		codec:   codec,
		secure:  secure,
		csrfTTL: csrfTTL,
		now:     time.Now,
	}
}

// Write выпускает токены и записывает полный набор cookie сессии.
// Возвращает выданный CSRF-токен. Refresh-cookie ставится только при
// opts.RememberMe. При любой ошибке cookie не пишутся частично:
// токены выпускаются до первой записи в ResponseWriter.
func (m *Manager) Write(w http.ResponseWriter, id models.Identity, opts Options) (string, error) {
	access, err := m.codec.Issue(id, token.KindAccess)
	if err != nil {
		return "", fmt.Errorf("failed to issue access token: %w", err)
	}

	var refresh string
	if opts.RememberMe {
		refresh, err = m.codec.Issue(id, token.KindRefresh)
		if err != nil {
			return "", fmt.Errorf("failed to issue refresh token: %w", err)
		}
	}

	now := m.now()
	display, err := json.Marshal(DisplayPayload{
		ID:            id.ID,
		Username:      id.Username,
		Email:         id.Email,
		Role:          string(id.Role),
		ProviderType:  string(id.ProviderType),
		AvatarURL:     id.AvatarURL,
		LastLoginAt:   now,
		LastRefreshAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal display payload: %w", err)
	}

	csrf := generateCSRFToken()

	// JSON не помещается в cookie-value как есть (кавычки и запятые
	// запрещены RFC 6265), поэтому display-cookie URL-кодируется
	m.setCookie(w, CookieAuthToken, access, m.codec.AccessTTL(), true)
	m.setCookie(w, CookieUserDisplay, url.QueryEscape(string(display)), m.codec.AccessTTL(), false)
	m.setCookie(w, CookieCSRFToken, csrf, m.csrfTTL, false)
	if opts.RememberMe {
		m.setCookie(w, CookieRememberMe, refresh, m.codec.RefreshTTL(), true)
	}

	return csrf, nil
}

// Read разбирает cookie запроса в State. Никогда не возвращает
// ошибку: битое display-cookie дает Display=nil, остальные cookie
// читаются как есть — их валидация дело других слоев.
func (m *Manager) Read(r *http.Request) State {
	var s State

	if c, err := r.Cookie(CookieAuthToken); err == nil && c.Value != "" {
		s.HasAccess = true
		s.accessToken = c.Value
	}

	if c, err := r.Cookie(CookieRememberMe); err == nil && c.Value != "" {
		s.HasRefresh = true
		s.refreshToken = c.Value
	}

	if c, err := r.Cookie(CookieCSRFToken); err == nil && c.Value != "" {
		s.HasCSRF = true
		s.csrfToken = c.Value
	}

	if c, err := r.Cookie(CookieUserDisplay); err == nil && c.Value != "" {
		s.HasDisplay = true
		if raw, err := url.QueryUnescape(c.Value); err == nil {
			var p DisplayPayload
			if err := json.Unmarshal([]byte(raw), &p); err == nil {
				s.Display = &p
			}
		}
	}

	return s
}

// Clear удаляет все cookie сессии. Идемпотентна: очистка
// несуществующей сессии — тоже успех.
func (m *Manager) Clear(w http.ResponseWriter) {
	m.deleteCookie(w, CookieAuthToken, true)
	m.deleteCookie(w, CookieUserDisplay, false)
	m.deleteCookie(w, CookieCSRFToken, false)
	m.deleteCookie(w, CookieRememberMe, true)
}

// RotateAccessAndDisplay перевыпускает access-токен и display-cookie
// после refresh. Refresh- и csrf-cookie не трогаются.
func (m *Manager) RotateAccessAndDisplay(w http.ResponseWriter, id models.Identity, prev *DisplayPayload) error {
	access, err := m.codec.Issue(id, token.KindAccess)
	if err != nil {
		return fmt.Errorf("failed to issue access token: %w", err)
	}

	now := m.now()
	payload := DisplayPayload{
		ID:            id.ID,
		Username:      id.Username,
		Email:         id.Email,
		Role:          string(id.Role),
		ProviderType:  string(id.ProviderType),
		AvatarURL:     id.AvatarURL,
		LastLoginAt:   now,
		LastRefreshAt: now,
	}
	// сохраняем исходное время входа, если клиент его прислал
	if prev != nil && !prev.LastLoginAt.IsZero() {
		payload.LastLoginAt = prev.LastLoginAt
	}

	display, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal display payload: %w", err)
	}

	m.setCookie(w, CookieAuthToken, access, m.codec.AccessTTL(), true)
	m.setCookie(w, CookieUserDisplay, url.QueryEscape(string(display)), m.codec.AccessTTL(), false)

	return nil
}

// RotateCSRF выпускает новый CSRF-токен и заменяет csrf-cookie.
func (m *Manager) RotateCSRF(w http.ResponseWriter) string {
	csrf := generateCSRFToken()
	m.setCookie(w, CookieCSRFToken, csrf, m.csrfTTL, false)
	return csrf
}

// EnsureCSRF возвращает действующий CSRF-токен запроса, выпуская
// новый только при отсутствии cookie.
func (m *Manager) EnsureCSRF(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieCSRFToken); err == nil && c.Value != "" {
		return c.Value
	}
	return m.RotateCSRF(w)
}

func (m *Manager) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: httpOnly,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (m *Manager) deleteCookie(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func generateCSRFToken() string {
	b := make([]byte, csrfTokenBytes)
	rand.Read(b) //nolint:errcheck // crypto/rand.Read не возвращает ошибку начиная с go1.24
	return hex.EncodeToString(b)
}
