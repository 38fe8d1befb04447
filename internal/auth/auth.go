// Package auth — оркестратор аутентификации. Связывает кодек токенов
// и менеджер cookie в единый жизненный цикл сессии: вход, проверка с
// автообновлением, выход.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/encorehub/authd/internal/models"
	"github.com/encorehub/authd/internal/session"
	"github.com/encorehub/authd/internal/token"
)

// Status — итоговое состояние проверки сессии.
type Status int

const (
	// StatusUnauthenticated — у запроса нет access-cookie.
	StatusUnauthenticated Status = iota

	// StatusValid — access-токен действителен (возможно, после
	// автообновления).
	StatusValid

	// StatusExpiredTerminal — access-токен истек и обновление
	// невозможно: refresh-cookie нет или refresh-токен негоден.
	StatusExpiredTerminal

	// StatusInvalid — access-токен поврежден или имеет неверную
	// подпись. Обновление не предпринимается.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusValid:
		return "valid"
	case StatusExpiredTerminal:
		return "expired"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// DefaultRedirectURL — адрес перенаправления после входа, если
// клиент не запросил свой.
const DefaultRedirectURL = "/dashboard"

// Result — исход Verify.
type Result struct {
	Status   Status
	Identity models.Identity
	Display  *session.DisplayPayload

	// Refreshed выставляется, если идентичность получена после
	// автообновления access-токена.
	Refreshed bool

	// Err хранит причину для небоевых статусов.
	Err error
}

// Authenticated сообщает, несет ли результат доверенную идентичность.
func (r Result) Authenticated() bool { return r.Status == StatusValid }

// LoginOptions задает параметры входа.
type LoginOptions struct {
	RememberMe  bool
	RedirectURL string
}

// LoginResult — исход успешного входа.
type LoginResult struct {
	Identity    models.Identity
	CSRFToken   string
	RedirectURL string
}

// LogoutOptions задает параметры выхода.
type LogoutOptions struct {
	// AllDevices принимается для совместимости клиентов. Сессии
	// живут только в cookie, общего реестра нет, поэтому флаг
	// не меняет поведение: очищаются cookie текущего клиента.
	AllDevices bool
}

// Service — оркестратор жизненного цикла сессии.
type Service struct {
	codec    *token.Codec
	sessions *session.Manager
	logger   *slog.Logger
}

// NewService создает оркестратор.
func NewService(codec *token.Codec, sessions *session.Manager, logger *slog.Logger) *Service {
	return &Service{
		codec:    codec,
		sessions: sessions,
		logger:   logger,
	}
}

// Login валидирует идентичность, назначает роль по умолчанию и
// записывает полный набор cookie сессии. Cookie не пишутся, если
// идентичность не прошла валидацию.
func (s *Service) Login(w http.ResponseWriter, id models.Identity, opts LoginOptions) (LoginResult, error) {
	if err := id.Validate(); err != nil {
		return LoginResult{}, fmt.Errorf("invalid identity: %w", err)
	}

	if id.Role == "" {
		id.Role = models.RoleUser
	}

	csrf, err := s.sessions.Write(w, id, session.Options{RememberMe: opts.RememberMe})
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to establish session: %w", err)
	}

	redirect := opts.RedirectURL
	if redirect == "" {
		redirect = DefaultRedirectURL
	}

	s.logger.Info("user logged in",
		slog.String("user_id", id.ID),
		slog.String("provider", string(id.ProviderType)),
		slog.Bool("remember_me", opts.RememberMe),
	)

	return LoginResult{Identity: id, CSRFToken: csrf, RedirectURL: redirect}, nil
}

// Logout очищает cookie сессии. Всегда успешен: выход без сессии
// тоже выход.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request, opts LogoutOptions) {
	st := s.sessions.Read(r)
	if st.Display != nil {
		s.logger.Info("user logged out",
			slog.String("user_id", st.Display.ID),
			slog.Bool("all_devices", opts.AllDevices),
		)
	}

	s.sessions.Clear(w)
}

// Verify проверяет сессию запроса и при истекшем access-токене
// выполняет не более одной попытки автообновления по refresh-cookie.
// Машина состояний:
//
//	нет access-cookie                 -> Unauthenticated
//	access действителен               -> Valid
//	access истекает, refresh годен    -> упреждающее обновление, Valid
//	access истек, refresh годен       -> обновление, Valid (Refreshed)
//	access истек, refresh негоден/нет -> ExpiredTerminal
//	access поврежден/чужая подпись    -> Invalid
func (s *Service) Verify(w http.ResponseWriter, r *http.Request) Result {
	st := s.sessions.Read(r)

	if !st.HasAccess {
		return Result{Status: StatusUnauthenticated, Display: st.Display}
	}

	id, err := s.codec.Verify(st.AccessToken(), token.KindAccess)
	if err == nil {
		// упреждающее обновление: access еще жив, но скоро истечет
		if st.HasRefresh && s.codec.IsExpiringSoon(st.AccessToken()) {
			if freshID, rErr := s.refresh(w, r, st); rErr == nil {
				return Result{Status: StatusValid, Identity: freshID, Display: st.Display, Refreshed: true}
			}
		}
		return Result{Status: StatusValid, Identity: id, Display: st.Display}
	}

	if !errors.Is(err, token.ErrExpired) {
		return Result{Status: StatusInvalid, Display: st.Display, Err: err}
	}

	// access истек: единственная попытка обновления
	if !st.HasRefresh {
		return Result{Status: StatusExpiredTerminal, Display: st.Display, Err: err}
	}

	id, refreshErr := s.refresh(w, r, st)
	if refreshErr != nil {
		return Result{Status: StatusExpiredTerminal, Display: st.Display, Err: refreshErr}
	}

	return Result{Status: StatusValid, Identity: id, Display: st.Display, Refreshed: true}
}

// Refresh выполняет явное обновление access-токена по refresh-cookie.
// В отличие от Verify, не требует access-cookie вовсе.
func (s *Service) Refresh(w http.ResponseWriter, r *http.Request) (models.Identity, error) {
	st := s.sessions.Read(r)
	if !st.HasRefresh {
		return models.Identity{}, token.ErrRefreshInvalid
	}

	return s.refresh(w, r, st)
}

func (s *Service) refresh(w http.ResponseWriter, r *http.Request, st session.State) (models.Identity, error) {
	// идентичность берется из проверенных claims refresh-токена;
	// display-cookie в выпуске не участвует
	_, id, err := s.codec.Refresh(st.RefreshToken())
	if err != nil {
		s.logger.WarnContext(r.Context(), "token refresh failed", slog.Any("error", err))
		return models.Identity{}, err
	}

	if err := s.sessions.RotateAccessAndDisplay(w, id, st.Display); err != nil {
		return models.Identity{}, err
	}

	s.logger.DebugContext(r.Context(), "access token refreshed", slog.String("user_id", id.ID))

	return id, nil
}

// HasPermission сообщает, покрывает ли роль идентичности требуемую.
// Роли образуют иерархию: старшая роль включает права младших.
func HasPermission(id models.Identity, required models.Role) bool {
	level := id.Role.Level()
	need := required.Level()
	if need == 0 {
		// неизвестное требование не может быть удовлетворено
		return false
	}
	return level >= need
}
