// Package csrf реализует защиту double submit cookie: мутирующий
// запрос обязан повторить значение csrf-cookie в заголовке или в
// теле. Подделать запрос с чужого origin нельзя, потому что чужой
// скрипт не может прочитать cookie.
package csrf

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/encorehub/authd/internal/session"
)

// HeaderName — заголовок с эхом CSRF-токена.
const HeaderName = "X-CSRF-Token"

// BodyField — запасное поле формы с эхом CSRF-токена.
const BodyField = "_csrf"

var (
	// ErrMissing — у запроса нет csrf-cookie либо нет эха токена.
	ErrMissing = errors.New("csrf token is missing")

	// ErrMismatch — эхо токена не совпало со значением cookie.
	ErrMismatch = errors.New("csrf token mismatch")
)

// Guard проверяет CSRF-токены и выпускает новые через менеджер сессии.
type Guard struct {
	sessions *session.Manager
}

// NewGuard создает CSRF-защиту поверх менеджера сессии.
func NewGuard(sessions *session.Manager) *Guard {
	return &Guard{sessions: sessions}
}

// SafeMethod сообщает, освобожден ли метод от CSRF-проверки.
// Безопасные методы по определению не мутируют состояние.
func SafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// Check валидирует CSRF-токен мутирующего запроса. Для безопасных
// методов всегда nil. Эхо ищется сначала в заголовке, затем в поле
// формы. Сравнение выполняется за константное время.
func (g *Guard) Check(r *http.Request) error {
	if SafeMethod(r.Method) {
		return nil
	}

	st := g.sessions.Read(r)
	if !st.HasCSRF {
		return ErrMissing
	}

	echo := r.Header.Get(HeaderName)
	if echo == "" {
		echo = r.PostFormValue(BodyField)
	}
	if echo == "" {
		return ErrMissing
	}

	if subtle.ConstantTimeCompare([]byte(st.CSRFToken()), []byte(echo)) != 1 {
		return ErrMismatch
	}

	return nil
}

// EnsureToken гарантирует клиенту действующий CSRF-токен: существующий
// переиспользуется, отсутствующий выпускается. Токен дублируется в
// заголовке ответа, чтобы клиент мог взять его без чтения cookie.
func (g *Guard) EnsureToken(w http.ResponseWriter, r *http.Request) string {
	tok := g.sessions.EnsureCSRF(w, r)
	w.Header().Set(HeaderName, tok)
	return tok
}

// Rotate принудительно выпускает новый CSRF-токен.
func (g *Guard) Rotate(w http.ResponseWriter) string {
	tok := g.sessions.RotateCSRF(w)
	w.Header().Set(HeaderName, tok)
	return tok
}
