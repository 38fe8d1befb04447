// Package email отправляет письма жизненного цикла учетной записи:
// подтверждение адреса и приветствие после подтверждения.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Result — итог отправки письма.
type Result struct {
	MessageID string `json:"message_id"`
}

// Sender defines interface for account lifecycle mail delivery
type Sender interface {
	// SendVerificationEmail отправляет письмо со ссылкой подтверждения.
	SendVerificationEmail(ctx context.Context, to, token, username string) (Result, error)

	// SendWelcomeEmail отправляет приветствие после подтверждения.
	SendWelcomeEmail(ctx context.Context, to, username string) (Result, error)
}

// SMTPConfig задает параметры SMTP-доставки.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	AppName     string
	FrontendURL string
}

// SMTPSender доставляет письма через SMTP с PLAIN-аутентификацией.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger

	// send подменяется в тестах
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender создает SMTP-отправитель.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger,
		send:   smtp.SendMail,
	}
}

var verificationTmpl = template.Must(template.New("verification").Parse(`<html>
<body style="font-family: sans-serif; max-width: 480px; margin: 0 auto;">
  <h2>Подтвердите адрес почты</h2>
  <p>Здравствуйте, {{.Username}}!</p>
  <p>Для завершения регистрации в {{.AppName}} подтвердите адрес почты.
     Ссылка действует 24 часа.</p>
  <p><a href="{{.VerifyURL}}">Подтвердить адрес</a></p>
  <p>Если вы не регистрировались, просто проигнорируйте это письмо.</p>
</body>
</html>`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<html>
<body style="font-family: sans-serif; max-width: 480px; margin: 0 auto;">
  <h2>Добро пожаловать в {{.AppName}}!</h2>
  <p>Здравствуйте, {{.Username}}!</p>
  <p>Адрес почты подтвержден, учетная запись активна.</p>
</body>
</html>`))

// BuildVerificationURL собирает ссылку подтверждения для письма.
func BuildVerificationURL(frontendURL, token string) string {
	return strings.TrimSuffix(frontendURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
}

// SendVerificationEmail отправляет письмо со ссылкой подтверждения.
func (s *SMTPSender) SendVerificationEmail(ctx context.Context, to, token, username string) (Result, error) {
	var body bytes.Buffer
	err := verificationTmpl.Execute(&body, map[string]string{
		"Username":  username,
		"AppName":   s.cfg.AppName,
		"VerifyURL": BuildVerificationURL(s.cfg.FrontendURL, token),
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to render verification email: %w", err)
	}

	return s.deliver(ctx, to, "Подтверждение адреса почты — "+s.cfg.AppName, body.Bytes())
}

// SendWelcomeEmail отправляет приветствие после подтверждения.
func (s *SMTPSender) SendWelcomeEmail(ctx context.Context, to, username string) (Result, error) {
	var body bytes.Buffer
	err := welcomeTmpl.Execute(&body, map[string]string{
		"Username": username,
		"AppName":  s.cfg.AppName,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to render welcome email: %w", err)
	}

	return s.deliver(ctx, to, "Добро пожаловать в "+s.cfg.AppName, body.Bytes())
}

func (s *SMTPSender) deliver(ctx context.Context, to, subject string, body []byte) (Result, error) {
	messageID := uuid.New().String()

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "Message-ID: <%s@%s>\r\n", messageID, s.cfg.Host)
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", s.cfg.AppName, s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.Write(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	if err := s.send(addr, auth, s.cfg.From, []string{to}, msg.Bytes()); err != nil {
		s.logger.ErrorContext(ctx, "failed to send email",
			slog.String("to", to),
			slog.Any("error", err),
		)
		return Result{}, fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.DebugContext(ctx, "email sent",
		slog.String("to", to),
		slog.String("message_id", messageID),
	)

	return Result{MessageID: messageID}, nil
}
