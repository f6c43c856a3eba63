package messaging

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/smallbiznis/recoverly/internal/reminder/domain"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// SMTPSender mails the rendered reminder to the customer email.
// Carts without an email fail with ErrSendFailed and are retried on the next run.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{}, err
	}
	if req.Cart.CustomerEmail == nil || strings.TrimSpace(*req.Cart.CustomerEmail) == "" {
		return domain.SendResult{}, fmt.Errorf("%w: cart has no customer email", domain.ErrSendFailed)
	}
	to := strings.TrimSpace(*req.Cart.CustomerEmail)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	msg := fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\nMIME-version: 1.0;\r\nContent-Type: text/plain; charset=\"UTF-8\";\r\n\r\n%s",
		to, s.cfg.From, s.cfg.Subject, req.Content)

	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return domain.SendResult{}, fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}
	return domain.SendResult{Provider: ProviderSMTP}, nil
}
