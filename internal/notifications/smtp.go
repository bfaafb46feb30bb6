package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/anri-helpdesk/helpdesk/internal/config"
)

type EmailMessage struct {
	To      []string
	Subject string
	Body    string
	// HTMLBody is sent as an alternative part when set.
	HTMLBody string
}

type EmailProvider interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// Dialer is the part of gomail.Dialer used to deliver messages.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPProvider struct {
	cfg    *config.EmailConfig
	dialer Dialer
}

func NewSMTPProvider(cfg *config.EmailConfig) *SMTPProvider {
	d := gomail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password)
	d.SSL = strings.EqualFold(cfg.SMTP.TLS, "ssl")
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.SMTP.Host,
		InsecureSkipVerify: cfg.SMTP.SkipVerify,
	}
	return &SMTPProvider{cfg: cfg, dialer: d}
}

// NewSMTPProviderWithDialer is used by tests to capture messages.
func NewSMTPProviderWithDialer(cfg *config.EmailConfig, d Dialer) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, dialer: d}
}

func (s *SMTPProvider) Send(ctx context.Context, msg EmailMessage) error {
	if s.cfg == nil || !s.cfg.Enabled {
		return nil
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	m := gomail.NewMessage()
	if s.cfg.FromName != "" {
		m.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	} else {
		m.SetHeader("From", s.cfg.From)
	}
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	}
}
