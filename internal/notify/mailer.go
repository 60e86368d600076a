// Package notify delivers a rendered digest by email over SMTP.
package notify

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	mail "gopkg.in/mail.v2"

	"github.com/oyvinds78/morningdigest/internal/digest"
	"github.com/oyvinds78/morningdigest/internal/render"
)

// SMTPConfig holds the delivery settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Mailer sends digests through one SMTP account.
type Mailer struct {
	cfg SMTPConfig
	log zerolog.Logger

	// send is swapped out in tests.
	send func(m ...*mail.Message) error
}

// NewMailer creates a mailer. Configuration is checked at send time so a
// digest-only setup never has to carry SMTP settings.
func NewMailer(cfg SMTPConfig, logger zerolog.Logger) *Mailer {
	m := &Mailer{cfg: cfg, log: logger}
	m.send = func(msgs ...*mail.Message) error {
		dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		return dialer.DialAndSend(msgs...)
	}
	return m
}

// Send renders the digest and emails it. HTML format produces a multipart
// message with a plain-text alternative; text format sends text only.
func (m *Mailer) Send(d *digest.Digest, format render.Format) error {
	if m.cfg.Host == "" || m.cfg.From == "" || m.cfg.To == "" {
		return errors.New("email not configured: host, from and to are required")
	}
	if format != render.FormatText && format != render.FormatHTML {
		return fmt.Errorf("unsupported email format %q", format)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)
	msg.SetHeader("Subject", d.Title)
	msg.SetBody("text/plain", render.Text(d))

	if format == render.FormatHTML {
		html, err := render.HTML(d)
		if err != nil {
			return err
		}
		msg.AddAlternative("text/html", html)
	}

	if err := m.send(msg); err != nil {
		return fmt.Errorf("send digest email: %w", err)
	}
	m.log.Info().Str("to", m.cfg.To).Str("format", string(format)).Msg("digest emailed")
	return nil
}
