// Package mailer delivers single-use tokens over SMTP. It is the outbound
// collaborator of the auth service; the service never waits on delivery
// outcomes beyond logging them.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/knowledgeshare/identity/internal/auth"
	"github.com/knowledgeshare/identity/internal/config"
)

// SMTP sends token mails through a real SMTP relay.
type SMTP struct {
	cfg     config.SMTPConfig
	baseURL string
}

var _ auth.Mailer = (*SMTP)(nil)

// NewSMTP constructs the SMTP mailer. Host and From are required.
func NewSMTP(cfg config.SMTPConfig, baseURL string) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mailer: SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mailer: SMTP from address is required")
	}
	return &SMTP{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Send delivers the token to the destination address using the template for
// the given kind.
func (s *SMTP) Send(ctx context.Context, to, token string, kind auth.MailKind) error {
	subject, body := s.render(token, kind)

	msg := mail.NewMsg()
	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func (s *SMTP) render(token string, kind auth.MailKind) (subject, body string) {
	switch kind {
	case auth.MailPasswordReset:
		subject = "Reset your password"
		body = fmt.Sprintf(
			"A password reset was requested for your account.\n\n"+
				"Reset link: %s/auth/reset-password?token=%s\n\n"+
				"The link expires shortly. If you did not request this, ignore this mail.",
			s.baseURL, token)
	default:
		subject = "Verify your email address"
		body = fmt.Sprintf(
			"Welcome! Please confirm your email address.\n\n"+
				"Verification link: %s/auth/verify-email?token=%s",
			s.baseURL, token)
	}
	return subject, body
}

// Log is a mailer for environments without an SMTP relay: it logs that a
// token was issued (never the token itself) so flows stay exercisable.
type Log struct {
	Logger *slog.Logger
}

var _ auth.Mailer = (*Log)(nil)

func (l *Log) Send(ctx context.Context, to, token string, kind auth.MailKind) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mail suppressed, no SMTP host configured",
		"to", to, "kind", string(kind))
	return nil
}

// Capture records sent mails in memory for tests.
type Capture struct {
	Sent []CapturedMail
}

// CapturedMail is one recorded delivery.
type CapturedMail struct {
	To    string
	Token string
	Kind  auth.MailKind
}

var _ auth.Mailer = (*Capture)(nil)

func (c *Capture) Send(_ context.Context, to, token string, kind auth.MailKind) error {
	c.Sent = append(c.Sent, CapturedMail{To: to, Token: token, Kind: kind})
	return nil
}

// Last returns the most recently captured mail.
func (c *Capture) Last() (CapturedMail, bool) {
	if len(c.Sent) == 0 {
		return CapturedMail{}, false
	}
	return c.Sent[len(c.Sent)-1], true
}
