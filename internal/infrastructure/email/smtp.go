package email

import (
	"context"
	"errors"
	"fmt"

	mail "github.com/wneessen/go-mail"

	"RegisterDigest/internal/config"
	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/ports"
)

// Dialer sends prepared messages; *mail.Client satisfies it.
type Dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPSink delivers digests through an SMTP relay.
type SMTPSink struct {
	dialer   Dialer
	from     string
	fromName string
}

var _ ports.EmailSink = (*SMTPSink)(nil)

// NewSMTPSink builds a sink with STARTTLS and optional PLAIN auth.
func NewSMTPSink(cfg config.EmailConfig) (*SMTPSink, error) {
	if cfg.SMTP.Host == "" {
		return nil, errors.New("smtp host is empty")
	}

	opts := []mail.Option{mail.WithTLSPolicy(mail.TLSMandatory)}
	if cfg.SMTP.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.SMTP.Port))
	}
	if cfg.SMTP.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTP.Username),
			mail.WithPassword(cfg.SMTP.Password))
	}

	client, err := mail.NewClient(cfg.SMTP.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return NewSMTPSinkWithDialer(cfg, client), nil
}

// NewSMTPSinkWithDialer allows injecting the transport.
func NewSMTPSinkWithDialer(cfg config.EmailConfig, dialer Dialer) *SMTPSink {
	return &SMTPSink{dialer: dialer, from: cfg.From, fromName: cfg.FromName}
}

// Send builds a multipart plain/HTML message and hands it to the relay.
func (s *SMTPSink) Send(ctx context.Context, digest domain.Digest) error {
	msg, err := s.message(digest)
	if err != nil {
		return &domain.DeliveryError{Recipient: digest.Recipient, Err: err}
	}
	if err := s.dialer.DialAndSendWithContext(ctx, msg); err != nil {
		return &domain.DeliveryError{Recipient: digest.Recipient, Err: err}
	}
	return nil
}

func (s *SMTPSink) message(digest domain.Digest) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(digest.Recipient); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(digest.Subject)
	msg.SetBodyString(mail.TypeTextPlain, digest.Body)
	if digest.HTMLBody != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, digest.HTMLBody)
	}
	return msg, nil
}
