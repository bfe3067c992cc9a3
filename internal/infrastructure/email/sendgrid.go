package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"RegisterDigest/internal/config"
	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/ports"
)

// SendClient is the part of *sendgrid.Client the sink uses.
type SendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSink delivers digests through SendGrid, optionally via a dynamic template.
type SendGridSink struct {
	client     SendClient
	from       *mail.Email
	templateID string
}

var _ ports.EmailSink = (*SendGridSink)(nil)

// NewSendGridSink builds a sink from configuration.
func NewSendGridSink(cfg config.EmailConfig) (*SendGridSink, error) {
	if cfg.SendGrid.APIKey == "" {
		return nil, errors.New("sendgrid api key is empty")
	}
	return NewSendGridSinkWithClient(cfg, sendgrid.NewSendClient(cfg.SendGrid.APIKey)), nil
}

// NewSendGridSinkWithClient allows injecting the transport.
func NewSendGridSinkWithClient(cfg config.EmailConfig, client SendClient) *SendGridSink {
	return &SendGridSink{
		client:     client,
		from:       mail.NewEmail(cfg.FromName, cfg.From),
		templateID: cfg.SendGrid.TemplateID,
	}
}

// Send posts one digest; any non-2xx answer is a *domain.DeliveryError.
func (s *SendGridSink) Send(ctx context.Context, digest domain.Digest) error {
	resp, err := s.client.SendWithContext(ctx, s.message(digest))
	if err != nil {
		return &domain.DeliveryError{Recipient: digest.Recipient, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.DeliveryError{
			Recipient: digest.Recipient,
			Err:       fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body)),
		}
	}
	return nil
}

func (s *SendGridSink) message(digest domain.Digest) *mail.SGMailV3 {
	to := mail.NewEmail("", digest.Recipient)

	if s.templateID == "" {
		return mail.NewV3MailInit(s.from, digest.Subject, to,
			mail.NewContent("text/plain", digest.Body),
			mail.NewContent("text/html", digest.HTMLBody))
	}

	m := mail.NewV3Mail()
	m.SetFrom(s.from)
	m.SetTemplateID(s.templateID)

	p := mail.NewPersonalization()
	p.AddTos(to)
	p.Subject = digest.Subject
	p.SetDynamicTemplateData("subject", digest.Subject)
	p.SetDynamicTemplateData("summary", digest.SummaryHTML)
	p.SetDynamicTemplateData("full_text", digest.AppendixHTML)
	m.AddPersonalizations(p)
	return m
}
