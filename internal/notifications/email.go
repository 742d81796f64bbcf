package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/registry"
)

// EmailSender delivers one templated message.
type EmailSender interface {
	Send(ctx context.Context, to, templateID string, data map[string]any) error
	Enabled() bool
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridSender renders messages with SendGrid dynamic templates.
type SendgridSender struct {
	api       sendgridAPI
	fromEmail string
	fromName  string
}

// NewEmailSender returns a SendGrid-backed sender, or a disabled sender when
// no API key is configured.
func NewEmailSender(cfg config.NotificationsConfig) EmailSender {
	if !cfg.EmailEnabled() {
		return disabledEmailSender{}
	}
	return newSendgridSender(sendgrid.NewSendClient(cfg.SendgridAPIKey), cfg.FromEmail, cfg.FromName)
}

func newSendgridSender(api sendgridAPI, fromEmail, fromName string) *SendgridSender {
	return &SendgridSender{api: api, fromEmail: fromEmail, fromName: fromName}
}

func (s *SendgridSender) Enabled() bool { return true }

func (s *SendgridSender) Send(ctx context.Context, to, templateID string, data map[string]any) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return registry.NewNonRetryableError(fmt.Errorf("recipient required"))
	}
	if strings.TrimSpace(templateID) == "" {
		return registry.NewNonRetryableError(fmt.Errorf("template id not configured"))
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	message.SetTemplateID(templateID)
	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", to))
	for key, value := range data {
		p.SetDynamicTemplateData(key, value)
	}
	message.AddPersonalizations(p)

	resp, err := s.api.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	return classifyStatus("sendgrid", resp.StatusCode, resp.Body)
}

type disabledEmailSender struct{}

func (disabledEmailSender) Enabled() bool { return false }

func (disabledEmailSender) Send(context.Context, string, string, map[string]any) error { return nil }

// classifyStatus maps an HTTP response to nil, a retryable error or a
// non-retryable one. Client errors other than timeouts and throttling will
// not succeed on retry.
func classifyStatus(target string, status int, body string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	err := fmt.Errorf("%s responded %d: %s", target, status, truncate(body, 256))
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return registry.NewNonRetryableError(err)
	}
	return err
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max]
}
