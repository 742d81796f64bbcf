package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/payloads"
)

const (
	SignatureHeader = "X-QuoteDesk-Signature"
	EventHeader     = "X-QuoteDesk-Event"
)

// WebhookBody is posted to the automation endpoint.
type WebhookBody struct {
	Event      enums.OutboxEventType `json:"event"`
	EventID    string                `json:"eventId"`
	OccurredAt time.Time             `json:"occurredAt"`
	Quote      payloads.QuoteSummary `json:"quote"`
	Data       json.RawMessage       `json:"data,omitempty"`
}

type WebhookSender interface {
	Post(ctx context.Context, body WebhookBody) error
	Enabled() bool
}

// HTTPWebhookSender posts JSON and signs the body with HMAC-SHA256 when a
// secret is configured.
type HTTPWebhookSender struct {
	url    string
	secret []byte
	client *http.Client
}

func NewWebhookSender(cfg config.NotificationsConfig, client *http.Client) WebhookSender {
	if !cfg.WebhookEnabled() {
		return disabledWebhookSender{}
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPWebhookSender{
		url:    strings.TrimSpace(cfg.WebhookURL),
		secret: []byte(cfg.WebhookSecret),
		client: client,
	}
}

func (s *HTTPWebhookSender) Enabled() bool { return true }

func (s *HTTPWebhookSender) Post(ctx context.Context, body WebhookBody) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, string(body.Event))
	if len(s.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(s.secret, raw))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return classifyStatus("webhook", resp.StatusCode, string(respBody))
}

// Sign returns the hex HMAC-SHA256 of body, prefixed with the scheme.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type disabledWebhookSender struct{}

func (disabledWebhookSender) Enabled() bool { return false }

func (disabledWebhookSender) Post(context.Context, WebhookBody) error { return nil }
