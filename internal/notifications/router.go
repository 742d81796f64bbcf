package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/metrics"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/registry"
)

const defaultTimeout = 5 * time.Second

type claimLedger interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Confirm(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
	ClaimedAt(ctx context.Context, consumer string, eventID uuid.UUID) (time.Time, bool, error)
}

// Delivery is one planned outbound message on one channel.
type Delivery struct {
	Channel    enums.NotificationChannel
	Recipient  string
	TemplateID string
	Data       map[string]any
	Webhook    *WebhookBody
}

type RouterParams struct {
	Config  config.NotificationsConfig
	Email   EmailSender
	Webhook WebhookSender
	Claims  claimLedger
	Metrics *metrics.NotificationMetrics
	Logger  *logger.Logger
}

// Router fans a resolved quote event out to its channels. Channels are
// independent: each is deduplicated on its own and one failing never blocks
// or repeats the other.
type Router struct {
	cfg     config.NotificationsConfig
	email   EmailSender
	webhook WebhookSender
	claims  claimLedger
	metrics *metrics.NotificationMetrics
	logg    *logger.Logger
	timeout time.Duration
}

func NewRouter(params RouterParams) (*Router, error) {
	if params.Email == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if params.Webhook == nil {
		return nil, fmt.Errorf("webhook sender required")
	}
	if params.Claims == nil {
		return nil, fmt.Errorf("delivery claims required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.Config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Router{
		cfg:     params.Config,
		email:   params.Email,
		webhook: params.Webhook,
		claims:  params.Claims,
		metrics: params.Metrics,
		logg:    params.Logger,
		timeout: timeout,
	}, nil
}

// Dispatch delivers every planned channel for the event. The returned error
// joins per-channel failures; it is non-retryable only when every failure is.
func (r *Router) Dispatch(ctx context.Context, resolved *registry.ResolvedEvent) error {
	if resolved == nil {
		return registry.NewNonRetryableError(errors.New("resolved event required"))
	}
	eventID := resolved.EventID()
	if eventID == uuid.Nil {
		return registry.NewNonRetryableError(errors.New("event id missing"))
	}
	logCtx := r.logg.WithEvent(ctx, eventID.String(), string(resolved.Descriptor.EventType))

	deliveries, err := r.Plan(resolved)
	if err != nil {
		return registry.NewNonRetryableError(err)
	}

	var errs error
	for _, delivery := range deliveries {
		errs = multierr.Append(errs, r.deliverOnce(logCtx, eventID, delivery))
	}
	if errs == nil {
		return nil
	}
	for _, e := range multierr.Errors(errs) {
		if !registry.IsNonRetryable(e) {
			return errs
		}
	}
	return registry.NewNonRetryableError(errs)
}

func (r *Router) deliverOnce(ctx context.Context, eventID uuid.UUID, delivery Delivery) error {
	consumer := delivery.Channel.ConsumerName()
	chCtx := r.logg.WithField(ctx, "channel", delivery.Channel)

	won, err := r.claims.Claim(ctx, consumer, eventID)
	if errors.Is(err, idempotency.ErrInFlight) {
		r.metrics.Observe(string(delivery.Channel), "in_flight", 0)
		r.logg.Debug(chCtx, "channel delivery still in flight")
		return fmt.Errorf("%s: %w", delivery.Channel, err)
	}
	if err != nil {
		return fmt.Errorf("%s dedupe: %w", delivery.Channel, err)
	}
	if !won {
		r.metrics.Observe(string(delivery.Channel), "duplicate", 0)
		if at, ok, err := r.claims.ClaimedAt(ctx, consumer, eventID); err == nil && ok {
			chCtx = r.logg.WithField(chCtx, "claimed_at", at)
		}
		r.logg.Debug(chCtx, "channel already delivered")
		return nil
	}

	started := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err = r.send(callCtx, delivery)
	cancel()
	took := time.Since(started)

	if err != nil {
		if delErr := r.claims.Release(ctx, consumer, eventID); delErr != nil {
			r.logg.Error(chCtx, "failed to release dedupe marker", delErr)
		}
		r.metrics.Observe(string(delivery.Channel), "failed", took)
		r.logg.Warn(r.logg.WithField(chCtx, "error", err.Error()), "notification delivery failed")
		return fmt.Errorf("%s: %w", delivery.Channel, err)
	}
	if err := r.claims.Confirm(ctx, consumer, eventID); err != nil {
		r.logg.Error(chCtx, "failed to confirm delivery claim", err)
	}
	r.metrics.Observe(string(delivery.Channel), "sent", took)
	r.logg.Info(chCtx, "notification delivered")
	return nil
}

func (r *Router) send(ctx context.Context, delivery Delivery) error {
	switch delivery.Channel {
	case enums.NotificationChannelEmail:
		return r.email.Send(ctx, delivery.Recipient, delivery.TemplateID, delivery.Data)
	case enums.NotificationChannelWebhook:
		return r.webhook.Post(ctx, *delivery.Webhook)
	}
	return registry.NewNonRetryableError(fmt.Errorf("unknown channel %s", delivery.Channel))
}

// Plan decides which channels fire for the event. Disabled channels, missing
// recipients and suppressed webhooks are skipped with a log line.
func (r *Router) Plan(resolved *registry.ResolvedEvent) ([]Delivery, error) {
	var (
		summary         payloads.QuoteSummary
		recipient       string
		templateID      string
		suppressWebhook bool
		extra           = map[string]any{}
	)
	switch payload := resolved.Payload.(type) {
	case *payloads.QuoteCreatedEvent:
		summary = payload.Quote
		recipient = payload.Quote.CustomerEmail
		templateID = r.cfg.QuoteCreatedTemplateID
		suppressWebhook = payload.SuppressWebhook
	case *payloads.QuoteAuthorizedEvent:
		summary = payload.Quote
		recipient = payload.ClientEmail
		templateID = r.cfg.QuoteAuthorizedTemplateID
		extra["authorizedAt"] = payload.AuthorizedAt.Format(time.RFC3339)
	case *payloads.QuoteRejectedEvent:
		summary = payload.Quote
		recipient = payload.Quote.CustomerEmail
		templateID = r.cfg.QuoteRejectedTemplateID
		extra["reason"] = payload.Reason
	case *payloads.QuoteCompletedEvent:
		summary = payload.Quote
		recipient = payload.ClientEmail
		if recipient == "" {
			recipient = payload.Quote.CustomerEmail
		}
		templateID = r.cfg.QuoteCompletedTemplateID
		extra["completedAt"] = payload.CompletedAt.Format(time.RFC3339)
	default:
		return nil, fmt.Errorf("unsupported payload %T", resolved.Payload)
	}

	deliveries := make([]Delivery, 0, len(resolved.Descriptor.Channels))
	for _, channel := range resolved.Descriptor.Channels {
		switch channel {
		case enums.NotificationChannelEmail:
			if !r.email.Enabled() {
				r.skip(resolved, channel, "email channel not configured")
				continue
			}
			if strings.TrimSpace(recipient) == "" {
				r.skip(resolved, channel, "no recipient")
				continue
			}
			deliveries = append(deliveries, Delivery{
				Channel:    channel,
				Recipient:  recipient,
				TemplateID: templateID,
				Data:       templateData(summary, extra),
			})
		case enums.NotificationChannelWebhook:
			if suppressWebhook {
				r.skip(resolved, channel, "webhook suppressed for staff-created quote")
				continue
			}
			if !r.webhook.Enabled() {
				r.skip(resolved, channel, "webhook channel not configured")
				continue
			}
			deliveries = append(deliveries, Delivery{
				Channel: channel,
				Webhook: &WebhookBody{
					Event:      resolved.Descriptor.EventType,
					EventID:    resolved.Envelope.EventID,
					OccurredAt: resolved.Envelope.OccurredAt,
					Quote:      summary,
					Data:       resolved.Envelope.Data,
				},
			})
		}
	}
	return deliveries, nil
}

func (r *Router) skip(resolved *registry.ResolvedEvent, channel enums.NotificationChannel, reason string) {
	ctx := r.logg.WithEvent(context.Background(), resolved.Envelope.EventID, string(resolved.Descriptor.EventType))
	ctx = r.logg.WithFields(ctx, map[string]any{"channel": channel, "reason": reason})
	r.logg.Info(ctx, "notification channel skipped")
	r.metrics.Observe(string(channel), "skipped", 0)
}

func templateData(summary payloads.QuoteSummary, extra map[string]any) map[string]any {
	data := map[string]any{
		"reference":    summary.Reference,
		"quoteNumber":  summary.QuoteNumber,
		"customerName": summary.CustomerName,
		"total":        summary.Total.StringFixed(2),
		"currency":     summary.Currency,
		"status":       summary.StatusLabel,
		"lineCount":    summary.LineCount,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}
