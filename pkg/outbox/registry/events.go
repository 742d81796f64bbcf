// Package registry knows every outbox event type the dispatcher can deliver:
// which aggregate it belongs to, which channels it fans out to and how to
// decode each payload version.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/payloads"
)

type decodeFunc func(json.RawMessage) (any, error)

// decodeAs decodes into a fresh *T.
func decodeAs[T any](raw json.RawMessage) (any, error) {
	target := new(T)
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
}

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Channels      []enums.NotificationChannel

	decoders map[int]decodeFunc
}

func quoteEvent[T any](eventType enums.OutboxEventType, channels ...enums.NotificationChannel) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: enums.AggregateQuote,
		Channels:      channels,
		decoders:      map[int]decodeFunc{outbox.CurrentVersion: decodeAs[T]},
	}
}

// ResolvedEvent is an outbox row with its envelope opened and payload typed.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventID parses the envelope id; uuid.Nil when it is malformed.
func (r *ResolvedEvent) EventID() uuid.UUID {
	id, err := uuid.Parse(r.Envelope.EventID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry registers the quote lifecycle events. Completion is only
// mailed to the client; automation already learned about the quote when it
// was authorized.
func NewEventRegistry() *EventRegistry {
	email, webhook := enums.NotificationChannelEmail, enums.NotificationChannelWebhook
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		quoteEvent[payloads.QuoteCreatedEvent](enums.EventQuoteCreated, email, webhook),
		quoteEvent[payloads.QuoteAuthorizedEvent](enums.EventQuoteAuthorized, email, webhook),
		quoteEvent[payloads.QuoteRejectedEvent](enums.EventQuoteRejected, email, webhook),
		quoteEvent[payloads.QuoteCompletedEvent](enums.EventQuoteCompleted, email),
	} {
		reg.entries[desc.EventType] = desc
	}
	return reg
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure here is permanent: the row will never decode on a retry.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.descriptorFor(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	envelope, err := outbox.OpenEnvelope(event.Payload, event.ID.String())
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	decode, ok := desc.decoders[envelope.Version]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("no decoder for %s@v%d", event.EventType, envelope.Version))
	}
	payload, err := decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func (r *EventRegistry) descriptorFor(event models.OutboxEvent) (EventDescriptor, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return EventDescriptor{}, fmt.Errorf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return EventDescriptor{}, fmt.Errorf("aggregate mismatch: %s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return EventDescriptor{}, fmt.Errorf("%s row has no aggregate id", event.EventType)
	}
	return desc, nil
}
