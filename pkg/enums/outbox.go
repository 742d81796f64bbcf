package enums

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const AggregateQuote OutboxAggregateType = "quote"

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	EventQuoteCreated    OutboxEventType = "quote_created"
	EventQuoteAuthorized OutboxEventType = "quote_authorized"
	EventQuoteRejected   OutboxEventType = "quote_rejected"
	EventQuoteCompleted  OutboxEventType = "quote_completed"
)

// DeadLetterReason says why the dispatcher stopped retrying an event.
type DeadLetterReason string

const (
	// DeadLetterMaxAttempts: every retry failed.
	DeadLetterMaxAttempts DeadLetterReason = "max_attempts"
	// DeadLetterNonRetryable: the payload or a channel rejected the event
	// permanently.
	DeadLetterNonRetryable DeadLetterReason = "non_retryable"
)
