package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
)

// QuoteSummary is the notification-facing snapshot of a quote.
type QuoteSummary struct {
	QuoteID       uuid.UUID         `json:"quoteId"`
	QuoteNumber   int64             `json:"quoteNumber"`
	Reference     string            `json:"reference"`
	CustomerName  string            `json:"customerName"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	CustomerPhone string            `json:"customerPhone,omitempty"`
	Total         decimal.Decimal   `json:"total"`
	Currency      string            `json:"currency"`
	Status        enums.QuoteStatus `json:"status"`
	StatusLabel   string            `json:"statusLabel"`
	LineCount     int               `json:"lineCount"`
	UnmatchedCnt  int               `json:"unmatchedCount"`
}

// QuoteCreatedEvent is emitted once per quote. SuppressWebhook is decided at
// creation from the creator's role and never recomputed.
type QuoteCreatedEvent struct {
	Quote           QuoteSummary `json:"quote"`
	SuppressWebhook bool         `json:"suppressWebhook"`
}

// QuoteAuthorizedEvent carries the client email captured at authorization.
type QuoteAuthorizedEvent struct {
	Quote        QuoteSummary `json:"quote"`
	ClientEmail  string       `json:"clientEmail"`
	AuthorizedBy string       `json:"authorizedBy"`
	AuthorizedAt time.Time    `json:"authorizedAt"`
}

type QuoteRejectedEvent struct {
	Quote      QuoteSummary `json:"quote"`
	Reason     string       `json:"reason"`
	RejectedBy string       `json:"rejectedBy"`
}

// QuoteCompletedEvent confirms dispatch to the client.
type QuoteCompletedEvent struct {
	Quote       QuoteSummary `json:"quote"`
	ClientEmail string       `json:"clientEmail,omitempty"`
	CompletedAt time.Time    `json:"completedAt"`
}
