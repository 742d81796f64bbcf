package quotes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/quotedesk-backend/internal/sequence"
	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/payloads"
)

// CustomerContact identifies who the quote is for.
type CustomerContact struct {
	Name  string
	Email string
	Phone string
}

// LineItemInput references a catalog product.
type LineItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// UnmatchedItemInput is a free-text request with no catalog entry.
type UnmatchedItemInput struct {
	Name        string
	Description string
	Quantity    int
}

type CreateQuoteInput struct {
	Customer       CustomerContact
	LineItems      []LineItemInput
	UnmatchedItems []UnmatchedItemInput
	Currency       string
}

// LineItemDTO is the read model of a priced line.
type LineItemDTO struct {
	ProductID            *uuid.UUID      `json:"productId,omitempty"`
	SKU                  string          `json:"sku"`
	Name                 string          `json:"name"`
	Quantity             int             `json:"quantity"`
	UnitPriceAtQuoteTime decimal.Decimal `json:"unitPriceAtQuoteTime"`
	LineTotal            decimal.Decimal `json:"lineTotal"`
}

type UnmatchedItemDTO struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
}

// QuoteDTO is the API representation of a quote.
type QuoteDTO struct {
	ID              uuid.UUID          `json:"id"`
	QuoteNumber     int64              `json:"quoteNumber"`
	Reference       string             `json:"reference"`
	CustomerName    string             `json:"customerName"`
	CustomerEmail   *string            `json:"customerEmail,omitempty"`
	CustomerPhone   *string            `json:"customerPhone,omitempty"`
	Total           decimal.Decimal    `json:"total"`
	Currency        string             `json:"currency"`
	Status          enums.QuoteStatus  `json:"status"`
	StatusLabel     string             `json:"statusLabel"`
	RejectionReason *string            `json:"rejectionReason,omitempty"`
	AuthorizedBy    *string            `json:"authorizedBy,omitempty"`
	AuthorizedAt    *time.Time         `json:"authorizedAt,omitempty"`
	ClientEmail     *string            `json:"clientEmail,omitempty"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
	CreatedBy       string             `json:"createdBy"`
	SuppressWebhook bool               `json:"suppressWebhook"`
	LineItems       []LineItemDTO      `json:"lineItems"`
	UnmatchedItems  []UnmatchedItemDTO `json:"unmatchedItems"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// TransitionDTO is one audit trail entry.
type TransitionDTO struct {
	From       *enums.QuoteStatus `json:"from,omitempty"`
	To         enums.QuoteStatus  `json:"to"`
	ActorID    string             `json:"actorId"`
	ActorRole  enums.ActorRole    `json:"actorRole"`
	Reason     *string            `json:"reason,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// QuoteDocument is what the document renderer needs. It carries the frozen
// total and the display label only.
type QuoteDocument struct {
	Reference      string             `json:"reference"`
	QuoteNumber    int64              `json:"quoteNumber"`
	IssuedAt       time.Time          `json:"issuedAt"`
	Customer       DocumentCustomer   `json:"customer"`
	LineItems      []LineItemDTO      `json:"lineItems"`
	UnmatchedItems []UnmatchedItemDTO `json:"unmatchedItems"`
	Total          decimal.Decimal    `json:"total"`
	Currency       string             `json:"currency"`
	StatusLabel    string             `json:"statusLabel"`
	AuthorizedBy   *string            `json:"authorizedBy,omitempty"`
	AuthorizedAt   *time.Time         `json:"authorizedAt,omitempty"`
}

type DocumentCustomer struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

func toDTO(q *models.Quote) *QuoteDTO {
	if q == nil {
		return nil
	}
	return &QuoteDTO{
		ID:              q.ID,
		QuoteNumber:     q.QuoteNumber,
		Reference:       sequence.FormatQuoteNumber(q.QuoteNumber),
		CustomerName:    q.CustomerName,
		CustomerEmail:   q.CustomerEmail,
		CustomerPhone:   q.CustomerPhone,
		Total:           q.Total,
		Currency:        q.Currency,
		Status:          q.Status,
		StatusLabel:     q.Status.Label(),
		RejectionReason: q.RejectionReason,
		AuthorizedBy:    q.AuthorizedBy,
		AuthorizedAt:    q.AuthorizedAt,
		ClientEmail:     q.ClientEmail,
		CompletedAt:     q.CompletedAt,
		CreatedBy:       q.CreatedBy,
		SuppressWebhook: q.SuppressWebhook,
		LineItems:       lineItemDTOs(q.LineItems),
		UnmatchedItems:  unmatchedDTOs(q.UnmatchedItems),
		CreatedAt:       q.CreatedAt,
		UpdatedAt:       q.UpdatedAt,
	}
}

func toDocument(q *models.Quote) *QuoteDocument {
	return &QuoteDocument{
		Reference:   sequence.FormatQuoteNumber(q.QuoteNumber),
		QuoteNumber: q.QuoteNumber,
		IssuedAt:    q.CreatedAt,
		Customer: DocumentCustomer{
			Name:  q.CustomerName,
			Email: q.CustomerEmail,
			Phone: q.CustomerPhone,
		},
		LineItems:      lineItemDTOs(q.LineItems),
		UnmatchedItems: unmatchedDTOs(q.UnmatchedItems),
		Total:          q.Total,
		Currency:       q.Currency,
		StatusLabel:    q.Status.Label(),
		AuthorizedBy:   q.AuthorizedBy,
		AuthorizedAt:   q.AuthorizedAt,
	}
}

func toTransitionDTOs(rows []models.QuoteStatusTransition) []TransitionDTO {
	out := make([]TransitionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, TransitionDTO{
			From:       row.FromStatus,
			To:         row.ToStatus,
			ActorID:    row.ActorID,
			ActorRole:  row.ActorRole,
			Reason:     row.Reason,
			OccurredAt: row.OccurredAt,
		})
	}
	return out
}

func lineItemDTOs(items []models.QuoteLineItem) []LineItemDTO {
	out := make([]LineItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, LineItemDTO{
			ProductID:            item.ProductID,
			SKU:                  item.SKU,
			Name:                 item.Name,
			Quantity:             item.Quantity,
			UnitPriceAtQuoteTime: item.UnitPriceAtQuoteTime,
			LineTotal:            item.LineTotal,
		})
	}
	return out
}

func unmatchedDTOs(items []models.QuoteUnmatchedItem) []UnmatchedItemDTO {
	out := make([]UnmatchedItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, UnmatchedItemDTO{
			Name:        item.Name,
			Description: item.Description,
			Quantity:    item.Quantity,
		})
	}
	return out
}

// summaryOf builds the notification snapshot carried by every quote event.
func summaryOf(q *models.Quote) payloads.QuoteSummary {
	return payloads.QuoteSummary{
		QuoteID:       q.ID,
		QuoteNumber:   q.QuoteNumber,
		Reference:     sequence.FormatQuoteNumber(q.QuoteNumber),
		CustomerName:  q.CustomerName,
		CustomerEmail: deref(q.CustomerEmail),
		CustomerPhone: deref(q.CustomerPhone),
		Total:         q.Total,
		Currency:      q.Currency,
		Status:        q.Status,
		StatusLabel:   q.Status.Label(),
		LineCount:     len(q.LineItems),
		UnmatchedCnt:  len(q.UnmatchedItems),
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
