package quotes

import (
	"strings"

	"github.com/google/uuid"

	internalquotes "github.com/angelmondragon/quotedesk-backend/internal/quotes"
)

type customerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email,max=320"`
	Phone string `json:"phone" validate:"omitempty,max=50"`
}

type lineItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
}

type unmatchedItemRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Quantity    int    `json:"quantity" validate:"min=1"`
}

type createQuoteRequest struct {
	Customer       customerRequest        `json:"customer"`
	LineItems      []lineItemRequest      `json:"lineItems" validate:"dive"`
	UnmatchedItems []unmatchedItemRequest `json:"unmatchedItems" validate:"dive"`
	Currency       string                 `json:"currency" validate:"omitempty,len=3"`
}

func (r createQuoteRequest) toInput() internalquotes.CreateQuoteInput {
	input := internalquotes.CreateQuoteInput{
		Customer: internalquotes.CustomerContact{
			Name:  strings.TrimSpace(r.Customer.Name),
			Email: strings.TrimSpace(r.Customer.Email),
			Phone: strings.TrimSpace(r.Customer.Phone),
		},
		Currency: strings.TrimSpace(r.Currency),
	}
	for _, item := range r.LineItems {
		input.LineItems = append(input.LineItems, internalquotes.LineItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	for _, item := range r.UnmatchedItems {
		input.UnmatchedItems = append(input.UnmatchedItems, internalquotes.UnmatchedItemInput{
			Name:        strings.TrimSpace(item.Name),
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
		})
	}
	return input
}

type rejectQuoteRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type authorizeQuoteRequest struct {
	ClientEmail string `json:"clientEmail" validate:"required,email,max=320"`
}
