package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
)

type productResponse struct {
	ID             uuid.UUID       `json:"id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	AvailableStock int             `json:"availableStock"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type movementResponse struct {
	ID           uuid.UUID               `json:"id"`
	ProductID    uuid.UUID               `json:"productId"`
	QuoteID      *uuid.UUID              `json:"quoteId,omitempty"`
	Delta        int                     `json:"delta"`
	BalanceAfter int                     `json:"balanceAfter"`
	Kind         enums.StockMovementKind `json:"kind"`
	Reason       *string                 `json:"reason,omitempty"`
	ActorID      string                  `json:"actorId"`
	CreatedAt    time.Time               `json:"createdAt"`
}

func toProductResponse(p *models.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		UnitPrice:      p.UnitPrice,
		AvailableStock: p.AvailableStock,
		UpdatedAt:      p.UpdatedAt,
	}
}

func toMovementResponses(rows []models.StockMovement) []movementResponse {
	out := make([]movementResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, movementResponse{
			ID:           row.ID,
			ProductID:    row.ProductID,
			QuoteID:      row.QuoteID,
			Delta:        row.Delta,
			BalanceAfter: row.BalanceAfter,
			Kind:         row.Kind,
			Reason:       row.Reason,
			ActorID:      row.ActorID,
			CreatedAt:    row.CreatedAt,
		})
	}
	return out
}
