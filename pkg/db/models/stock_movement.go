package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
)

// StockMovement records every change the ledger applies to a product.
type StockMovement struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	QuoteID      *uuid.UUID              `gorm:"column:quote_id;type:uuid;index"`
	Delta        int                     `gorm:"column:delta;not null"`
	BalanceAfter int                     `gorm:"column:balance_after;not null"`
	Kind         enums.StockMovementKind `gorm:"column:kind;type:text;not null"`
	Reason       *string                 `gorm:"column:reason"`
	ActorID      string                  `gorm:"column:actor_id;not null"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
