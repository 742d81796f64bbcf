package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// QuoteLineItem is immutable once written; the price is a snapshot.
type QuoteLineItem struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	QuoteID              uuid.UUID       `gorm:"column:quote_id;type:uuid;not null;index"`
	ProductID            *uuid.UUID      `gorm:"column:product_id;type:uuid;index"`
	SKU                  string          `gorm:"column:sku;not null"`
	Name                 string          `gorm:"column:name;not null"`
	Quantity             int             `gorm:"column:quantity;not null;check:quantity > 0"`
	UnitPriceAtQuoteTime decimal.Decimal `gorm:"column:unit_price_at_quote_time;type:numeric(12,2);not null"`
	LineTotal            decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	Position             int             `gorm:"column:position;not null"`
}

func (li *QuoteLineItem) BeforeCreate(*gorm.DB) error {
	if li.ID == uuid.Nil {
		li.ID = uuid.New()
	}
	return nil
}

// QuoteUnmatchedItem is a free-text request with no catalog product behind it.
type QuoteUnmatchedItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	QuoteID     uuid.UUID `gorm:"column:quote_id;type:uuid;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	Description *string   `gorm:"column:description"`
	Quantity    int       `gorm:"column:quantity;not null;check:quantity > 0"`
	Position    int       `gorm:"column:position;not null"`
}

func (ui *QuoteUnmatchedItem) BeforeCreate(*gorm.DB) error {
	if ui.ID == uuid.Nil {
		ui.ID = uuid.New()
	}
	return nil
}
