package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog entry referenced by quote line items. AvailableStock is
// only ever written through the stock ledger.
type Product struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SKU            string          `gorm:"column:sku;not null;uniqueIndex"`
	Name           string          `gorm:"column:name;not null"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	AvailableStock int             `gorm:"column:available_stock;not null;default:0;check:available_stock >= 0"`
	DeletedAt      gorm.DeletedAt  `gorm:"column:deleted_at;index"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
