package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
)

// Quote is a priced request for goods. Total is frozen at creation.
type Quote struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	QuoteNumber     int64             `gorm:"column:quote_number;not null;uniqueIndex"`
	CustomerName    string            `gorm:"column:customer_name;not null"`
	CustomerEmail   *string           `gorm:"column:customer_email"`
	CustomerPhone   *string           `gorm:"column:customer_phone"`
	Total           decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Currency        string            `gorm:"column:currency;not null;default:USD"`
	Status          enums.QuoteStatus `gorm:"column:status;type:text;not null;index"`
	RejectionReason *string           `gorm:"column:rejection_reason"`
	AuthorizedBy    *string           `gorm:"column:authorized_by"`
	AuthorizedAt    *time.Time        `gorm:"column:authorized_at"`
	ClientEmail     *string           `gorm:"column:client_email"`
	CompletedAt     *time.Time        `gorm:"column:completed_at"`
	CreatedBy       string            `gorm:"column:created_by;not null"`
	CreatedByRole   enums.ActorRole   `gorm:"column:created_by_role;type:text;not null"`
	SuppressWebhook bool              `gorm:"column:suppress_webhook;not null;default:false"`

	LineItems      []QuoteLineItem      `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE"`
	UnmatchedItems []QuoteUnmatchedItem `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (q *Quote) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}
