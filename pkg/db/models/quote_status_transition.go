package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
)

// QuoteStatusTransition is one row of the append-only status audit trail.
// FromStatus is nil for the creation row.
type QuoteStatusTransition struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	QuoteID    uuid.UUID          `gorm:"column:quote_id;type:uuid;not null;index"`
	FromStatus *enums.QuoteStatus `gorm:"column:from_status;type:text"`
	ToStatus   enums.QuoteStatus  `gorm:"column:to_status;type:text;not null"`
	ActorID    string             `gorm:"column:actor_id;not null"`
	ActorRole  enums.ActorRole    `gorm:"column:actor_role;type:text;not null"`
	Reason     *string            `gorm:"column:reason"`
	OccurredAt time.Time          `gorm:"column:occurred_at;not null"`
}

func (t *QuoteStatusTransition) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now().UTC()
	}
	return nil
}
