package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
)

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&models.Product{},
		&models.QuoteSequence{},
		&models.Quote{},
		&models.QuoteLineItem{},
		&models.QuoteUnmatchedItem{},
		&models.QuoteStatusTransition{},
		&models.StockMovement{},
		&models.OutboxEvent{},
		&models.DeadLetter{},
	}
}

// AutoMigrate builds the schema from the gorm models. Used for sqlite where
// the Postgres SQL files do not apply.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
