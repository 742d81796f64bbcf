package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
)

const maxLastErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// insertOnce adds the row unless the aggregate already has an event of the
// same type. The conflict is swallowed by the database so the surrounding
// Postgres transaction stays usable.
func (r *Repository) insertOnce(tx *gorm.DB, event models.OutboxEvent) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FetchUnpublishedForPublish claims a batch of pending rows. On Postgres the
// rows stay locked until tx ends and concurrent dispatchers skip them.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	query := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL")
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
			"last_error":   nil,
		}).Error
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    truncateLastError(err),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminalTx pins attempt_count at terminalAttempts so the row is never
// fetched again. The row stays unpublished; its dead letter lives in outbox_dead_letters.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    truncateLastError(err),
			"attempt_count": terminalAttempts,
		}).Error
}

// ListByAggregate returns every event recorded for one aggregate, oldest first.
func (r *Repository) ListByAggregate(ctx context.Context, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// DeletePublishedBefore removes published rows older than cutoff and returns
// the number of rows deleted.
func (r *Repository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// Backlog is a point-in-time count of undelivered outbox rows.
type Backlog struct {
	Pending         int64
	Exhausted       int64
	OldestPendingAt *time.Time
}

// Backlog splits undelivered rows into those the dispatcher will still pick
// up and those pinned at or past maxAttempts.
func (r *Repository) Backlog(ctx context.Context, maxAttempts int) (Backlog, error) {
	var out Backlog
	base := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).Where("published_at IS NULL")
	pending := base.Session(&gorm.Session{})
	if maxAttempts > 0 {
		pending = pending.Where("attempt_count < ?", maxAttempts)
		if err := base.Session(&gorm.Session{}).Where("attempt_count >= ?", maxAttempts).Count(&out.Exhausted).Error; err != nil {
			return Backlog{}, err
		}
	}
	if err := pending.Session(&gorm.Session{}).Count(&out.Pending).Error; err != nil {
		return Backlog{}, err
	}
	if out.Pending == 0 {
		return out, nil
	}
	var oldest models.OutboxEvent
	if err := pending.Order("created_at ASC").Limit(1).Take(&oldest).Error; err != nil {
		return Backlog{}, err
	}
	created := oldest.CreatedAt.UTC()
	out.OldestPendingAt = &created
	return out, nil
}

func truncateLastError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen]
	}
	return &msg
}
