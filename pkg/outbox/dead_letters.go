package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
)

const (
	lastErrorMaxBytes      = 1024
	defaultDeadLetterLimit = 50
	maxDeadLetterListLimit = 500
)

// DeadLetters stores events the dispatcher stopped retrying.
type DeadLetters struct {
	db *gorm.DB
}

func NewDeadLetters(db *gorm.DB) *DeadLetters {
	return &DeadLetters{db: db}
}

// Record inserts entry inside tx so the dead letter and the terminal mark on
// the outbox row commit together.
func (d *DeadLetters) Record(tx *gorm.DB, entry models.DeadLetter) error {
	if tx == nil {
		return errors.New("dead letter requires a transaction")
	}
	entry.LastError = clipError(entry.LastError)
	return tx.Create(&entry).Error
}

// Find returns nil when eventID was never dead-lettered.
func (d *DeadLetters) Find(ctx context.Context, eventID uuid.UUID) (*models.DeadLetter, error) {
	var row models.DeadLetter
	err := d.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DeadLetterFilter narrows Recent. A zero Reason matches every reason.
type DeadLetterFilter struct {
	Reason enums.DeadLetterReason
	Limit  int
}

// Recent lists dead letters, latest failure first.
func (d *DeadLetters) Recent(ctx context.Context, filter DeadLetterFilter) ([]models.DeadLetter, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultDeadLetterLimit
	case limit > maxDeadLetterListLimit:
		limit = maxDeadLetterListLimit
	}
	query := d.db.WithContext(ctx).Order("failed_at DESC").Order("id DESC").Limit(limit)
	if filter.Reason != "" {
		query = query.Where("reason = ?", filter.Reason)
	}
	var rows []models.DeadLetter
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *DeadLetters) Count(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.DeadLetter{}).Count(&n).Error
	return n, err
}

// clipError keeps at most lastErrorMaxBytes without splitting a rune.
func clipError(msg string) string {
	if len(msg) <= lastErrorMaxBytes {
		return msg
	}
	cut := lastErrorMaxBytes
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// PurgeBefore deletes dead letters that failed before cutoff.
func (d *DeadLetters) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.DeadLetter{})
	return res.RowsAffected, res.Error
}
