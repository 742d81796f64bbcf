package sequence

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/quotedesk-backend/pkg/errors"
)

// DefaultName is the counter used for customer-facing quote numbers.
const DefaultName = "quote_number"

const nextValueQuery = `
INSERT INTO quote_sequences (name, last_value)
VALUES (?, 1)
ON CONFLICT (name) DO UPDATE SET last_value = quote_sequences.last_value + 1
RETURNING last_value
`

// Allocator hands out strictly increasing quote numbers. The increment is a
// single upsert so concurrent callers in any process never observe the same
// value. Numbers consumed by a failed creation are not reused.
type Allocator struct {
	db   *gorm.DB
	name string
}

func NewAllocator(db *gorm.DB, name string) (*Allocator, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	return &Allocator{db: db, name: name}, nil
}

// NextQuoteNumber returns the next value of the counter. It must not run
// inside the quote transaction so the counter row is released immediately.
func (a *Allocator) NextQuoteNumber(ctx context.Context) (int64, error) {
	var value int64
	res := a.db.WithContext(ctx).Raw(nextValueQuery, a.name).Scan(&value)
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "allocate quote number")
	}
	if value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "sequence returned no value")
	}
	return value, nil
}

// Current reports the last issued value without advancing it. Zero means the
// counter has never been used.
func (a *Allocator) Current(ctx context.Context) (int64, error) {
	var value int64
	err := a.db.WithContext(ctx).
		Table("quote_sequences").
		Select("last_value").
		Where("name = ?", a.name).
		Scan(&value).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read quote sequence")
	}
	return value, nil
}

// FormatQuoteNumber renders the human reference printed on documents.
func FormatQuoteNumber(n int64) string {
	return fmt.Sprintf("Q-%06d", n)
}
