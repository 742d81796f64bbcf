package quotes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/quotedesk-backend/pkg/db"
	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotedesk-backend/pkg/errors"
	"github.com/angelmondragon/quotedesk-backend/pkg/pagination"
)

// ListFilters narrows quote listings.
type ListFilters struct {
	Status    *enums.QuoteStatus
	CreatedBy string
}

// Repository persists quotes, their items and the status audit trail.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the quote together with its line and unmatched items. A
// quote number that is already taken surfaces as CONFLICT; that only happens
// when the counter row was reset by hand.
func (r *Repository) Create(ctx context.Context, quote *models.Quote) (*models.Quote, error) {
	err := r.db.WithContext(ctx).Create(quote).Error
	if dbpkg.IsUniqueViolation(err, "quotes_quote_number_key", "quotes.quote_number") {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "quote number %d already issued", quote.QuoteNumber)
	}
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	if err := withItems(r.db.WithContext(ctx)).First(&quote, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// FindByIDForUpdate takes a row lock on the quote for the rest of the
// transaction. Items are loaded without a lock since they never change.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	if err := withItems(r.db.WithContext(ctx)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&quote, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *Repository) FindByNumber(ctx context.Context, number int64) (*models.Quote, error) {
	var quote models.Quote
	if err := withItems(r.db.WithContext(ctx)).First(&quote, "quote_number = ?", number).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// LoadProducts returns the live (not deleted) products among ids.
func (r *Repository) LoadProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// List returns quotes newest first using keyset pagination.
func (r *Repository) List(ctx context.Context, filters ListFilters, params pagination.Params) (pagination.Page[models.Quote], error) {
	query := r.db.WithContext(ctx).Model(&models.Quote{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CreatedBy != "" {
		query = query.Where("created_by = ?", filters.CreatedBy)
	}
	query, limit, err := pagination.Seek(query, params)
	if err != nil {
		return pagination.Page[models.Quote]{}, err
	}

	var rows []models.Quote
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.Quote]{}, err
	}
	return pagination.BuildPage(rows, limit, func(q models.Quote) pagination.Cursor {
		return pagination.Cursor{CreatedAt: q.CreatedAt, ID: q.ID}
	}), nil
}

// TransitionStatus applies updates only when the quote is still in one of
// allowedFrom. It reports whether a row changed, so a concurrent writer that
// moved the quote first makes this call a no-op.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, allowedFrom []enums.QuoteStatus, next enums.QuoteStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = next
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) AppendTransition(ctx context.Context, row *models.QuoteStatusTransition) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// ListTransitions returns the audit trail oldest first.
func (r *Repository) ListTransitions(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteStatusTransition, error) {
	var rows []models.QuoteStatusTransition
	if err := r.db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

const orphanedQuotesQuery = `
SELECT DISTINCT li.quote_id
FROM quote_line_items li
LEFT JOIN products p ON p.id = li.product_id
WHERE li.product_id IS NOT NULL
  AND (p.id IS NULL OR p.deleted_at IS NOT NULL)
`

// DeleteReferencingDeletedProducts removes quotes whose line items point at
// products that no longer exist. It is a maintenance operation and must run
// on a transaction-bound repository.
func (r *Repository) DeleteReferencingDeletedProducts(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := r.OrphanedQuoteIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	conn := r.db.WithContext(ctx)
	for _, model := range []any{&models.QuoteStatusTransition{}, &models.QuoteUnmatchedItem{}, &models.QuoteLineItem{}} {
		if err := conn.Where("quote_id IN ?", ids).Delete(model).Error; err != nil {
			return nil, err
		}
	}
	if err := conn.Where("id IN ?", ids).Delete(&models.Quote{}).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.
		Preload("LineItems", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Preload("UnmatchedItems", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") })
}

// OrphanedQuoteIDs lists quotes with a line item whose product is deleted or
// missing.
func (r *Repository) OrphanedQuoteIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Raw(orphanedQuotesQuery).Scan(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
