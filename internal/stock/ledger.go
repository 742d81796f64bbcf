package stock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotedesk-backend/pkg/errors"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LineRequest asks for quantity units of one product.
type LineRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// Availability is a read-only snapshot. It is not a reservation.
type Availability struct {
	AllInStock       bool              `json:"allInStock"`
	SomeInStock      bool              `json:"someInStock"`
	PerItemAvailable map[uuid.UUID]int `json:"perItemAvailable"`
}

// Shortfall describes one product that could not cover its requested amount.
type Shortfall struct {
	ProductID uuid.UUID `json:"productId"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	Short     int       `json:"short"`
}

// RestockInput adds units back to a product, e.g. after a cancelled dispatch.
type RestockInput struct {
	ProductID uuid.UUID
	Quantity  int
	Reason    string
	ActorID   string
}

// Ledger owns every write to products.available_stock.
type Ledger struct {
	db   *gorm.DB
	tx   txRunner
	logg *logger.Logger
}

func NewLedger(db *gorm.DB, tx txRunner, logg *logger.Logger) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &Ledger{db: db, tx: tx, logg: logg}, nil
}

// CheckAvailability reports current stock for the requested products. Unknown
// or deleted products count as zero available.
func (l *Ledger) CheckAvailability(ctx context.Context, items []LineRequest) (*Availability, error) {
	totals, ids, err := aggregate(items)
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := l.db.WithContext(ctx).
		Select("id", "available_stock").
		Where("id IN ?", ids).
		Find(&products).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock levels")
	}

	available := make(map[uuid.UUID]int, len(ids))
	for _, id := range ids {
		available[id] = 0
	}
	for _, p := range products {
		available[p.ID] = p.AvailableStock
	}

	result := &Availability{AllInStock: true, PerItemAvailable: available}
	for _, id := range ids {
		if available[id] >= totals[id] {
			result.SomeInStock = true
		} else {
			result.AllInStock = false
		}
	}
	return result, nil
}

// Decrement subtracts stock for every requested product inside the caller's
// transaction. Each update is conditional on enough stock remaining, so
// concurrent callers can never drive a product negative. When any product is
// short the error lists every shortfall and the caller must roll back.
func (l *Ledger) Decrement(ctx context.Context, tx *gorm.DB, quoteID uuid.UUID, actorID string, items []LineRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock decrement requires a transaction")
	}
	totals, ids, err := aggregate(items)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	shortfalls := make([]Shortfall, 0)
	for _, id := range ids {
		qty := totals[id]
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND available_stock >= ?", id, qty).
			Updates(map[string]any{
				"available_stock": gorm.Expr("available_stock - ?", qty),
				"updated_at":      now,
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
		}
		if res.RowsAffected == 1 {
			continue
		}
		current, err := currentStock(ctx, tx, id)
		if err != nil {
			return err
		}
		shortfalls = append(shortfalls, newShortfall(id, qty, current))
	}
	if len(shortfalls) > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient stock for one or more products").
			WithDetails(shortfalls)
	}

	movements := make([]models.StockMovement, 0, len(ids))
	qid := quoteID
	for _, id := range ids {
		balance, err := currentStock(ctx, tx, id)
		if err != nil {
			return err
		}
		movements = append(movements, models.StockMovement{
			ProductID:    id,
			QuoteID:      &qid,
			Delta:        -totals[id],
			BalanceAfter: balance,
			Kind:         enums.StockMovementAuthorizationDecrement,
			ActorID:      actorID,
		})
	}
	if err := tx.WithContext(ctx).Create(&movements).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock movements")
	}
	return nil
}

// Restock adds stock in its own transaction and records a movement.
func (l *Ledger) Restock(ctx context.Context, input RestockInput) (*models.Product, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var product models.Product
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", input.ProductID).
			Updates(map[string]any{
				"available_stock": gorm.Expr("available_stock + ?", input.Quantity),
				"updated_at":      time.Now().UTC(),
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restock product")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		if err := tx.WithContext(ctx).First(&product, "id = ?", input.ProductID).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
		}
		movement := models.StockMovement{
			ProductID:    input.ProductID,
			Delta:        input.Quantity,
			BalanceAfter: product.AvailableStock,
			Kind:         enums.StockMovementRestock,
			Reason:       optionalString(input.Reason),
			ActorID:      input.ActorID,
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock movement")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"product_id": input.ProductID.String(),
			"quantity":   input.Quantity,
			"balance":    product.AvailableStock,
		})
		l.logg.Info(logCtx, "product restocked")
	}
	return &product, nil
}

// Movements pages through a product's ledger entries, newest first.
func (l *Ledger) Movements(ctx context.Context, productID uuid.UUID, params pagination.Params) (pagination.Page[models.StockMovement], error) {
	query := l.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Where("product_id = ?", productID)
	query, limit, err := pagination.Seek(query, params)
	if err != nil {
		return pagination.Page[models.StockMovement]{}, err
	}

	var rows []models.StockMovement
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.StockMovement]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movements")
	}
	return pagination.BuildPage(rows, limit, func(m models.StockMovement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	}), nil
}

// aggregate sums duplicate product lines and returns ids in a fixed order so
// concurrent decrements touch rows in the same sequence.
func aggregate(items []LineRequest) (map[uuid.UUID]int, []uuid.UUID, error) {
	if len(items) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	totals := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero").
				WithDetails(map[string]any{"productId": item.ProductID, "quantity": item.Quantity})
		}
		totals[item.ProductID] += item.Quantity
	}
	ids := make([]uuid.UUID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return totals, ids, nil
}

// newShortfall reports a failed decrement. A restock can commit between the
// failed update and the re-read, so the observed level is capped below the
// request and Short stays positive.
func newShortfall(id uuid.UUID, requested, observed int) Shortfall {
	available := observed
	if available >= requested {
		available = requested - 1
	}
	if available < 0 {
		available = 0
	}
	return Shortfall{
		ProductID: id,
		Requested: requested,
		Available: available,
		Short:     requested - available,
	}
}

func currentStock(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int, error) {
	var rows []int
	if err := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Pluck("available_stock", &rows).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock level")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0], nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
