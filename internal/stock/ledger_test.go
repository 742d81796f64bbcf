package stock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/pkg/db"
	"github.com/angelmondragon/quotedesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotedesk-backend/pkg/errors"
	"github.com/angelmondragon/quotedesk-backend/pkg/pagination"
)

func newLedger(t *testing.T) (*Ledger, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	ledger, err := NewLedger(client.DB(), client, nil)
	require.NoError(t, err)
	return ledger, client
}

func seedProduct(t *testing.T, client *db.Client, sku string, stock int) models.Product {
	t.Helper()
	p := models.Product{
		SKU:            sku,
		Name:           "Product " + sku,
		UnitPrice:      decimal.RequireFromString("10.00"),
		AvailableStock: stock,
	}
	require.NoError(t, client.DB().Create(&p).Error)
	return p
}

func stockOf(t *testing.T, client *db.Client, id uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, client.DB().Unscoped().First(&p, "id = ?", id).Error)
	return p.AvailableStock
}

func TestCheckAvailability(t *testing.T) {
	ledger, client := newLedger(t)
	a := seedProduct(t, client, "A", 5)
	b := seedProduct(t, client, "B", 0)
	missing := uuid.New()

	got, err := ledger.CheckAvailability(context.Background(), []LineRequest{
		{ProductID: a.ID, Quantity: 3},
		{ProductID: b.ID, Quantity: 1},
		{ProductID: missing, Quantity: 1},
	})
	require.NoError(t, err)
	require.False(t, got.AllInStock)
	require.True(t, got.SomeInStock)
	require.Equal(t, 5, got.PerItemAvailable[a.ID])
	require.Equal(t, 0, got.PerItemAvailable[b.ID])
	require.Equal(t, 0, got.PerItemAvailable[missing])

	got, err = ledger.CheckAvailability(context.Background(), []LineRequest{{ProductID: a.ID, Quantity: 5}})
	require.NoError(t, err)
	require.True(t, got.AllInStock)
}

func TestDecrementAppliesAndRecordsMovements(t *testing.T) {
	ledger, client := newLedger(t)
	a := seedProduct(t, client, "A", 10)
	b := seedProduct(t, client, "B", 4)
	quoteID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return ledger.Decrement(context.Background(), tx, quoteID, "admin-1", []LineRequest{
			{ProductID: a.ID, Quantity: 3},
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 4},
		})
	})
	require.NoError(t, err)
	require.Equal(t, 5, stockOf(t, client, a.ID))
	require.Equal(t, 0, stockOf(t, client, b.ID))

	movements, err := ledger.Movements(context.Background(), a.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, movements.Items, 1)
	require.Empty(t, movements.NextCursor)
	require.Equal(t, -5, movements.Items[0].Delta)
	require.Equal(t, 5, movements.Items[0].BalanceAfter)
	require.Equal(t, enums.StockMovementAuthorizationDecrement, movements.Items[0].Kind)
	require.NotNil(t, movements.Items[0].QuoteID)
	require.Equal(t, quoteID, *movements.Items[0].QuoteID)
}

func TestDecrementIsAllOrNothing(t *testing.T) {
	ledger, client := newLedger(t)
	plenty := seedProduct(t, client, "PLENTY", 10)
	scarce := seedProduct(t, client, "SCARCE", 1)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return ledger.Decrement(context.Background(), tx, uuid.New(), "admin-1", []LineRequest{
			{ProductID: plenty.ID, Quantity: 2},
			{ProductID: scarce.ID, Quantity: 3},
		})
	})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficient, typed.Code())
	shortfalls, ok := typed.Details().([]Shortfall)
	require.True(t, ok)
	require.Len(t, shortfalls, 1)
	require.Equal(t, Shortfall{ProductID: scarce.ID, Requested: 3, Available: 1, Short: 2}, shortfalls[0])

	require.Equal(t, 10, stockOf(t, client, plenty.ID))
	require.Equal(t, 1, stockOf(t, client, scarce.ID))

	movements, err := ledger.Movements(context.Background(), plenty.ID, pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, movements.Items)
}

func TestDecrementTreatsDeletedProductAsUnavailable(t *testing.T) {
	ledger, client := newLedger(t)
	p := seedProduct(t, client, "GONE", 5)
	require.NoError(t, client.DB().Delete(&p).Error)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return ledger.Decrement(context.Background(), tx, uuid.New(), "admin-1", []LineRequest{{ProductID: p.ID, Quantity: 1}})
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient))
	require.Equal(t, 5, stockOf(t, client, p.ID))
}

func TestConcurrentDecrementsNeverGoNegative(t *testing.T) {
	ledger, client := newLedger(t)
	p := seedProduct(t, client, "HOT", 5)

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
				return ledger.Decrement(context.Background(), tx, uuid.New(), "admin", []LineRequest{{ProductID: p.ID, Quantity: 2}})
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficient):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 2, succeeded)
	require.Equal(t, workers-2, short)
	require.Equal(t, 1, stockOf(t, client, p.ID))
}

func TestDecrementValidation(t *testing.T) {
	ledger, client := newLedger(t)
	p := seedProduct(t, client, "V", 5)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return ledger.Decrement(context.Background(), tx, uuid.New(), "admin", []LineRequest{{ProductID: p.ID, Quantity: 0}})
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = ledger.Decrement(context.Background(), nil, uuid.New(), "admin", []LineRequest{{ProductID: p.ID, Quantity: 1}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestRestock(t *testing.T) {
	ledger, client := newLedger(t)
	p := seedProduct(t, client, "R", 1)

	updated, err := ledger.Restock(context.Background(), RestockInput{ProductID: p.ID, Quantity: 4, Reason: "dispatch cancelled", ActorID: "admin"})
	require.NoError(t, err)
	require.Equal(t, 5, updated.AvailableStock)

	movements, err := ledger.Movements(context.Background(), p.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, movements.Items, 1)
	require.Equal(t, enums.StockMovementRestock, movements.Items[0].Kind)
	require.Equal(t, 4, movements.Items[0].Delta)
	require.NotNil(t, movements.Items[0].Reason)

	_, err = ledger.Restock(context.Background(), RestockInput{ProductID: p.ID, Quantity: 0})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ledger.Restock(context.Background(), RestockInput{ProductID: uuid.New(), Quantity: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMovementsPagesNewestFirst(t *testing.T) {
	ledger, client := newLedger(t)
	p := seedProduct(t, client, "PAGED", 0)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, client.DB().Create(&models.StockMovement{
			ProductID:    p.ID,
			Delta:        i + 1,
			BalanceAfter: i + 1,
			Kind:         enums.StockMovementRestock,
			ActorID:      "admin-1",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	first, err := ledger.Movements(context.Background(), p.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.Equal(t, 5, first.Items[0].Delta)
	require.Equal(t, 4, first.Items[1].Delta)
	require.NotEmpty(t, first.NextCursor)

	second, err := ledger.Movements(context.Background(), p.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	require.Equal(t, 3, second.Items[0].Delta)
	require.Equal(t, 2, second.Items[1].Delta)

	last, err := ledger.Movements(context.Background(), p.ID, pagination.Params{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	require.Equal(t, 1, last.Items[0].Delta)
	require.Empty(t, last.NextCursor)
}

func TestMovementsRejectsMalformedCursor(t *testing.T) {
	ledger, client := newLedger(t)
	p := seedProduct(t, client, "CURSOR", 0)

	_, err := ledger.Movements(context.Background(), p.ID, pagination.Params{Cursor: "not-a-cursor!"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestShortfallStaysPositiveAfterConcurrentRestock(t *testing.T) {
	id := uuid.New()

	require.Equal(t, Shortfall{ProductID: id, Requested: 5, Available: 2, Short: 3}, newShortfall(id, 5, 2))
	require.Equal(t, Shortfall{ProductID: id, Requested: 5, Available: 4, Short: 1}, newShortfall(id, 5, 9))
	require.Equal(t, Shortfall{ProductID: id, Requested: 1, Available: 0, Short: 1}, newShortfall(id, 1, 1))
}
