package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

func seed(t *testing.T, db *gorm.DB, qty int) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	require.NoError(t, db.Create(&models.InventoryRecord{ProductID: productID, AvailableQty: qty}).Error)
	return productID
}

func reserve(productID, orderID uuid.UUID, qty int) Movement {
	return Movement{ProductID: productID, OrderID: orderID, Qty: qty, Reason: enums.InventoryReasonOrderReserve}
}

func TestReserveAndRelease(t *testing.T) {
	db := dbtest.Open(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	productID := seed(t, db, 5)
	orderID := uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(ctx, tx, reserve(productID, orderID, 3))
	}))
	available, err := ledger.Available(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, available)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return ledger.Release(ctx, tx, Movement{ProductID: productID, OrderID: orderID, Qty: 1, Reason: enums.InventoryReasonReturnRelease})
	}))
	available, err = ledger.Available(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, available)

	var movements []models.InventoryMovement
	require.NoError(t, db.Order("delta ASC").Find(&movements, "order_id = ?", orderID).Error)
	require.Len(t, movements, 2)
	assert.Equal(t, -3, movements[0].Delta)
	assert.Equal(t, 1, movements[1].Delta)
}

func TestReserveInsufficientLeavesLedgerUntouched(t *testing.T) {
	db := dbtest.Open(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	productID := seed(t, db, 2)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(ctx, tx, reserve(productID, uuid.New(), 3))
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock))

	available, err := ledger.Available(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, available)

	var count int64
	require.NoError(t, db.Model(&models.InventoryMovement{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReserveValidatesInput(t *testing.T) {
	db := dbtest.Open(t)
	ledger := NewLedger(db)
	productID := seed(t, db, 2)

	err := ledger.Reserve(context.Background(), db, reserve(productID, uuid.New(), 0))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	err = ledger.Reserve(context.Background(), nil, reserve(productID, uuid.New(), 1))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	db := dbtest.Open(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	productID := seed(t, db, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.Transaction(func(tx *gorm.DB) error {
				return ledger.Reserve(ctx, tx, reserve(productID, uuid.New(), 1))
			})
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.Is(err, pkgerrors.CodeInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	available, err := ledger.Available(ctx, productID)
	require.NoError(t, err)
	assert.Zero(t, available)
}

func TestReleaseOrderIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	shirt := seed(t, db, 10)
	mug := seed(t, db, 4)
	orderID := uuid.New()
	lineA, lineB := uuid.New(), uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		m := reserve(shirt, orderID, 2)
		m.LineItemID = &lineA
		if err := ledger.Reserve(ctx, tx, m); err != nil {
			return err
		}
		m = reserve(mug, orderID, 1)
		m.LineItemID = &lineB
		return ledger.Reserve(ctx, tx, m)
	}))

	var released int
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		released, err = ledger.ReleaseOrder(ctx, tx, orderID)
		return err
	}))
	assert.Equal(t, 3, released)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		released, err = ledger.ReleaseOrder(ctx, tx, orderID)
		return err
	}))
	assert.Zero(t, released)

	available, err := ledger.Available(ctx, shirt)
	require.NoError(t, err)
	assert.Equal(t, 10, available)
	available, err = ledger.Available(ctx, mug)
	require.NoError(t, err)
	assert.Equal(t, 4, available)
}
