package discounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

func seedCode(t *testing.T, db *gorm.DB, code string, uses int, expires time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.DiscountCode{
		Code:          code,
		AmountCents:   300,
		RemainingUses: uses,
		ExpiresAt:     expires,
	}).Error)
}

func consume(t *testing.T, db *gorm.DB, ledger *Ledger, code string, orderID uuid.UUID) (int64, error) {
	t.Helper()
	var amount int64
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		amount, err = ledger.Consume(context.Background(), tx, code, orderID)
		return err
	})
	return amount, err
}

func TestConsumeDecrementsAndRecords(t *testing.T) {
	db := dbtest.Open(t)
	ledger := NewLedger(db)
	seedCode(t, db, "SAVE3", 2, time.Now().UTC().Add(time.Hour))
	orderID := uuid.New()

	amount, err := consume(t, db, ledger, " save3 ", orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), amount)

	code, err := ledger.Find(context.Background(), "SAVE3")
	require.NoError(t, err)
	assert.Equal(t, 1, code.RemainingUses)

	var redemption models.DiscountRedemption
	require.NoError(t, db.First(&redemption, "order_id = ?", orderID).Error)
	assert.Equal(t, "SAVE3", redemption.Code)
	assert.Nil(t, redemption.RestoredAt)
}

func TestConsumeRejections(t *testing.T) {
	db := dbtest.Open(t)
	ledger := NewLedger(db)
	seedCode(t, db, "OLD", 5, time.Now().UTC().Add(-time.Minute))
	seedCode(t, db, "EMPTY", 0, time.Now().UTC().Add(time.Hour))

	_, err := consume(t, db, ledger, "MISSING", uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidDiscount))

	_, err = consume(t, db, ledger, "OLD", uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDiscountExpired))
	assert.True(t, pkgerrors.IsDiscountError(err))

	_, err = consume(t, db, ledger, "EMPTY", uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDiscountExhausted))

	code, err := ledger.Find(context.Background(), "OLD")
	require.NoError(t, err)
	assert.Equal(t, 5, code.RemainingUses, "rejected consumption must not touch the counter")
}

func TestRestoreIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	ledger := NewLedger(db)
	seedCode(t, db, "ONCE", 1, time.Now().UTC().Add(time.Hour))
	orderID := uuid.New()

	_, err := consume(t, db, ledger, "ONCE", orderID)
	require.NoError(t, err)

	restore := func(id uuid.UUID) bool {
		var restored bool
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			var err error
			restored, err = ledger.Restore(context.Background(), tx, id)
			return err
		}))
		return restored
	}

	assert.True(t, restore(orderID))
	assert.False(t, restore(orderID))
	assert.False(t, restore(uuid.New()), "orders that never consumed a code restore nothing")

	code, err := ledger.Find(context.Background(), "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, code.RemainingUses)
}
