// Package discounts tracks promotional code usage. A consumed use is tied to
// one order through a redemption row, which is what makes restore idempotent.
package discounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Normalize canonicalizes user-entered codes.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Consume checks the code and takes one use for orderID, returning the
// discount amount in cents.
func (l *Ledger) Consume(ctx context.Context, tx *gorm.DB, code string, orderID uuid.UUID) (int64, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for discount consumption")
	}
	code = Normalize(code)
	if code == "" {
		return 0, pkgerrors.New(pkgerrors.CodeInvalidDiscount, "discount code is empty")
	}

	var row models.DiscountCode
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, pkgerrors.New(pkgerrors.CodeInvalidDiscount, "discount code not found").
			WithDetails(map[string]any{"code": code})
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount code")
	}
	if !l.now().Before(row.ExpiresAt) {
		return 0, pkgerrors.New(pkgerrors.CodeDiscountExpired, "discount code has expired").
			WithDetails(map[string]any{"code": code})
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE discount_codes
		SET remaining_uses = remaining_uses - 1,
			updated_at = ?
		WHERE code = ? AND remaining_uses > 0
	`, l.now(), code)
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "consume discount code")
	}
	if res.RowsAffected == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeDiscountExhausted, "discount code has no remaining uses").
			WithDetails(map[string]any{"code": code})
	}

	redemption := models.DiscountRedemption{
		Code:        code,
		OrderID:     orderID,
		AmountCents: row.AmountCents,
	}
	if err := tx.WithContext(ctx).Create(&redemption).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record discount redemption")
	}
	return row.AmountCents, nil
}

// Restore gives back the use taken for orderID. It reports false when the
// order never consumed a code or the use was already given back.
func (l *Ledger) Restore(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for discount restore")
	}

	var redemption models.DiscountRedemption
	err := tx.WithContext(ctx).First(&redemption, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount redemption")
	}

	now := l.now()
	res := tx.WithContext(ctx).
		Model(&models.DiscountRedemption{}).
		Where("id = ? AND restored_at IS NULL", redemption.ID).
		Update("restored_at", now)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark redemption restored")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	res = tx.WithContext(ctx).Exec(`
		UPDATE discount_codes
		SET remaining_uses = remaining_uses + 1,
			updated_at = ?
		WHERE code = ?
	`, now, redemption.Code)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore discount code")
	}
	if res.RowsAffected == 0 {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "discount code vanished before restore").
			WithDetails(map[string]any{"code": redemption.Code})
	}
	return true, nil
}

// Find returns a code without consuming it.
func (l *Ledger) Find(ctx context.Context, code string) (*models.DiscountCode, error) {
	var row models.DiscountCode
	err := l.db.WithContext(ctx).First(&row, "code = ?", Normalize(code)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discount code not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount code")
	}
	return &row, nil
}
