// Package inventory is the stock ledger. Every mutation is a conditional
// UPDATE on the inventory row paired with a movement row naming the order
// (and line item or return request) that caused it.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

// Movement describes one reserve or release.
type Movement struct {
	ProductID       uuid.UUID
	Qty             int
	OrderID         uuid.UUID
	LineItemID      *uuid.UUID
	ReturnRequestID *uuid.UUID
	Reason          enums.InventoryReason
}

type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Reserve takes qty units out of stock. It fails with INSUFFICIENT_STOCK and
// leaves the row untouched when fewer units are available.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, m Movement) error {
	if err := validate(tx, m); err != nil {
		return err
	}
	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_records
		SET available_qty = available_qty - ?,
			updated_at = ?
		WHERE product_id = ? AND available_qty >= ?
	`, m.Qty, time.Now().UTC(), m.ProductID, m.Qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{
				"product_id": m.ProductID.String(),
				"requested":  m.Qty,
			})
	}
	return record(ctx, tx, m, -m.Qty)
}

// Release puts qty units back into stock.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, m Movement) error {
	if err := validate(tx, m); err != nil {
		return err
	}
	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_records
		SET available_qty = available_qty + ?,
			updated_at = ?
		WHERE product_id = ?
	`, m.Qty, time.Now().UTC(), m.ProductID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").
			WithDetails(map[string]any{"product_id": m.ProductID.String()})
	}
	return record(ctx, tx, m, m.Qty)
}

// ReleaseOrder returns whatever the order still holds from its placement
// reservations. Running it twice releases nothing the second time.
func (l *Ledger) ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}
	type heldRow struct {
		ProductID  uuid.UUID
		LineItemID *uuid.UUID
		Held       int
	}
	var rows []heldRow
	err := tx.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Select("product_id, line_item_id, -SUM(delta) AS held").
		Where("order_id = ? AND reason IN ?", orderID, []enums.InventoryReason{
			enums.InventoryReasonOrderReserve,
			enums.InventoryReasonOrderRelease,
		}).
		Group("product_id, line_item_id").
		Scan(&rows).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order reservations")
	}

	released := 0
	for _, row := range rows {
		if row.Held <= 0 {
			continue
		}
		if err := l.Release(ctx, tx, Movement{
			ProductID:  row.ProductID,
			Qty:        row.Held,
			OrderID:    orderID,
			LineItemID: row.LineItemID,
			Reason:     enums.InventoryReasonOrderRelease,
		}); err != nil {
			return released, err
		}
		released += row.Held
	}
	return released, nil
}

// Available returns the sellable quantity for a product.
func (l *Ledger) Available(ctx context.Context, productID uuid.UUID) (int, error) {
	var record models.InventoryRecord
	err := l.db.WithContext(ctx).First(&record, "product_id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	return record.AvailableQty, nil
}

func validate(tx *gorm.DB, m Movement) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory mutation")
	}
	if m.Qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if m.ProductID == uuid.Nil || m.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product and order are required")
	}
	if !m.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown inventory movement reason")
	}
	return nil
}

func record(ctx context.Context, tx *gorm.DB, m Movement, delta int) error {
	movement := models.InventoryMovement{
		ProductID:       m.ProductID,
		OrderID:         m.OrderID,
		LineItemID:      m.LineItemID,
		ReturnRequestID: m.ReturnRequestID,
		Delta:           delta,
		Reason:          m.Reason,
	}
	if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inventory movement")
	}
	return nil
}
