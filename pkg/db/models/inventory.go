package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

// InventoryRecord tracks the sellable quantity per product.
type InventoryRecord struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// InventoryMovement is the audit trail pairing every ledger mutation with the
// order (and line item or return request) that caused it.
type InventoryMovement struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID       uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	OrderID         uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	LineItemID      *uuid.UUID            `gorm:"column:line_item_id;type:uuid"`
	ReturnRequestID *uuid.UUID            `gorm:"column:return_request_id;type:uuid"`
	Delta           int                   `gorm:"column:delta;not null"`
	Reason          enums.InventoryReason `gorm:"column:reason;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}
