package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

// ReturnRequest is a post-delivery return or exchange.
type ReturnRequest struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	Type              enums.ReturnType   `gorm:"column:type;not null"`
	Reason            string             `gorm:"column:reason;not null"`
	Status            enums.ReturnStatus `gorm:"column:status;not null"`
	RefundAmountCents int64              `gorm:"column:refund_amount_cents;not null;default:0"`
	RequestedBy       *uuid.UUID         `gorm:"column:requested_by;type:uuid"`
	DecisionNote      *string            `gorm:"column:decision_note"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`

	Items []ReturnRequestItem `gorm:"foreignKey:ReturnRequestID"`
}

// ReturnRequestItem is the quantity of one order line item being returned.
type ReturnRequestItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnRequestID uuid.UUID `gorm:"column:return_request_id;type:uuid;not null"`
	LineItemID      uuid.UUID `gorm:"column:line_item_id;type:uuid;not null"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Qty             int       `gorm:"column:qty;not null"`
}
