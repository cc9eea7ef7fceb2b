package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

// Order is the storefront order aggregate root.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code            string                `gorm:"column:code;not null;uniqueIndex"`
	CustomerUserID  *uuid.UUID            `gorm:"column:customer_user_id;type:uuid"`
	CustomerName    string                `gorm:"column:customer_name;not null"`
	CustomerPhone   string                `gorm:"column:customer_phone;not null"`
	CustomerEmail   string                `gorm:"column:customer_email;not null"`
	ShippingAddress types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;not null"`
	SubtotalCents   int64                 `gorm:"column:subtotal_cents;not null"`
	DiscountCode    *string               `gorm:"column:discount_code"`
	DiscountCents   int64                 `gorm:"column:discount_cents;not null;default:0"`
	TotalCents      int64                 `gorm:"column:total_cents;not null"`
	Currency        string                `gorm:"column:currency;not null"`
	PaymentMethod   enums.PaymentMethod   `gorm:"column:payment_method;not null"`
	PaymentStatus   enums.PaymentStatus   `gorm:"column:payment_status;not null"`
	Status          enums.OrderStatus     `gorm:"column:status;not null"`
	CancelReason    *string               `gorm:"column:cancel_reason"`
	PaidAt          *time.Time            `gorm:"column:paid_at"`
	CancelledAt     *time.Time            `gorm:"column:cancelled_at"`
	DeliveredAt     *time.Time            `gorm:"column:delivered_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`

	LineItems []OrderLineItem      `gorm:"foreignKey:OrderID"`
	Tracking  []OrderTrackingEntry `gorm:"foreignKey:OrderID"`
}

// OrderLineItem captures the price of a product at the moment it was ordered.
type OrderLineItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName    string    `gorm:"column:product_name;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	LineTotalCents int64     `gorm:"column:line_total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// OrderTrackingEntry is one immutable row of an order's status history.
type OrderTrackingEntry struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	Sequence    int               `gorm:"column:sequence;not null"`
	Status      enums.OrderStatus `gorm:"column:status;not null"`
	Description string            `gorm:"column:description;not null"`
	Actor       enums.Actor       `gorm:"column:actor;not null"`
	ActorID     *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
