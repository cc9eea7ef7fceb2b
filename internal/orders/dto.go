package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/money"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

// Actor identifies who drives an operation. UserID is nil for the system.
type Actor struct {
	Kind   enums.Actor
	UserID *uuid.UUID
}

// SystemActor is used by background processes.
var SystemActor = Actor{Kind: enums.ActorSystem}

// CanSee reports whether the actor may read or act on order.
func (a Actor) CanSee(order *models.Order) bool {
	switch a.Kind {
	case enums.ActorAdmin, enums.ActorSystem:
		return true
	case enums.ActorCustomer:
		return a.UserID != nil && order.CustomerUserID != nil && *order.CustomerUserID == *a.UserID
	default:
		return false
	}
}

// Ref converts the actor to the envelope form used by notifications.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Kind)}
}

// CustomerInfo is the contact captured on an order.
type CustomerInfo struct {
	Name  string
	Phone string
	Email string
}

// LineItemInput is one requested product and quantity.
type LineItemInput struct {
	ProductID uuid.UUID
	Qty       int
}

// CreateOrderInput carries everything needed to place an order. ClientTotal
// is what the client computed; it must equal the server total after rounding
// to the minor unit.
type CreateOrderInput struct {
	Customer        CustomerInfo
	ShippingAddress types.ShippingAddress
	LineItems       []LineItemInput
	DiscountCode    *string
	PaymentMethod   enums.PaymentMethod
	ClientTotal     decimal.Decimal
	Actor           Actor
}

// TransitionInput requests a status change by an operator or the system.
type TransitionInput struct {
	OrderID     uuid.UUID
	Target      enums.OrderStatus
	Description string
	Actor       Actor
}

// CancelInput requests cancellation of an order.
type CancelInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   Actor
}

// Transition is the outcome of one committed status change.
type Transition struct {
	Order *models.Order
	From  enums.OrderStatus
	To    enums.OrderStatus
	Entry models.OrderTrackingEntry
	Actor Actor
}

type LineItemView struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	UnitPrice   string    `json:"unit_price"`
	Qty         int       `json:"qty"`
	LineTotal   string    `json:"line_total"`
}

type TrackingView struct {
	Sequence    int               `json:"sequence"`
	Status      enums.OrderStatus `json:"status"`
	Description string            `json:"description"`
	Actor       enums.Actor       `json:"actor"`
	CreatedAt   time.Time         `json:"created_at"`
}

// OrderView is the API representation of an order. Amounts are decimal
// strings with two fraction digits.
type OrderView struct {
	ID              uuid.UUID             `json:"id"`
	Code            string                `json:"code"`
	Status          enums.OrderStatus     `json:"status"`
	PaymentMethod   enums.PaymentMethod   `json:"payment_method"`
	PaymentStatus   enums.PaymentStatus   `json:"payment_status"`
	CustomerName    string                `json:"customer_name"`
	CustomerPhone   string                `json:"customer_phone"`
	CustomerEmail   string                `json:"customer_email"`
	ShippingAddress types.ShippingAddress `json:"shipping_address"`
	Subtotal        string                `json:"subtotal"`
	DiscountCode    *string               `json:"discount_code,omitempty"`
	Discount        string                `json:"discount"`
	Total           string                `json:"total"`
	Currency        string                `json:"currency"`
	CancelReason    *string               `json:"cancel_reason,omitempty"`
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	LineItems       []LineItemView        `json:"line_items"`
	Tracking        []TrackingView        `json:"tracking,omitempty"`
}

func NewOrderView(order *models.Order) OrderView {
	view := OrderView{
		ID:              order.ID,
		Code:            order.Code,
		Status:          order.Status,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		CustomerName:    order.CustomerName,
		CustomerPhone:   order.CustomerPhone,
		CustomerEmail:   order.CustomerEmail,
		ShippingAddress: order.ShippingAddress,
		Subtotal:        money.Format(order.SubtotalCents),
		DiscountCode:    order.DiscountCode,
		Discount:        money.Format(order.DiscountCents),
		Total:           money.Format(order.TotalCents),
		Currency:        order.Currency,
		CancelReason:    order.CancelReason,
		PaidAt:          order.PaidAt,
		CancelledAt:     order.CancelledAt,
		DeliveredAt:     order.DeliveredAt,
		CreatedAt:       order.CreatedAt,
		LineItems:       make([]LineItemView, 0, len(order.LineItems)),
		Tracking:        NewTrackingViews(order.Tracking),
	}
	for _, item := range order.LineItems {
		view.LineItems = append(view.LineItems, LineItemView{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   money.Format(item.UnitPriceCents),
			Qty:         item.Qty,
			LineTotal:   money.Format(item.LineTotalCents),
		})
	}
	return view
}

func NewTrackingViews(entries []models.OrderTrackingEntry) []TrackingView {
	out := make([]TrackingView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, TrackingView{
			Sequence:    entry.Sequence,
			Status:      entry.Status,
			Description: entry.Description,
			Actor:       entry.Actor,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return out
}
