// Package payloads defines the data carried by notification events.
package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

type OrderStatusChanged struct {
	OrderID       uuid.UUID         `json:"orderId"`
	OrderCode     string            `json:"orderCode"`
	From          enums.OrderStatus `json:"from,omitempty"`
	To            enums.OrderStatus `json:"to"`
	Description   string            `json:"description"`
	CustomerName  string            `json:"customerName"`
	CustomerEmail string            `json:"customerEmail"`
	ChangedAt     time.Time         `json:"changedAt"`
}

type PaymentConfirmed struct {
	OrderID     uuid.UUID           `json:"orderId"`
	OrderCode   string              `json:"orderCode"`
	Channel     enums.PaymentMethod `json:"channel"`
	Reference   string              `json:"reference"`
	AmountCents int64               `json:"amountCents"`
	Currency    string              `json:"currency"`
	ConfirmedAt time.Time           `json:"confirmedAt"`
}

type RefundDecided struct {
	RefundID    uuid.UUID          `json:"refundId"`
	OrderID     uuid.UUID          `json:"orderId"`
	Status      enums.RefundStatus `json:"status"`
	AmountCents int64              `json:"amountCents"`
	Note        string             `json:"note,omitempty"`
}

type ReturnDecided struct {
	ReturnID          uuid.UUID          `json:"returnId"`
	OrderID           uuid.UUID          `json:"orderId"`
	Type              enums.ReturnType   `json:"type"`
	Status            enums.ReturnStatus `json:"status"`
	RefundAmountCents int64              `json:"refundAmountCents"`
}
