package returns

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/money"
)

type ItemInput struct {
	LineItemID uuid.UUID
	Qty        int
}

type CreateInput struct {
	OrderID uuid.UUID
	Type    enums.ReturnType
	Reason  string
	Items   []ItemInput
	Actor   orders.Actor
}

type AdvanceInput struct {
	ReturnID uuid.UUID
	Target   enums.ReturnStatus
	Note     string
	Actor    orders.Actor
}

type ItemView struct {
	LineItemID uuid.UUID `json:"line_item_id"`
	ProductID  uuid.UUID `json:"product_id"`
	Qty        int       `json:"qty"`
}

type ReturnView struct {
	ID           uuid.UUID          `json:"id"`
	OrderID      uuid.UUID          `json:"order_id"`
	Type         enums.ReturnType   `json:"type"`
	Reason       string             `json:"reason"`
	Status       enums.ReturnStatus `json:"status"`
	RefundAmount string             `json:"refund_amount"`
	DecisionNote *string            `json:"decision_note,omitempty"`
	Items        []ItemView         `json:"items"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func NewReturnView(req *models.ReturnRequest) ReturnView {
	view := ReturnView{
		ID:           req.ID,
		OrderID:      req.OrderID,
		Type:         req.Type,
		Reason:       req.Reason,
		Status:       req.Status,
		RefundAmount: money.Format(req.RefundAmountCents),
		DecisionNote: req.DecisionNote,
		Items:        make([]ItemView, 0, len(req.Items)),
		CreatedAt:    req.CreatedAt,
		UpdatedAt:    req.UpdatedAt,
	}
	for _, item := range req.Items {
		view.Items = append(view.Items, ItemView{LineItemID: item.LineItemID, ProductID: item.ProductID, Qty: item.Qty})
	}
	return view
}
