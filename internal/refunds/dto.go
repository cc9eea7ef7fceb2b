package refunds

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/money"
)

// CreateInput is a customer's request to be paid back for a cancelled order.
type CreateInput struct {
	OrderID       uuid.UUID
	BankName      string
	AccountNumber string
	AccountHolder string
	Reason        string
	Actor         orders.Actor
}

// DecideInput settles a pending request as refunded or rejected.
type DecideInput struct {
	RefundID uuid.UUID
	Status   enums.RefundStatus
	Note     string
	Actor    orders.Actor
}

type RefundView struct {
	ID            uuid.UUID          `json:"id"`
	OrderID       uuid.UUID          `json:"order_id"`
	BankName      string             `json:"bank_name"`
	AccountNumber string             `json:"account_number"`
	AccountHolder string             `json:"account_holder"`
	Reason        string             `json:"reason"`
	Amount        string             `json:"amount"`
	Status        enums.RefundStatus `json:"status"`
	DecisionNote  *string            `json:"decision_note,omitempty"`
	DecidedAt     *time.Time         `json:"decided_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

func NewRefundView(req *models.RefundRequest) RefundView {
	return RefundView{
		ID:            req.ID,
		OrderID:       req.OrderID,
		BankName:      req.BankName,
		AccountNumber: MaskAccount(req.AccountNumber),
		AccountHolder: req.AccountHolder,
		Reason:        req.Reason,
		Amount:        money.Format(req.AmountCents),
		Status:        req.Status,
		DecisionNote:  req.DecisionNote,
		DecidedAt:     req.DecidedAt,
		CreatedAt:     req.CreatedAt,
	}
}

// MaskAccount keeps the last four characters of an account number.
func MaskAccount(account string) string {
	account = strings.ReplaceAll(strings.TrimSpace(account), " ", "")
	if len(account) <= 4 {
		return strings.Repeat("*", len(account))
	}
	return strings.Repeat("*", len(account)-4) + account[len(account)-4:]
}
