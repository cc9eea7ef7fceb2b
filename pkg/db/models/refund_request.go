package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

// RefundRequest records a customer's request to be paid back for a cancelled order.
type RefundRequest struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	RequestedBy   *uuid.UUID         `gorm:"column:requested_by;type:uuid"`
	BankName      string             `gorm:"column:bank_name;not null"`
	AccountNumber string             `gorm:"column:account_number;not null"`
	AccountHolder string             `gorm:"column:account_holder;not null"`
	Reason        string             `gorm:"column:reason;not null"`
	AmountCents   int64              `gorm:"column:amount_cents;not null"`
	Status        enums.RefundStatus `gorm:"column:status;not null"`
	DecisionNote  *string            `gorm:"column:decision_note"`
	DecidedBy     *uuid.UUID         `gorm:"column:decided_by;type:uuid"`
	DecidedAt     *time.Time         `gorm:"column:decided_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
