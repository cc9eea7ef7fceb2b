package models

import (
	"time"

	"github.com/google/uuid"
)

// DiscountCode is a fixed-amount promotional code with a bounded number of uses.
type DiscountCode struct {
	Code          string    `gorm:"column:code;primaryKey"`
	AmountCents   int64     `gorm:"column:amount_cents;not null"`
	RemainingUses int       `gorm:"column:remaining_uses;not null"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// DiscountRedemption records that an order consumed one use of a code.
// RestoredAt is set once the use has been given back.
type DiscountRedemption struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code        string     `gorm:"column:code;not null"`
	OrderID     uuid.UUID  `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	AmountCents int64      `gorm:"column:amount_cents;not null"`
	RestoredAt  *time.Time `gorm:"column:restored_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
