package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

// PaymentSession is one provider-scoped attempt to collect payment for an order.
// ProviderAmount and Rate pin what the provider was asked to collect.
type PaymentSession struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	Channel              enums.PaymentMethod `gorm:"column:channel;not null"`
	Reference            string              `gorm:"column:reference;not null;uniqueIndex"`
	Presentation         types.Presentation  `gorm:"column:presentation;type:jsonb;not null"`
	AmountCents          int64               `gorm:"column:amount_cents;not null"`
	Currency             string              `gorm:"column:currency;not null"`
	ProviderAmount       decimal.Decimal     `gorm:"column:provider_amount;type:numeric(38,18);not null"`
	ProviderCurrency     string              `gorm:"column:provider_currency;not null"`
	Rate                 decimal.Decimal     `gorm:"column:rate;type:numeric(38,18);not null"`
	State                enums.SessionState  `gorm:"column:state;not null"`
	FailureReason        *string             `gorm:"column:failure_reason"`
	ExpiresAt            time.Time           `gorm:"column:expires_at;not null"`
	NextPollAt           time.Time           `gorm:"column:next_poll_at;not null"`
	PollAttempts         int                 `gorm:"column:poll_attempts;not null;default:0"`
	ConsecutiveFailures  int                 `gorm:"column:consecutive_failures;not null;default:0"`
	LastPolledAt         *time.Time          `gorm:"column:last_polled_at"`
	LastError            *string             `gorm:"column:last_error"`
	ConfirmedAmountCents *int64              `gorm:"column:confirmed_amount_cents"`
	ConfirmedAt          *time.Time          `gorm:"column:confirmed_at"`
	ProviderTxID         *string             `gorm:"column:provider_tx_id"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
