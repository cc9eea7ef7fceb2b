package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/money"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

// SessionView is what a client needs to complete payment. Presentation
// carries the channel specific data (QR payload, redirect URL, address).
type SessionView struct {
	ID               uuid.UUID           `json:"id"`
	OrderID          uuid.UUID           `json:"order_id"`
	Channel          enums.PaymentMethod `json:"channel"`
	Reference        string              `json:"reference"`
	Presentation     types.Presentation  `json:"presentation"`
	Amount           string              `json:"amount"`
	Currency         string              `json:"currency"`
	ProviderAmount   string              `json:"provider_amount"`
	ProviderCurrency string              `json:"provider_currency"`
	Rate             string              `json:"rate"`
	State            enums.SessionState  `json:"state"`
	FailureReason    *string             `json:"failure_reason,omitempty"`
	ExpiresAt        time.Time           `json:"expires_at"`
	ConfirmedAt      *time.Time          `json:"confirmed_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

func NewSessionView(session *models.PaymentSession) SessionView {
	presentation := session.Presentation
	if presentation == nil {
		presentation = types.Presentation{}
	}
	return SessionView{
		ID:               session.ID,
		OrderID:          session.OrderID,
		Channel:          session.Channel,
		Reference:        session.Reference,
		Presentation:     presentation,
		Amount:           money.Format(session.AmountCents),
		Currency:         session.Currency,
		ProviderAmount:   session.ProviderAmount.String(),
		ProviderCurrency: session.ProviderCurrency,
		Rate:             session.Rate.String(),
		State:            session.State,
		FailureReason:    session.FailureReason,
		ExpiresAt:        session.ExpiresAt,
		ConfirmedAt:      session.ConfirmedAt,
		CreatedAt:        session.CreatedAt,
	}
}

type StatusView struct {
	OrderID       uuid.UUID           `json:"order_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Session       *SessionView        `json:"session,omitempty"`
}

func NewStatusView(status *PaymentStatus) StatusView {
	view := StatusView{
		OrderID:       status.OrderID,
		PaymentMethod: status.PaymentMethod,
		PaymentStatus: status.PaymentStatus,
	}
	if status.Session != nil {
		session := NewSessionView(status.Session)
		view.Session = &session
	}
	return view
}
