// Package gateway adapts Square hosted checkout links to the redirect
// payment channel. The Square order id created with the link is the
// session reference.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/internal/payments"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/money"
	"github.com/angelmondragon/storefront-orders/pkg/square"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

// squareAPI is the slice of the Square client the adapter depends on.
type squareAPI interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkParams) (*square.PaymentLink, error)
	GetOrderPayment(ctx context.Context, orderID string) (*square.OrderPayment, error)
	VerifySignature(body []byte, header string) bool
}

type Adapter struct {
	client   squareAPI
	lifetime time.Duration
	now      func() time.Time
}

func New(client squareAPI, lifetime time.Duration) *Adapter {
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	return &Adapter{
		client:   client,
		lifetime: lifetime,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *Adapter) Channel() enums.PaymentMethod { return enums.PaymentMethodRedirectGateway }

func (a *Adapter) CreateSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error) {
	link, err := a.client.CreatePaymentLink(ctx, square.PaymentLinkParams{
		Name:           "Order " + req.OrderCode,
		ReferenceID:    req.OrderCode,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		IdempotencyKey: "order-" + req.OrderID.String() + "-" + a.now().Format("20060102150405"),
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(link.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square payment link has no order")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &payments.Session{
		Reference: link.OrderID,
		Presentation: types.Presentation{
			"redirect_url":    link.URL,
			"payment_link_id": link.ID,
		},
		ExpiresAt:        a.now().Add(a.lifetime),
		ProviderAmount:   money.FromCents(req.AmountCents),
		ProviderCurrency: currency,
		Rate:             decimal.NewFromInt(1),
	}, nil
}

func (a *Adapter) QueryStatus(ctx context.Context, session models.PaymentSession) (*payments.StatusResult, error) {
	payment, err := a.client.GetOrderPayment(ctx, session.Reference)
	if err != nil {
		return nil, err
	}
	switch {
	case payment.Paid():
		cents := payment.PaidCents
		return &payments.StatusResult{State: enums.SessionStateConfirmed, ConfirmedAmountCents: &cents}, nil
	case payment.Canceled():
		return &payments.StatusResult{State: enums.SessionStateFailed, Detail: "square_order_canceled"}, nil
	default:
		return &payments.StatusResult{State: enums.SessionStatePending}, nil
	}
}

type webhookEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Type   string `json:"type"`
		Object struct {
			Payment *struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyCallback accepts signed payment.created and payment.updated events.
// Other event types are acknowledged without processing.
func (a *Adapter) VerifyCallback(header http.Header, body []byte) (*payments.Callback, error) {
	if !a.client.VerifySignature(body, header.Get(square.SignatureHeader)) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square webhook signature")
	}
	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square webhook")
	}
	if !strings.HasPrefix(evt.Type, "payment.") || evt.Data.Object.Payment == nil {
		return nil, payments.ErrIgnoredCallback
	}
	orderID := strings.TrimSpace(evt.Data.Object.Payment.OrderID)
	if orderID == "" {
		return nil, payments.ErrIgnoredCallback
	}
	return &payments.Callback{Reference: orderID, DeliveryID: evt.EventID}, nil
}
