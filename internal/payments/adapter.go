// Package payments collects payment for orders through external channels.
// Every channel is an Adapter with the same session/status contract; the
// Reconciler turns provider status into order state, whether the status was
// polled or pushed by a callback.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/money"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

// ErrIgnoredCallback is returned by VerifyCallback for authentic deliveries
// that carry no payment update.
var ErrIgnoredCallback = errors.New("callback carries no payment update")

// SessionRequest asks a channel to start collecting AmountCents for an order.
type SessionRequest struct {
	OrderID     uuid.UUID
	OrderCode   string
	AmountCents int64
	Currency    string
}

// Session is what a channel hands back for a new collection attempt.
// ProviderAmount and Rate are pinned for the life of the session.
type Session struct {
	Reference        string
	Presentation     types.Presentation
	ExpiresAt        time.Time
	ProviderAmount   decimal.Decimal
	ProviderCurrency string
	Rate             decimal.Decimal
}

// StatusResult is the normalized provider view of a session.
type StatusResult struct {
	State                enums.SessionState
	ConfirmedAmountCents *int64
	// ProviderTxID identifies the provider-side settlement. One settlement
	// confirms at most one session.
	ProviderTxID string
	Detail       string
}

// Callback is a verified provider push naming the session it concerns.
type Callback struct {
	Reference  string
	DeliveryID string
}

type Adapter interface {
	Channel() enums.PaymentMethod
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	QueryStatus(ctx context.Context, session models.PaymentSession) (*StatusResult, error)
	VerifyCallback(header http.Header, body []byte) (*Callback, error)
}

// Registry resolves the adapter configured for a channel.
type Registry struct {
	adapters map[enums.PaymentMethod]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[enums.PaymentMethod]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		ch := a.Channel()
		if !ch.RequiresSession() {
			return nil, fmt.Errorf("channel %s does not take payment sessions", ch)
		}
		if _, dup := r.adapters[ch]; dup {
			return nil, fmt.Errorf("duplicate adapter for channel %s", ch)
		}
		r.adapters[ch] = a
	}
	return r, nil
}

func (r *Registry) Get(channel enums.PaymentMethod) (Adapter, error) {
	if r != nil {
		if a, ok := r.adapters[channel]; ok {
			return a, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment channel is not available").
		WithDetails(map[string]any{"channel": channel})
}

// Channels lists the configured channels in a stable order.
func (r *Registry) Channels() []enums.PaymentMethod {
	if r == nil {
		return nil
	}
	out := make([]enums.PaymentMethod, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CentsFromProvider converts an amount reported in the provider currency back
// to order cents using the session's pinned rate. The pinned provider amount
// maps exactly to the session amount.
func CentsFromProvider(session models.PaymentSession, amount decimal.Decimal) int64 {
	if amount.Equal(session.ProviderAmount) {
		return session.AmountCents
	}
	if session.Rate.IsZero() {
		return money.ToCents(amount)
	}
	return money.ToCents(amount.Div(session.Rate))
}
