package payments

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/metrics"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/outbox/payloads"
)

// Source says how a status update reached the reconciler.
type Source string

const (
	SourcePoll     Source = "poll"
	SourceCallback Source = "callback"
)

const (
	ReasonAmountMismatch  = "amount_mismatch"
	ReasonLifetimeElapsed = "lifetime_elapsed"
	ReasonProviderFailed  = "provider_failed"
	ReasonProviderExpired = "provider_expired"

	maxErrorLength = 512
)

// ErrSessionBusy means another worker holds the claim on the session.
var ErrSessionBusy = errors.New("payment session claimed by another worker")

// OrderTransitioner moves orders through the state machine inside a caller
// transaction.
type OrderTransitioner interface {
	TransitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, description string, actor orders.Actor) (*orders.Transition, error)
	Notify(ctx context.Context, t orders.Transition)
}

type claimer interface {
	Claim(ctx context.Context, id string) (func(context.Context) error, bool, error)
}

type notifier interface {
	Notify(ctx context.Context, event outbox.DomainEvent)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ReconcilerParams struct {
	Config      config.PaymentsConfig
	Adapters    *Registry
	Sessions    *Repository
	Orders      orders.Repository
	Transitions OrderTransitioner
	Tx          txRunner
	// Claims is optional; without it a single worker process is assumed.
	Claims   claimer
	Notifier notifier
	Logger   *logger.Logger
	Metrics  *metrics.OrderMetrics
}

// Reconciler polls open sessions and applies provider status to orders.
type Reconciler struct {
	cfg         config.PaymentsConfig
	adapters    *Registry
	sessions    *Repository
	orders      orders.Repository
	transitions OrderTransitioner
	tx          txRunner
	claims      claimer
	notifier    notifier
	logg        *logger.Logger
	metrics     *metrics.OrderMetrics
	now         func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Adapters == nil {
		return nil, fmt.Errorf("adapter registry required")
	}
	if params.Sessions == nil || params.Orders == nil {
		return nil, fmt.Errorf("session and order repositories required")
	}
	if params.Transitions == nil {
		return nil, fmt.Errorf("order transitioner required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	cfg := params.Config
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxBackoff < cfg.PollInterval {
		cfg.MaxBackoff = cfg.PollInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Reconciler{
		cfg:         cfg,
		adapters:    params.Adapters,
		sessions:    params.Sessions,
		orders:      params.Orders,
		transitions: params.Transitions,
		tx:          params.Tx,
		claims:      params.Claims,
		notifier:    params.Notifier,
		logg:        logg,
		metrics:     params.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run sweeps until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	r.logg.Info(ctx, "payment reconciler started")
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logg.Error(ctx, "payment sweep failed", err)
		}
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "payment reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep processes one batch of due sessions with bounded concurrency and
// returns how many were picked up. A failing session never stops the batch.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	due, err := r.sessions.DueSessions(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load due sessions")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, session := range due {
		reference := session.Reference
		g.Go(func() error {
			err := r.ProcessReference(gctx, reference, SourcePoll)
			if err != nil && !errors.Is(err, ErrSessionBusy) {
				r.logg.Error(r.logg.WithSessionRef(gctx, reference), "reconcile session failed", err)
			}
			return nil
		})
	}
	return len(due), g.Wait()
}

// ExpireStale closes sessions whose lifetime elapsed without a poll noticing,
// for example while the worker was down.
func (r *Reconciler) ExpireStale(ctx context.Context) (int, error) {
	stale, err := r.sessions.StaleSessions(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stale sessions")
	}
	expired := 0
	for _, session := range stale {
		var changed bool
		err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
			locked, err := r.sessions.WithTx(tx).FindByReferenceForUpdate(ctx, session.Reference)
			if err != nil {
				return err
			}
			if locked.State != enums.SessionStatePending {
				return nil
			}
			changed, err = r.closeSession(ctx, tx, locked, enums.SessionStateExpired, ReasonLifetimeElapsed)
			return err
		})
		if err != nil {
			return expired, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire session")
		}
		if changed {
			expired++
			r.metrics.SessionState(string(session.Channel), string(enums.SessionStateExpired))
		}
	}
	return expired, nil
}

type outcome struct {
	state      enums.SessionState
	transition *orders.Transition
	confirmed  *outbox.DomainEvent
}

// ProcessReference queries the provider for one session and applies the
// result. Callbacks use it too, so a push is handled as an unscheduled poll.
// It returns ErrSessionBusy without querying when another worker holds the
// session.
func (r *Reconciler) ProcessReference(ctx context.Context, reference string, source Source) error {
	ctx = r.logg.WithSessionRef(ctx, reference)
	if r.claims != nil {
		release, ok, err := r.claims.Claim(ctx, reference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payment session")
		}
		if !ok {
			r.logg.Debug(ctx, "payment session claimed by another worker")
			return ErrSessionBusy
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logg.Warn(ctx, "release payment session claim: "+err.Error())
			}
		}()
	}

	session, err := r.sessions.FindByReference(ctx, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment session not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment session")
	}
	if !acceptsUpdates(session.State) {
		return nil
	}
	ctx = r.logg.WithChannel(r.logg.WithOrderID(ctx, session.OrderID.String()), string(session.Channel))

	adapter, err := r.adapters.Get(session.Channel)
	if err != nil {
		return err
	}
	result, queryErr := adapter.QueryStatus(ctx, *session)

	var out outcome
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := r.sessions.WithTx(tx).FindByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if !acceptsUpdates(locked.State) {
			return nil
		}
		out, err = r.apply(ctx, tx, locked, result, queryErr, source)
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment status")
	}

	r.report(ctx, session.Channel, out, queryErr, source)
	return nil
}

// acceptsUpdates reports whether a session can still change. Expired
// sessions stay open for a late confirmation.
func acceptsUpdates(state enums.SessionState) bool {
	return state == enums.SessionStatePending || state == enums.SessionStateExpired
}

func (r *Reconciler) apply(ctx context.Context, tx *gorm.DB, session *models.PaymentSession, result *StatusResult, queryErr error, source Source) (outcome, error) {
	now := r.now()
	pending := session.State == enums.SessionStatePending

	if queryErr != nil {
		if !pending {
			return outcome{}, nil
		}
		if !now.Before(session.ExpiresAt) {
			_, err := r.closeSession(ctx, tx, session, enums.SessionStateExpired, ReasonLifetimeElapsed)
			return outcome{state: enums.SessionStateExpired}, err
		}
		failures := session.ConsecutiveFailures + 1
		msg := queryErr.Error()
		if len(msg) > maxErrorLength {
			msg = msg[:maxErrorLength]
		}
		_, err := r.sessions.WithTx(tx).UpdateFrom(ctx, session.ID, enums.SessionStatePending, map[string]any{
			"poll_attempts":        session.PollAttempts + 1,
			"consecutive_failures": failures,
			"last_polled_at":       now,
			"last_error":           msg,
			"next_poll_at":         now.Add(r.backoff(failures)),
		})
		return outcome{}, err
	}

	switch result.State {
	case enums.SessionStateConfirmed:
		return r.confirm(ctx, tx, session, result, source)
	case enums.SessionStateFailed:
		if !pending {
			return outcome{}, nil
		}
		reason := result.Detail
		if reason == "" {
			reason = ReasonProviderFailed
		}
		_, err := r.closeSession(ctx, tx, session, enums.SessionStateFailed, reason)
		return outcome{state: enums.SessionStateFailed}, err
	case enums.SessionStateExpired:
		if !pending {
			return outcome{}, nil
		}
		_, err := r.closeSession(ctx, tx, session, enums.SessionStateExpired, ReasonProviderExpired)
		return outcome{state: enums.SessionStateExpired}, err
	default:
		return r.keepPolling(ctx, tx, session)
	}
}

// keepPolling schedules the next poll of a pending session, or expires it
// once its lifetime is over.
func (r *Reconciler) keepPolling(ctx context.Context, tx *gorm.DB, session *models.PaymentSession) (outcome, error) {
	now := r.now()
	if session.State != enums.SessionStatePending {
		return outcome{}, nil
	}
	if !now.Before(session.ExpiresAt) {
		_, err := r.closeSession(ctx, tx, session, enums.SessionStateExpired, ReasonLifetimeElapsed)
		return outcome{state: enums.SessionStateExpired}, err
	}
	_, err := r.sessions.WithTx(tx).UpdateFrom(ctx, session.ID, enums.SessionStatePending, map[string]any{
		"poll_attempts":        session.PollAttempts + 1,
		"consecutive_failures": 0,
		"last_polled_at":       now,
		"next_poll_at":         now.Add(r.cfg.PollInterval),
	})
	return outcome{state: enums.SessionStatePending}, err
}

func (r *Reconciler) confirm(ctx context.Context, tx *gorm.DB, session *models.PaymentSession, result *StatusResult, source Source) (outcome, error) {
	now := r.now()
	sessions := r.sessions.WithTx(tx)
	if result.ProviderTxID != "" {
		taken, err := sessions.ProviderTxTaken(ctx, session.Channel, result.ProviderTxID, session.ID)
		if err != nil {
			return outcome{}, err
		}
		if taken {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
				"provider_tx_id": result.ProviderTxID,
			}), "provider transaction already settled another session")
			return r.keepPolling(ctx, tx, session)
		}
	}

	order, err := r.orders.WithTx(tx).FindForUpdate(ctx, session.OrderID)
	if err != nil {
		return outcome{}, err
	}

	amount := session.AmountCents
	if result.ConfirmedAmountCents != nil {
		amount = *result.ConfirmedAmountCents
	}
	confirmUpdates := map[string]any{
		"state":                  enums.SessionStateConfirmed,
		"confirmed_amount_cents": amount,
		"confirmed_at":           now,
		"last_polled_at":         now,
	}
	if result.ProviderTxID != "" {
		confirmUpdates["provider_tx_id"] = result.ProviderTxID
	}

	if order.PaymentStatus == enums.PaymentStatusPaid || order.PaymentStatus == enums.PaymentStatusRefunded {
		if _, err := sessions.UpdateFrom(ctx, session.ID, session.State, confirmUpdates); err != nil {
			return outcome{}, err
		}
		r.logg.Warn(ctx, "duplicate payment confirmation for an already paid order")
		return outcome{state: enums.SessionStateConfirmed}, nil
	}

	if amount != session.AmountCents || session.AmountCents != order.TotalCents {
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"expected_cents":  order.TotalCents,
			"confirmed_cents": amount,
		}), "payment amount does not match order total")
		if _, err := r.closeSession(ctx, tx, session, enums.SessionStateFailed, ReasonAmountMismatch); err != nil {
			return outcome{}, err
		}
		return outcome{state: enums.SessionStateFailed}, nil
	}

	ok, err := sessions.UpdateFrom(ctx, session.ID, session.State, confirmUpdates)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		return outcome{}, nil
	}
	if err := r.orders.WithTx(tx).UpdateFields(ctx, order.ID, map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"paid_at":        now,
	}); err != nil {
		return outcome{}, err
	}
	order.PaymentStatus = enums.PaymentStatusPaid
	order.PaidAt = &now

	out := outcome{state: enums.SessionStateConfirmed}
	switch order.Status {
	case enums.OrderStatusPlaced:
		out.transition, err = r.transitions.TransitionTx(ctx, tx, order, enums.OrderStatusConfirming,
			fmt.Sprintf("Payment confirmed via %s", session.Channel), orders.SystemActor)
		if err != nil {
			return outcome{}, err
		}
	case enums.OrderStatusCancelled:
		r.logg.Warn(ctx, "payment confirmed after order was cancelled; order is now refundable")
	}

	out.confirmed = &outbox.DomainEvent{
		EventType:     enums.EventPaymentConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         orders.SystemActor.Ref(),
		OccurredAt:    now,
		Data: payloads.PaymentConfirmed{
			OrderID:     order.ID,
			OrderCode:   order.Code,
			Channel:     session.Channel,
			Reference:   session.Reference,
			AmountCents: amount,
			Currency:    session.Currency,
			ConfirmedAt: now,
		},
	}
	return out, nil
}

// closeSession moves a session to a final state and, when no other session
// of the order is still open, returns a pending payment to unpaid.
func (r *Reconciler) closeSession(ctx context.Context, tx *gorm.DB, session *models.PaymentSession, state enums.SessionState, reason string) (bool, error) {
	sessions := r.sessions.WithTx(tx)
	ok, err := sessions.UpdateFrom(ctx, session.ID, session.State, map[string]any{
		"state":          state,
		"failure_reason": reason,
		"last_polled_at": r.now(),
	})
	if err != nil || !ok {
		return ok, err
	}
	open, err := sessions.CountOpenForOrder(ctx, session.OrderID, session.ID)
	if err != nil {
		return false, err
	}
	if open > 0 {
		return true, nil
	}
	order, err := r.orders.WithTx(tx).FindForUpdate(ctx, session.OrderID)
	if err != nil {
		return false, err
	}
	if order.PaymentStatus == enums.PaymentStatusPending {
		if err := r.orders.WithTx(tx).UpdateFields(ctx, order.ID, map[string]any{
			"payment_status": enums.PaymentStatusUnpaid,
		}); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *Reconciler) report(ctx context.Context, channel enums.PaymentMethod, out outcome, queryErr error, source Source) {
	pollOutcome := string(out.state)
	if queryErr != nil {
		pollOutcome = "error"
		r.logg.Warn(ctx, "payment status query failed: "+queryErr.Error())
	}
	if pollOutcome != "" {
		r.metrics.Poll(string(channel), pollOutcome)
	}
	if out.state != "" && out.state != enums.SessionStatePending {
		r.metrics.SessionState(string(channel), string(out.state))
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"state":  out.state,
			"source": source,
		}), "payment session settled")
	}
	if out.confirmed != nil {
		r.metrics.Confirmation(string(channel), string(source))
		r.notifier.Notify(ctx, *out.confirmed)
	}
	if out.transition != nil {
		r.transitions.Notify(ctx, *out.transition)
	}
}

// backoff doubles the poll interval per consecutive failure, capped, with up
// to 20% jitter.
func (r *Reconciler) backoff(failures int) time.Duration {
	delay := r.cfg.PollInterval
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= r.cfg.MaxBackoff {
			delay = r.cfg.MaxBackoff
			break
		}
	}
	if jitter := int64(delay) / 5; jitter > 0 {
		delay += time.Duration(rand.Int64N(jitter))
	}
	return delay
}
