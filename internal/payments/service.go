package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/metrics"
	"github.com/angelmondragon/storefront-orders/pkg/redis"
)

// Service is the request-facing side of payments.
type Service interface {
	CreatePaymentSession(ctx context.Context, orderID uuid.UUID, channel enums.PaymentMethod, actor orders.Actor) (*models.PaymentSession, error)
	GetPaymentStatus(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*PaymentStatus, error)
	HandleCallback(ctx context.Context, channel enums.PaymentMethod, header http.Header, body []byte) error
}

// PaymentStatus is the order's payment status plus its most recent session.
type PaymentStatus struct {
	OrderID       uuid.UUID
	PaymentMethod enums.PaymentMethod
	PaymentStatus enums.PaymentStatus
	Session       *models.PaymentSession
}

type ServiceParams struct {
	Config     config.PaymentsConfig
	Adapters   *Registry
	Sessions   *Repository
	Orders     orders.Repository
	Tx         txRunner
	Reconciler *Reconciler
	// Deliveries is optional; without it duplicate callbacks are only
	// deduplicated by the idempotent reconciler.
	Deliveries redis.DeliveryStore
	Logger     *logger.Logger
	Metrics    *metrics.OrderMetrics
}

type service struct {
	adapters   *Registry
	sessions   *Repository
	orders     orders.Repository
	tx         txRunner
	reconciler *Reconciler
	guards     map[enums.PaymentMethod]*redis.DeliveryGuard
	logg       *logger.Logger
	metrics    *metrics.OrderMetrics
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Adapters == nil {
		return nil, fmt.Errorf("adapter registry required")
	}
	if params.Sessions == nil || params.Orders == nil {
		return nil, fmt.Errorf("session and order repositories required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	guards := map[enums.PaymentMethod]*redis.DeliveryGuard{}
	if params.Deliveries != nil {
		for _, ch := range params.Adapters.Channels() {
			guard, err := redis.NewDeliveryGuard(params.Deliveries, params.Config.WebhookTTL, string(ch))
			if err != nil {
				return nil, fmt.Errorf("delivery guard for %s: %w", ch, err)
			}
			guards[ch] = guard
		}
	}
	return &service{
		adapters:   params.Adapters,
		sessions:   params.Sessions,
		orders:     params.Orders,
		tx:         params.Tx,
		reconciler: params.Reconciler,
		guards:     guards,
		logg:       logg,
		metrics:    params.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreatePaymentSession(ctx context.Context, orderID uuid.UUID, channel enums.PaymentMethod, actor orders.Actor) (*models.PaymentSession, error) {
	if !channel.RequiresSession() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel does not take payment sessions").
			WithDetails(map[string]any{"channel": channel})
	}
	order, err := s.loadOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(order, channel); err != nil {
		return nil, err
	}
	existing, err := s.sessions.FindOpenByOrderChannel(ctx, order.ID, channel)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open session")
	}
	if existing != nil && s.now().Before(existing.ExpiresAt) {
		return existing, nil
	}

	adapter, err := s.adapters.Get(channel)
	if err != nil {
		return nil, err
	}
	created, err := adapter.CreateSession(ctx, SessionRequest{
		OrderID:     order.ID,
		OrderCode:   order.Code,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
	})
	if err != nil {
		s.metrics.SessionState(string(channel), "create_failed")
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session")
	}

	now := s.now()
	session := &models.PaymentSession{
		OrderID:          order.ID,
		Channel:          channel,
		Reference:        created.Reference,
		Presentation:     created.Presentation,
		AmountCents:      order.TotalCents,
		Currency:         order.Currency,
		ProviderAmount:   created.ProviderAmount,
		ProviderCurrency: created.ProviderCurrency,
		Rate:             created.Rate,
		State:            enums.SessionStatePending,
		ExpiresAt:        created.ExpiresAt.UTC(),
		NextPollAt:       now,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		locked, err := repo.FindForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := checkPayable(locked, channel); err != nil {
			return err
		}
		if err := s.sessions.WithTx(tx).Create(ctx, session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment session")
		}
		if locked.PaymentStatus == enums.PaymentStatusUnpaid {
			return repo.UpdateFields(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusPending})
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session")
	}

	s.metrics.SessionState(string(channel), string(enums.SessionStatePending))
	s.logg.Info(s.logg.WithSessionRef(s.logg.WithChannel(s.logg.WithOrderID(ctx, order.ID.String()), string(channel)), session.Reference),
		"payment session created")
	return session, nil
}

func checkPayable(order *models.Order, channel enums.PaymentMethod) error {
	if order.PaymentMethod != channel {
		return pkgerrors.New(pkgerrors.CodeValidation, "channel does not match the order payment method").
			WithDetails(map[string]any{"payment_method": order.PaymentMethod, "channel": channel})
	}
	switch order.PaymentStatus {
	case enums.PaymentStatusPaid, enums.PaymentStatusRefunded:
		return pkgerrors.New(pkgerrors.CodeConflict, "order is already paid")
	}
	if order.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order no longer accepts payment").
			WithDetails(map[string]any{"status": order.Status})
	}
	return nil
}

func (s *service) GetPaymentStatus(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*PaymentStatus, error) {
	order, err := s.loadOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment sessions")
	}
	status := &PaymentStatus{
		OrderID:       order.ID,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
	}
	if len(sessions) > 0 {
		status.Session = &sessions[0]
	}
	return status, nil
}

// HandleCallback verifies a provider push and reconciles the session it
// names. Unknown references are acknowledged so providers stop retrying.
func (s *service) HandleCallback(ctx context.Context, channel enums.PaymentMethod, header http.Header, body []byte) error {
	ctx = s.logg.WithChannel(ctx, string(channel))
	adapter, err := s.adapters.Get(channel)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment channel")
	}
	cb, err := adapter.VerifyCallback(header, body)
	if errors.Is(err, ErrIgnoredCallback) {
		s.logg.Debug(ctx, "payment callback ignored")
		return nil
	}
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid payment callback")
	}
	ctx = s.logg.WithSessionRef(ctx, cb.Reference)

	guard := s.guards[channel]
	if guard != nil && cb.DeliveryID != "" {
		seen, err := guard.CheckAndMark(ctx, cb.DeliveryID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record callback delivery")
		}
		if seen {
			s.logg.Info(s.logg.WithField(ctx, "delivery_id", cb.DeliveryID), "duplicate payment callback skipped")
			return nil
		}
	}

	err = s.reconciler.ProcessReference(ctx, cb.Reference, SourceCallback)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		s.logg.Warn(ctx, "payment callback for unknown session")
		return nil
	}
	if err != nil {
		// Forget the delivery so the provider's retry is processed.
		if guard != nil && cb.DeliveryID != "" {
			if delErr := guard.Delete(context.WithoutCancel(ctx), cb.DeliveryID); delErr != nil {
				s.logg.Error(ctx, "forget callback delivery", delErr)
			}
		}
		if errors.Is(err, ErrSessionBusy) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment session is busy, retry later")
		}
		return err
	}
	return nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !actor.CanSee(order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}
