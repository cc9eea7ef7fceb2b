// Package orders owns the order aggregate: placement with discount and stock
// reservation, the status state machine and the tracking log.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/discounts"
	"github.com/angelmondragon/storefront-orders/internal/inventory"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/metrics"
	"github.com/angelmondragon/storefront-orders/pkg/money"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/outbox/payloads"
)

// CancelReasonSession is recorded on payment sessions closed by cancellation.
const CancelReasonSession = "order_cancelled"

// Service defines the order operations exposed to the API and workers.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	TransitionOrder(ctx context.Context, input TransitionInput) (*models.Order, error)
	CancelOrder(ctx context.Context, input CancelInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	ListTracking(ctx context.Context, orderID uuid.UUID, actor Actor) ([]models.OrderTrackingEntry, error)

	// TransitionTx applies one transition inside the caller's transaction.
	// order must have been loaded under lock in tx.
	TransitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, description string, actor Actor) (*Transition, error)
	// Notify reports a committed transition. It never fails.
	Notify(ctx context.Context, t Transition)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Config    config.OrdersConfig
	Repo      Repository
	Tx        txRunner
	Catalog   PriceLookup
	Inventory StockLedger
	Discounts DiscountLedger
	// Sessions is optional; when nil cancellation leaves payment sessions alone.
	Sessions SessionCloser
	Notifier notifier
	Logger   *logger.Logger
	Metrics  *metrics.OrderMetrics
}

type service struct {
	cfg       config.OrdersConfig
	policy    Policy
	repo      Repository
	tx        txRunner
	catalog   PriceLookup
	inventory StockLedger
	discounts DiscountLedger
	sessions  SessionCloser
	notifier  notifier
	logg      *logger.Logger
	metrics   *metrics.OrderMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog lookup required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Discounts == nil {
		return nil, fmt.Errorf("discount ledger required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	cfg := params.Config
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "USD"
	}
	return &service{
		cfg:       cfg,
		policy:    Policy{Strict: cfg.StrictCancellation()},
		repo:      params.Repo,
		tx:        params.Tx,
		catalog:   params.Catalog,
		inventory: params.Inventory,
		discounts: params.Discounts,
		sessions:  params.Sessions,
		notifier:  params.Notifier,
		logg:      logg,
		metrics:   params.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	order, err := s.createOrder(ctx, input)
	if err != nil {
		code := pkgerrors.CodeInternal
		if typed := pkgerrors.As(err); typed != nil {
			code = typed.Code()
		}
		s.metrics.OrderRejected(string(code))
		return nil, err
	}

	s.metrics.OrderCreated(string(order.PaymentMethod))
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_code":     order.Code,
		"total_cents":    order.TotalCents,
		"payment_method": order.PaymentMethod,
	}), "order placed")
	s.Notify(ctx, Transition{
		Order: order,
		To:    enums.OrderStatusPlaced,
		Entry: order.Tracking[0],
		Actor: input.Actor,
	})
	return order, nil
}

func (s *service) createOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(input.LineItems))
	for _, line := range input.LineItems {
		ids = append(ids, line.ProductID)
	}
	products, err := s.catalog.PricesFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	orderID := uuid.New()
	var subtotal int64
	items := make([]models.OrderLineItem, 0, len(input.LineItems))
	for _, line := range input.LineItems {
		product := products[line.ProductID]
		lineTotal := product.PriceCents * int64(line.Qty)
		subtotal += lineTotal
		items = append(items, models.OrderLineItem{
			ID:             uuid.New(),
			OrderID:        orderID,
			ProductID:      product.ID,
			ProductName:    product.Name,
			UnitPriceCents: product.PriceCents,
			Qty:            line.Qty,
			LineTotalCents: lineTotal,
		})
	}

	order := &models.Order{
		ID:              orderID,
		CustomerUserID:  input.Actor.UserID,
		CustomerName:    strings.TrimSpace(input.Customer.Name),
		CustomerPhone:   strings.TrimSpace(input.Customer.Phone),
		CustomerEmail:   strings.TrimSpace(input.Customer.Email),
		ShippingAddress: input.ShippingAddress,
		SubtotalCents:   subtotal,
		Currency:        s.cfg.Currency,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		Status:          enums.OrderStatusPlaced,
	}
	if input.Actor.Kind != enums.ActorCustomer {
		order.CustomerUserID = nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		comp := newCompensator(s.logg, s.metrics)
		fail := func(cause error) error {
			if compErr := comp.run(ctx); compErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, multierr.Append(cause, compErr), "order placement compensation failed")
			}
			return cause
		}

		if input.DiscountCode != nil && strings.TrimSpace(*input.DiscountCode) != "" {
			code := discounts.Normalize(*input.DiscountCode)
			amount, err := s.discounts.Consume(ctx, tx, code, orderID)
			if err != nil {
				return err
			}
			comp.add("restore discount", func(ctx context.Context) error {
				_, err := s.discounts.Restore(ctx, tx, orderID)
				return err
			})
			if amount > subtotal {
				amount = subtotal
			}
			order.DiscountCode = &code
			order.DiscountCents = amount
		}
		order.TotalCents = subtotal - order.DiscountCents

		submitted := money.ToCents(input.ClientTotal)
		if submitted != order.TotalCents {
			return fail(pkgerrors.New(pkgerrors.CodeTotalMismatch, "order total does not match").
				WithDetails(map[string]any{
					"expected":  money.Format(order.TotalCents),
					"submitted": money.Format(submitted),
				}))
		}

		comp.add("release inventory", func(ctx context.Context) error {
			_, err := s.inventory.ReleaseOrder(ctx, tx, orderID)
			return err
		})
		for i := range items {
			lineID := items[i].ID
			err := s.inventory.Reserve(ctx, tx, inventory.Movement{
				ProductID:  items[i].ProductID,
				Qty:        items[i].Qty,
				OrderID:    orderID,
				LineItemID: &lineID,
				Reason:     enums.InventoryReasonOrderReserve,
			})
			if err != nil {
				return fail(err)
			}
		}

		repo := s.repo.WithTx(tx)
		if err := s.insertWithCode(ctx, tx, repo, order); err != nil {
			return fail(err)
		}
		if err := repo.CreateLineItems(ctx, items); err != nil {
			return fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create line items"))
		}
		entry := models.OrderTrackingEntry{
			OrderID:     orderID,
			Status:      enums.OrderStatusPlaced,
			Description: "Order placed",
			Actor:       input.Actor.Kind,
			ActorID:     input.Actor.UserID,
		}
		if err := repo.AppendTracking(ctx, &entry); err != nil {
			return fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append tracking entry"))
		}
		order.LineItems = items
		order.Tracking = []models.OrderTrackingEntry{entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// insertWithCode inserts order under a fresh code, retrying on collision.
// Each attempt runs behind a savepoint so a duplicate key does not abort the
// surrounding transaction.
func (s *service) insertWithCode(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order) error {
	var lastErr error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		order.Code = GenerateCode(s.cfg.CodePrefix, s.now())
		if err := tx.SavePoint("order_code").Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create savepoint")
		}
		err := repo.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !isCodeCollision(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		lastErr = err
		if err := tx.RollbackTo("order_code").Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rollback savepoint")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate a unique order code")
}

func isCodeCollision(err error) bool {
	return db.IsUniqueViolation(err, "orders_code_key") || db.IsUniqueViolation(err, "orders.code")
}

func validateCreateInput(input CreateOrderInput) error {
	if len(input.LineItems) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}
	for i, line := range input.LineItems {
		if line.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required").
				WithDetails(map[string]any{"line": i})
		}
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"line": i})
		}
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	if strings.TrimSpace(input.Customer.Name) == "" || strings.TrimSpace(input.Customer.Phone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name and phone are required")
	}
	if input.ClientTotal.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "total must not be negative")
	}
	if input.Actor.Kind == enums.ActorCustomer && input.Actor.UserID == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return nil
}

func (s *service) TransitionOrder(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Actor.Kind == enums.ActorCustomer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "customers cannot change order status")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown target status")
	}

	var result *Transition
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		result, err = s.TransitionTx(ctx, tx, order, input.Target, input.Description, input.Actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Notify(ctx, *result)
	return s.reload(ctx, result.Order), nil
}

func (s *service) CancelOrder(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = fmt.Sprintf("Cancelled by %s", input.Actor.Kind)
	}

	var result *Transition
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if !s.policy.Cancellable(order.Status) {
			return notCancellable(order.Status)
		}
		result, err = s.TransitionTx(ctx, tx, order, enums.OrderStatusCancelled, reason, input.Actor)
		if pkgerrors.Is(err, pkgerrors.CodeInvalidTransition) {
			return notCancellable(order.Status)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Notify(ctx, *result)
	return s.reload(ctx, result.Order), nil
}

func notCancellable(status enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeNotCancellable, "order can no longer be cancelled").
		WithDetails(map[string]any{"status": status})
}

func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, description string, actor Actor) (*Transition, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for order transition")
	}
	from := order.Status
	if !s.policy.CanTransition(from, target) {
		return nil, invalidTransition(from, target)
	}

	now := s.now()
	description = strings.TrimSpace(description)
	if description == "" {
		description = defaultDescription(target)
	}
	updates := map[string]any{"status": target}
	switch target {
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
		updates["cancel_reason"] = description
		if order.PaymentStatus == enums.PaymentStatusPending {
			updates["payment_status"] = enums.PaymentStatusUnpaid
		}
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
	}

	repo := s.repo.WithTx(tx)
	ok, err := repo.UpdateStatus(ctx, order.ID, from, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return nil, invalidTransition(from, target)
	}

	if target == enums.OrderStatusCancelled {
		if _, err := s.inventory.ReleaseOrder(ctx, tx, order.ID); err != nil {
			return nil, err
		}
		if _, err := s.discounts.Restore(ctx, tx, order.ID); err != nil {
			return nil, err
		}
		if s.sessions != nil {
			if _, err := s.sessions.CloseOpenForOrder(ctx, tx, order.ID, CancelReasonSession); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close payment sessions")
			}
		}
	}

	entry := models.OrderTrackingEntry{
		OrderID:     order.ID,
		Status:      target,
		Description: description,
		Actor:       actor.Kind,
		ActorID:     actor.UserID,
	}
	if err := repo.AppendTracking(ctx, &entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append tracking entry")
	}

	order.Status = target
	switch target {
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
		order.CancelReason = &description
		if order.PaymentStatus == enums.PaymentStatusPending {
			order.PaymentStatus = enums.PaymentStatusUnpaid
		}
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &now
	}
	order.Tracking = append(order.Tracking, entry)

	return &Transition{Order: order, From: from, To: target, Entry: entry, Actor: actor}, nil
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func defaultDescription(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusConfirming:
		return "Payment received, confirming order"
	case enums.OrderStatusPacking:
		return "Order is being packed"
	case enums.OrderStatusShipping:
		return "Order handed to carrier"
	case enums.OrderStatusDelivered:
		return "Order delivered"
	case enums.OrderStatusCancelled:
		return "Order cancelled"
	default:
		return "Order placed"
	}
}

func (s *service) Notify(ctx context.Context, t Transition) {
	if t.Order == nil {
		return
	}
	ctx = s.logg.WithOrderID(ctx, t.Order.ID.String())
	if t.From != "" {
		s.metrics.Transition(string(t.From), string(t.To))
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"from":  t.From,
			"to":    t.To,
			"actor": t.Actor.Kind,
		}), "order transitioned")
	}
	s.notifier.Notify(ctx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   t.Order.ID,
		Actor:         t.Actor.Ref(),
		OccurredAt:    t.Entry.CreatedAt,
		Data: payloads.OrderStatusChanged{
			OrderID:       t.Order.ID,
			OrderCode:     t.Order.Code,
			From:          t.From,
			To:            t.To,
			Description:   t.Entry.Description,
			CustomerName:  t.Order.CustomerName,
			CustomerEmail: t.Order.CustomerEmail,
			ChangedAt:     t.Entry.CreatedAt,
		},
	})
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapFindErr(err)
	}
	if !actor.CanSee(order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListTracking(ctx context.Context, orderID uuid.UUID, actor Actor) ([]models.OrderTrackingEntry, error) {
	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	return order.Tracking, nil
}

func (s *service) lockOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindForUpdate(ctx, orderID)
	if err != nil {
		return nil, mapFindErr(err)
	}
	if !actor.CanSee(order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// reload fetches line items and the full tracking log after a commit.
func (s *service) reload(ctx context.Context, order *models.Order) *models.Order {
	full, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "reload after transition failed: "+err.Error())
		return order
	}
	return full
}

func mapFindErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
