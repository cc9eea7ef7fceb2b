// Package refunds runs the refund request workflow for cancelled orders that
// were already paid. A request is created by the customer and decided once by
// an operator.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/outbox/payloads"
)

type Service interface {
	CreateRefundRequest(ctx context.Context, input CreateInput) (*models.RefundRequest, error)
	DecideRefund(ctx context.Context, input DecideInput) (*models.RefundRequest, error)
	GetRefund(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.RefundRequest, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.RefundRequest, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, event outbox.DomainEvent)
}

type ServiceParams struct {
	Repo     *Repository
	Orders   orders.Repository
	Tx       txRunner
	Notifier notifier
	Logger   *logger.Logger
}

type service struct {
	repo     *Repository
	orders   orders.Repository
	tx       txRunner
	notifier notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("refund repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		tx:       params.Tx,
		notifier: params.Notifier,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateRefundRequest(ctx context.Context, input CreateInput) (*models.RefundRequest, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	var created *models.RefundRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).FindForUpdate(ctx, input.OrderID)
		if err != nil {
			return mapFindErr(err, "order not found")
		}
		if !input.Actor.CanSee(order) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status != enums.OrderStatusCancelled || order.PaymentStatus != enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeNotRefundable, "only cancelled, paid orders can be refunded").
				WithDetails(map[string]any{"status": order.Status, "payment_status": order.PaymentStatus})
		}

		repo := s.repo.WithTx(tx)
		blocking, err := repo.CountBlocking(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count refund requests")
		}
		if blocking > 0 {
			return pkgerrors.New(pkgerrors.CodeNotRefundable, "a refund request for this order is already open or settled")
		}

		req := &models.RefundRequest{
			OrderID:       order.ID,
			RequestedBy:   input.Actor.UserID,
			BankName:      strings.TrimSpace(input.BankName),
			AccountNumber: strings.TrimSpace(input.AccountNumber),
			AccountHolder: strings.TrimSpace(input.AccountHolder),
			Reason:        strings.TrimSpace(input.Reason),
			AmountCents:   order.TotalCents,
			Status:        enums.RefundStatusPending,
		}
		if err := repo.Create(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund request")
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, created.OrderID.String()), map[string]any{
		"refund_id":    created.ID.String(),
		"amount_cents": created.AmountCents,
	}), "refund requested")
	return created, nil
}

func validateCreate(input CreateInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	missing := []string{}
	if strings.TrimSpace(input.BankName) == "" {
		missing = append(missing, "bank_name")
	}
	if strings.TrimSpace(input.AccountNumber) == "" {
		missing = append(missing, "account_number")
	}
	if strings.TrimSpace(input.AccountHolder) == "" {
		missing = append(missing, "account_holder")
	}
	if strings.TrimSpace(input.Reason) == "" {
		missing = append(missing, "reason")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund request is incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

func (s *service) DecideRefund(ctx context.Context, input DecideInput) (*models.RefundRequest, error) {
	if input.Actor.Kind == enums.ActorCustomer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "customers cannot decide refunds")
	}
	if input.Status != enums.RefundStatusRefunded && input.Status != enums.RefundStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be refunded or rejected")
	}

	var decided *models.RefundRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.FindForUpdate(ctx, input.RefundID)
		if err != nil {
			return mapFindErr(err, "refund request not found")
		}
		if req.Status != enums.RefundStatusPending {
			return invalidTransition(req.Status, input.Status)
		}

		now := s.now()
		updates := map[string]any{
			"status":     input.Status,
			"decided_at": now,
			"decided_by": input.Actor.UserID,
		}
		if note := strings.TrimSpace(input.Note); note != "" {
			updates["decision_note"] = note
			req.DecisionNote = &note
		}
		ok, err := repo.UpdateFrom(ctx, req.ID, enums.RefundStatusPending, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decide refund request")
		}
		if !ok {
			return invalidTransition(req.Status, input.Status)
		}

		if input.Status == enums.RefundStatusRefunded {
			err := s.orders.WithTx(tx).UpdateFields(ctx, req.OrderID, map[string]any{
				"payment_status": enums.PaymentStatusRefunded,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
			}
		}

		req.Status = input.Status
		req.DecidedAt = &now
		req.DecidedBy = input.Actor.UserID
		decided = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, decided.OrderID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"refund_id": decided.ID.String(),
		"status":    decided.Status,
	}), "refund decided")

	note := ""
	if decided.DecisionNote != nil {
		note = *decided.DecisionNote
	}
	s.notifier.Notify(ctx, outbox.DomainEvent{
		EventType:     enums.EventRefundDecided,
		AggregateType: enums.AggregateRefundRequest,
		AggregateID:   decided.ID,
		Actor:         input.Actor.Ref(),
		OccurredAt:    *decided.DecidedAt,
		Data: payloads.RefundDecided{
			RefundID:    decided.ID,
			OrderID:     decided.OrderID,
			Status:      decided.Status,
			AmountCents: decided.AmountCents,
			Note:        note,
		},
	})
	return decided, nil
}

func (s *service) GetRefund(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.RefundRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindErr(err, "refund request not found")
	}
	if _, err := s.visibleOrder(ctx, req.OrderID, actor); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
	}
	return req, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.RefundRequest, error) {
	if _, err := s.visibleOrder(ctx, orderID, actor); err != nil {
		return nil, err
	}
	out, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refund requests")
	}
	return out, nil
}

func (s *service) visibleOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapFindErr(err, "order not found")
	}
	if !actor.CanSee(order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func invalidTransition(from, to enums.RefundStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "refund request already decided").
		WithDetails(map[string]any{"from": from, "to": to})
}

func mapFindErr(err error, notFound string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load record")
}
