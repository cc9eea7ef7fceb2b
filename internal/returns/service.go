// Package returns runs post-delivery return and exchange requests. Requested
// quantities are bounded by what was delivered across every live request of
// the order, and status changes move stock through the inventory ledger.
package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/inventory"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/outbox/payloads"
)

type Service interface {
	CreateReturnRequest(ctx context.Context, input CreateInput) (*models.ReturnRequest, error)
	AdvanceReturnRequest(ctx context.Context, input AdvanceInput) (*models.ReturnRequest, error)
	GetReturn(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.ReturnRequest, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.ReturnRequest, error)
}

// StockLedger moves returned and replacement units inside the caller's
// transaction.
type StockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, m inventory.Movement) error
	Release(ctx context.Context, tx *gorm.DB, m inventory.Movement) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, event outbox.DomainEvent)
}

type ServiceParams struct {
	Repo      *Repository
	Orders    orders.Repository
	Inventory StockLedger
	Tx        txRunner
	Notifier  notifier
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	orders    orders.Repository
	inventory StockLedger
	tx        txRunner
	notifier  notifier
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("return repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		orders:    params.Orders,
		inventory: params.Inventory,
		tx:        params.Tx,
		notifier:  params.Notifier,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateReturnRequest(ctx context.Context, input CreateInput) (*models.ReturnRequest, error) {
	requested, err := validateCreate(input)
	if err != nil {
		return nil, err
	}

	var created *models.ReturnRequest
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		locked, err := orderRepo.FindForUpdate(ctx, input.OrderID)
		if err != nil {
			return mapFindErr(err, "order not found")
		}
		if !input.Actor.CanSee(locked) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if locked.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeNotDeliverable, "returns are accepted for delivered orders only").
				WithDetails(map[string]any{"status": locked.Status})
		}
		order, err := orderRepo.FindByID(ctx, locked.ID)
		if err != nil {
			return mapFindErr(err, "order not found")
		}

		repo := s.repo.WithTx(tx)
		already, err := repo.RequestedQuantities(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load requested quantities")
		}

		lines := make(map[uuid.UUID]models.OrderLineItem, len(order.LineItems))
		for _, line := range order.LineItems {
			lines[line.ID] = line
		}

		req := &models.ReturnRequest{
			OrderID:     order.ID,
			Type:        input.Type,
			Reason:      strings.TrimSpace(input.Reason),
			Status:      enums.ReturnStatusPending,
			RequestedBy: input.Actor.UserID,
		}
		for _, item := range requested {
			line, ok := lines[item.LineItemID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "line item does not belong to the order").
					WithDetails(map[string]any{"line_item_id": item.LineItemID.String()})
			}
			if already[line.ID]+item.Qty > line.Qty {
				return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "requested quantity exceeds delivered quantity").
					WithDetails(map[string]any{
						"line_item_id": line.ID.String(),
						"delivered":    line.Qty,
						"requested":    already[line.ID] + item.Qty,
					})
			}
			if input.Type == enums.ReturnTypeReturn {
				req.RefundAmountCents += line.UnitPriceCents * int64(item.Qty)
			}
			req.Items = append(req.Items, models.ReturnRequestItem{
				LineItemID: line.ID,
				ProductID:  line.ProductID,
				Qty:        item.Qty,
			})
		}

		if err := repo.Create(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, created.OrderID.String()), map[string]any{
		"return_id": created.ID.String(),
		"type":      created.Type,
	}), "return requested")
	return created, nil
}

// validateCreate checks the request shape and merges repeated line items.
func validateCreate(input CreateInput) ([]ItemInput, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "type must be return or exchange")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}

	merged := make([]ItemInput, 0, len(input.Items))
	index := make(map[uuid.UUID]int, len(input.Items))
	for _, item := range input.Items {
		if item.LineItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line item id required")
		}
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive").
				WithDetails(map[string]any{"line_item_id": item.LineItemID.String(), "qty": item.Qty})
		}
		if i, ok := index[item.LineItemID]; ok {
			merged[i].Qty += item.Qty
			continue
		}
		index[item.LineItemID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func (s *service) AdvanceReturnRequest(ctx context.Context, input AdvanceInput) (*models.ReturnRequest, error) {
	if input.Actor.Kind == enums.ActorCustomer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "customers cannot advance return requests")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown return status")
	}

	var advanced *models.ReturnRequest
	var from enums.ReturnStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.FindForUpdate(ctx, input.ReturnID)
		if err != nil {
			return mapFindErr(err, "return request not found")
		}
		from = req.Status
		if !CanAdvance(from, input.Target) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "return request cannot move to that status").
				WithDetails(map[string]any{"from": from, "to": input.Target})
		}

		if err := s.moveStock(ctx, tx, req, from, input.Target); err != nil {
			return err
		}

		updates := map[string]any{"status": input.Target, "updated_at": s.now()}
		if note := strings.TrimSpace(input.Note); note != "" {
			updates["decision_note"] = note
			req.DecisionNote = &note
		}
		ok, err := repo.UpdateFrom(ctx, req.ID, from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance return request")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "return request changed concurrently")
		}
		req.Status = input.Target
		advanced = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, advanced.OrderID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"return_id": advanced.ID.String(),
		"from":      from,
		"to":        advanced.Status,
	}), "return request advanced")
	s.notifier.Notify(ctx, outbox.DomainEvent{
		EventType:     enums.EventReturnDecided,
		AggregateType: enums.AggregateReturnRequest,
		AggregateID:   advanced.ID,
		Actor:         input.Actor.Ref(),
		OccurredAt:    s.now(),
		Data: payloads.ReturnDecided{
			ReturnID:          advanced.ID,
			OrderID:           advanced.OrderID,
			Type:              advanced.Type,
			Status:            advanced.Status,
			RefundAmountCents: advanced.RefundAmountCents,
		},
	})
	return advanced, nil
}

func (s *service) moveStock(ctx context.Context, tx *gorm.DB, req *models.ReturnRequest, from, to enums.ReturnStatus) error {
	effect, reason := effectOf(req.Type, from, to)
	if effect == effectNone {
		return nil
	}
	for _, item := range req.Items {
		lineID := item.LineItemID
		m := inventory.Movement{
			ProductID:       item.ProductID,
			Qty:             item.Qty,
			OrderID:         req.OrderID,
			LineItemID:      &lineID,
			ReturnRequestID: &req.ID,
			Reason:          reason,
		}
		var err error
		if effect == effectReserve {
			err = s.inventory.Reserve(ctx, tx, m)
		} else {
			err = s.inventory.Release(ctx, tx, m)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *service) GetReturn(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.ReturnRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindErr(err, "return request not found")
	}
	order, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil || !actor.CanSee(order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}
	return req, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.ReturnRequest, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapFindErr(err, "order not found")
	}
	if !actor.CanSee(order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	out, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list return requests")
	}
	return out, nil
}

func mapFindErr(err error, notFound string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load record")
}
