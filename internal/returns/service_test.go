package returns

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/catalog"
	"github.com/angelmondragon/storefront-orders/internal/discounts"
	"github.com/angelmondragon/storefront-orders/internal/inventory"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

type fixture struct {
	db        *gorm.DB
	orders    orders.Service
	inventory *inventory.Ledger
	svc       Service
	customer  orders.Actor
	operator  orders.Actor
	productID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	notifier := outbox.NewService(conn, outbox.NewRepository(conn), logger.Nop())
	orderRepo := orders.NewRepository(conn)
	ledger := inventory.NewLedger(conn)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Config:    config.OrdersConfig{CodePrefix: "ORD", Currency: "USD"},
		Repo:      orderRepo,
		Tx:        db.Wrap(conn),
		Catalog:   catalog.NewRepository(conn),
		Inventory: ledger,
		Discounts: discounts.NewLedger(conn),
		Notifier:  notifier,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Orders:    orderRepo,
		Inventory: ledger,
		Tx:        db.Wrap(conn),
		Notifier:  notifier,
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)

	customerID, operatorID := uuid.New(), uuid.New()
	f := &fixture{
		db:        conn,
		orders:    orderSvc,
		inventory: ledger,
		svc:       svc,
		customer:  orders.Actor{Kind: enums.ActorCustomer, UserID: &customerID},
		operator:  orders.Actor{Kind: enums.ActorAdmin, UserID: &operatorID},
	}

	p := models.Product{SKU: "SKU-" + uuid.NewString()[:8], Name: "Teapot", PriceCents: 1500, IsActive: true}
	require.NoError(t, conn.Create(&p).Error)
	require.NoError(t, conn.Create(&models.InventoryRecord{ProductID: p.ID, AvailableQty: 10}).Error)
	f.productID = p.ID
	return f
}

// deliveredOrder places an order for qty teapots and walks it to Delivered.
func (f *fixture) deliveredOrder(t *testing.T, qty int) *models.Order {
	t.Helper()
	ctx := context.Background()
	order, err := f.orders.CreateOrder(ctx, orders.CreateOrderInput{
		Customer:        orders.CustomerInfo{Name: "Alan Turing", Phone: "+445550100", Email: "alan@example.com"},
		ShippingAddress: types.ShippingAddress{Line1: "2 Bletchley Park", City: "Milton Keynes", Country: "GB"},
		LineItems:       []orders.LineItemInput{{ProductID: f.productID, Qty: qty}},
		PaymentMethod:   enums.PaymentMethodCOD,
		ClientTotal:     decimal.NewFromInt(15 * int64(qty)),
		Actor:           f.customer,
	})
	require.NoError(t, err)

	for _, status := range []enums.OrderStatus{
		enums.OrderStatusConfirming,
		enums.OrderStatusPacking,
		enums.OrderStatusShipping,
		enums.OrderStatusDelivered,
	} {
		order, err = f.orders.TransitionOrder(ctx, orders.TransitionInput{OrderID: order.ID, Target: status, Actor: f.operator})
		require.NoError(t, err)
	}
	require.Len(t, order.LineItems, 1)
	return order
}

func (f *fixture) available(t *testing.T) int {
	t.Helper()
	qty, err := f.inventory.Available(context.Background(), f.productID)
	require.NoError(t, err)
	return qty
}

func (f *fixture) advance(t *testing.T, id uuid.UUID, target enums.ReturnStatus) (*models.ReturnRequest, error) {
	t.Helper()
	return f.svc.AdvanceReturnRequest(context.Background(), AdvanceInput{ReturnID: id, Target: target, Actor: f.operator})
}

func TestReturnQuantityBoundedByDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t, 3)
	line := order.LineItems[0].ID

	_, err := f.svc.CreateReturnRequest(ctx, CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeReturn, Reason: "chipped",
		Items: []ItemInput{{LineItemID: line, Qty: 4}},
		Actor: f.customer,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidQuantity))

	req, err := f.svc.CreateReturnRequest(ctx, CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeReturn, Reason: "chipped",
		Items: []ItemInput{{LineItemID: line, Qty: 2}},
		Actor: f.customer,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusPending, req.Status)
	assert.Equal(t, int64(3000), req.RefundAmountCents)

	// Two already requested, so two more would make four.
	_, err = f.svc.CreateReturnRequest(ctx, CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeExchange, Reason: "wrong color",
		Items: []ItemInput{{LineItemID: line, Qty: 1}, {LineItemID: line, Qty: 1}},
		Actor: f.customer,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidQuantity))

	before := f.available(t)
	approved, err := f.advance(t, req.ID, enums.ReturnStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusApproved, approved.Status)
	assert.Equal(t, before+2, f.available(t))

	var moved int64
	require.NoError(t, f.db.Model(&models.InventoryMovement{}).
		Where("return_request_id = ? AND reason = ?", req.ID, enums.InventoryReasonReturnRelease).
		Count(&moved).Error)
	assert.Equal(t, int64(1), moved)

	_, err = f.advance(t, req.ID, enums.ReturnStatusProcessing)
	require.NoError(t, err)
	_, err = f.advance(t, req.ID, enums.ReturnStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, before+2, f.available(t), "completion of a return moves no more stock")
}

func TestRejectedRequestFreesQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t, 2)
	line := order.LineItems[0].ID
	input := CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeReturn, Reason: "too big",
		Items: []ItemInput{{LineItemID: line, Qty: 2}},
		Actor: f.customer,
	}

	req, err := f.svc.CreateReturnRequest(ctx, input)
	require.NoError(t, err)
	_, err = f.svc.CreateReturnRequest(ctx, input)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidQuantity))

	before := f.available(t)
	_, err = f.advance(t, req.ID, enums.ReturnStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, before, f.available(t))

	_, err = f.advance(t, req.ID, enums.ReturnStatusApproved)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition), "rejection is terminal")

	_, err = f.svc.CreateReturnRequest(ctx, input)
	require.NoError(t, err)
}

func TestExchangeMovesStockOnProcessingAndCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t, 1)
	start := f.available(t)

	req, err := f.svc.CreateReturnRequest(ctx, CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeExchange, Reason: "dented",
		Items: []ItemInput{{LineItemID: order.LineItems[0].ID, Qty: 1}},
		Actor: f.customer,
	})
	require.NoError(t, err)
	assert.Zero(t, req.RefundAmountCents)

	_, err = f.advance(t, req.ID, enums.ReturnStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, start, f.available(t), "exchange approval holds stock")

	_, err = f.advance(t, req.ID, enums.ReturnStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, start-1, f.available(t))

	done, err := f.advance(t, req.ID, enums.ReturnStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusCompleted, done.Status)
	assert.Equal(t, start, f.available(t))

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventReturnDecided).Count(&events).Error)
	assert.Equal(t, int64(3), events)
}

func TestExchangeProcessingFailsWithoutStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t, 1)

	req, err := f.svc.CreateReturnRequest(ctx, CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeExchange, Reason: "dented",
		Items: []ItemInput{{LineItemID: order.LineItems[0].ID, Qty: 1}},
		Actor: f.customer,
	})
	require.NoError(t, err)
	_, err = f.advance(t, req.ID, enums.ReturnStatusApproved)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.InventoryRecord{}).
		Where("product_id = ?", f.productID).
		Update("available_qty", 0).Error)

	_, err = f.advance(t, req.ID, enums.ReturnStatusProcessing)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock))

	stored, err := f.svc.GetReturn(ctx, req.ID, f.customer)
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusApproved, stored.Status)
}

func TestReturnRequiresDeliveredOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.orders.CreateOrder(ctx, orders.CreateOrderInput{
		Customer:        orders.CustomerInfo{Name: "Alan Turing", Phone: "+445550100", Email: "alan@example.com"},
		ShippingAddress: types.ShippingAddress{Line1: "2 Bletchley Park", City: "Milton Keynes", Country: "GB"},
		LineItems:       []orders.LineItemInput{{ProductID: f.productID, Qty: 1}},
		PaymentMethod:   enums.PaymentMethodCOD,
		ClientTotal:     decimal.NewFromInt(15),
		Actor:           f.customer,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateReturnRequest(ctx, CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeReturn, Reason: "late",
		Items: []ItemInput{{LineItemID: order.LineItems[0].ID, Qty: 1}},
		Actor: f.customer,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotDeliverable))
}

func TestCreateReturnValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t, 1)
	base := CreateInput{OrderID: order.ID, Type: enums.ReturnTypeReturn, Reason: "x", Actor: f.customer}

	input := base
	_, err := f.svc.CreateReturnRequest(ctx, input)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "items required")

	input.Items = []ItemInput{{LineItemID: order.LineItems[0].ID, Qty: 0}}
	_, err = f.svc.CreateReturnRequest(ctx, input)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidQuantity))

	input.Items = []ItemInput{{LineItemID: uuid.New(), Qty: 1}}
	_, err = f.svc.CreateReturnRequest(ctx, input)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "foreign line item")

	input = base
	input.Type = "swap"
	input.Items = []ItemInput{{LineItemID: order.LineItems[0].ID, Qty: 1}}
	_, err = f.svc.CreateReturnRequest(ctx, input)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestAdvanceGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t, 1)
	req, err := f.svc.CreateReturnRequest(ctx, CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeReturn, Reason: "x",
		Items: []ItemInput{{LineItemID: order.LineItems[0].ID, Qty: 1}},
		Actor: f.customer,
	})
	require.NoError(t, err)

	_, err = f.svc.AdvanceReturnRequest(ctx, AdvanceInput{ReturnID: req.ID, Target: enums.ReturnStatusApproved, Actor: f.customer})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = f.advance(t, req.ID, enums.ReturnStatusCompleted)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition))

	_, err = f.advance(t, uuid.New(), enums.ReturnStatusApproved)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	strangerID := uuid.New()
	_, err = f.svc.GetReturn(ctx, req.ID, orders.Actor{Kind: enums.ActorCustomer, UserID: &strangerID})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	list, err := f.svc.ListForOrder(ctx, order.ID, f.customer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Items, 1)
}

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		from, to enums.ReturnStatus
		ok       bool
	}{
		{enums.ReturnStatusPending, enums.ReturnStatusApproved, true},
		{enums.ReturnStatusPending, enums.ReturnStatusRejected, true},
		{enums.ReturnStatusPending, enums.ReturnStatusProcessing, false},
		{enums.ReturnStatusApproved, enums.ReturnStatusProcessing, true},
		{enums.ReturnStatusApproved, enums.ReturnStatusRejected, true},
		{enums.ReturnStatusProcessing, enums.ReturnStatusCompleted, true},
		{enums.ReturnStatusProcessing, enums.ReturnStatusRejected, false},
		{enums.ReturnStatusCompleted, enums.ReturnStatusRejected, false},
		{enums.ReturnStatusRejected, enums.ReturnStatusApproved, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanAdvance(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRejectingApprovedReturnTakesStockBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t, 3)
	input := CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeReturn, Reason: "scratched",
		Items: []ItemInput{{LineItemID: order.LineItems[0].ID, Qty: 3}},
		Actor: f.customer,
	}

	before := f.available(t)
	req, err := f.svc.CreateReturnRequest(ctx, input)
	require.NoError(t, err)
	_, err = f.advance(t, req.ID, enums.ReturnStatusApproved)
	require.NoError(t, err)
	require.Equal(t, before+3, f.available(t))

	_, err = f.advance(t, req.ID, enums.ReturnStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, before, f.available(t))

	var reversed int64
	require.NoError(t, f.db.Model(&models.InventoryMovement{}).
		Where("return_request_id = ? AND reason = ?", req.ID, enums.InventoryReasonReturnReversal).
		Count(&reversed).Error)
	assert.Equal(t, int64(1), reversed)

	again, err := f.svc.CreateReturnRequest(ctx, input)
	require.NoError(t, err)
	_, err = f.advance(t, again.ID, enums.ReturnStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, before+3, f.available(t), "three delivered units come back once")
}

func TestRejectingApprovedReturnFailsWhenUnitsAreGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t, 2)

	req, err := f.svc.CreateReturnRequest(ctx, CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeReturn, Reason: "scratched",
		Items: []ItemInput{{LineItemID: order.LineItems[0].ID, Qty: 2}},
		Actor: f.customer,
	})
	require.NoError(t, err)
	_, err = f.advance(t, req.ID, enums.ReturnStatusApproved)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.InventoryRecord{}).
		Where("product_id = ?", f.productID).
		Update("available_qty", 1).Error)

	_, err = f.advance(t, req.ID, enums.ReturnStatusRejected)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, 1, f.available(t))

	stored, err := f.svc.GetReturn(ctx, req.ID, f.operator)
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusApproved, stored.Status)
}

func TestRejectingApprovedExchangeMovesNoStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t, 2)

	req, err := f.svc.CreateReturnRequest(ctx, CreateInput{
		OrderID: order.ID, Type: enums.ReturnTypeExchange, Reason: "wrong size",
		Items: []ItemInput{{LineItemID: order.LineItems[0].ID, Qty: 2}},
		Actor: f.customer,
	})
	require.NoError(t, err)

	before := f.available(t)
	_, err = f.advance(t, req.ID, enums.ReturnStatusApproved)
	require.NoError(t, err)
	_, err = f.advance(t, req.ID, enums.ReturnStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, before, f.available(t))
}

func TestEffectOf(t *testing.T) {
	cases := []struct {
		kind     enums.ReturnType
		from, to enums.ReturnStatus
		effect   stockEffect
		reason   enums.InventoryReason
	}{
		{enums.ReturnTypeReturn, enums.ReturnStatusPending, enums.ReturnStatusApproved, effectRelease, enums.InventoryReasonReturnRelease},
		{enums.ReturnTypeReturn, enums.ReturnStatusApproved, enums.ReturnStatusRejected, effectReserve, enums.InventoryReasonReturnReversal},
		{enums.ReturnTypeReturn, enums.ReturnStatusPending, enums.ReturnStatusRejected, effectNone, ""},
		{enums.ReturnTypeReturn, enums.ReturnStatusProcessing, enums.ReturnStatusCompleted, effectNone, ""},
		{enums.ReturnTypeExchange, enums.ReturnStatusApproved, enums.ReturnStatusRejected, effectNone, ""},
		{enums.ReturnTypeExchange, enums.ReturnStatusApproved, enums.ReturnStatusProcessing, effectReserve, enums.InventoryReasonExchangeReserve},
		{enums.ReturnTypeExchange, enums.ReturnStatusProcessing, enums.ReturnStatusCompleted, effectRelease, enums.InventoryReasonReturnRelease},
	}
	for _, tc := range cases {
		effect, reason := effectOf(tc.kind, tc.from, tc.to)
		assert.Equal(t, tc.effect, effect, "%s %s -> %s", tc.kind, tc.from, tc.to)
		assert.Equal(t, tc.reason, reason, "%s %s -> %s", tc.kind, tc.from, tc.to)
	}
}
