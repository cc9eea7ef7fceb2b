package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-orders/api/middleware"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/internal/payments"
	"github.com/angelmondragon/storefront-orders/internal/refunds"
	"github.com/angelmondragon/storefront-orders/internal/returns"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

type stubOrders struct {
	orders.Service
	create     func(orders.CreateOrderInput) (*models.Order, error)
	cancel     func(orders.CancelInput) (*models.Order, error)
	transition func(orders.TransitionInput) (*models.Order, error)
}

func (s *stubOrders) CreateOrder(_ context.Context, input orders.CreateOrderInput) (*models.Order, error) {
	return s.create(input)
}

func (s *stubOrders) CancelOrder(_ context.Context, input orders.CancelInput) (*models.Order, error) {
	return s.cancel(input)
}

func (s *stubOrders) TransitionOrder(_ context.Context, input orders.TransitionInput) (*models.Order, error) {
	return s.transition(input)
}

type stubPayments struct {
	payments.Service
	callback func(enums.PaymentMethod, http.Header, []byte) error
}

func (s *stubPayments) HandleCallback(_ context.Context, channel enums.PaymentMethod, header http.Header, body []byte) error {
	return s.callback(channel, header, body)
}

type stubRefunds struct {
	refunds.Service
	decide func(refunds.DecideInput) (*models.RefundRequest, error)
}

func (s *stubRefunds) DecideRefund(_ context.Context, input refunds.DecideInput) (*models.RefundRequest, error) {
	return s.decide(input)
}

type stubReturns struct {
	returns.Service
	create func(returns.CreateInput) (*models.ReturnRequest, error)
}

func (s *stubReturns) CreateReturnRequest(_ context.Context, input returns.CreateInput) (*models.ReturnRequest, error) {
	return s.create(input)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(t *testing.T, method, pattern, target string, handler http.HandlerFunc, body string, principal *middleware.Principal) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Method(method, pattern, handler)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if principal != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), *principal))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func customer() *middleware.Principal {
	return &middleware.Principal{UserID: uuid.New(), Role: enums.ActorCustomer}
}

func admin() *middleware.Principal {
	return &middleware.Principal{UserID: uuid.New(), Role: enums.ActorAdmin}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestCreateOrderMapsRequest(t *testing.T) {
	principal := customer()
	productID := uuid.New()
	var got orders.CreateOrderInput
	svc := &stubOrders{create: func(input orders.CreateOrderInput) (*models.Order, error) {
		got = input
		return &models.Order{ID: uuid.New(), Code: "SO-ABC123", Status: enums.OrderStatusPlaced, TotalCents: 4500, Currency: "USD"}, nil
	}}

	body := `{
		"customer": {"name": " Ana ", "phone": "0901234567"},
		"shipping_address": {"line1": "1 Main St", "city": "Hanoi", "country": "VN"},
		"items": [{"product_id": "` + productID.String() + `", "qty": 3}],
		"discount_code": "  ",
		"payment_method": "wallet_qr",
		"total": "45.00"
	}`
	rec := serve(t, http.MethodPost, "/api/v1/orders", "/api/v1/orders", CreateOrder(svc, nil), body, principal)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Ana", got.Customer.Name)
	assert.Equal(t, enums.PaymentMethodWalletQR, got.PaymentMethod)
	assert.Equal(t, "45", got.ClientTotal.String())
	assert.Nil(t, got.DiscountCode)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, productID, got.LineItems[0].ProductID)
	assert.Equal(t, 3, got.LineItems[0].Qty)
	require.NotNil(t, got.Actor.UserID)
	assert.Equal(t, principal.UserID, *got.Actor.UserID)
	assert.Equal(t, enums.ActorCustomer, got.Actor.Kind)

	var env struct {
		Data orders.OrderView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "45.00", env.Data.Total)
	assert.Equal(t, "SO-ABC123", env.Data.Code)
}

func TestCreateOrderRejectsInvalidBody(t *testing.T) {
	svc := &stubOrders{create: func(orders.CreateOrderInput) (*models.Order, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}

	body := `{
		"customer": {"name": "Ana", "phone": "1"},
		"shipping_address": {"line1": "1 Main St", "city": "Hanoi", "country": "VN"},
		"items": [],
		"payment_method": "cash",
		"total": "abc"
	}`
	rec := serve(t, http.MethodPost, "/api/v1/orders", "/api/v1/orders", CreateOrder(svc, nil), body, customer())

	require.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, string(pkgerrors.CodeValidation), apiErr.Code)
	details, ok := apiErr.Details.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "items")
	assert.Contains(t, details, "payment_method")
	assert.Contains(t, details, "total")
}

func TestCreateOrderRequiresPrincipal(t *testing.T) {
	rec := serve(t, http.MethodPost, "/api/v1/orders", "/api/v1/orders", CreateOrder(&stubOrders{}, nil), `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetOrderRejectsMalformedID(t *testing.T) {
	rec := serve(t, http.MethodGet, "/api/v1/orders/{orderId}", "/api/v1/orders/not-a-uuid", GetOrder(&stubOrders{}, nil), "", customer())

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid order id", decodeError(t, rec).Message)
}

func TestCancelOrderAcceptsEmptyBody(t *testing.T) {
	orderID := uuid.New()
	var got orders.CancelInput
	svc := &stubOrders{cancel: func(input orders.CancelInput) (*models.Order, error) {
		got = input
		return &models.Order{ID: orderID, Status: enums.OrderStatusCancelled}, nil
	}}

	rec := serve(t, http.MethodPost, "/api/v1/orders/{orderId}/cancel", "/api/v1/orders/"+orderID.String()+"/cancel", CancelOrder(svc, nil), "", customer())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, orderID, got.OrderID)
	assert.Empty(t, got.Reason)
}

func TestCancelOrderSurfacesPolicyError(t *testing.T) {
	svc := &stubOrders{cancel: func(orders.CancelInput) (*models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotCancellable, "order can no longer be cancelled")
	}}

	rec := serve(t, http.MethodPost, "/api/v1/orders/{orderId}/cancel", "/api/v1/orders/"+uuid.NewString()+"/cancel", CancelOrder(svc, nil), `{"reason":"changed my mind"}`, customer())

	assert.Equal(t, pkgerrors.MetadataFor(pkgerrors.CodeNotCancellable).HTTPStatus, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeNotCancellable), decodeError(t, rec).Code)
}

func TestTransitionOrderParsesTarget(t *testing.T) {
	var got orders.TransitionInput
	svc := &stubOrders{transition: func(input orders.TransitionInput) (*models.Order, error) {
		got = input
		return &models.Order{ID: input.OrderID, Status: input.Target}, nil
	}}
	orderID := uuid.New()

	rec := serve(t, http.MethodPost, "/admin/orders/{orderId}/transition", "/admin/orders/"+orderID.String()+"/transition", TransitionOrder(svc, nil), `{"status":"packing","description":"picked"}`, admin())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enums.OrderStatusPacking, got.Target)
	assert.Equal(t, "picked", got.Description)
	assert.Equal(t, enums.ActorAdmin, got.Actor.Kind)

	rec = serve(t, http.MethodPost, "/admin/orders/{orderId}/transition", "/admin/orders/"+orderID.String()+"/transition", TransitionOrder(svc, nil), `{"status":"teleported"}`, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentWebhookPassesRawBody(t *testing.T) {
	var gotChannel enums.PaymentMethod
	var gotBody string
	svc := &stubPayments{callback: func(channel enums.PaymentMethod, header http.Header, body []byte) error {
		gotChannel = channel
		gotBody = string(body)
		return nil
	}}

	rec := serve(t, http.MethodPost, "/webhooks/payments/{channel}", "/webhooks/payments/wallet_qr", PaymentWebhook(svc, nil), `{"ref":"abc"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.PaymentMethodWalletQR, gotChannel)
	assert.Equal(t, `{"ref":"abc"}`, gotBody)
}

func TestPaymentWebhookUnknownChannel(t *testing.T) {
	svc := &stubPayments{callback: func(enums.PaymentMethod, http.Header, []byte) error {
		t.Fatal("service must not be called")
		return nil
	}}

	rec := serve(t, http.MethodPost, "/webhooks/payments/{channel}", "/webhooks/payments/paypal", PaymentWebhook(svc, nil), `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentWebhookSignatureFailure(t *testing.T) {
	svc := &stubPayments{callback: func(enums.PaymentMethod, http.Header, []byte) error {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid callback signature")
	}}

	rec := serve(t, http.MethodPost, "/webhooks/payments/{channel}", "/webhooks/payments/onchain", PaymentWebhook(svc, nil), `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDecideRefundMapsStatus(t *testing.T) {
	refundID := uuid.New()
	var got refunds.DecideInput
	svc := &stubRefunds{decide: func(input refunds.DecideInput) (*models.RefundRequest, error) {
		got = input
		return &models.RefundRequest{ID: refundID, Status: input.Status, AccountNumber: "0123456789", AmountCents: 1000}, nil
	}}

	rec := serve(t, http.MethodPost, "/admin/refunds/{refundId}/decision", "/admin/refunds/"+refundID.String()+"/decision", DecideRefund(svc, nil), `{"status":"refunded","note":"paid out"}`, admin())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, refundID, got.RefundID)
	assert.Equal(t, enums.RefundStatusRefunded, got.Status)
	assert.Contains(t, rec.Body.String(), `"account_number":"******6789"`)

	rec = serve(t, http.MethodPost, "/admin/refunds/{refundId}/decision", "/admin/refunds/"+refundID.String()+"/decision", DecideRefund(svc, nil), `{"status":"pending"}`, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateReturnMapsItems(t *testing.T) {
	orderID := uuid.New()
	lineID := uuid.New()
	var got returns.CreateInput
	svc := &stubReturns{create: func(input returns.CreateInput) (*models.ReturnRequest, error) {
		got = input
		return &models.ReturnRequest{ID: uuid.New(), OrderID: orderID, Type: input.Type, Status: enums.ReturnStatusPending}, nil
	}}

	body := `{"type":"exchange","reason":"wrong size","items":[{"line_item_id":"` + lineID.String() + `","qty":1}]}`
	rec := serve(t, http.MethodPost, "/orders/{orderId}/returns", "/orders/"+orderID.String()+"/returns", CreateReturnRequest(svc, nil), body, customer())

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, orderID, got.OrderID)
	assert.Equal(t, enums.ReturnTypeExchange, got.Type)
	require.Len(t, got.Items, 1)
	assert.Equal(t, lineID, got.Items[0].LineItemID)
}

func TestHealthReadyReportsFailedDependencies(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	deps := map[string]db.Pinger{
		"db":    pingerFunc(func(context.Context) error { return nil }),
		"redis": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
		"none":  nil,
	}

	rec := serve(t, http.MethodGet, "/health/ready", "/health/ready", HealthReady(cfg, nil, deps), "", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	apiErr := decodeError(t, rec)
	details, ok := apiErr.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"redis"}, details["failed"])

	delete(deps, "redis")
	rec = serve(t, http.MethodGet, "/health/ready", "/health/ready", HealthReady(cfg, nil, deps), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
