package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/app"
	"github.com/angelmondragon/storefront-orders/internal/payments"
	pkgAuth "github.com/angelmondragon/storefront-orders/pkg/auth"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/money"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

type walletStub struct{}

func (walletStub) Channel() enums.PaymentMethod { return enums.PaymentMethodWalletQR }

func (walletStub) CreateSession(_ context.Context, req payments.SessionRequest) (*payments.Session, error) {
	return &payments.Session{
		Reference:        "wallet-" + req.OrderCode,
		Presentation:     types.Presentation{"qr": "000201"},
		ExpiresAt:        time.Now().UTC().Add(15 * time.Minute),
		ProviderAmount:   money.FromCents(req.AmountCents),
		ProviderCurrency: req.Currency,
		Rate:             decimal.NewFromInt(1),
	}, nil
}

func (walletStub) QueryStatus(context.Context, models.PaymentSession) (*payments.StatusResult, error) {
	return &payments.StatusResult{State: enums.SessionStatePending}, nil
}

func (walletStub) VerifyCallback(http.Header, []byte) (*payments.Callback, error) {
	return nil, payments.ErrIgnoredCallback
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	conn    *gorm.DB
	cfg     *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	cfg := &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 60},
	}
	registry := prometheus.NewRegistry()
	services, err := app.Build(context.Background(), app.Params{
		Config:     cfg,
		Logger:     logger.Nop(),
		DB:         client,
		Registerer: registry,
		Adapters:   []payments.Adapter{walletStub{}},
	})
	require.NoError(t, err)

	return &testServer{
		t:       t,
		handler: NewRouter(cfg, logger.Nop(), client, nil, registry, services),
		conn:    conn,
		cfg:     cfg,
	}
}

func (s *testServer) token(role enums.Actor, userID uuid.UUID) string {
	s.t.Helper()
	token, err := pkgAuth.MintAccessToken(s.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(s.t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seedProduct(priceCents int64, qty int) uuid.UUID {
	s.t.Helper()
	id := uuid.New()
	require.NoError(s.t, s.conn.Create(&models.Product{ID: id, SKU: "SKU-" + id.String()[:8], Name: "Tee", PriceCents: priceCents, IsActive: true}).Error)
	require.NoError(s.t, s.conn.Create(&models.InventoryRecord{ProductID: id, AvailableQty: qty}).Error)
	return id
}

func data[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error.Code
}

func orderBody(productID uuid.UUID, qty int, method enums.PaymentMethod, total string) map[string]any {
	return map[string]any{
		"customer":         map[string]any{"name": "Ana", "phone": "0901234567", "email": "ana@example.com"},
		"shipping_address": map[string]any{"line1": "1 Main St", "city": "Hanoi", "country": "VN"},
		"items":            []map[string]any{{"product_id": productID.String(), "qty": qty}},
		"payment_method":   method,
		"total":            total,
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/ready", "", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/metrics", "", nil).Code)
}

func TestOrderRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCustomerOrderLifecycle(t *testing.T) {
	srv := newTestServer(t)
	productID := srv.seedProduct(1500, 10)
	buyer := srv.token(enums.ActorCustomer, uuid.New())
	operator := srv.token(enums.ActorAdmin, uuid.New())

	rec := srv.do(http.MethodPost, "/api/v1/orders", buyer, orderBody(productID, 2, enums.PaymentMethodCOD, "30.00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := data[struct {
		ID     uuid.UUID         `json:"id"`
		Status enums.OrderStatus `json:"status"`
		Total  string            `json:"total"`
	}](t, rec)
	assert.Equal(t, enums.OrderStatusPlaced, created.Status)
	assert.Equal(t, "30.00", created.Total)
	orderPath := "/api/v1/orders/" + created.ID.String()

	rec = srv.do(http.MethodGet, orderPath, srv.token(enums.ActorCustomer, uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other customers must not see the order")

	rec = srv.do(http.MethodPost, "/api/v1/admin/orders/"+created.ID.String()+"/transition", buyer, map[string]any{"status": "confirming"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(http.MethodPost, "/api/v1/admin/orders/"+created.ID.String()+"/transition", operator, map[string]any{"status": "confirming", "description": "phone confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodGet, orderPath+"/tracking", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tracking := data[[]struct {
		Status enums.OrderStatus `json:"status"`
	}](t, rec)
	require.Len(t, tracking, 2)
	assert.Equal(t, enums.OrderStatusPlaced, tracking[0].Status)
	assert.Equal(t, enums.OrderStatusConfirming, tracking[1].Status)

	rec = srv.do(http.MethodPost, orderPath+"/cancel", buyer, map[string]any{"reason": "changed my mind"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := data[struct {
		Status enums.OrderStatus `json:"status"`
	}](t, rec)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	var inv models.InventoryRecord
	require.NoError(t, srv.conn.First(&inv, "product_id = ?", productID).Error)
	assert.Equal(t, 10, inv.AvailableQty)
}

func TestCreateOrderRejectsTotalMismatch(t *testing.T) {
	srv := newTestServer(t)
	productID := srv.seedProduct(1500, 10)

	rec := srv.do(http.MethodPost, "/api/v1/orders", srv.token(enums.ActorCustomer, uuid.New()), orderBody(productID, 1, enums.PaymentMethodCOD, "14.99"))
	assert.Equal(t, "TOTAL_MISMATCH", errorCode(t, rec))
}

func TestWalletPaymentSession(t *testing.T) {
	srv := newTestServer(t)
	productID := srv.seedProduct(2500, 5)
	buyer := srv.token(enums.ActorCustomer, uuid.New())

	rec := srv.do(http.MethodPost, "/api/v1/orders", buyer, orderBody(productID, 1, enums.PaymentMethodWalletQR, "25.00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := data[struct {
		ID uuid.UUID `json:"id"`
	}](t, rec).ID
	paymentsPath := "/api/v1/orders/" + orderID.String() + "/payments"

	rec = srv.do(http.MethodPost, paymentsPath, buyer, map[string]any{"channel": "wallet_qr"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := data[payments.SessionView](t, rec)
	assert.Equal(t, enums.SessionStatePending, session.State)
	assert.Equal(t, "000201", session.Presentation["qr"])
	assert.Equal(t, "25.00", session.Amount)

	rec = srv.do(http.MethodGet, paymentsPath, buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := data[payments.StatusView](t, rec)
	assert.Equal(t, enums.PaymentStatusPending, status.PaymentStatus)
	require.NotNil(t, status.Session)
	assert.Equal(t, session.Reference, status.Session.Reference)
}

func TestPaymentWebhookIsPublic(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodPost, "/api/v1/webhooks/payments/wallet_qr", "", map[string]any{"ping": true})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodPost, "/api/v1/webhooks/payments/redirect_gateway", "", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
