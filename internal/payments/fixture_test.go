package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
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
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/metrics"
	"github.com/angelmondragon/storefront-orders/pkg/money"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/redis"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

type fakeAdapter struct {
	mu       sync.Mutex
	channel  enums.PaymentMethod
	status   StatusResult
	queryErr error
	queries  int
	created  int
}

func (f *fakeAdapter) Channel() enums.PaymentMethod { return f.channel }

func (f *fakeAdapter) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &Session{
		Reference:        fmt.Sprintf("ref-%s-%d", req.OrderCode, f.created),
		Presentation:     types.Presentation{"qr": "payload"},
		ExpiresAt:        time.Now().UTC().Add(15 * time.Minute),
		ProviderAmount:   money.FromCents(req.AmountCents),
		ProviderCurrency: req.Currency,
		Rate:             decimal.NewFromInt(1),
	}, nil
}

func (f *fakeAdapter) QueryStatus(context.Context, models.PaymentSession) (*StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	result := f.status
	return &result, nil
}

func (f *fakeAdapter) VerifyCallback(header http.Header, body []byte) (*Callback, error) {
	if header.Get("X-Test-Signature") != "ok" {
		return nil, errors.New("bad signature")
	}
	if len(body) == 0 {
		return nil, ErrIgnoredCallback
	}
	return &Callback{Reference: string(body), DeliveryID: header.Get("X-Delivery")}, nil
}

func (f *fakeAdapter) set(status StatusResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.queryErr = err
}

func (f *fakeAdapter) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

// memStore is an in-memory stand-in for the Redis client.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) ReleaseOwned(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; !ok || v != owner {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memStore) ClaimKey(scope, id string) string        { return "claim:" + scope + ":" + id }
func (m *memStore) WebhookKey(channel, delivery string) string { return "webhook:" + channel + ":" + delivery }

type fixture struct {
	db         *gorm.DB
	orders     orders.Service
	payments   Service
	reconciler *Reconciler
	sessions   *Repository
	adapter    *fakeAdapter
	store      *memStore
	buyer      orders.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	tx := db.Wrap(conn)
	m := metrics.NewOrderMetrics(prometheus.NewRegistry())
	notifier := outbox.NewService(conn, outbox.NewRepository(conn), logger.Nop())
	sessions := NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        tx,
		Catalog:   catalog.NewRepository(conn),
		Inventory: inventory.NewLedger(conn),
		Discounts: discounts.NewLedger(conn),
		Sessions:  sessions,
		Notifier:  notifier,
		Metrics:   m,
	})
	require.NoError(t, err)

	adapter := &fakeAdapter{channel: enums.PaymentMethodWalletQR, status: StatusResult{State: enums.SessionStatePending}}
	registry, err := NewRegistry(adapter)
	require.NoError(t, err)

	store := newMemStore()
	claims, err := redis.NewClaimer(store, "payment_session", time.Minute)
	require.NoError(t, err)

	cfg := config.PaymentsConfig{Workers: 2, BatchSize: 10, PollInterval: 10 * time.Second, MaxBackoff: time.Minute, WebhookTTL: time.Hour}
	reconciler, err := NewReconciler(ReconcilerParams{
		Config:      cfg,
		Adapters:    registry,
		Sessions:    sessions,
		Orders:      orderRepo,
		Transitions: orderSvc,
		Tx:          tx,
		Claims:      claims,
		Notifier:    notifier,
		Metrics:     m,
	})
	require.NoError(t, err)

	paymentSvc, err := NewService(ServiceParams{
		Config:     cfg,
		Adapters:   registry,
		Sessions:   sessions,
		Orders:     orderRepo,
		Tx:         tx,
		Reconciler: reconciler,
		Deliveries: store,
		Metrics:    m,
	})
	require.NoError(t, err)

	id := uuid.New()
	return &fixture{
		db:         conn,
		orders:     orderSvc,
		payments:   paymentSvc,
		reconciler: reconciler,
		sessions:   sessions,
		adapter:    adapter,
		store:      store,
		buyer:      orders.Actor{Kind: enums.ActorCustomer, UserID: &id},
	}
}

// placeOrder creates a $20.00 order paid by method.
func (f *fixture) placeOrder(t *testing.T, method enums.PaymentMethod) *models.Order {
	t.Helper()
	p := models.Product{SKU: "SKU-" + uuid.NewString()[:8], Name: "Kettle", PriceCents: 2000, IsActive: true}
	require.NoError(t, f.db.Create(&p).Error)
	require.NoError(t, f.db.Create(&models.InventoryRecord{ProductID: p.ID, AvailableQty: 5}).Error)
	order, err := f.orders.CreateOrder(context.Background(), orders.CreateOrderInput{
		Customer:        orders.CustomerInfo{Name: "Grace Hopper", Phone: "+15550101", Email: "grace@example.com"},
		ShippingAddress: types.ShippingAddress{Line1: "2 Compiler Rd", City: "Arlington", Country: "US"},
		LineItems:       []orders.LineItemInput{{ProductID: p.ID, Qty: 1}},
		PaymentMethod:   method,
		ClientTotal:     decimal.RequireFromString("20.00"),
		Actor:           f.buyer,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) order(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := f.orders.GetOrder(context.Background(), id, orders.SystemActor)
	require.NoError(t, err)
	return order
}

func (f *fixture) session(t *testing.T, reference string) *models.PaymentSession {
	t.Helper()
	session, err := f.sessions.FindByReference(context.Background(), reference)
	require.NoError(t, err)
	return session
}

func (f *fixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func confirmed() StatusResult {
	return StatusResult{State: enums.SessionStateConfirmed}
}
