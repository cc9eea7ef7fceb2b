// Package app assembles the order, payment, refund and return services from
// loaded configuration. Every binary that touches orders builds them here so
// the wiring cannot drift between the API and the workers.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-orders/internal/catalog"
	"github.com/angelmondragon/storefront-orders/internal/discounts"
	"github.com/angelmondragon/storefront-orders/internal/inventory"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/internal/payments"
	"github.com/angelmondragon/storefront-orders/internal/payments/gateway"
	"github.com/angelmondragon/storefront-orders/internal/payments/onchain"
	"github.com/angelmondragon/storefront-orders/internal/payments/walletqr"
	"github.com/angelmondragon/storefront-orders/internal/refunds"
	"github.com/angelmondragon/storefront-orders/internal/returns"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/metrics"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/redis"
	"github.com/angelmondragon/storefront-orders/pkg/square"
)

// Params carries the shared infrastructure.
type Params struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	// Redis is optional. Without it poll claims and callback deduplication
	// fall back to the idempotent reconciler alone.
	Redis      *redis.Client
	Registerer prometheus.Registerer
	// Adapters overrides the configured payment channels; tests use it.
	Adapters []payments.Adapter
}

// Services is the assembled domain layer.
type Services struct {
	Orders     orders.Service
	Payments   payments.Service
	Reconciler *payments.Reconciler
	Refunds    refunds.Service
	Returns    returns.Service
	Outbox     *outbox.Repository
	Channels   []string
}

func Build(ctx context.Context, params Params) (*Services, error) {
	if params.Config == nil || params.DB == nil {
		return nil, fmt.Errorf("config and database required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	cfg := params.Config
	conn := params.DB.DB()

	var orderMetrics *metrics.OrderMetrics
	if params.Registerer != nil {
		orderMetrics = metrics.NewOrderMetrics(params.Registerer)
	}

	outboxRepo := outbox.NewRepository(conn)
	notifier := outbox.NewService(conn, outboxRepo, logg)
	sessions := payments.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	stock := inventory.NewLedger(conn)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Config:    cfg.Orders,
		Repo:      orderRepo,
		Tx:        params.DB,
		Catalog:   catalog.NewRepository(conn),
		Inventory: stock,
		Discounts: discounts.NewLedger(conn),
		Sessions:  sessions,
		Notifier:  notifier,
		Logger:    logg,
		Metrics:   orderMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	adapters := params.Adapters
	if adapters == nil {
		adapters, err = configuredAdapters(ctx, cfg, logg, sessions)
		if err != nil {
			return nil, err
		}
	}
	registry, err := payments.NewRegistry(adapters...)
	if err != nil {
		return nil, fmt.Errorf("payment adapters: %w", err)
	}

	reconcilerParams := payments.ReconcilerParams{
		Config:      cfg.Payments,
		Adapters:    registry,
		Sessions:    sessions,
		Orders:      orderRepo,
		Transitions: orderSvc,
		Tx:          params.DB,
		Notifier:    notifier,
		Logger:      logg,
		Metrics:     orderMetrics,
	}
	if params.Redis != nil {
		claims, err := redis.NewClaimer(params.Redis, "payment_session", cfg.Payments.ClaimTTL)
		if err != nil {
			return nil, fmt.Errorf("session claimer: %w", err)
		}
		reconcilerParams.Claims = claims
	}
	reconciler, err := payments.NewReconciler(reconcilerParams)
	if err != nil {
		return nil, fmt.Errorf("reconciler: %w", err)
	}

	paymentParams := payments.ServiceParams{
		Config:     cfg.Payments,
		Adapters:   registry,
		Sessions:   sessions,
		Orders:     orderRepo,
		Tx:         params.DB,
		Reconciler: reconciler,
		Logger:     logg,
		Metrics:    orderMetrics,
	}
	if params.Redis != nil {
		paymentParams.Deliveries = params.Redis
	}
	paymentSvc, err := payments.NewService(paymentParams)
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Repo:     refunds.NewRepository(conn),
		Orders:   orderRepo,
		Tx:       params.DB,
		Notifier: notifier,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("refunds service: %w", err)
	}

	returnSvc, err := returns.NewService(returns.ServiceParams{
		Repo:      returns.NewRepository(conn),
		Orders:    orderRepo,
		Inventory: stock,
		Tx:        params.DB,
		Notifier:  notifier,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("returns service: %w", err)
	}

	channels := make([]string, 0, len(registry.Channels()))
	for _, ch := range registry.Channels() {
		channels = append(channels, string(ch))
	}
	logg.Info(logg.WithField(ctx, "channels", channels), "payment channels configured")

	return &Services{
		Orders:     orderSvc,
		Payments:   paymentSvc,
		Reconciler: reconciler,
		Refunds:    refundSvc,
		Returns:    returnSvc,
		Outbox:     outboxRepo,
		Channels:   channels,
	}, nil
}

// configuredAdapters builds one adapter per channel with credentials present.
func configuredAdapters(ctx context.Context, cfg *config.Config, logg *logger.Logger, sessions *payments.Repository) ([]payments.Adapter, error) {
	var adapters []payments.Adapter
	if cfg.WalletQR.Enabled() {
		client, err := walletqr.New(cfg.WalletQR)
		if err != nil {
			return nil, fmt.Errorf("wallet qr adapter: %w", err)
		}
		adapters = append(adapters, client)
	}
	if cfg.Square.Enabled() {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		adapters = append(adapters, gateway.New(client, cfg.Square.SessionLifetime))
	}
	if cfg.Chain.Enabled() {
		adapter, err := onchain.New(cfg.Chain, logg, onchain.WithTransferClaims(sessions))
		if err != nil {
			return nil, fmt.Errorf("on-chain adapter: %w", err)
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}
