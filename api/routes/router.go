package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-orders/api/controllers"
	"github.com/angelmondragon/storefront-orders/api/middleware"
	"github.com/angelmondragon/storefront-orders/internal/app"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/redis"
)

// NewRouter mounts the public API. redisClient may be nil, in which case
// Idempotency-Key replay is disabled and readiness skips redis.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	services *app.Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	deps := map[string]db.Pinger{"db": dbP}
	var idempotencyStore redis.IdempotencyStore
	if redisClient != nil {
		deps["redis"] = redisClient
		idempotencyStore = redisClient
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/payments/{channel}", controllers.PaymentWebhook(services.Payments, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.CreateOrder(services.Orders, logg))
				r.Route("/{orderId}", func(r chi.Router) {
					r.Get("/", controllers.GetOrder(services.Orders, logg))
					r.Get("/tracking", controllers.ListTracking(services.Orders, logg))
					r.Post("/cancel", controllers.CancelOrder(services.Orders, logg))
					r.Post("/payments", controllers.CreatePaymentSession(services.Payments, logg))
					r.Get("/payments", controllers.GetPaymentStatus(services.Payments, logg))
					r.Post("/refunds", controllers.CreateRefundRequest(services.Refunds, logg))
					r.Post("/returns", controllers.CreateReturnRequest(services.Returns, logg))
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorAdmin))
				r.Post("/orders/{orderId}/transition", controllers.TransitionOrder(services.Orders, logg))
				r.Post("/orders/{orderId}/cancel", controllers.CancelOrder(services.Orders, logg))
				r.Post("/refunds/{refundId}/decision", controllers.DecideRefund(services.Refunds, logg))
				r.Post("/returns/{returnId}/advance", controllers.AdvanceReturnRequest(services.Returns, logg))
			})
		})
	})

	return r
}
