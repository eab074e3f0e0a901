package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/keyshop-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/keyshop-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/keyshop-backend/api/controllers/webhooks"
	"github.com/angelmondragon/keyshop-backend/api/middleware"
	"github.com/angelmondragon/keyshop-backend/pkg/config"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/redis"
)

// RedisStore is the slice of the Redis client the HTTP layer needs.
type RedisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (redis.Window, error)
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, txnID string) (bool, error)
	Delete(ctx context.Context, txnID string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	catalogService controllers.CatalogService,
	stockCounter controllers.StockCounter,
	intakeService ordercontrollers.IntakeService,
	ordersService interface {
		ordercontrollers.ViewService
		ordercontrollers.AdminService
	},
	paymentChecker ordercontrollers.PaymentChecker,
	deliveryService controllers.DeliveryService,
	webhookService webhookcontrollers.PaymentWebhookService,
	guard webhookGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// A nil interface keeps the Redis-backed middleware in pass-through mode.
	var idemStore redis.IdempotencyStore
	var rateStore interface {
		FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (redis.Window, error)
	}
	var redisPinger controllers.Pinger
	if redisStore != nil {
		idemStore, rateStore, redisPinger = redisStore, redisStore, redisStore
	}

	ordersPolicy := middleware.NewRateLimitPolicy(
		"orders",
		cfg.RateLimit.OrdersWindow,
		cfg.RateLimit.OrdersIPLimit,
		cfg.RateLimit.OrdersEmailLimit,
	)
	checkPolicy := middleware.NewRateLimitPolicy(
		"check",
		cfg.RateLimit.CheckWindow,
		cfg.RateLimit.CheckIPLimit,
		cfg.RateLimit.CheckEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentWebhook(webhookService, cfg.Payments.WebhookSecret, guard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog", controllers.CatalogList(catalogService, stockCounter, logg))
		r.Get("/deliveries/{code}", controllers.DeliveryRetrieve(deliveryService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(
				middleware.RateLimit(ordersPolicy, rateStore, logg),
				middleware.Idempotency(idemStore, logg),
			).Post("/", ordercontrollers.Place(intakeService, logg))
			r.Get("/{code}", ordercontrollers.View(ordersService, logg))
			r.With(middleware.RateLimit(checkPolicy, rateStore, logg)).
				Post("/{code}/check-payment", ordercontrollers.CheckPayment(paymentChecker, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Post("/auth/token", controllers.AdminAuthToken(cfg.Admin, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.OperatorAuth(cfg.Admin, logg))
			r.Use(middleware.Idempotency(idemStore, logg))
			r.Get("/ping", controllers.AdminPing())
			r.Get("/orders", ordercontrollers.AdminList(ordersService, logg))
			r.Post("/orders/{code}/cancel", ordercontrollers.AdminCancel(ordersService, logg))
			r.Post("/orders/{code}/finalize", ordercontrollers.AdminFinalize(ordersService, logg))
		})
	})

	return r
}
