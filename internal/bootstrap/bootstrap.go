// Package bootstrap wires the domain services shared by the api, cron-worker and keyshopctl binaries.
package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/keyshop-backend/internal/catalog"
	"github.com/angelmondragon/keyshop-backend/internal/delivery"
	"github.com/angelmondragon/keyshop-backend/internal/fulfillment"
	"github.com/angelmondragon/keyshop-backend/internal/intake"
	"github.com/angelmondragon/keyshop-backend/internal/inventory"
	"github.com/angelmondragon/keyshop-backend/internal/orders"
	"github.com/angelmondragon/keyshop-backend/internal/payments"
	"github.com/angelmondragon/keyshop-backend/internal/pricing"
	paymentwebhook "github.com/angelmondragon/keyshop-backend/internal/webhooks/payments"
	"github.com/angelmondragon/keyshop-backend/pkg/config"
	"github.com/angelmondragon/keyshop-backend/pkg/db"
	"github.com/angelmondragon/keyshop-backend/pkg/ids"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/metrics"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox"
	"github.com/angelmondragon/keyshop-backend/pkg/paymentfeed"
)

// Services holds every domain service built from one database client.
type Services struct {
	Catalog     *catalog.Service
	Ledger      *inventory.Ledger
	OrdersRepo  orders.Repository
	Orders      *orders.Service
	Intake      *intake.Service
	Fulfillment *fulfillment.Service
	Delivery    *delivery.Service
	Webhook     *paymentwebhook.Service
	Tokens      *delivery.Tokens
	Outbox      *outbox.Service
	OutboxRepo  *outbox.Repository
	DLQ         *outbox.DLQRepository
	Metrics     *metrics.OrderMetrics

	// Payments is nil when no payment feed is configured.
	Payments *payments.Service
}

// Build constructs the service graph. reg may be nil to skip metric registration.
func Build(cfg *config.Config, logg *logger.Logger, client *db.Client, reg prometheus.Registerer) (*Services, error) {
	if cfg == nil || client == nil {
		return nil, fmt.Errorf("config and db client required")
	}
	gdb := client.DB()

	var orderMetrics *metrics.OrderMetrics
	if reg != nil {
		orderMetrics = metrics.NewOrderMetrics(reg)
	}

	generator, err := ids.NewGenerator(cfg.IDs.NodeID)
	if err != nil {
		return nil, fmt.Errorf("id generator: %w", err)
	}
	tokens, err := delivery.NewTokens(cfg.Delivery.Secret, cfg.Delivery.ValidityDays)
	if err != nil {
		return nil, fmt.Errorf("delivery tokens: %w", err)
	}

	catalogSvc := catalog.NewService(gdb)
	ledger := inventory.NewLedger(gdb)
	repo := orders.NewRepository(gdb)
	outboxRepo := outbox.NewRepository(gdb)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	fulfillmentSvc, err := fulfillment.NewService(fulfillment.Params{
		DB:       client,
		Orders:   repo,
		Ledger:   ledger,
		Outbox:   outboxSvc,
		Invoices: generator,
		Tokens:   tokens,
		Metrics:  orderMetrics,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfillment service: %w", err)
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		DB:        client,
		Repo:      repo,
		Units:     ledger,
		Outbox:    outboxSvc,
		Finalizer: fulfillmentSvc,
		Metrics:   orderMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	intakeSvc, err := intake.NewService(intake.Params{
		DB:        client,
		Orders:    repo,
		Pricing:   pricing.NewResolver(catalogSvc),
		Ledger:    ledger,
		Outbox:    outboxSvc,
		Codes:     generator,
		Finalizer: fulfillmentSvc,
		Metrics:   orderMetrics,
		Logger:    logg,
		Config: intake.Config{
			ReservationWindow: cfg.Orders.ReservationWindow,
			MaxLines:          cfg.Orders.MaxLines,
			MaxQuantity:       cfg.Orders.MaxQuantity,
			BankName:          cfg.Payments.BankName,
			AccountNumber:     cfg.Payments.AccountNumber,
			AccountHolder:     cfg.Payments.AccountHolder,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("intake service: %w", err)
	}

	deliverySvc, err := delivery.NewService(repo, ledger, tokens)
	if err != nil {
		return nil, fmt.Errorf("delivery service: %w", err)
	}

	matcher := payments.NewMatcher(payments.MatcherConfig{
		Tolerance: cfg.Payments.AmountTolerance,
		Lookback:  cfg.Payments.Lookback,
		ClockSkew: cfg.Payments.ClockSkew,
	})

	webhookSvc, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Orders:    repo,
		Matcher:   matcher,
		Finalizer: fulfillmentSvc,
		Metrics:   orderMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook service: %w", err)
	}

	svcs := &Services{
		Catalog:     catalogSvc,
		Ledger:      ledger,
		OrdersRepo:  repo,
		Orders:      ordersSvc,
		Intake:      intakeSvc,
		Fulfillment: fulfillmentSvc,
		Delivery:    deliverySvc,
		Webhook:     webhookSvc,
		Tokens:      tokens,
		Outbox:      outboxSvc,
		OutboxRepo:  outboxRepo,
		DLQ:         outbox.NewDLQRepository(gdb),
		Metrics:     orderMetrics,
	}

	if cfg.Payments.FeedURL != "" {
		feed, err := paymentfeed.NewClient(
			cfg.Payments.FeedURL,
			cfg.Payments.FeedToken,
			paymentfeed.WithLimit(cfg.Payments.FeedLimit),
			paymentfeed.WithTimeout(cfg.Payments.FeedTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("payment feed: %w", err)
		}
		svcs.Payments, err = payments.NewService(payments.ServiceParams{
			Orders:     repo,
			Feed:       feed,
			Matcher:    matcher,
			Finalizer:  fulfillmentSvc,
			Metrics:    orderMetrics,
			Logger:     logg,
			PollGrace:  cfg.Payments.PollGrace,
			PollMaxAge: cfg.Payments.PollMaxAge,
		})
		if err != nil {
			return nil, fmt.Errorf("payments service: %w", err)
		}
	}

	return svcs, nil
}
