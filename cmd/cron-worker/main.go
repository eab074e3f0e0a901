package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/keyshop-backend/internal/bootstrap"
	"github.com/angelmondragon/keyshop-backend/internal/cron"
	"github.com/angelmondragon/keyshop-backend/pkg/config"
	"github.com/angelmondragon/keyshop-backend/pkg/db"
	"github.com/angelmondragon/keyshop-backend/pkg/instance"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/metrics"
	"github.com/angelmondragon/keyshop-backend/pkg/migrate"
	"github.com/angelmondragon/keyshop-backend/pkg/redis"
)


func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	svcs, err := bootstrap.Build(cfg, logg, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, svcs)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockPrefix(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Tick:     cfg.Cron.Tick,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
		"jobs":        len(registry.Jobs()),
	})

	metricsServer := &http.Server{
		Addr:              cfg.Cron.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, svcs *bootstrap.Services) (*cron.Registry, error) {
	registry := cron.NewRegistry()

	if svcs.Payments != nil {
		job, err := cron.NewReconcilePaymentsJob(cron.ReconcilePaymentsJobParams{
			Logger:   logg,
			Payments: svcs.Payments,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(job, cfg.Cron.ReconcileEvery); err != nil {
			return nil, err
		}
	} else {
		logg.Warn(context.Background(), "payment feed not configured, reconcile-payments disabled")
	}

	expireJob, err := cron.NewExpireReservationsJob(cron.ExpireReservationsJobParams{
		Logger: logg,
		Orders: svcs.Orders,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(expireJob, cfg.Cron.ExpireEvery); err != nil {
		return nil, err
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		Repository:    svcs.OutboxRepo,
		DLQ:           svcs.DLQ,
		RetentionDays: cfg.Eventing.OutboxRetention,
		DLQDays:       cfg.Eventing.DLQRetention,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(retentionJob, cfg.Cron.RetentionEvery); err != nil {
		return nil, err
	}

	return registry, nil
}

// lockPrefix scopes job locks per environment so staging and prod workers
// sharing a Redis never block each other.
func lockPrefix(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron:" + env
}
