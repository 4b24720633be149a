package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/blendpoint-backend/internal/cart"
	"github.com/angelmondragon/blendpoint-backend/internal/catalog"
	"github.com/angelmondragon/blendpoint-backend/internal/cron"
	"github.com/angelmondragon/blendpoint-backend/internal/pricing"
	"github.com/angelmondragon/blendpoint-backend/internal/promotions"
	"github.com/angelmondragon/blendpoint-backend/pkg/config"
	"github.com/angelmondragon/blendpoint-backend/pkg/db"
	"github.com/angelmondragon/blendpoint-backend/pkg/instance"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/metrics"
	"github.com/angelmondragon/blendpoint-backend/pkg/migrate"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

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
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing cron worker resources", err)
		}
	}()

	carts, err := buildCartService(dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build cart service", err)
		os.Exit(1)
	}

	sweep, err := cron.NewCartSweepJob(cron.CartSweepJobParams{
		Logger:  logg,
		Carts:   carts,
		IdleTTL: cfg.Cron.CartIdleTTL,
		Batch:   cfg.Cron.CartSweepBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart sweep job", err)
		os.Exit(1)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Cron.OutboxRetentionDays,
		Batch:         cfg.Cron.OutboxPruneBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(sweep, retention)
	if err != nil {
		logg.Error(context.Background(), "failed to build job registry", err)
		os.Exit(1)
	}

	lock, err := redis.NewLock(redisClient, redisClient.LockKey(serviceName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:       logg,
		Registry:     registry,
		Lock:         lock,
		Metrics:      metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:     cfg.Cron.Interval,
		CycleTimeout: cfg.Cron.LockTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Cron.Interval.String(),
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildCartService wires the cart store the sweep job abandons carts through.
func buildCartService(dbClient *db.Client, logg *logger.Logger) (cart.Service, error) {
	conn := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	reader := catalog.NewRepository(conn)

	calc, err := pricing.NewCalculator(reader)
	if err != nil {
		return nil, err
	}
	promos, err := promotions.NewService(promotions.NewRepository(conn), dbClient, events, nil, logg)
	if err != nil {
		return nil, err
	}
	return cart.NewService(cart.Deps{
		Repo:       cart.NewRepository(conn),
		Tx:         dbClient,
		Catalog:    reader,
		Calculator: calc,
		Promotions: promos,
		Events:     events,
		Logger:     logg,
	})
}
