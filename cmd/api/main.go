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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/blendpoint-backend/api/routes"
	"github.com/angelmondragon/blendpoint-backend/internal/cart"
	"github.com/angelmondragon/blendpoint-backend/internal/catalog"
	"github.com/angelmondragon/blendpoint-backend/internal/checkout"
	"github.com/angelmondragon/blendpoint-backend/internal/loyalty"
	"github.com/angelmondragon/blendpoint-backend/internal/pricing"
	"github.com/angelmondragon/blendpoint-backend/internal/promotions"
	"github.com/angelmondragon/blendpoint-backend/internal/redemption"
	"github.com/angelmondragon/blendpoint-backend/pkg/config"
	"github.com/angelmondragon/blendpoint-backend/pkg/db"
	"github.com/angelmondragon/blendpoint-backend/pkg/instance"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/metrics"
	"github.com/angelmondragon/blendpoint-backend/pkg/migrate"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
			logg.Error(context.Background(), "error closing api resources", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.NewEngine(registry)

	services, err := buildServices(cfg, dbClient, engineMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Infra{
			DB:       dbClient,
			Redis:    redisClient,
			Gatherer: registry,
		}, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildServices(cfg *config.Config, dbClient *db.Client, m *metrics.Engine, logg *logger.Logger) (routes.Services, error) {
	conn := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	reader := catalog.NewRepository(conn)

	calc, err := pricing.NewCalculator(reader)
	if err != nil {
		return routes.Services{}, err
	}
	promos, err := promotions.NewService(promotions.NewRepository(conn), dbClient, events, m, logg)
	if err != nil {
		return routes.Services{}, err
	}
	wallet, err := loyalty.NewService(loyalty.NewRepository(conn), dbClient, events, logg)
	if err != nil {
		return routes.Services{}, err
	}
	cartRepo := cart.NewRepository(conn)
	carts, err := cart.NewService(cart.Deps{
		Repo:       cartRepo,
		Tx:         dbClient,
		Catalog:    reader,
		Calculator: calc,
		Promotions: promos,
		Events:     events,
		Metrics:    m,
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, err
	}
	orders, err := checkout.NewService(checkout.NewRepository(conn), cartRepo, dbClient, carts, promos, wallet, events, checkout.Settings{
		DefaultTaxRate: cfg.Pricing.TaxRateDecimal(),
		PointsPerUnit:  cfg.Pricing.PointsPerUnitDecimal(),
	}, logg)
	if err != nil {
		return routes.Services{}, err
	}
	redeem, err := redemption.NewService(redemption.NewRepository(conn), dbClient, wallet, events, m, logg)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Calculator: calc,
		Carts:      carts,
		Checkout:   orders,
		Promotions: promos,
		Redemption: redeem,
		Loyalty:    wallet,
	}, nil
}
