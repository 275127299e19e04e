package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkroute/inkroute-backend/api/routes"
	"github.com/inkroute/inkroute-backend/internal/audit"
	"github.com/inkroute/inkroute-backend/internal/auth"
	"github.com/inkroute/inkroute-backend/internal/fulfillment"
	"github.com/inkroute/inkroute-backend/internal/notifications"
	"github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/internal/platforms"
	productsvc "github.com/inkroute/inkroute-backend/internal/products"
	"github.com/inkroute/inkroute-backend/internal/providers"
	"github.com/inkroute/inkroute-backend/internal/quota"
	"github.com/inkroute/inkroute-backend/internal/stores"
	"github.com/inkroute/inkroute-backend/internal/users"
	"github.com/inkroute/inkroute-backend/internal/webhooks"
	"github.com/inkroute/inkroute-backend/pkg/auth/session"
	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db"
	"github.com/inkroute/inkroute-backend/pkg/dedupe"
	"github.com/inkroute/inkroute-backend/pkg/instance"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/metrics"
	"github.com/inkroute/inkroute-backend/pkg/migrate"
	"github.com/inkroute/inkroute-backend/pkg/outbox"
	"github.com/inkroute/inkroute-backend/pkg/redis"
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
		Level:       cfg.App.LogLevel,
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

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID("api"),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	gormDB := dbClient.DB()
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	httpClient := &http.Client{Timeout: cfg.Webhooks.AdapterTimeout}
	adapterOpts := []platforms.Option{
		platforms.WithShopifyAPIVersion(cfg.Webhooks.ShopifyAPIVersion),
		platforms.WithFallbackSecret(cfg.Webhooks.ShopifySecret),
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return routes.Dependencies{}, err
	}
	userRepo := users.NewRepository(gormDB)
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	auditRecorder := audit.NewRecorder(gormDB)
	userAdmin, err := users.NewAdminService(userRepo, dbClient, auditRecorder)
	if err != nil {
		return routes.Dependencies{}, err
	}

	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	notificationService, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		return routes.Dependencies{}, err
	}

	ledger, err := quota.NewLedger(quota.LedgerParams{
		Repo:     quota.NewRepository(gormDB),
		DB:       dbClient,
		Notifier: notificationService,
		Outbox:   outboxService,
		Config:   cfg.Quota,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	storeService, err := stores.NewService(stores.NewRepository(gormDB), cfg.APIKey)
	if err != nil {
		return routes.Dependencies{}, err
	}

	productRepo := productsvc.NewRepository(gormDB)
	productService, err := productsvc.NewService(productRepo, dbClient, storeService, ledger)
	if err != nil {
		return routes.Dependencies{}, err
	}

	providerRepo := providers.NewRepository(gormDB)
	providerService, err := providers.NewService(providerRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(gormDB),
		DB:        dbClient,
		Stores:    storeService,
		Quota:     ledger,
		Providers: providerRepo,
		Products:  productRepo,
		Outbox:    outboxService,
		Notifier:  notificationService,
		Metrics:   pipelineMetrics,
		Config:    cfg.Fulfillment,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	fulfillmentRepo := fulfillment.NewRepository(gormDB)
	poller, err := fulfillment.NewPoller(fulfillment.PollerParams{
		Repo:       fulfillmentRepo,
		DB:         dbClient,
		Dispatcher: fulfillment.NewOutboxDispatcher(outboxService),
		Outbox:     outboxService,
		Metrics:    pipelineMetrics,
		Config:     cfg.Fulfillment,
		Logger:     logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	syncer, err := platforms.NewSyncer(storeService, httpClient, logg, adapterOpts...)
	if err != nil {
		return routes.Dependencies{}, err
	}
	fulfillmentService, err := fulfillment.NewService(fulfillment.ServiceParams{
		Repo:      fulfillmentRepo,
		DB:        dbClient,
		Stores:    storeService,
		Providers: providerRepo,
		Quota:     ledger,
		Outbox:    outboxService,
		Audit:     auditRecorder,
		Notifier:  notificationService,
		Sync:      syncer,
		Jobs:      poller,
		Metrics:   pipelineMetrics,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	deliveryGuard, err := dedupe.NewGuard(redisClient, cfg.Webhooks.DedupeTTL)
	if err != nil {
		return routes.Dependencies{}, err
	}
	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Stores:         storeService,
		Orders:         orderService,
		Guard:          deliveryGuard,
		Limiter:        redisClient,
		RateLimit:      cfg.Webhooks.RateLimitPerMin,
		HTTPClient:     httpClient,
		AdapterOptions: adapterOpts,
		Logger:         logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		DB:            dbClient,
		Cache:         redisClient,
		Sessions:      sessionManager,
		Gatherer:      prometheus.DefaultGatherer,
		Auth:          authService,
		Stores:        storeService,
		Products:      productService,
		Orders:        orderService,
		Fulfillment:   fulfillmentService,
		Notifications: notificationService,
		Providers:     providerService,
		Users:         userAdmin,
		Quota:         ledger,
		Webhooks:      webhookService,
	}, nil
}
