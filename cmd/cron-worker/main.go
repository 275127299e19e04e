package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkroute/inkroute-backend/internal/cron"
	"github.com/inkroute/inkroute-backend/internal/fulfillment"
	"github.com/inkroute/inkroute-backend/internal/notifications"
	"github.com/inkroute/inkroute-backend/internal/quota"
	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db"
	"github.com/inkroute/inkroute-backend/pkg/instance"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/metrics"
	"github.com/inkroute/inkroute-backend/pkg/migrate"
	"github.com/inkroute/inkroute-backend/pkg/outbox"
	"github.com/inkroute/inkroute-backend/pkg/redis"
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

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"instance": instance.GetID("cron-worker"),
		"env":      cfg.App.Env,
		"interval": cfg.Cron.Interval.String(),
		"jobs":     len(registry.Jobs()),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	gormDB := dbClient.DB()
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(gormDB)
	outboxService := outbox.NewService(outboxRepo, logg)
	notificationRepo := notifications.NewRepository(gormDB)
	notificationService, err := notifications.NewService(notificationRepo)
	if err != nil {
		return nil, err
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
		return nil, err
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
		return nil, err
	}
	sweeper, err := fulfillment.NewSweeper(fulfillment.SweeperParams{
		Repo:        fulfillmentRepo,
		DB:          dbClient,
		Outbox:      outboxService,
		Grace:       cfg.Cron.OrphanGrace,
		BatchSize:   cfg.Fulfillment.DispatchBatchSize,
		MaxAttempts: cfg.Fulfillment.MaxJobAttempts,
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}

	dispatchJob, err := cron.NewFulfillmentDispatchJob(logg, poller)
	if err != nil {
		return nil, err
	}
	sweepJob, err := cron.NewOrphanSweepJob(logg, sweeper)
	if err != nil {
		return nil, err
	}
	reconcileJob, err := cron.NewQuotaReconcileJob(cron.QuotaReconcileJobParams{
		Logger:       logg,
		Ledger:       ledger,
		ReconcileAll: cfg.Cron.ReconcileAll,
	})
	if err != nil {
		return nil, err
	}
	notificationJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notificationRepo,
		Retention:  cfg.Cron.NotificationRetention,
	})
	if err != nil {
		return nil, err
	}
	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry(dispatchJob, sweepJob)
	registry.RegisterEvery(reconcileJob, cfg.Cron.ReconcileEvery)
	registry.RegisterEvery(notificationJob, cfg.Cron.CleanupEvery)
	registry.RegisterEvery(outboxJob, cfg.Cron.CleanupEvery)
	return registry, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}
