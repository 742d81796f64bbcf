package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/quotedesk-backend/internal/cron"
	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/db"
	"github.com/angelmondragon/quotedesk-backend/pkg/instance"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/metrics"
	"github.com/angelmondragon/quotedesk-backend/pkg/migrate"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox"
	"github.com/angelmondragon/quotedesk-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	exitOn(logg, err, "load config")
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(logg, err, "bootstrap database")
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()
	exitOn(logg, migrate.MaybeRunDev(ctx, cfg, logg, dbClient), "run dev migrations")

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	exitOn(logg, err, "bootstrap redis")
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient)
	exitOn(logg, err, "register cron jobs")

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName+":"+envOrLocal(cfg.App.Env)), cfg.Cron.LockTTL)
	exitOn(logg, err, "create cron lock")
	lock.HeldBy(instance.ID())

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Tick:     cfg.Cron.Tick,
	})
	exitOn(logg, err, "create cron service")

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	events := outbox.NewRepository(dbClient.DB())
	deadLetters := outbox.NewDeadLetters(dbClient.DB())

	retention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:           logg,
		Outbox:           events,
		DeadLetters:      deadLetters,
		OutboxWindow:     cfg.Cron.OutboxRetention,
		DeadLetterWindow: cfg.Cron.DeadLetterRetention,
	})
	if err != nil {
		return nil, err
	}
	backlog, err := cron.NewOutboxBacklogJob(cron.OutboxBacklogJobParams{
		Logger:      logg,
		Outbox:      events,
		DeadLetters: deadLetters,
		Metrics:     metrics.NewOutboxBacklogMetrics(prometheus.DefaultRegisterer),
		MaxAttempts: cfg.Outbox.MaxAttempts,
		WarnAge:     cfg.Cron.OutboxBacklogWarnAge,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	if err := registry.Register(retention, cfg.Cron.RetentionEvery); err != nil {
		return nil, err
	}
	if err := registry.Register(backlog, cfg.Cron.OutboxBacklogEvery); err != nil {
		return nil, err
	}
	return registry, nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func exitOn(logg *logger.Logger, err error, action string) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to "+action, err)
	os.Exit(1)
}
