package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/quotedesk-backend/internal/notifications"
	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/db"
	"github.com/angelmondragon/quotedesk-backend/pkg/instance"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/metrics"
	"github.com/angelmondragon/quotedesk-backend/pkg/migrate"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/registry"
	"github.com/angelmondragon/quotedesk-backend/pkg/redis"
)

const serviceName = "dispatcher"

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

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "dispatcher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "dispatcher shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	router, err := newRouter(ctx, cfg, logg, redisClient)
	if err != nil {
		return err
	}

	service, err := NewService(ServiceParams{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		Repository:  outbox.NewRepository(dbClient.DB()),
		Registry:    registry.NewEventRegistry(),
		Deliverer:   router,
		DeadLetters: outbox.NewDeadLetters(dbClient.DB()),
	})
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	logg.Info(ctx, "starting dispatcher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newRouter wires the notification channels. A channel without credentials
// stays registered but reports itself disabled.
func newRouter(ctx context.Context, cfg *config.Config, logg *logger.Logger, store *redis.Client) (*notifications.Router, error) {
	// A pending claim must outlive the send it guards.
	staleAfter := max(cfg.Eventing.ClaimStaleAfter, 2*cfg.Notifications.Timeout)
	claims, err := idempotency.NewClaims(store, cfg.Eventing.ConsumerIdempotencyTTL, staleAfter)
	if err != nil {
		return nil, fmt.Errorf("delivery claims: %w", err)
	}

	email := notifications.NewEmailSender(cfg.Notifications)
	webhook := notifications.NewWebhookSender(cfg.Notifications, nil)
	if !email.Enabled() {
		logg.Warn(ctx, "email channel disabled: sendgrid credentials missing")
	}
	if !webhook.Enabled() {
		logg.Warn(ctx, "webhook channel disabled: automation url missing")
	}

	router, err := notifications.NewRouter(notifications.RouterParams{
		Config:  cfg.Notifications,
		Email:   email,
		Webhook: webhook,
		Claims:  claims,
		Metrics: metrics.NewNotificationMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("notification router: %w", err)
	}
	return router, nil
}
