package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/quotedesk-backend/api/routes"
	"github.com/angelmondragon/quotedesk-backend/internal/quotes"
	"github.com/angelmondragon/quotedesk-backend/internal/sequence"
	"github.com/angelmondragon/quotedesk-backend/internal/stock"
	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/db"
	"github.com/angelmondragon/quotedesk-backend/pkg/instance"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/metrics"
	"github.com/angelmondragon/quotedesk-backend/pkg/migrate"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox"
	"github.com/angelmondragon/quotedesk-backend/pkg/redis"
)

const serviceName = "api"

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server exited", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then drains in-flight requests for at
// most cfg.API.ShutdownTimeout. Connections are closed on the way out.
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

	ledger, err := stock.NewLedger(dbClient.DB(), dbClient, logg)
	if err != nil {
		return fmt.Errorf("stock ledger: %w", err)
	}
	quoteService, err := newQuoteService(cfg, logg, dbClient, ledger)
	if err != nil {
		return err
	}

	addr := listenAddr(cfg)
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, quoteService, ledger, promhttp.Handler()),
		ReadHeaderTimeout: cfg.API.ReadHeaderTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
	}

	logCtx := logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr, "instance": instance.ID()})
	logg.Info(logCtx, "starting api server")

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func newQuoteService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, ledger *stock.Ledger) (quotes.Service, error) {
	allocator, err := sequence.NewAllocator(dbClient.DB(), cfg.Quotes.SequenceName)
	if err != nil {
		return nil, fmt.Errorf("sequence allocator: %w", err)
	}
	svc, err := quotes.NewService(quotes.ServiceParams{
		Repo:     quotes.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Numbers:  allocator,
		Stock:    ledger,
		Outbox:   outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:  metrics.NewQuoteMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
		Currency: cfg.Quotes.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("quote service: %w", err)
	}
	return svc, nil
}

// listenAddr honours a platform-assigned PORT over the configured one.
func listenAddr(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + cfg.App.Port
}
