package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/quotedesk-backend/internal/quotes"
	"github.com/angelmondragon/quotedesk-backend/internal/sequence"
	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/db"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "maintenance"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "", "maintenance command: purge-orphaned-quotes|list-dead-letters|show-dead-letter|sequence-status")
	dryRun := flag.Bool("dry-run", false, "report affected rows without changing anything")
	limit := flag.Int("limit", 50, "max rows for list commands")
	reason := flag.String("reason", "", "list-dead-letters filter: max_attempts|non_retryable")
	eventID := flag.String("event", "", "show-dead-letter: outbox event id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "maintenance",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"dryRun": *dryRun,
	})

	if err := run(ctx, cfg, logg, options{cmd: *cmd, dryRun: *dryRun, limit: *limit, reason: *reason, eventID: *eventID}); err != nil {
		logg.Error(ctx, "maintenance command failed", err)
		os.Exit(1)
	}
}

type options struct {
	cmd     string
	dryRun  bool
	limit   int
	reason  string
	eventID string
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) (err error) {
	switch opts.cmd {
	case cmdPurgeOrphanedQuotes, cmdListDeadLetters, cmdShowDeadLetter, cmdSequenceStatus:
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	switch opts.cmd {
	case cmdPurgeOrphanedQuotes:
		_, err = purgeOrphanedQuotes(ctx, dbClient, quotes.NewRepository(dbClient.DB()), logg, opts.dryRun)
	case cmdListDeadLetters:
		err = listDeadLetters(ctx, outbox.NewDeadLetters(dbClient.DB()), logg, opts.reason, opts.limit)
	case cmdShowDeadLetter:
		err = showDeadLetter(ctx, outbox.NewDeadLetters(dbClient.DB()), logg, opts.eventID)
	case cmdSequenceStatus:
		var seq *sequence.Allocator
		seq, err = sequence.NewAllocator(dbClient.DB(), cfg.Quotes.SequenceName)
		if err == nil {
			_, err = sequenceStatus(ctx, seq, logg)
		}
	}
	return err
}
