package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/internal/quotes"
	"github.com/angelmondragon/quotedesk-backend/internal/sequence"
	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox"
)

const (
	cmdPurgeOrphanedQuotes = "purge-orphaned-quotes"
	cmdListDeadLetters     = "list-dead-letters"
	cmdShowDeadLetter      = "show-dead-letter"
	cmdSequenceStatus      = "sequence-status"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type deadLetterLister interface {
	Recent(ctx context.Context, filter outbox.DeadLetterFilter) ([]models.DeadLetter, error)
}

type deadLetterFinder interface {
	Find(ctx context.Context, eventID uuid.UUID) (*models.DeadLetter, error)
}

type sequenceReader interface {
	Current(ctx context.Context) (int64, error)
}

// purgeOrphanedQuotes deletes every quote that references a deleted product
// in a single transaction. Quote statuses are never rewritten.
func purgeOrphanedQuotes(ctx context.Context, db txRunner, repo *quotes.Repository, logg *logger.Logger, dryRun bool) ([]uuid.UUID, error) {
	if dryRun {
		ids, err := repo.OrphanedQuoteIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list orphaned quotes: %w", err)
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"quote_ids": idStrings(ids),
			"count":     len(ids),
		}), "orphaned quotes found (dry run)")
		return ids, nil
	}

	var purged []uuid.UUID
	err := db.WithTx(ctx, func(tx *gorm.DB) error {
		ids, err := repo.WithTx(tx).DeleteReferencingDeletedProducts(ctx)
		if err != nil {
			return err
		}
		purged = ids
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("purge orphaned quotes: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"quote_ids": idStrings(purged),
		"count":     len(purged),
	}), "orphaned quotes purged")
	return purged, nil
}

// listDeadLetters logs one line per dead letter so operators can grep by
// aggregate before replaying a notification by hand.
func listDeadLetters(ctx context.Context, store deadLetterLister, logg *logger.Logger, reason string, limit int) error {
	filter := outbox.DeadLetterFilter{Limit: limit}
	switch enums.DeadLetterReason(reason) {
	case "":
	case enums.DeadLetterMaxAttempts, enums.DeadLetterNonRetryable:
		filter.Reason = enums.DeadLetterReason(reason)
	default:
		return fmt.Errorf("unknown -reason %q", reason)
	}

	rows, err := store.Recent(ctx, filter)
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}
	for _, row := range rows {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"event_id":      row.EventID.String(),
			"event_type":    row.EventType,
			"aggregate_id":  row.AggregateID.String(),
			"reason":        row.Reason,
			"attempt_count": row.Attempts,
			"failed_at":     row.FailedAt,
			"last_error":    row.LastError,
		}), "dead letter")
	}
	logg.Info(logg.WithField(ctx, "count", len(rows)), "dead letters listed")
	return nil
}

// showDeadLetter logs one dead letter with its payload so an operator can
// rebuild the notification by hand.
func showDeadLetter(ctx context.Context, store deadLetterFinder, logg *logger.Logger, rawEventID string) error {
	eventID, err := uuid.Parse(rawEventID)
	if err != nil {
		return fmt.Errorf("invalid -event %q: %w", rawEventID, err)
	}
	row, err := store.Find(ctx, eventID)
	if err != nil {
		return fmt.Errorf("find dead letter: %w", err)
	}
	if row == nil {
		return fmt.Errorf("no dead letter for event %s", eventID)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"event_id":       row.EventID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"reason":         row.Reason,
		"attempt_count":  row.Attempts,
		"failed_at":      row.FailedAt,
		"last_error":     row.LastError,
		"payload":        string(row.Payload),
	}), "dead letter")
	return nil
}

// sequenceStatus reports the last issued quote number and the next reference
// a new quote would get.
func sequenceStatus(ctx context.Context, seq sequenceReader, logg *logger.Logger) (int64, error) {
	current, err := seq.Current(ctx)
	if err != nil {
		return 0, fmt.Errorf("read quote sequence: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"last_issued":    current,
		"next_reference": sequence.FormatQuoteNumber(current + 1),
	}), "quote sequence status")
	return current, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
