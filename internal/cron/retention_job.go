package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
)

const (
	defaultOutboxRetention     = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
)

type publishedPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type deadLetterPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type RetentionJobParams struct {
	Logger      *logger.Logger
	Outbox      publishedPurger
	DeadLetters deadLetterPurger
	// Windows default to 30 days for delivered outbox rows and 90 days for
	// dead letters.
	OutboxWindow     time.Duration
	DeadLetterWindow time.Duration
}

// sweep deletes one kind of row older than now minus window.
type sweep struct {
	table  string
	window time.Duration
	purge  func(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewRetentionJob prunes delivered outbox rows and old dead letters.
// Undelivered outbox rows are never touched.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil || params.DeadLetters == nil {
		return nil, fmt.Errorf("retention job needs outbox and dead letter stores")
	}
	return &retentionJob{
		logg: params.Logger,
		sweeps: []sweep{
			{table: "outbox_events", window: orDefault(params.OutboxWindow, defaultOutboxRetention), purge: params.Outbox.DeletePublishedBefore},
			{table: "outbox_dead_letters", window: orDefault(params.DeadLetterWindow, defaultDeadLetterRetention), purge: params.DeadLetters.PurgeBefore},
		},
		now: time.Now,
	}, nil
}

type retentionJob struct {
	logg   *logger.Logger
	sweeps []sweep
	now    func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

// Run attempts every sweep even when an earlier one fails.
func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	for _, s := range j.sweeps {
		cutoff := now.Add(-s.window)
		deleted, err := s.purge(ctx, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune %s: %w", s.table, err))
			continue
		}
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"table":        s.table,
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		}), "retention sweep complete")
	}
	return errs
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
