package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/metrics"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox"
)

type backlogSource interface {
	Backlog(ctx context.Context, maxAttempts int) (outbox.Backlog, error)
}

type deadLetterCounter interface {
	Count(ctx context.Context) (int64, error)
}

type OutboxBacklogJobParams struct {
	Logger      *logger.Logger
	Outbox      backlogSource
	DeadLetters deadLetterCounter
	Metrics     *metrics.OutboxBacklogMetrics
	MaxAttempts int
	// WarnAge logs a warning once the oldest dispatchable row is older.
	WarnAge time.Duration
}

// NewOutboxBacklogJob publishes gauges describing undelivered notifications.
func NewOutboxBacklogJob(params OutboxBacklogJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil || params.DeadLetters == nil {
		return nil, fmt.Errorf("outbox repositories required")
	}
	return &outboxBacklogJob{
		logg:        params.Logger,
		outbox:      params.Outbox,
		deadLetters: params.DeadLetters,
		metrics:     params.Metrics,
		maxAttempts: params.MaxAttempts,
		warnAge:     params.WarnAge,
		now:         time.Now,
	}, nil
}

type outboxBacklogJob struct {
	logg        *logger.Logger
	outbox      backlogSource
	deadLetters deadLetterCounter
	metrics     *metrics.OutboxBacklogMetrics
	maxAttempts int
	warnAge     time.Duration
	now         func() time.Time
}

func (j *outboxBacklogJob) Name() string { return "outbox-backlog" }

func (j *outboxBacklogJob) Run(ctx context.Context) error {
	backlog, err := j.outbox.Backlog(ctx, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("count outbox backlog: %w", err)
	}
	dead, err := j.deadLetters.Count(ctx)
	if err != nil {
		return fmt.Errorf("count dead letters: %w", err)
	}

	var age time.Duration
	if backlog.OldestPendingAt != nil {
		age = j.now().UTC().Sub(*backlog.OldestPendingAt)
	}
	j.metrics.Set(backlog.Pending, backlog.Exhausted, dead, age)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"pending":            backlog.Pending,
		"exhausted":          backlog.Exhausted,
		"dead_letters":       dead,
		"oldest_pending_age": age.String(),
	})
	if j.warnAge > 0 && age > j.warnAge {
		j.logg.Warn(logCtx, "outbox backlog is falling behind")
		return nil
	}
	j.logg.Info(logCtx, "outbox backlog sampled")
	return nil
}
