package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	idleBackoffCap     = 10 * time.Second
	pollJitter         = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterRecorder interface {
	Record(tx *gorm.DB, entry models.DeadLetter) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// deliverer fans one resolved event out to its notification channels.
type deliverer interface {
	Dispatch(context.Context, *registry.ResolvedEvent) error
}

type ServiceParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          dbClient
	Redis       pinger
	Repository  outboxRepository
	Registry    registryResolver
	Deliverer   deliverer
	DeadLetters deadLetterRecorder
}

// Service relays committed outbox rows to the notification router. Rows are
// claimed in batches inside one transaction so a crash never loses a mark.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	redis       pinger
	repo        outboxRepository
	registry    registryResolver
	deliverer   deliverer
	deadLetters deadLetterRecorder
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		missing bool
		name    string
	}{
		{params.Config == nil, "config"},
		{params.Logger == nil, "logger"},
		{params.DB == nil, "database client"},
		{params.Redis == nil, "redis client"},
		{params.Repository == nil, "outbox repository"},
		{params.Registry == nil, "event registry"},
		{params.Deliverer == nil, "deliverer"},
		{params.DeadLetters == nil, "dead letter store"},
	}
	for _, dep := range required {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	outboxCfg := params.Config.Outbox
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		redis:       params.Redis,
		repo:        params.Repository,
		registry:    params.Registry,
		deliverer:   params.Deliverer,
		deadLetters: params.DeadLetters,
		batchSize:   positiveOr(outboxCfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(outboxCfg.MaxAttempts, defaultMaxAttempts),
		poll:        time.Duration(positiveOr(outboxCfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run polls until ctx ends. Full batches are followed immediately by another
// poll; errors back off exponentially up to idleBackoffCap.
func (s *Service) Run(ctx context.Context) error {
	for name, check := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"redis":    s.redis.Ping,
	} {
		if err := check(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	backoff := s.newErrorBackoff()
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "dispatcher stopping")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "dispatcher batch error", err)
			wait, _ = backoff.Next()
		case processed:
			backoff = s.newErrorBackoff()
			continue
		default:
			backoff = s.newErrorBackoff()
			wait = s.poll
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) newErrorBackoff() retry.Backoff {
	b := retry.NewExponential(s.poll)
	b = retry.WithJitter(pollJitter, b)
	return retry.WithCappedDuration(idleBackoffCap, b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// outcome is what the relay decided for one claimed row.
type outcome struct {
	verdict verdict
	reason  enums.DeadLetterReason
	err     error
}

// processBatch reports whether any row was claimed. One failing row never
// blocks the rest of the batch.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events) > 0
		for _, event := range events {
			resolved, res := s.deliver(ctx, event)
			if err := s.record(ctx, tx, event, resolved, res); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) (*registry.ResolvedEvent, outcome) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return nil, outcome{verdict: verdictDeadLetter, reason: enums.DeadLetterNonRetryable, err: err}
	}
	err = s.deliverer.Dispatch(ctx, resolved)
	switch {
	case err == nil:
		return resolved, outcome{verdict: verdictPublished}
	case registry.IsNonRetryable(err):
		return resolved, outcome{verdict: verdictDeadLetter, reason: enums.DeadLetterNonRetryable, err: err}
	case event.AttemptCount+1 >= s.maxAttempts:
		return resolved, outcome{
			verdict: verdictDeadLetter,
			reason:  enums.DeadLetterMaxAttempts,
			err:     fmt.Errorf("max delivery attempts reached: %w", err),
		}
	default:
		return resolved, outcome{verdict: verdictRetry, err: err}
	}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *registry.ResolvedEvent, res outcome) error {
	logCtx := s.logg.WithFields(ctx, eventLogFields(event, resolved))

	switch res.verdict {
	case verdictPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event dispatched")
		return nil

	case verdictRetry:
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"attempt_count": event.AttemptCount + 1,
			"error":         res.err.Error(),
		})
		s.logg.Warn(logCtx, "notification delivery failed; will retry")
		if err := s.repo.MarkFailedTx(tx, event.ID, res.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		return nil
	}

	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"error_reason": res.reason,
		"error":        res.err.Error(),
	})
	s.logg.Warn(logCtx, "outbox event dead-lettered")

	entry := models.DeadLetter{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		Reason:        res.reason,
		LastError:     res.err.Error(),
		Attempts:      event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.deadLetters.Record(tx, entry); err != nil {
		return fmt.Errorf("record dead letter %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, res.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func eventLogFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["event_id"] = resolved.Envelope.EventID
		channels := make([]string, 0, len(resolved.Descriptor.Channels))
		for _, ch := range resolved.Descriptor.Channels {
			channels = append(channels, string(ch))
		}
		fields["channels"] = channels
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
