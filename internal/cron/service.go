package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	"github.com/angelmondragon/quotedesk-backend/pkg/metrics"
)

const defaultTick = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Tick is how often the schedule is checked for due jobs.
	Tick time.Duration
}

// Service wakes every tick and runs the jobs whose interval has elapsed.
// A cycle only runs while this instance holds the lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time
	nextRun  map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		tick:     tick,
		now:      time.Now,
		nextRun:  make(map[string]time.Time),
	}, nil
}

// Run blocks until ctx is canceled. Every job is due on the first tick.
func (s *Service) Run(ctx context.Context) error {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "cron cycle failed", err)
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "cron cycle failed", err)
			}
		}
	}
}

func (s *Service) dueEntries(now time.Time) []Entry {
	var due []Entry
	for _, entry := range s.registry.Entries() {
		if next, ok := s.nextRun[entry.Job.Name()]; ok && now.Before(next) {
			continue
		}
		due = append(due, entry)
	}
	return due
}

func (s *Service) schedule(entries []Entry, from time.Time) {
	for _, entry := range entries {
		s.nextRun[entry.Job.Name()] = from.Add(entry.Every)
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	now := s.now()
	due := s.dueEntries(now)
	if len(due) == 0 {
		return nil
	}

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		// The holder is running this round; wait a full interval.
		s.schedule(due, now)
		s.logg.Info(ctx, "cron lock held by another instance; skipping due jobs")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	var errs error
	for i, entry := range due {
		if i > 0 {
			if err := s.lock.Refresh(ctx); err != nil {
				if errors.Is(err, ErrLockLost) {
					s.logg.Warn(ctx, "cron lock lost mid-cycle; remaining jobs deferred")
				}
				return multierr.Append(errs, err)
			}
		}
		if err := s.runJob(ctx, entry.Job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", entry.Job.Name(), err))
		}
		s.schedule([]Entry{entry}, now)
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	took := time.Since(start)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	s.metrics.Observe(job.Name(), err == nil, took)
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}
