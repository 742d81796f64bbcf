package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Job is one maintenance task run by the cron worker. Jobs must tolerate
// being run twice for the same period.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its run cadence.
type Entry struct {
	Job   Job
	Every time.Duration
}

// Registry holds scheduled jobs keyed by name, in registration order.
type Registry struct {
	entries []Entry
	names   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register schedules job every interval. Names must be unique.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return errors.New("job required")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return errors.New("job name required")
	}
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}
	r.names[name] = struct{}{}
	r.entries = append(r.entries, Entry{Job: job, Every: every})
	return nil
}

// Entries returns a copy of the schedule.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
