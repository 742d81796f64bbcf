package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
)

type fakeLock struct {
	held       bool
	acquires   int
	refreshErr error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	f.acquires++
	return true, nil
}

func (f *fakeLock) Refresh(context.Context) error { return f.refreshErr }

func (f *fakeLock) Release(context.Context) error { f.held = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, entries ...Entry) (*Service, *time.Time) {
	t.Helper()
	registry := NewRegistry()
	for _, entry := range entries {
		require.NoError(t, registry.Register(entry.Job, entry.Every))
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
	})
	require.NoError(t, err)
	clock := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return clock }
	return service, &clock
}

func TestRunCycleRunsEveryJobEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "success"}
	bad := &testJob{name: "fail", err: errors.New("boom")}
	service, _ := newTestService(t, &fakeLock{},
		Entry{Job: ok, Every: time.Hour},
		Entry{Job: bad, Every: time.Hour},
	)

	err := service.runCycle(context.Background())
	require.ErrorContains(t, err, "fail: boom")
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, bad.runs)
}

func TestRunCycleHonoursPerJobInterval(t *testing.T) {
	fast := &testJob{name: "outbox-backlog"}
	slow := &testJob{name: "retention"}
	lock := &fakeLock{}
	service, clock := newTestService(t, lock,
		Entry{Job: fast, Every: 5 * time.Minute},
		Entry{Job: slow, Every: 24 * time.Hour},
	)
	ctx := context.Background()

	require.NoError(t, service.runCycle(ctx))
	*clock = clock.Add(time.Minute)
	require.NoError(t, service.runCycle(ctx))
	require.Equal(t, 1, lock.acquires, "nothing due means no lock round-trip")

	*clock = clock.Add(5 * time.Minute)
	require.NoError(t, service.runCycle(ctx))
	require.Equal(t, 2, fast.runs)
	require.Equal(t, 1, slow.runs)
}

func TestRunCycleDefersWhenLockHeld(t *testing.T) {
	job := &testJob{name: "retention"}
	lock := &fakeLock{held: true}
	service, clock := newTestService(t, lock, Entry{Job: job, Every: time.Hour})
	ctx := context.Background()

	require.NoError(t, service.runCycle(ctx))
	require.Zero(t, job.runs)

	lock.held = false
	*clock = clock.Add(30 * time.Minute)
	require.NoError(t, service.runCycle(ctx))
	require.Zero(t, job.runs, "another instance covered this interval")

	*clock = clock.Add(31 * time.Minute)
	require.NoError(t, service.runCycle(ctx))
	require.Equal(t, 1, job.runs)
}

func TestRunCycleStopsWhenLockLost(t *testing.T) {
	first := &testJob{name: "first"}
	second := &testJob{name: "second"}
	service, _ := newTestService(t, &fakeLock{refreshErr: ErrLockLost},
		Entry{Job: first, Every: time.Hour},
		Entry{Job: second, Every: time.Hour},
	)

	err := service.runCycle(context.Background())
	require.ErrorIs(t, err, ErrLockLost)
	require.Equal(t, 1, first.runs)
	require.Zero(t, second.runs)

	require.Len(t, service.dueEntries(service.now()), 1, "the skipped job stays due")
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})})
	require.Error(t, err)
}
