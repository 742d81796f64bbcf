package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLeaseStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLeaseStore() *memoryLeaseStore {
	return &memoryLeaseStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLeaseStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLeaseStore) ExtendIfOwner(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if m.values[key] != owner {
		return false, nil
	}
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLeaseStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

const testLockKey = "qd:lock:cron-worker:test"

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryLeaseStore()
	first, err := NewRedisLock(store, testLockKey, 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, testLockKey, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, defaultLeaseTTL, store.ttls[testLockKey])

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok, "a held lock must not be acquired twice")

	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, testLockKey, "non-owner release must not drop the lock")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok, "lock should be free after owner release")
}

func TestRedisLockRefreshDetectsTakeover(t *testing.T) {
	store := newMemoryLeaseStore()
	lock, err := NewRedisLock(store, testLockKey, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.ErrorIs(t, lock.Refresh(ctx), ErrLockLost, "refresh without a lease")

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	store.ttls[testLockKey] = time.Second
	require.NoError(t, lock.Refresh(ctx))
	require.Equal(t, time.Minute, store.ttls[testLockKey])

	// Simulate expiry followed by another worker taking the key.
	store.values[testLockKey] = "someone-else"
	err = lock.Refresh(ctx)
	require.True(t, errors.Is(err, ErrLockLost))
	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "someone-else", store.values[testLockKey])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	require.Error(t, err)
	_, err = NewRedisLock(newMemoryLeaseStore(), "", 0)
	require.Error(t, err)
}

func TestRedisLockOwnerNamesHolder(t *testing.T) {
	store := newMemoryLeaseStore()
	lock, err := NewRedisLock(store, testLockKey, time.Minute)
	require.NoError(t, err)

	ok, err := lock.HeldBy("cron-worker.1").Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(store.values[testLockKey], "cron-worker.1/"), store.values[testLockKey])
}
