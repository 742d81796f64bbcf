package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMapStore() *mapStore {
	return &mapStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mapStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *mapStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *mapStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *mapStore) SwapIfValue(_ context.Context, key, current, next string, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if v, ok := m.values[key]; !ok || v != current {
		return false, nil
	}
	m.values[key] = next
	m.ttls[key] = ttl
	return true, nil
}

func (m *mapStore) IdempotencyKey(scope, id string) string {
	return "qd:idempotency:" + scope + ":" + id
}

func (m *mapStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

var claimTime = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newClaims(t *testing.T, store *mapStore, ttl time.Duration) *Claims {
	t.Helper()
	claims, err := NewClaims(store, ttl, time.Minute)
	require.NoError(t, err)
	claims.now = func() time.Time { return claimTime }
	return claims
}

func TestClaimIsWonOnce(t *testing.T) {
	store := newMapStore()
	claims := newClaims(t, store, 24*time.Hour)
	eventID := uuid.New()
	ctx := context.Background()

	won, err := claims.Claim(ctx, "notify-email", eventID)
	require.NoError(t, err)
	require.True(t, won)

	key := "qd:idempotency:delivery:notify-email:" + eventID.String()
	require.Equal(t, 24*time.Hour, store.ttls[key])

	won, err = claims.Claim(ctx, "notify-email", eventID)
	require.ErrorIs(t, err, ErrInFlight, "an unconfirmed claim is still in flight")
	require.False(t, won)

	require.NoError(t, claims.Confirm(ctx, "notify-email", eventID))
	require.Equal(t, "sent:"+claimTime.Format(time.RFC3339Nano), store.values[key])
	won, err = claims.Claim(ctx, "notify-email", eventID)
	require.NoError(t, err)
	require.False(t, won)

	won, err = claims.Claim(ctx, "notify-webhook", eventID)
	require.NoError(t, err)
	require.True(t, won, "consumers claim independently")
}

func TestReleaseAllowsReclaim(t *testing.T) {
	claims := newClaims(t, newMapStore(), time.Hour)
	eventID := uuid.New()
	ctx := context.Background()

	_, err := claims.Claim(ctx, "notify-email", eventID)
	require.NoError(t, err)
	require.NoError(t, claims.Release(ctx, "notify-email", eventID))

	won, err := claims.Claim(ctx, "notify-email", eventID)
	require.NoError(t, err)
	require.True(t, won)
}

func TestClaimedAt(t *testing.T) {
	claims := newClaims(t, newMapStore(), time.Hour)
	eventID := uuid.New()
	ctx := context.Background()

	_, ok, err := claims.ClaimedAt(ctx, "notify-email", eventID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = claims.Claim(ctx, "notify-email", eventID)
	require.NoError(t, err)
	at, ok, err := claims.ClaimedAt(ctx, "notify-email", eventID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, claimTime, at)

	store := newMapStore()
	claims = newClaims(t, store, time.Hour)
	store.values["qd:idempotency:delivery:notify-email:"+eventID.String()] = "not-a-claim"
	_, ok, err = claims.ClaimedAt(ctx, "notify-email", eventID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStalePendingClaimIsTakenOver(t *testing.T) {
	store := newMapStore()
	claims := newClaims(t, store, time.Hour)
	eventID := uuid.New()
	ctx := context.Background()
	key := "qd:idempotency:delivery:notify-email:" + eventID.String()

	store.values[key] = "pending:" + claimTime.Add(-30*time.Second).Format(time.RFC3339Nano)
	_, err := claims.Claim(ctx, "notify-email", eventID)
	require.ErrorIs(t, err, ErrInFlight, "inside the stale window")

	store.values[key] = "pending:" + claimTime.Add(-2*time.Minute).Format(time.RFC3339Nano)
	won, err := claims.Claim(ctx, "notify-email", eventID)
	require.NoError(t, err)
	require.True(t, won)
	require.Equal(t, "pending:"+claimTime.Format(time.RFC3339Nano), store.values[key])

	store.values[key] = "sent:" + claimTime.Add(-48*time.Hour).Format(time.RFC3339Nano)
	won, err = claims.Claim(ctx, "notify-email", eventID)
	require.NoError(t, err)
	require.False(t, won, "confirmed claims never go stale")
}

func TestPendingClaimsNeverStaleWithoutWindow(t *testing.T) {
	store := newMapStore()
	claims, err := NewClaims(store, time.Hour, 0)
	require.NoError(t, err)
	eventID := uuid.New()
	key := "qd:idempotency:delivery:notify-email:" + eventID.String()
	store.values[key] = "pending:" + time.Now().Add(-24*time.Hour).UTC().Format(time.RFC3339Nano)

	_, err = claims.Claim(context.Background(), "notify-email", eventID)
	require.ErrorIs(t, err, ErrInFlight)
}

func TestClaimErrors(t *testing.T) {
	store := newMapStore()
	store.err = errors.New("boom")
	claims := newClaims(t, store, time.Hour)

	_, err := claims.Claim(context.Background(), "notify-email", uuid.New())
	require.ErrorContains(t, err, "boom")

	_, err = claims.Claim(context.Background(), "", uuid.New())
	require.Error(t, err)
	_, err = claims.Claim(context.Background(), "notify-email", uuid.Nil)
	require.Error(t, err)

	_, err = NewClaims(nil, time.Hour, 0)
	require.Error(t, err)
	_, err = NewClaims(store, -time.Second, 0)
	require.Error(t, err)
	_, err = NewClaims(store, time.Hour, -time.Second)
	require.Error(t, err)
}
