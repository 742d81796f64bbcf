package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/quotedesk-backend/pkg/config"
)

func TestSetNXKeepsFirstOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, "qd:lock:job", "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, "qd:lock:job", "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	value, err := client.Get(ctx, "qd:lock:job")
	require.NoError(t, err)
	require.Equal(t, "owner-a", value)

	require.NoError(t, client.Del(ctx, "qd:lock:job"))
	_, err = client.Get(ctx, "qd:lock:job")
	require.ErrorIs(t, err, redis.Nil)
}

func TestIncrWithTTLStartsWindowOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("quote-create", "ip", "1.2.3.4")

	count, err := client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, mock.ttls[key])
	delete(mock.ttls, key)

	count, err = client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.NotContains(t, mock.ttls, key, "window must not slide on later hits")
	require.Equal(t, 2, mock.evals)
}

func TestOwnerScriptsIgnoreForeignLeases(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	require.NoError(t, err)
	require.False(t, released)

	extended, err := client.ExtendIfOwner(ctx, key, "owner-a", 2*time.Minute)
	require.NoError(t, err)
	require.True(t, extended)
	require.Equal(t, 2*time.Minute, mock.ttls[key])

	_, err = client.ExtendIfOwner(ctx, key, "owner-a", 0)
	require.Error(t, err)

	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	require.NoError(t, err)
	require.True(t, released)
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestUnconnectedClient(t *testing.T) {
	var client Client
	require.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	_, err := client.IncrWithTTL(context.Background(), "k", time.Second)
	require.ErrorIs(t, err, errNotInitialized)
	require.NoError(t, client.Close())
}

func TestKeyLayout(t *testing.T) {
	var client Client
	require.Equal(t, "qd:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "qd:idempotency:id", client.IdempotencyKey(" ", "id"))
	require.Equal(t, "qd:lock:cron", client.LockKey("cron"))
	require.Equal(t, "qd:rl:quote-create:ip:1.2.3.4", client.RateLimitKey("quote-create", "ip", "1.2.3.4"))

	staging := Client{namespace: "qd-staging"}
	require.Equal(t, "qd-staging:lock:cron", staging.LockKey("cron"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://localhost:6379/2",
		PoolSize:    7,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 7, opts.PoolSize)
	require.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 4})
	require.NoError(t, err)
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, 4, opts.DB)
}

func TestSwapIfValueNeedsCurrentValue(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.IdempotencyKey("delivery:notify-email", "evt-1")

	swapped, err := client.SwapIfValue(ctx, key, "pending:a", "pending:b", time.Hour)
	require.NoError(t, err)
	require.False(t, swapped, "missing key is never swapped")

	require.NoError(t, client.Set(ctx, key, "pending:a", time.Hour))
	swapped, err = client.SwapIfValue(ctx, key, "pending:x", "pending:b", time.Hour)
	require.NoError(t, err)
	require.False(t, swapped)

	swapped, err = client.SwapIfValue(ctx, key, "pending:a", "pending:b", 2*time.Hour)
	require.NoError(t, err)
	require.True(t, swapped)
	require.Equal(t, "pending:b", mock.data[key])
	require.Equal(t, 2*time.Hour, mock.ttls[key])
}

type mockCmdable struct {
	data     map[string]string
	counters map[string]int64
	ttls     map[string]time.Duration
	evals    int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		counters: make(map[string]int64),
		ttls:     make(map[string]time.Duration),
	}
}

type noScriptError struct{}

func (noScriptError) Error() string { return "NOSCRIPT No matching script" }
func (noScriptError) RedisError()   {}

// EvalSha always misses so Script.Run falls back to Eval with the source.
func (m *mockCmdable) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, noScriptError{})
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha1, keys, args...)
}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCmdable) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	m.evals++
	key := keys[0]
	switch script {
	case incrWithTTLSource:
		m.counters[key]++
		ttl := args[0].(int64)
		if m.counters[key] == 1 && ttl > 0 {
			m.ttls[key] = time.Duration(ttl) * time.Millisecond
		}
		return redis.NewCmdResult(m.counters[key], nil)
	case releaseIfOwnerSource:
		if v, ok := m.data[key]; ok && v == args[0] {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case swapIfValueSource:
		if v, ok := m.data[key]; ok && v == args[0] {
			m.data[key] = args[1].(string)
			if ttl := args[2].(int64); ttl > 0 {
				m.ttls[key] = time.Duration(ttl) * time.Millisecond
			}
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case extendIfOwnerSource:
		if v, ok := m.data[key]; ok && v == args[0] {
			m.ttls[key] = time.Duration(args[1].(int64)) * time.Millisecond
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script %q", script))
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
