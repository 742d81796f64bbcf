package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua sources run server-side so check-and-act pairs stay atomic.
const (
	incrWithTTLSource = `local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`

	releaseIfOwnerSource = `if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`

	extendIfOwnerSource = `if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

	swapIfValueSource = `if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 1`
)

var (
	incrWithTTLScript    = redis.NewScript(incrWithTTLSource)
	releaseIfOwnerScript = redis.NewScript(releaseIfOwnerSource)
	extendIfOwnerScript  = redis.NewScript(extendIfOwnerSource)
	swapIfValueScript    = redis.NewScript(swapIfValueSource)
)

// IncrWithTTL increments key and starts its TTL on the first increment.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	store, err := c.conn()
	if err != nil {
		return 0, err
	}
	count, err := incrWithTTLScript.Run(ctx, store, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return count, nil
}

// ReleaseIfOwner deletes key only while it still holds owner. It reports
// whether the key was removed.
func (c *Client) ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error) {
	store, err := c.conn()
	if err != nil {
		return false, err
	}
	n, err := releaseIfOwnerScript.Run(ctx, store, []string{key}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return n == 1, nil
}

// ExtendIfOwner resets the TTL of key while it still holds owner.
func (c *Client) ExtendIfOwner(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("ttl must be positive")
	}
	store, err := c.conn()
	if err != nil {
		return false, err
	}
	n, err := extendIfOwnerScript.Run(ctx, store, []string{key}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", key, err)
	}
	return n == 1, nil
}

// SwapIfValue replaces key with next only while it still holds current. A
// zero ttl leaves the key without expiry.
func (c *Client) SwapIfValue(ctx context.Context, key, current, next string, ttl time.Duration) (bool, error) {
	store, err := c.conn()
	if err != nil {
		return false, err
	}
	n, err := swapIfValueScript.Run(ctx, store, []string{key}, current, next, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("swap %s: %w", key, err)
	}
	return n == 1, nil
}
