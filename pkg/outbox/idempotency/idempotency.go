// Package idempotency records which consumer has already handled which outbox
// event, so a redelivered event does not produce a second side effect.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/quotedesk-backend/pkg/redis"
)

// ErrInFlight means another attempt holds a fresh pending claim. The caller
// should retry later rather than treat the event as handled.
var ErrInFlight = errors.New("delivery in flight")

const (
	statePending = "pending"
	stateSent    = "sent"
)

// Claims is a per-consumer claim ledger in Redis. A claim starts as
// pending:<time> and becomes sent:<time> once Confirm runs. A pending claim
// older than staleAfter belongs to an attempt that crashed or timed out and
// may be taken over; zero staleAfter keeps pending claims until their TTL.
//
// Keys look like qd:idempotency:delivery:<consumer>:<event_id>.
type Claims struct {
	store      redis.ClaimStore
	ttl        time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewClaims(store redis.ClaimStore, ttl, staleAfter time.Duration) (*Claims, error) {
	switch {
	case store == nil:
		return nil, errors.New("claim store is required")
	case ttl < 0:
		return nil, errors.New("claim ttl must be non-negative")
	case staleAfter < 0:
		return nil, errors.New("stale window must be non-negative")
	}
	return &Claims{store: store, ttl: ttl, staleAfter: staleAfter, now: time.Now}, nil
}

// Claim reports whether the caller won the right to handle the event for
// consumer. False means an earlier attempt already delivered it. ErrInFlight
// means an earlier attempt is still inside its stale window.
func (c *Claims) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	mine := c.stamp(statePending)
	won, err := c.store.SetNX(ctx, key, mine, c.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if won {
		return true, nil
	}

	held, err := c.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		// Released between the two calls; the next attempt takes it.
		return false, ErrInFlight
	}
	if err != nil {
		return false, fmt.Errorf("read claim %s: %w", key, err)
	}
	state, at, ok := parseClaim(held)
	switch {
	case !ok || state == stateSent:
		return false, nil
	case c.staleAfter <= 0 || c.now().Sub(at) < c.staleAfter:
		return false, ErrInFlight
	}
	taken, err := c.store.SwapIfValue(ctx, key, held, mine, c.ttl)
	if err != nil {
		return false, fmt.Errorf("take over %s: %w", key, err)
	}
	if !taken {
		return false, ErrInFlight
	}
	return true, nil
}

// Confirm marks a won claim as delivered so later attempts skip it.
func (c *Claims) Confirm(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, key, c.stamp(stateSent), c.ttl); err != nil {
		return fmt.Errorf("confirm %s: %w", key, err)
	}
	return nil
}

// Release drops a claim after a failed attempt so a retry can take it.
func (c *Claims) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return err
	}
	return c.store.Del(ctx, key)
}

// ClaimedAt returns when the event was last claimed or confirmed. ok is false
// when no claim exists or the stored value is not one this package wrote.
func (c *Claims) ClaimedAt(ctx context.Context, consumer string, eventID uuid.UUID) (at time.Time, ok bool, err error) {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return time.Time{}, false, err
	}
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	_, at, ok = parseClaim(raw)
	return at, ok, nil
}

func (c *Claims) stamp(state string) string {
	return state + ":" + c.now().UTC().Format(time.RFC3339Nano)
}

func parseClaim(raw string) (state string, at time.Time, ok bool) {
	state, ts, found := strings.Cut(raw, ":")
	if !found || (state != statePending && state != stateSent) {
		return "", time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "", time.Time{}, false
	}
	return state, at, true
}

func (c *Claims) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return c.store.IdempotencyKey("delivery:"+consumer, eventID.String()), nil
}
