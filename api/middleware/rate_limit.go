package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/quotedesk-backend/api/responses"
	pkgerrors "github.com/angelmondragon/quotedesk-backend/pkg/errors"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(parts ...string) string
}

// RateLimitPolicy is a fixed-window budget for one route, counted separately
// per client IP and per authenticated actor. A zero limit disables that
// counter.
type RateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	actorLimit int
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit, actorLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{name: name, window: window, ipLimit: ipLimit, actorLimit: actorLimit}
}

type rateCounter struct {
	scope string
	owner string
	limit int
}

func (p RateLimitPolicy) counters(r *http.Request) []rateCounter {
	var out []rateCounter
	if ip := clientIP(r); p.ipLimit > 0 && ip != "" {
		out = append(out, rateCounter{scope: "ip", owner: ip, limit: p.ipLimit})
	}
	if actor := ActorIDFromContext(r.Context()); p.actorLimit > 0 && actor != "" {
		out = append(out, rateCounter{scope: "actor", owner: actor, limit: p.actorLimit})
	}
	return out
}

// RateLimit rejects requests over budget with 429 and a Retry-After hint.
// Mount it after Auth so the actor counter can apply. A counter store failure
// is reported as DEPENDENCY_ERROR rather than letting the request through.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if policy.window <= 0 || store == nil {
			return next
		}
		retryAfter := strconv.Itoa(int(math.Ceil(policy.window.Seconds())))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tightest := -1
			for _, c := range policy.counters(r) {
				key := store.RateLimitKey(policy.name, c.scope, c.owner)
				count, err := store.IncrWithTTL(ctx, key, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if count > int64(c.limit) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":   policy.name,
							"scope":    c.scope,
							"attempts": count,
							"limit":    c.limit,
						}), "rate_limit.blocked")
					}
					w.Header().Set("Retry-After", retryAfter)
					w.Header().Set("X-RateLimit-Limit", strconv.Itoa(c.limit))
					w.Header().Set("X-RateLimit-Remaining", "0")
					responses.WriteError(ctx, nil, w, pkgerrors.Newf(pkgerrors.CodeRateLimit, "too many requests; retry in %ss", retryAfter))
					return
				}
				if remaining := c.limit - int(count); tightest < 0 || remaining < tightest {
					tightest = remaining
					w.Header().Set("X-RateLimit-Limit", strconv.Itoa(c.limit))
				}
			}
			if tightest >= 0 {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(tightest))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP reads RemoteAddr; the router runs chi's RealIP first so proxy
// headers are already folded in.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
