// Package ratelimit provides fixed-window rate limiting keyed by rule and
// identifier. The Redis-backed Limiter uses INCR + EXPIRE so every process
// sharing the Redis instance sees the same counters; Memory offers the same
// semantics for a single process.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Rule defines a rate limiting policy: the key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // key prefix (e.g. "rl:recompute:")
	Limit  int           // max count in the window
	Window time.Duration // window length, starting at the first hit
}

// RuleRecompute allows 10 match recomputations per hour per user.
var RuleRecompute = Rule{Key: "rl:recompute:", Limit: 10, Window: time.Hour}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Remaining int           // requests left in the current window
	ResetIn   time.Duration // time until the window resets
}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{client: client, logger: logger}
}

// Allow increments the counter for identifier under rule and reports whether
// the request fits in the current window.
//
// On Redis errors the method fails open (Allowed=true) and returns the error
// so that a Redis outage does not block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (Decision, error) {
	key := rule.Key + identifier
	open := Decision{Allowed: true, Remaining: rule.Limit, ResetIn: rule.Window}

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("ratelimit incr failed, failing open", zap.String("key", key), zap.Error(err))
		return open, err
	}

	// The first increment defines the window boundary.
	if count == 1 {
		if err := l.client.PExpire(ctx, key, rule.Window).Err(); err != nil {
			l.logger.Warn("ratelimit expire failed, failing open", zap.String("key", key), zap.Error(err))
			// A key without TTL would block the identifier forever.
			l.client.Del(ctx, key)
			return open, err
		}
	}

	resetIn, err := l.client.PTTL(ctx, key).Result()
	if err != nil || resetIn <= 0 {
		resetIn = rule.Window
	}

	remaining := rule.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   int(count) <= rule.Limit,
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}

// Remaining returns the number of requests the identifier has left in the
// current window for the given rule. Returns the full limit if the key does not
// exist yet. On Redis errors it returns the full limit (fail open).
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return rule.Limit, nil
	}
	if err != nil {
		l.logger.Warn("ratelimit get failed, failing open", zap.String("key", key), zap.Error(err))
		return rule.Limit, err
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears the counter for identifier under rule.
func (l *Limiter) Reset(ctx context.Context, identifier string, rule Rule) error {
	return l.client.Del(ctx, rule.Key+identifier).Err()
}
