package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the Redis key prefix for cached match sets.
const DefaultPrefix = "matches:cache:"

// Redis stores JSON-encoded values with a server-side TTL, so expiry needs no
// sweeper.
type Redis[V any] struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a cache storing keys under prefix (DefaultPrefix if empty).
func NewRedis[V any](client *redis.Client, prefix string) *Redis[V] {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis[V]{client: client, prefix: prefix}
}

func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var value V

	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, &value); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		r.client.Del(ctx, r.prefix+key)
		return value, false, nil
	}
	return value, true, nil
}

func (r *Redis[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Invalidate(ctx, key)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (r *Redis[V]) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", key, err)
	}
	return nil
}
