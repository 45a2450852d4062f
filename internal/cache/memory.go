// Package cache provides keyed, TTL-bounded result caches. Memory keeps
// values in process; Redis stores them as JSON so several engine replicas
// share one view.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = time.Minute

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Memory is a goroutine-safe in-process cache. Expired entries are rejected
// lazily on read and removed by the sweeper started with Run.
type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	now     func() time.Time
	logger  *zap.Logger
}

// NewMemory creates an empty cache.
func NewMemory[V any](logger *zap.Logger) *Memory[V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
		logger:  logger,
	}
}

// Get returns the cached value for key, if present and unexpired.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		return zero, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key for ttl. A non-positive ttl deletes the key.
func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		delete(m.entries, key)
		return nil
	}
	m.entries[key] = entry[V]{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

// Invalidate removes key.
func (m *Memory[V]) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes every expired entry and returns how many were removed.
func (m *Memory[V]) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is cancelled.
func (m *Memory[V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("cache sweeper stopped")
			return
		case <-ticker.C:
			if removed := m.Sweep(); removed > 0 {
				m.logger.Debug("cache sweep", zap.Int("removed", removed))
			}
		}
	}
}
