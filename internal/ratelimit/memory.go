package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local fixed-window limiter with the same semantics as
// Limiter. Expired windows are replaced on the next hit and pruned
// opportunistically once the map grows past sweepThreshold entries.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

const sweepThreshold = 1024

// NewMemory creates an empty in-process limiter.
func NewMemory() *Memory {
	return &Memory{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow records a hit for identifier under rule.
func (m *Memory) Allow(_ context.Context, identifier string, rule Rule) (Decision, error) {
	key := rule.Key + identifier
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.windows) > sweepThreshold {
		m.sweepLocked(now)
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(rule.Window)}
		m.windows[key] = w
	}
	w.count++

	remaining := rule.Limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   w.count <= rule.Limit,
		Remaining: remaining,
		ResetIn:   w.resetAt.Sub(now),
	}, nil
}

// Remaining returns the requests left for identifier in its current window.
func (m *Memory) Remaining(_ context.Context, identifier string, rule Rule) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[rule.Key+identifier]
	if !ok || !m.now().Before(w.resetAt) {
		return rule.Limit, nil
	}
	if remaining := rule.Limit - w.count; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (m *Memory) sweepLocked(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}
