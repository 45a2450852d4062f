package matching

import (
	"context"
	"sync"
)

// MatchStore holds the latest computed matches per user together with the
// per-match flags callers mutate (Passed, Viewed).
type MatchStore interface {
	// Replace swaps userID's matches for matches. Passed and Viewed are
	// carried over for ids present both before and after. It returns the
	// stored matches.
	Replace(ctx context.Context, userID string, matches []Match) ([]Match, error)
	List(ctx context.Context, userID string) ([]Match, error)
	// Get returns ErrMatchNotFound for unknown ids.
	Get(ctx context.Context, userID, matchID string) (Match, error)
	SetPassed(ctx context.Context, userID, matchID string) error
	SetViewed(ctx context.Context, userID, matchID string) error
}

// MemoryStore is a process-local MatchStore.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string][]Match
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string][]Match)}
}

func (s *MemoryStore) Replace(_ context.Context, userID string, matches []Match) ([]Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := carryFlags(s.users[userID], matches)
	s.users[userID] = out
	return cloneMatches(out), nil
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMatches(s.users[userID]), nil
}

func (s *MemoryStore) Get(_ context.Context, userID, matchID string) (Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.users[userID] {
		if m.ID == matchID {
			return m, nil
		}
	}
	return Match{}, ErrMatchNotFound
}

func (s *MemoryStore) SetPassed(_ context.Context, userID, matchID string) error {
	return s.update(userID, matchID, func(m *Match) { m.Passed = true })
}

func (s *MemoryStore) SetViewed(_ context.Context, userID, matchID string) error {
	return s.update(userID, matchID, func(m *Match) { m.Viewed = true })
}

func (s *MemoryStore) update(userID, matchID string, fn func(*Match)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.users[userID]
	for i := range list {
		if list[i].ID == matchID {
			fn(&list[i])
			return nil
		}
	}
	return ErrMatchNotFound
}

// carryFlags copies Passed/Viewed from previous onto next by match id.
func carryFlags(previous, next []Match) []Match {
	flags := make(map[string]Match, len(previous))
	for _, m := range previous {
		flags[m.ID] = m
	}
	out := cloneMatches(next)
	for i := range out {
		if old, ok := flags[out[i].ID]; ok {
			out[i].Passed = out[i].Passed || old.Passed
			out[i].Viewed = out[i].Viewed || old.Viewed
		}
	}
	return out
}

func cloneMatches(in []Match) []Match {
	if in == nil {
		return nil
	}
	out := make([]Match, len(in))
	copy(out, in)
	return out
}
