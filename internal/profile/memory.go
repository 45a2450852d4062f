package profile

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// MemoryRepository is a goroutine-safe in-process Repository, used for demos
// and tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	profiles  map[string]Profile
	order     []string // insertion order, so listings are stable
	responses map[string]*ResponseSet
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		profiles:  make(map[string]Profile),
		responses: make(map[string]*ResponseSet),
	}
}

// PutProfile inserts or replaces a profile.
func (r *MemoryRepository) PutProfile(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.profiles[p.ID] = p
}

// PutResponses inserts or replaces a response set.
func (r *MemoryRepository) PutResponses(rs ResponseSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := rs
	r.responses[rs.UserID] = &copied
}

func (r *MemoryRepository) GetProfile(_ context.Context, userID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListCompletedProfiles(_ context.Context, excluding string) ([]Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Profile, 0, len(r.order))
	for _, id := range r.order {
		p := r.profiles[id]
		if id == excluding || !p.IntakeComplete {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *MemoryRepository) GetResponses(_ context.Context, userID string) (*ResponseSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs, ok := r.responses[userID]
	if !ok {
		return nil, nil
	}
	copied := *rs
	return &copied, nil
}

// Fixtures is the on-disk seed format for the memory repository.
type Fixtures struct {
	Profiles  []Profile     `yaml:"profiles"`
	Responses []ResponseSet `yaml:"responses"`
}

// LoadFixtures reads a YAML fixture file into r.
func (r *MemoryRepository) LoadFixtures(path string) error {
	fx, err := ReadFixtures(path)
	if err != nil {
		return err
	}
	r.apply(fx)
	return nil
}

func (r *MemoryRepository) loadFixtureBytes(data []byte) error {
	fx, err := parseFixtures(data)
	if err != nil {
		return err
	}
	r.apply(fx)
	return nil
}

func (r *MemoryRepository) apply(fx *Fixtures) {
	for _, p := range fx.Profiles {
		r.PutProfile(p)
	}
	for _, rs := range fx.Responses {
		r.PutResponses(rs)
	}
}

// ReadFixtures parses and validates a YAML fixture file.
func ReadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read fixtures: %w", err)
	}
	return parseFixtures(data)
}

func parseFixtures(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("profile: parse fixtures: %w", err)
	}
	for _, p := range fx.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("profile: fixture profile without id")
		}
	}
	for _, rs := range fx.Responses {
		if err := rs.Validate(); err != nil {
			return nil, fmt.Errorf("profile: fixture responses for %s: %w", rs.UserID, err)
		}
	}
	return &fx, nil
}

// IDs returns every stored profile id, sorted.
func (r *MemoryRepository) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
