package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/camila-go/networknav-sub000/internal/profile"
)

// BuildPool assembles the candidates requester may be matched against.
//
// The requester is excluded by id and, when both sides have one, by email.
// Profiles with incomplete intake or a blank name are skipped, and duplicate
// ids keep their first occurrence. Candidates without responses are kept with
// nil Responses so they can still be scored in fallback mode.
func BuildPool(ctx context.Context, repo profile.Repository, requester profile.Profile) ([]Candidate, error) {
	profiles, err := repo.ListCompletedProfiles(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list profiles: %v", ErrRepositoryUnavailable, err)
	}

	requesterEmail := strings.ToLower(strings.TrimSpace(requester.Email))
	seen := make(map[string]struct{}, len(profiles))
	eligible := make([]profile.Profile, 0, len(profiles))

	for _, p := range profiles {
		if p.ID == "" || p.ID == requester.ID {
			continue
		}
		if requesterEmail != "" && strings.ToLower(strings.TrimSpace(p.Email)) == requesterEmail {
			continue
		}
		if !p.IntakeComplete || strings.TrimSpace(p.Name) == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		eligible = append(eligible, p)
	}

	responses, err := loadResponses(ctx, repo, eligible)
	if err != nil {
		return nil, err
	}

	pool := make([]Candidate, 0, len(eligible))
	for _, p := range eligible {
		pool = append(pool, Candidate{Profile: p, Responses: responses[p.ID]})
	}
	return pool, nil
}

func loadResponses(ctx context.Context, repo profile.Repository, profiles []profile.Profile) (map[string]*profile.ResponseSet, error) {
	if batch, ok := repo.(profile.BatchResponseReader); ok {
		ids := make([]string, 0, len(profiles))
		for _, p := range profiles {
			ids = append(ids, p.ID)
		}
		out, err := batch.GetResponsesBatch(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("%w: batch responses: %v", ErrRepositoryUnavailable, err)
		}
		return out, nil
	}

	out := make(map[string]*profile.ResponseSet, len(profiles))
	failed := 0
	var lastErr error
	for _, p := range profiles {
		rs, err := repo.GetResponses(ctx, p.ID)
		if err != nil {
			// One unreadable response set only degrades that candidate to
			// fallback scoring.
			failed++
			lastErr = err
			continue
		}
		if rs != nil {
			out[p.ID] = rs
		}
	}
	if failed > 0 && failed == len(profiles) {
		return nil, fmt.Errorf("%w: responses: %v", ErrRepositoryUnavailable, lastErr)
	}
	return out, nil
}
