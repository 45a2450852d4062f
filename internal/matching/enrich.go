package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camila-go/networknav-sub000/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultEnrichmentTimeout bounds a single enrichment call.
const DefaultEnrichmentTimeout = 3 * time.Second

// OpenerContext is what the enrichment collaborator sees for one match.
type OpenerContext struct {
	RequesterName string        `json:"requester_name"`
	CandidateName string        `json:"candidate_name"`
	CandidateRole string        `json:"candidate_role,omitempty"`
	CandidateOrg  string        `json:"candidate_organization,omitempty"`
	MatchType     MatchType     `json:"match_type"`
	Commonalities []Commonality `json:"commonalities"`
}

// Enricher produces natural-sounding opening lines. Implementations are
// best-effort: any error leaves the template starters in place.
type Enricher interface {
	GenerateOpeners(ctx context.Context, oc OpenerContext) ([]string, error)
}

type enrichResult struct {
	lines []string
	err   error
}

// enrichStarters calls enricher once per match, all concurrently, and
// replaces a match's starters only when its own call succeeds with at least
// one line. Each call has its own timeout; a slow, failing or panicking call
// affects only its match.
func enrichStarters(ctx context.Context, enricher Enricher, timeout time.Duration, requesterName string, matches []Match, logger *zap.Logger) {
	if enricher == nil || len(matches) == 0 {
		return
	}
	if timeout <= 0 {
		timeout = DefaultEnrichmentTimeout
	}

	var g errgroup.Group
	for i := range matches {
		m := &matches[i]
		oc := OpenerContext{
			RequesterName: requesterName,
			CandidateName: m.MatchedProfile.Name,
			CandidateRole: m.MatchedProfile.Role,
			CandidateOrg:  m.MatchedProfile.Organization,
			MatchType:     m.Type,
			Commonalities: m.Commonalities,
		}

		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			lines, err := callEnricher(callCtx, enricher, oc)
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				metrics.Enrichment.WithLabelValues("timeout").Inc()
				logger.Warn("enrichment timed out", zap.String("match_id", m.ID), zap.Duration("timeout", timeout))
				return nil
			case err != nil:
				metrics.Enrichment.WithLabelValues("error").Inc()
				logger.Warn("enrichment failed", zap.String("match_id", m.ID), zap.Error(err))
				return nil
			}

			lines = limitStarters(lines)
			if len(lines) == 0 {
				metrics.Enrichment.WithLabelValues("empty").Inc()
				return nil
			}
			metrics.Enrichment.WithLabelValues("ok").Inc()
			m.ConversationStarters = lines
			return nil
		})
	}
	_ = g.Wait()
}

// callEnricher runs one call and returns when it finishes or ctx ends,
// whichever is first, so an enricher that ignores ctx cannot stall the batch.
func callEnricher(ctx context.Context, enricher Enricher, oc OpenerContext) ([]string, error) {
	done := make(chan enrichResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- enrichResult{err: fmt.Errorf("enricher panic: %v", r)}
			}
		}()
		lines, err := enricher.GenerateOpeners(ctx, oc)
		done <- enrichResult{lines: lines, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return res.lines, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
