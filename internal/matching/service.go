package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camila-go/networknav-sub000/internal/metrics"
	"github.com/camila-go/networknav-sub000/internal/profile"
	"github.com/camila-go/networknav-sub000/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a computed MatchSet is served from cache.
const DefaultCacheTTL = 30 * time.Minute

// ResultCache stores the latest unfiltered MatchSet per user.
type ResultCache interface {
	Get(ctx context.Context, userID string) (MatchSet, bool, error)
	Set(ctx context.Context, userID string, set MatchSet, ttl time.Duration) error
	Invalidate(ctx context.Context, userID string) error
}

// Limiter gates recomputation.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (ratelimit.Decision, error)
}

// Deps are the collaborators a Service needs. Enricher and Publisher are
// optional.
type Deps struct {
	Repo      profile.Repository
	Scorer    *Scorer
	Cache     ResultCache
	Limiter   Limiter
	Store     MatchStore
	Enricher  Enricher
	Publisher Publisher
	Logger    *zap.Logger
}

// Config tunes a Service. Zero values select the defaults.
type Config struct {
	CacheTTL          time.Duration
	Rule              ratelimit.Rule
	EnrichmentTimeout time.Duration
}

// Service computes, caches and serves ranked matches.
type Service struct {
	repo      profile.Repository
	scorer    *Scorer
	cache     ResultCache
	limiter   Limiter
	store     MatchStore
	enricher  Enricher
	publisher Publisher
	logger    *zap.Logger

	cacheTTL      time.Duration
	rule          ratelimit.Rule
	enrichTimeout time.Duration
	now           func() time.Time

	flights singleflight.Group
}

// NewService wires a Service from its collaborators.
func NewService(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, errors.New("matching: repository is required")
	case deps.Cache == nil:
		return nil, errors.New("matching: result cache is required")
	case deps.Limiter == nil:
		return nil, errors.New("matching: limiter is required")
	case deps.Store == nil:
		return nil, errors.New("matching: match store is required")
	}
	if deps.Scorer == nil {
		deps.Scorer = NewScorer(nil, nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Rule.Limit <= 0 || cfg.Rule.Window <= 0 {
		cfg.Rule = ratelimit.RuleRecompute
	}
	if cfg.EnrichmentTimeout <= 0 {
		cfg.EnrichmentTimeout = DefaultEnrichmentTimeout
	}

	return &Service{
		repo:          deps.Repo,
		scorer:        deps.Scorer,
		cache:         deps.Cache,
		limiter:       deps.Limiter,
		store:         deps.Store,
		enricher:      deps.Enricher,
		publisher:     deps.Publisher,
		logger:        deps.Logger.Named("matcher"),
		cacheTTL:      cfg.CacheTTL,
		rule:          cfg.Rule,
		enrichTimeout: cfg.EnrichmentTimeout,
		now:           time.Now,
	}, nil
}

type flightResult struct {
	set       *MatchSet
	fromCache bool
}

// GetMatches returns userID's ranked matches with passed ones removed.
//
// Without forceRefresh a cached set is served as is. Otherwise the set is
// recomputed, which consumes recomputation quota; concurrent callers for the
// same user and refresh mode share one computation. A requester without
// completed intake gets an empty set and no error.
func (s *Service) GetMatches(ctx context.Context, userID string, forceRefresh bool) (*MatchSet, bool, error) {
	if !forceRefresh {
		if set, ok := s.cached(ctx, userID); ok {
			return s.view(ctx, set), true, nil
		}
	}

	// Forced calls coalesce only with other forced calls and never report a
	// cache hit.
	key := userID
	if forceRefresh {
		key += "|refresh"
	}
	ch := s.flights.DoChan(key, func() (any, error) {
		return s.recompute(context.WithoutCancel(ctx), userID, forceRefresh)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CoalescedRequests.Inc()
		}
		if res.Err != nil {
			return nil, false, res.Err
		}
		fr := res.Val.(flightResult)
		return s.view(ctx, fr.set), fr.fromCache, nil
	}
}

// PassMatch hides matchID from userID's future reads. The cached set is left
// alone; reads filter against the store.
func (s *Service) PassMatch(ctx context.Context, userID, matchID string) error {
	if IsPlaceholderID(matchID) {
		return ErrPlaceholderMatch
	}
	if err := s.store.SetPassed(ctx, userID, matchID); err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			return err
		}
		return fmt.Errorf("matching: pass %s: %w", matchID, err)
	}
	s.logger.Info("match passed", zap.String("user_id", userID), zap.String("match_id", matchID))
	return nil
}

// MarkViewed records that userID has seen matchID.
func (s *Service) MarkViewed(ctx context.Context, userID, matchID string) error {
	if IsPlaceholderID(matchID) {
		return ErrPlaceholderMatch
	}
	if err := s.store.SetViewed(ctx, userID, matchID); err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			return err
		}
		return fmt.Errorf("matching: view %s: %w", matchID, err)
	}
	return nil
}

func (s *Service) cached(ctx context.Context, userID string) (*MatchSet, bool) {
	set, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("user_id", userID), zap.Error(err))
		ok = false
	}
	if !ok {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return &set, true
}

// view filters passed matches out of set using the store's current flags.
func (s *Service) view(ctx context.Context, set *MatchSet) *MatchSet {
	if set.Placeholder {
		out := Assemble(set.UserID, set.Matches, nil, set.GeneratedAt)
		out.Placeholder = true
		return out
	}

	var passed map[string]bool
	stored, err := s.store.List(ctx, set.UserID)
	if err != nil {
		s.logger.Warn("match store read failed, serving cached flags",
			zap.String("user_id", set.UserID), zap.Error(err))
	} else {
		passed = make(map[string]bool, len(stored))
		for _, m := range stored {
			if m.Passed {
				passed[m.ID] = true
			}
		}
	}
	return Assemble(set.UserID, set.Matches, passed, set.GeneratedAt)
}

func (s *Service) recompute(ctx context.Context, userID string, force bool) (flightResult, error) {
	// Another flight may have filled the cache while this caller waited.
	if !force {
		if set, ok := s.cached(ctx, userID); ok {
			return flightResult{set: set, fromCache: true}, nil
		}
	}

	requester, eligible, err := s.loadRequester(ctx, userID)
	if err != nil {
		metrics.Computations.WithLabelValues("error").Inc()
		return flightResult{}, err
	}
	if !eligible {
		metrics.Computations.WithLabelValues("not_eligible").Inc()
		s.logger.Debug("requester not eligible", zap.String("user_id", userID))
		return flightResult{set: &MatchSet{UserID: userID, Matches: []Match{}, GeneratedAt: s.now()}}, nil
	}

	decision, err := s.limiter.Allow(ctx, userID, s.rule)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, allowing", zap.String("user_id", userID), zap.Error(err))
		decision.Allowed = true
	}
	if !decision.Allowed {
		metrics.Computations.WithLabelValues("rate_limited").Inc()
		s.logger.Info("recompute rate limited",
			zap.String("user_id", userID), zap.Duration("reset_in", decision.ResetIn))
		return flightResult{}, &RateLimitedError{RetryAfter: decision.ResetIn}
	}

	if force {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.logger.Warn("cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	start := s.now()
	set, err := s.compute(ctx, requester)
	if err != nil {
		metrics.Computations.WithLabelValues("error").Inc()
		return flightResult{}, err
	}
	metrics.ComputeDuration.Observe(s.now().Sub(start).Seconds())

	if err := s.cache.Set(ctx, userID, *set, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	if s.publisher != nil {
		if err := PublishRefreshed(s.publisher, s.view(ctx, set)); err != nil {
			s.logger.Warn("refresh event not published", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return flightResult{set: set}, nil
}

// loadRequester reads the requester's profile and responses. eligible is
// false when intake is incomplete or there are no responses.
func (s *Service) loadRequester(ctx context.Context, userID string) (Candidate, bool, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		return Candidate{}, false, nil
	}
	if err != nil {
		return Candidate{}, false, fmt.Errorf("%w: profile %s: %v", ErrRepositoryUnavailable, userID, err)
	}
	rs, err := s.repo.GetResponses(ctx, userID)
	if err != nil {
		return Candidate{}, false, fmt.Errorf("%w: responses %s: %v", ErrRepositoryUnavailable, userID, err)
	}
	if p == nil || !p.IntakeComplete || rs == nil || len(rs.Answers) == 0 {
		return Candidate{}, false, nil
	}
	return Candidate{Profile: *p, Responses: rs}, true, nil
}

func (s *Service) compute(ctx context.Context, requester Candidate) (*MatchSet, error) {
	userID := requester.Profile.ID
	now := s.now()

	pool, err := BuildPool(ctx, s.repo, requester.Profile)
	if err != nil {
		return nil, err
	}
	metrics.PoolSize.Observe(float64(len(pool)))

	if len(pool) == 0 {
		metrics.Computations.WithLabelValues("placeholder").Inc()
		s.logger.Info("empty candidate pool, serving placeholder", zap.String("user_id", userID))
		return PlaceholderSet(userID, now), nil
	}

	matches := make([]Match, 0, len(pool))
	for _, c := range pool {
		matches = append(matches, s.buildMatch(requester, c, now))
	}

	enrichStarters(ctx, s.enricher, s.enrichTimeout, requester.Profile.FirstName(), matches, s.logger)
	Rank(matches)

	stored, err := s.store.Replace(ctx, userID, matches)
	if err != nil {
		s.logger.Warn("match store write failed", zap.String("user_id", userID), zap.Error(err))
		stored = matches
	}

	metrics.Computations.WithLabelValues("ok").Inc()
	s.logger.Info("matches computed",
		zap.String("user_id", userID),
		zap.Int("pool_size", len(pool)),
		zap.Int("matches", len(stored)))

	return &MatchSet{
		UserID:      userID,
		Matches:     stored,
		Metrics:     computeMetrics(stored),
		GeneratedAt: now,
	}, nil
}

// buildMatch scores one candidate. A candidate whose responses cannot be
// scored is rated with the fallback instead of failing the batch.
func (s *Service) buildMatch(requester, c Candidate, now time.Time) Match {
	sc, err := s.scorer.Score(requester, c)
	if err != nil {
		s.logger.Warn("candidate scored with fallback",
			zap.String("user_id", requester.Profile.ID),
			zap.String("candidate_id", c.Profile.ID),
			zap.Error(err))
		c.Responses = nil
		sc = Score{Value: FallbackScore(requester.Profile.ID, c.Profile.ID, false), Fallback: true}
	}

	typ := Classify(sc.Value)
	return Match{
		ID:                   MatchID(requester.Profile.ID, c.Profile.ID),
		UserID:               requester.Profile.ID,
		MatchedUserID:        c.Profile.ID,
		MatchedProfile:       c.Profile,
		Type:                 typ,
		Commonalities:        ExtractCommonalities(s.scorer.Catalog(), requester, c, sc.Fallback),
		ConversationStarters: TemplateStarters(c.Profile, typ),
		Score:                sc.Value,
		GeneratedAt:          now,
	}
}
