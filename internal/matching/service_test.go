package matching

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/camila-go/networknav-sub000/internal/cache"
	"github.com/camila-go/networknav-sub000/internal/profile"
	"github.com/camila-go/networknav-sub000/internal/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingLimiter struct {
	inner Limiter
	calls int32
}

func (l *countingLimiter) Allow(ctx context.Context, id string, rule ratelimit.Rule) (ratelimit.Decision, error) {
	atomic.AddInt32(&l.calls, 1)
	return l.inner.Allow(ctx, id, rule)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *recordingPublisher) lastEvent(t *testing.T) RefreshEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.payloads)
	var ev RefreshEvent
	require.NoError(t, json.Unmarshal(p.payloads[len(p.payloads)-1], &ev))
	return ev
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subjects)
}

type fixture struct {
	svc     *Service
	repo    *profile.MemoryRepository
	store   *MemoryStore
	cache   *cache.Memory[MatchSet]
	limiter *countingLimiter
	pub     *recordingPublisher
}

var testRule = ratelimit.Rule{Key: "rl:recompute:", Limit: 10, Window: time.Hour}

func newFixture(t *testing.T, enricher Enricher) *fixture {
	t.Helper()
	f := &fixture{
		repo:    profile.NewMemoryRepository(),
		store:   NewMemoryStore(),
		cache:   cache.NewMemory[MatchSet](nil),
		limiter: &countingLimiter{inner: ratelimit.NewMemory()},
		pub:     &recordingPublisher{},
	}
	svc, err := NewService(Deps{
		Repo:      f.repo,
		Cache:     f.cache,
		Limiter:   f.limiter,
		Store:     f.store,
		Enricher:  enricher,
		Publisher: f.pub,
		Logger:    zap.NewNop(),
	}, Config{Rule: testRule, EnrichmentTimeout: time.Second})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// seedFive stores a requester with two strongly overlapping candidates and
// three candidates without any responses.
func seedFive(repo *profile.MemoryRepository) {
	repo.PutProfile(person("req", "Rita Q"))
	repo.PutResponses(profile.ResponseSet{UserID: "req", Answers: fintechHiker()})

	for _, id := range []string{"c1", "c2"} {
		repo.PutProfile(person(id, "Close "+id))
		repo.PutResponses(profile.ResponseSet{UserID: id, Answers: answers{
			"industry":  profile.Text("fintech"),
			"interests": profile.List("hiking", "photography"),
		}})
	}
	for _, id := range []string{"c3", "c4", "c5"} {
		repo.PutProfile(person(id, "Far "+id))
	}
}

func ids(set *MatchSet) []string {
	out := make([]string, 0, len(set.Matches))
	for _, m := range set.Matches {
		out = append(out, m.ID)
	}
	return out
}

func TestGetMatches_FiveCandidateScenario(t *testing.T) {
	f := newFixture(t, nil)
	seedFive(f.repo)

	set, fromCache, err := f.svc.GetMatches(context.Background(), "req", false)
	require.NoError(t, err)
	assert.False(t, fromCache)
	require.Len(t, set.Matches, 5)

	for i, m := range set.Matches {
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 1.0)
		assert.Equal(t, Classify(m.Score), m.Type)
		assert.NotEmpty(t, m.Commonalities)
		assert.LessOrEqual(t, len(m.ConversationStarters), MaxConversationStarters)
		assert.Equal(t, "req", m.UserID)
		if i > 0 {
			assert.GreaterOrEqual(t, set.Matches[i-1].Score, m.Score)
		}
	}

	top := map[string]bool{set.Matches[0].MatchedUserID: true, set.Matches[1].MatchedUserID: true}
	assert.Equal(t, map[string]bool{"c1": true, "c2": true}, top)
	for _, m := range set.Matches[:2] {
		assert.Greater(t, m.Score, 0.8)
		assert.Equal(t, TypeHighAffinity, m.Type)
	}
	for _, m := range set.Matches[2:] {
		assert.GreaterOrEqual(t, m.Score, 0.6)
		assert.LessOrEqual(t, m.Score, 0.95)
		assert.Equal(t, TypeStrategic, m.Type)
	}

	assert.Equal(t, 5, set.Metrics.Count)
	assert.Equal(t, 2, set.Metrics.HighAffinityCount)
	assert.Equal(t, 3, set.Metrics.StrategicCount)
	assert.Equal(t, 1, f.pub.count())
}

func TestGetMatches_CachedReadsAreIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	seedFive(f.repo)
	ctx := context.Background()

	first, fromCache, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	require.False(t, fromCache)

	second, fromCache, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, ids(first), ids(second))
	for i := range first.Matches {
		assert.Equal(t, first.Matches[i].Score, second.Matches[i].Score)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.limiter.calls), "cached reads do not consume quota")
	assert.Equal(t, 1, f.pub.count())
}

func TestGetMatches_ForceRefreshBypassesCache(t *testing.T) {
	f := newFixture(t, nil)
	seedFive(f.repo)
	ctx := context.Background()

	first, _, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		set, fromCache, err := f.svc.GetMatches(ctx, "req", true)
		require.NoError(t, err)
		assert.False(t, fromCache)
		assert.Equal(t, ids(first), ids(set), "recomputation is deterministic")
	}
	assert.Equal(t, int32(4), atomic.LoadInt32(&f.limiter.calls))
}

func TestGetMatches_RefreshPicksUpNewCandidates(t *testing.T) {
	f := newFixture(t, nil)
	seedFive(f.repo)
	ctx := context.Background()

	_, _, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)

	f.repo.PutProfile(person("c6", "New Six"))

	cached, _, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	assert.Len(t, cached.Matches, 5)

	fresh, _, err := f.svc.GetMatches(ctx, "req", true)
	require.NoError(t, err)
	assert.Len(t, fresh.Matches, 6)
}

func TestPassMatch_FilteredOnReadAndKeptAcrossRefresh(t *testing.T) {
	f := newFixture(t, nil)
	seedFive(f.repo)
	ctx := context.Background()

	set, _, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	passed := set.Matches[0].ID

	require.NoError(t, f.svc.PassMatch(ctx, "req", passed))

	cached, fromCache, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Len(t, cached.Matches, 4)
	assert.NotContains(t, ids(cached), passed)
	assert.Equal(t, 4, cached.Metrics.Count)

	fresh, _, err := f.svc.GetMatches(ctx, "req", true)
	require.NoError(t, err)
	assert.NotContains(t, ids(fresh), passed)

	stored, err := f.store.Get(ctx, "req", passed)
	require.NoError(t, err)
	assert.True(t, stored.Passed)
}

func TestPassMatch_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.PassMatch(ctx, "req", "missing"), ErrMatchNotFound)
	assert.ErrorIs(t, f.svc.PassMatch(ctx, "req", PlaceholderPrefix+"1"), ErrPlaceholderMatch)
	assert.ErrorIs(t, f.svc.MarkViewed(ctx, "req", PlaceholderPrefix+"2"), ErrPlaceholderMatch)
}

func TestMarkViewed(t *testing.T) {
	f := newFixture(t, nil)
	seedFive(f.repo)
	ctx := context.Background()

	set, _, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkViewed(ctx, "req", set.Matches[2].ID))

	stored, err := f.store.Get(ctx, "req", set.Matches[2].ID)
	require.NoError(t, err)
	assert.True(t, stored.Viewed)
	assert.False(t, stored.Passed)
}

func TestGetMatches_EmptyPoolServesPlaceholder(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.PutProfile(person("req", "Rita Q"))
	f.repo.PutResponses(profile.ResponseSet{UserID: "req", Answers: fintechHiker()})
	ctx := context.Background()

	set, fromCache, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.True(t, set.Placeholder)
	require.Len(t, set.Matches, PlaceholderCount)
	for _, m := range set.Matches {
		assert.True(t, IsPlaceholderID(m.ID))
	}

	stored, err := f.store.List(ctx, "req")
	require.NoError(t, err)
	assert.Empty(t, stored, "placeholders are never persisted")

	again, fromCache, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.True(t, again.Placeholder)

	assert.ErrorIs(t, f.svc.PassMatch(ctx, "req", set.Matches[0].ID), ErrPlaceholderMatch)
}

func TestGetMatches_NotEligible(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.PutProfile(person("req", "Rita Q"))
	f.repo.PutProfile(person("c1", "Cal One"))
	ctx := context.Background()

	set, fromCache, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Empty(t, set.Matches)
	assert.False(t, set.Placeholder)

	assert.Equal(t, 0, f.cache.Len(), "ineligible results are not cached")
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.limiter.calls), "no quota consumed")

	set, _, err = f.svc.GetMatches(ctx, "ghost", true)
	require.NoError(t, err)
	assert.Empty(t, set.Matches)
}

func TestGetMatches_RateLimited(t *testing.T) {
	f := newFixture(t, nil)
	seedFive(f.repo)
	ctx := context.Background()

	for i := 0; i < testRule.Limit; i++ {
		_, _, err := f.svc.GetMatches(ctx, "req", true)
		require.NoError(t, err, "refresh %d", i+1)
	}

	_, _, err := f.svc.GetMatches(ctx, "req", true)
	var rl *RateLimitedError
	require.True(t, errors.As(err, &rl), "got %v", err)
	assert.Greater(t, rl.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rl.RetryAfter, time.Hour)
	assert.GreaterOrEqual(t, rl.RetrySeconds(), 1)
	assert.True(t, IsRetryable(err))

	set, fromCache, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err, "cached reads succeed while limited")
	assert.True(t, fromCache)
	assert.Len(t, set.Matches, 5)
}

type brokenRepo struct{ profile.Repository }

func (brokenRepo) GetProfile(context.Context, string) (*profile.Profile, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestGetMatches_RepositoryUnavailable(t *testing.T) {
	svc, err := NewService(Deps{
		Repo:    brokenRepo{},
		Cache:   cache.NewMemory[MatchSet](nil),
		Limiter: ratelimit.NewMemory(),
		Store:   NewMemoryStore(),
	}, Config{})
	require.NoError(t, err)

	_, _, err = svc.GetMatches(context.Background(), "req", false)
	assert.ErrorIs(t, err, ErrRepositoryUnavailable)
	assert.True(t, IsRetryable(err))
}

func TestGetMatches_ConcurrentCallersShareOneComputation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	f := newFixture(t, enricherFunc(func(ctx context.Context, oc OpenerContext) ([]string, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-ctx.Done():
		}
		return []string{"Hi " + oc.CandidateName}, nil
	}))
	seedFive(f.repo)

	const callers = 6
	results := make([]*MatchSet, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, errs[0] = f.svc.GetMatches(context.Background(), "req", false)
	}()
	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = f.svc.GetMatches(context.Background(), "req", false)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids(results[0]), ids(results[i]))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.limiter.calls))
	assert.Equal(t, 1, f.pub.count())
}

func TestGetMatches_EnrichmentFailureKeepsTemplates(t *testing.T) {
	f := newFixture(t, enricherFunc(func(_ context.Context, oc OpenerContext) ([]string, error) {
		if oc.CandidateName == "Close c1" {
			return nil, errors.New("model overloaded")
		}
		return []string{"Hey " + oc.CandidateName + "!"}, nil
	}))
	seedFive(f.repo)

	set, _, err := f.svc.GetMatches(context.Background(), "req", false)
	require.NoError(t, err)
	require.Len(t, set.Matches, 5)

	for _, m := range set.Matches {
		if m.MatchedUserID == "c1" {
			assert.Equal(t, TemplateStarters(m.MatchedProfile, m.Type), m.ConversationStarters)
			continue
		}
		assert.Equal(t, []string{"Hey " + m.MatchedProfile.Name + "!"}, m.ConversationStarters)
	}
}

func TestGetMatches_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	f := newFixture(t, enricherFunc(func(ctx context.Context, _ OpenerContext) ([]string, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	}))
	seedFive(f.repo)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := f.svc.GetMatches(ctx, "req", false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetMatches_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := profile.NewMemoryRepository()
	seedFive(repo)
	svc, err := NewService(Deps{
		Repo:    repo,
		Cache:   cache.NewRedis[MatchSet](client, ""),
		Limiter: ratelimit.NewLimiter(client, nil),
		Store:   NewRedisStore(client),
	}, Config{Rule: testRule})
	require.NoError(t, err)
	ctx := context.Background()

	first, fromCache, err := svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	assert.False(t, fromCache)
	require.Len(t, first.Matches, 5)
	assert.True(t, mr.Exists(cache.DefaultPrefix+"req"))

	require.NoError(t, svc.PassMatch(ctx, "req", first.Matches[4].ID))

	second, fromCache, err := svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, ids(first)[:4], ids(second))

	mr.FastForward(DefaultCacheTTL + time.Second)
	third, fromCache, err := svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	assert.False(t, fromCache, "expired entries are recomputed")
	assert.Len(t, third.Matches, 4)
}

// gatedCache misses on the first read and holds the second read until
// release is closed.
type gatedCache struct {
	*cache.Memory[MatchSet]
	reads   int32
	held    chan struct{}
	release chan struct{}
}

func (c *gatedCache) Get(ctx context.Context, key string) (MatchSet, bool, error) {
	if atomic.AddInt32(&c.reads, 1) == 2 {
		close(c.held)
		<-c.release
	}
	return c.Memory.Get(ctx, key)
}

func TestGetMatches_ForceRefreshNeverJoinsPlainLoad(t *testing.T) {
	repo := profile.NewMemoryRepository()
	seedFive(repo)
	gc := &gatedCache{
		Memory:  cache.NewMemory[MatchSet](nil),
		held:    make(chan struct{}),
		release: make(chan struct{}),
	}
	limiter := &countingLimiter{inner: ratelimit.NewMemory()}
	svc, err := NewService(Deps{
		Repo:    repo,
		Cache:   gc,
		Limiter: limiter,
		Store:   NewMemoryStore(),
		Logger:  zap.NewNop(),
	}, Config{Rule: testRule, EnrichmentTimeout: time.Second})
	require.NoError(t, err)
	ctx := context.Background()

	plainDone := make(chan error, 1)
	go func() {
		_, _, err := svc.GetMatches(ctx, "req", false)
		plainDone <- err
	}()
	<-gc.held

	type outcome struct {
		set       *MatchSet
		fromCache bool
		err       error
	}
	forced := make(chan outcome, 1)
	go func() {
		set, fromCache, err := svc.GetMatches(ctx, "req", true)
		forced <- outcome{set, fromCache, err}
	}()

	select {
	case got := <-forced:
		require.NoError(t, got.err)
		assert.False(t, got.fromCache)
		assert.Len(t, got.set.Matches, 5)
	case <-time.After(2 * time.Second):
		t.Fatal("forced refresh waited on the plain load")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&limiter.calls), "forced refresh spends quota")

	close(gc.release)
	require.NoError(t, <-plainDone)
}

func TestGetMatches_RefreshEventExcludesPassed(t *testing.T) {
	f := newFixture(t, nil)
	seedFive(f.repo)
	ctx := context.Background()

	set, _, err := f.svc.GetMatches(ctx, "req", false)
	require.NoError(t, err)
	require.NoError(t, f.svc.PassMatch(ctx, "req", set.Matches[0].ID))

	fresh, fromCache, err := f.svc.GetMatches(ctx, "req", true)
	require.NoError(t, err)
	require.False(t, fromCache)

	ev := f.pub.lastEvent(t)
	assert.Equal(t, "req", ev.UserID)
	assert.Equal(t, 4, ev.Count)
	assert.Equal(t, fresh.Metrics.Count, ev.Count)
	assert.InDelta(t, fresh.Metrics.AverageScore, ev.AverageScore, 1e-9)
	assert.Equal(t, fresh.Metrics.HighAffinityCount, ev.HighAffinityCount)
}
