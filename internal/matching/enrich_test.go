package matching

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type enricherFunc func(ctx context.Context, oc OpenerContext) ([]string, error)

func (f enricherFunc) GenerateOpeners(ctx context.Context, oc OpenerContext) ([]string, error) {
	return f(ctx, oc)
}

func templateMatches(names ...string) []Match {
	out := make([]Match, 0, len(names))
	for _, n := range names {
		p := person(n, n)
		out = append(out, Match{
			ID:                   MatchID("req", n),
			MatchedProfile:       p,
			Type:                 TypeStrategic,
			Commonalities:        []Commonality{GenericCommonality()},
			ConversationStarters: TemplateStarters(p, TypeStrategic),
		})
	}
	return out
}

func TestEnrichStarters_FailuresAreIsolated(t *testing.T) {
	matches := templateMatches("ok", "fails", "slow", "empty", "panics")
	original := make([][]string, len(matches))
	for i := range matches {
		original[i] = matches[i].ConversationStarters
	}

	e := enricherFunc(func(ctx context.Context, oc OpenerContext) ([]string, error) {
		switch oc.CandidateName {
		case "ok":
			return []string{"Loved your talk!", "Coffee?", "extra line"}, nil
		case "fails":
			return nil, errors.New("upstream 500")
		case "slow":
			<-ctx.Done()
			return nil, ctx.Err()
		case "panics":
			panic("boom")
		}
		return []string{"  "}, nil
	})

	enrichStarters(context.Background(), e, 50*time.Millisecond, "Rita", matches, zap.NewNop())

	assert.Equal(t, []string{"Loved your talk!", "Coffee?"}, matches[0].ConversationStarters)
	for i := 1; i < len(matches); i++ {
		assert.Equal(t, original[i], matches[i].ConversationStarters, matches[i].MatchedProfile.Name)
	}
}

func TestEnrichStarters_RunsConcurrently(t *testing.T) {
	matches := templateMatches("a", "b", "c", "d", "e")

	var inFlight, peak int32
	release := make(chan struct{})
	var once sync.Once

	e := enricherFunc(func(ctx context.Context, oc OpenerContext) ([]string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		if n == int32(len(matches)) {
			once.Do(func() { close(release) })
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		atomic.AddInt32(&inFlight, -1)
		return []string{"Hello " + oc.CandidateName}, nil
	})

	enrichStarters(context.Background(), e, 2*time.Second, "Rita", matches, zap.NewNop())

	assert.Equal(t, int32(len(matches)), atomic.LoadInt32(&peak))
	for _, m := range matches {
		require.Len(t, m.ConversationStarters, 1)
		assert.Equal(t, "Hello "+m.MatchedProfile.Name, m.ConversationStarters[0])
	}
}

func TestEnrichStarters_IgnoringContextStillBounded(t *testing.T) {
	matches := templateMatches("stuck")
	before := matches[0].ConversationStarters

	block := make(chan struct{})
	defer close(block)
	e := enricherFunc(func(context.Context, OpenerContext) ([]string, error) {
		<-block
		return []string{"too late"}, nil
	})

	start := time.Now()
	enrichStarters(context.Background(), e, 30*time.Millisecond, "Rita", matches, zap.NewNop())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, before, matches[0].ConversationStarters)
}

func TestEnrichStarters_NilEnricher(t *testing.T) {
	matches := templateMatches("a")
	before := matches[0].ConversationStarters
	enrichStarters(context.Background(), nil, time.Second, "Rita", matches, zap.NewNop())
	assert.Equal(t, before, matches[0].ConversationStarters)
}

func TestEnrichStarters_PassesContext(t *testing.T) {
	matches := templateMatches("Cal")
	matches[0].MatchedProfile.Role = "CTO"

	var got OpenerContext
	e := enricherFunc(func(_ context.Context, oc OpenerContext) ([]string, error) {
		got = oc
		return []string{"hi"}, nil
	})
	enrichStarters(context.Background(), e, time.Second, "Rita", matches, zap.NewNop())

	assert.Equal(t, "Rita", got.RequesterName)
	assert.Equal(t, "Cal", got.CandidateName)
	assert.Equal(t, "CTO", got.CandidateRole)
	assert.Equal(t, TypeStrategic, got.MatchType)
	assert.Len(t, got.Commonalities, 1)
}
