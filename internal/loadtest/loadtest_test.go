package loadtest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/camila-go/networknav-sub000/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	p := Summarize(ds)

	assert.Equal(t, 100, p.N)
	assert.Equal(t, 51*time.Millisecond, p.P50)
	assert.Equal(t, 95*time.Millisecond, p.P95)
	assert.Equal(t, 99*time.Millisecond, p.P99)
	assert.Equal(t, 100*time.Millisecond, p.Max)
	assert.Equal(t, Percentiles{}, Summarize(nil))
}

func TestCollectorReport(t *testing.T) {
	c := NewCollector()
	c.Add("get", http.StatusOK, 10*time.Millisecond)
	c.Add("get", http.StatusTooManyRequests, 2*time.Millisecond)
	c.AddError()

	assert.Equal(t, 3, c.Requests())
	assert.Equal(t, 1, c.StatusCount(http.StatusTooManyRequests))
	assert.Equal(t, 1, c.ErrorCount())

	var buf bytes.Buffer
	c.Report(&buf)
	out := buf.String()
	assert.Contains(t, out, "Requests:     3")
	assert.Contains(t, out, "429: 1")
	assert.Contains(t, out, "--- get latency ---")
}

func TestParseSnapshot(t *testing.T) {
	text := `# HELP networknav_match_computations_total Total number of match set computations
# TYPE networknav_match_computations_total counter
networknav_match_computations_total{outcome="ok"} 7
networknav_match_computations_total{outcome="rate_limited"} 2
networknav_match_cache_requests_total{result="hit"} 30
networknav_match_cache_requests_total{result="miss"} 10
networknav_match_coalesced_requests_total 4
networknav_enrichment_total{result="timeout"} 1
networknav_enrichment_total{result="ok"} 5
networknav_match_compute_duration_seconds_sum 1.5
networknav_match_compute_duration_seconds_count 9
`
	snap := parseSnapshot(strings.NewReader(text))

	assert.Equal(t, 9.0, snap.computations)
	assert.Equal(t, 2.0, snap.rateLimited)
	assert.Equal(t, 30.0, snap.cacheHits)
	assert.Equal(t, 10.0, snap.cacheMisses)
	assert.Equal(t, 4.0, snap.coalesced)
	assert.Equal(t, 1.0, snap.enrichErrors)
	assert.Equal(t, 1.5, snap.computeSum)
	assert.Equal(t, 9.0, snap.computeCount)
	assert.InDelta(t, 0.75, cacheHitRatio(metricSnapshot{}, snap), 1e-9)
}

func TestParseMetricLine(t *testing.T) {
	name, labels, v, ok := parseMetricLine(`foo_total{a="x",b="y"} 3`)
	require.True(t, ok)
	assert.Equal(t, "foo_total", name)
	assert.Equal(t, map[string]string{"a": "x", "b": "y"}, labels)
	assert.Equal(t, 3.0, v)

	_, _, _, ok = parseMetricLine(`broken{a="x" 3`)
	assert.False(t, ok)
	_, _, _, ok = parseMetricLine(`lonely`)
	assert.False(t, ok)
}

func TestGenerateFixtures(t *testing.T) {
	fx := GenerateFixtures(20, 42)
	require.Len(t, fx.Profiles, 20)
	require.Len(t, fx.Responses, 20)
	assert.Equal(t, fx, GenerateFixtures(20, 42), "same seed, same population")

	for _, rs := range fx.Responses {
		require.NoError(t, rs.Validate())
	}

	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, WriteFixtures(path, fx))

	repo := profile.NewMemoryRepository()
	require.NoError(t, repo.LoadFixtures(path))
	assert.Len(t, repo.IDs(), 20)
}

func TestRun(t *testing.T) {
	var gets, passes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-ID") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			passes.Add(1)
			_, _ = w.Write([]byte(`{"type":"ack","match_id":"m1"}`))
			return
		}
		gets.Add(1)
		if r.URL.Query().Get("refresh") == "true" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"type":"rate_limited","retry_after":60}`))
			return
		}
		_, _ = w.Write([]byte(`{"type":"matches","from_cache":true,"match_set":{"matches":[{"id":"m1"},{"id":"m2"}]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	c := NewCollector()
	err := Run(context.Background(), client, Scenario{Users: 5, Rounds: 2, Concurrency: 3, PassRatio: 1, Seed: 1}, c)
	require.NoError(t, err)

	assert.Equal(t, int32(10), gets.Load())
	assert.Equal(t, int32(10), passes.Load())
	assert.Equal(t, 20, c.StatusCount(http.StatusOK))

	c = NewCollector()
	require.NoError(t, Run(context.Background(), client, Scenario{Users: 2, Rounds: 1, Refresh: true, PassRatio: 1}, c))
	assert.Equal(t, 2, c.StatusCount(http.StatusTooManyRequests))
	assert.Equal(t, int32(10), passes.Load(), "no pass without matches")
}
