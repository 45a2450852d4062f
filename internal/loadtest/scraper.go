package loadtest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// metricSnapshot holds the tracked matcher metrics at one point in time.
type metricSnapshot struct {
	timestamp time.Time

	computations float64 // all outcomes
	rateLimited  float64
	cacheHits    float64
	cacheMisses  float64
	coalesced    float64
	enrichErrors float64 // error + timeout

	computeSum   float64
	computeCount float64
}

// Scraper periodically fetches the matcher's /metrics endpoint during a
// run.
type Scraper struct {
	metricsURL string
	interval   time.Duration

	mu        sync.Mutex
	snapshots []metricSnapshot

	cancel context.CancelFunc
	done   chan struct{}
	client *http.Client
}

// NewScraper creates a Scraper for metricsURL.
func NewScraper(metricsURL string, interval time.Duration) *Scraper {
	return &Scraper{
		metricsURL: metricsURL,
		interval:   interval,
		client:     &http.Client{Timeout: 5 * time.Second},
		done:       make(chan struct{}),
	}
}

// Start takes a snapshot now and then every interval until ctx is
// cancelled or Stop is called.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.scrapeOnce(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.scrapeOnce(context.Background())
				return
			case <-ticker.C:
				s.scrapeOnce(ctx)
			}
		}
	}()
}

// Stop stops the scraper and waits for the final snapshot.
func (s *Scraper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Scraper) scrapeOnce(ctx context.Context) {
	snap, err := s.fetch(ctx)
	if err != nil {
		// The server may not be up yet.
		return
	}
	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
}

func (s *Scraper) fetch(ctx context.Context) (metricSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.metricsURL, nil)
	if err != nil {
		return metricSnapshot{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return metricSnapshot{}, err
	}
	defer resp.Body.Close()

	snap := parseSnapshot(resp.Body)
	snap.timestamp = time.Now()
	return snap, nil
}

func parseSnapshot(r io.Reader) metricSnapshot {
	var snap metricSnapshot

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		name, labels, value, ok := parseMetricLine(line)
		if !ok {
			continue
		}

		switch name {
		case "networknav_match_computations_total":
			snap.computations += value
			if labels["outcome"] == "rate_limited" {
				snap.rateLimited += value
			}
		case "networknav_match_cache_requests_total":
			switch labels["result"] {
			case "hit":
				snap.cacheHits += value
			case "miss":
				snap.cacheMisses += value
			}
		case "networknav_match_coalesced_requests_total":
			snap.coalesced = value
		case "networknav_enrichment_total":
			if r := labels["result"]; r == "error" || r == "timeout" {
				snap.enrichErrors += value
			}
		case "networknav_match_compute_duration_seconds_sum":
			snap.computeSum = value
		case "networknav_match_compute_duration_seconds_count":
			snap.computeCount = value
		}
	}
	return snap
}

// parseMetricLine splits a Prometheus text exposition line into the metric
// name, its labels and its value.
func parseMetricLine(line string) (name string, labels map[string]string, value float64, ok bool) {
	raw := line
	if idx := strings.IndexByte(raw, '{'); idx != -1 {
		name = raw[:idx]
		closing := strings.IndexByte(raw[idx:], '}')
		if closing == -1 {
			return "", nil, 0, false
		}
		labels = parseLabels(raw[idx+1 : idx+closing])
		raw = name + raw[idx+closing+1:]
	}

	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return "", nil, 0, false
	}
	if name == "" {
		name = fields[0]
	}

	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", nil, 0, false
	}
	return name, labels, v, true
}

// parseLabels reads a="x",b="y". Label values with embedded commas or
// escaped quotes are not produced by the matcher.
func parseLabels(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		out[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return out
}

// Report writes initial, final and delta values for the tracked counters
// and the average computation time over the run.
func (s *Scraper) Report(w io.Writer) {
	s.mu.Lock()
	snaps := make([]metricSnapshot, len(s.snapshots))
	copy(snaps, s.snapshots)
	s.mu.Unlock()

	if len(snaps) == 0 {
		fmt.Fprintln(w, "\n--- Server Metrics (no data collected) ---")
		return
	}

	first := snaps[0]
	last := snaps[len(snaps)-1]

	fmt.Fprintln(w, "\n--- Server Metrics (Prometheus) ---")
	fmt.Fprintf(w, "  Scrape count:  %d snapshots over %s\n",
		len(snaps), last.timestamp.Sub(first.timestamp).Round(time.Second))

	counters := []struct {
		label       string
		first, last float64
	}{
		{"Computations", first.computations, last.computations},
		{"Rate Limited", first.rateLimited, last.rateLimited},
		{"Cache Hits", first.cacheHits, last.cacheHits},
		{"Cache Misses", first.cacheMisses, last.cacheMisses},
		{"Coalesced", first.coalesced, last.coalesced},
		{"Enrich Errors", first.enrichErrors, last.enrichErrors},
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-16s %10s %10s %10s\n", "Metric", "Initial", "Final", "Delta")
	fmt.Fprintf(w, "  %-16s %10s %10s %10s\n", "------", "-------", "-----", "-----")
	for _, c := range counters {
		fmt.Fprintf(w, "  %-16s %10.0f %10.0f %10.0f\n", c.label, c.first, c.last, c.last-c.first)
	}

	if hitRatio := cacheHitRatio(first, last); !math.IsNaN(hitRatio) {
		fmt.Fprintf(w, "\n  Cache hit ratio: %.1f%%\n", hitRatio*100)
	}

	fmt.Fprintln(w)
	deltaSum := last.computeSum - first.computeSum
	deltaCount := last.computeCount - first.computeCount
	if deltaCount > 0 {
		fmt.Fprintf(w, "  %-16s avg: %.4fs  (%.0f observations)\n", "Compute Time", deltaSum/deltaCount, deltaCount)
	} else {
		fmt.Fprintf(w, "  %-16s avg: N/A  (no observations)\n", "Compute Time")
	}
}

func cacheHitRatio(first, last metricSnapshot) float64 {
	hits := last.cacheHits - first.cacheHits
	total := hits + last.cacheMisses - first.cacheMisses
	if total <= 0 {
		return math.NaN()
	}
	return hits / total
}
