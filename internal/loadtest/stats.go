// Package loadtest drives the matcher HTTP API with many simulated users
// and aggregates client and server side measurements.
package loadtest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates request outcomes from many goroutines.
type Collector struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration // by operation
	statuses  map[int]int
	errors    int
	requests  int
	startTime time.Time
	scraper   *Scraper
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		latencies: make(map[string][]time.Duration),
		statuses:  make(map[int]int),
		startTime: time.Now(),
	}
}

// SetScraper attaches a server metrics scraper whose report is appended to
// Report's output.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// Add records one completed request.
func (c *Collector) Add(op string, status int, d time.Duration) {
	c.mu.Lock()
	c.latencies[op] = append(c.latencies[op], d)
	c.statuses[status]++
	c.requests++
	c.mu.Unlock()
}

// AddError records a request that got no HTTP response.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.requests++
	c.mu.Unlock()
}

// Requests returns the number of recorded requests, failed ones included.
func (c *Collector) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// StatusCount returns how many responses had status.
func (c *Collector) StatusCount(status int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[status]
}

// ErrorCount returns the number of transport errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Report writes a summary with latency percentiles per operation.
func (c *Collector) Report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)

	fmt.Fprintln(w, "\n=== Load Test Results ===")
	fmt.Fprintf(w, "Duration:     %s\n", elapsed.Round(time.Second))
	fmt.Fprintf(w, "Requests:     %d\n", c.requests)
	fmt.Fprintf(w, "Errors:       %d\n", c.errors)
	if c.requests > 0 && elapsed > 0 {
		fmt.Fprintf(w, "Throughput:   %.1f req/s\n", float64(c.requests)/elapsed.Seconds())
	}

	if len(c.statuses) > 0 {
		codes := make([]int, 0, len(c.statuses))
		for code := range c.statuses {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		fmt.Fprintln(w, "\n--- Status Codes ---")
		for _, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, c.statuses[code])
		}
	}

	ops := make([]string, 0, len(c.latencies))
	for op := range c.latencies {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(w, "\n--- %s latency ---\n", op)
		printPercentiles(w, c.latencies[op])
	}

	if c.scraper != nil {
		c.scraper.Report(w)
	}
	fmt.Fprintln(w)
}

// Percentiles summarizes a latency sample.
type Percentiles struct {
	Avg, P50, P95, P99, Max time.Duration
	N                       int
}

// Summarize sorts durations in place and computes its percentiles.
func Summarize(durations []time.Duration) Percentiles {
	n := len(durations)
	if n == 0 {
		return Percentiles{}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return Percentiles{
		Avg: sum / time.Duration(n),
		P50: durations[n/2],
		P95: durations[int(math.Ceil(float64(n)*0.95))-1],
		P99: durations[int(math.Ceil(float64(n)*0.99))-1],
		Max: durations[n-1],
		N:   n,
	}
}

func printPercentiles(w io.Writer, durations []time.Duration) {
	p := Summarize(durations)
	fmt.Fprintf(w, "  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
		p.Avg.Round(time.Microsecond),
		p.P50.Round(time.Microsecond),
		p.P95.Round(time.Microsecond),
		p.P99.Round(time.Microsecond),
		p.Max.Round(time.Microsecond),
		p.N,
	)
}
