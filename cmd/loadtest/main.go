// Command loadtest drives a running matcher with simulated users.
//
//	loadtest seed --users 500 --out fixtures.yaml
//	loadtest run --url http://localhost:8080 --users 500 --rounds 5
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camila-go/networknav-sub000/internal/loadtest"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "loadtest",
		Short:        "Load test the matcher HTTP API",
		SilenceUsage: true,
	}
	root.AddCommand(seedCmd(), runCmd())
	return root
}

func seedCmd() *cobra.Command {
	var (
		users int
		out   string
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a fixtures file for the memory repository",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := loadtest.WriteFixtures(out, loadtest.GenerateFixtures(users, seed)); err != nil {
				return err
			}
			fmt.Printf("wrote %d users to %s\n", users, out)
			return nil
		},
	}
	cmd.Flags().IntVar(&users, "users", 500, "number of users to generate")
	cmd.Flags().StringVar(&out, "out", "fixtures.yaml", "output path")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	return cmd
}

func runCmd() *cobra.Command {
	var (
		baseURL        string
		metricsURL     string
		scrapeInterval time.Duration
		timeout        time.Duration
		s              loadtest.Scenario
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a scenario against a running matcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Load test: %d users x %d rounds against %s (concurrency=%d, refresh=%v, pass=%.2f)\n",
				s.Users, s.Rounds, baseURL, s.Concurrency, s.Refresh, s.PassRatio)

			collector := loadtest.NewCollector()
			if metricsURL != "" {
				scraper := loadtest.NewScraper(metricsURL, scrapeInterval)
				collector.SetScraper(scraper)
				scraper.Start(ctx)
				defer scraper.Stop()
			}

			progressCtx, cancelProgress := context.WithCancel(ctx)
			go progress(progressCtx, collector, s.Users*s.Rounds)

			err := loadtest.Run(ctx, loadtest.NewClient(baseURL, timeout), s, collector)
			cancelProgress()
			if err != nil {
				return err
			}

			collector.Report(os.Stdout)
			if n := collector.StatusCount(http.StatusTooManyRequests); n > 0 {
				fmt.Printf("note: %d requests were rate limited\n", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "matcher base URL")
	cmd.Flags().StringVar(&metricsURL, "metrics-url", "http://localhost:8080/metrics", "Prometheus endpoint, empty to disable scraping")
	cmd.Flags().DurationVar(&scrapeInterval, "scrape-interval", 2*time.Second, "interval between metrics scrapes")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	cmd.Flags().IntVar(&s.Users, "users", 500, "number of simulated users (ids from seed)")
	cmd.Flags().IntVar(&s.Rounds, "rounds", 5, "reads per user")
	cmd.Flags().IntVar(&s.Concurrency, "concurrency", 50, "simultaneous users")
	cmd.Flags().BoolVar(&s.Refresh, "refresh", false, "force recomputation on every read")
	cmd.Flags().Float64Var(&s.PassRatio, "pass", 0.1, "probability of passing the top match after a read")
	cmd.Flags().Uint64Var(&s.Seed, "seed", 1, "random seed")
	return cmd
}

func progress(ctx context.Context, c *loadtest.Collector, total int) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Printf("  [run] requests: %d/%d+  errors: %d\n", c.Requests(), total, c.ErrorCount())
		}
	}
}
