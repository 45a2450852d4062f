package loadtest

import (
	"context"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

// Scenario configures one run.
type Scenario struct {
	Users       int
	Rounds      int     // requests per user
	Concurrency int     // simultaneous users
	Refresh     bool    // force recomputation on every read
	PassRatio   float64 // probability of passing the top match after a read
	Seed        uint64
}

// Run replays s against client and records every call in collector. It
// returns when all users are done or ctx is cancelled.
func Run(ctx context.Context, client *Client, s Scenario, collector *Collector) error {
	if s.Concurrency <= 0 {
		s.Concurrency = 1
	}
	if s.Rounds <= 0 {
		s.Rounds = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Concurrency)

	for i := 0; i < s.Users; i++ {
		userID := UserID(i)
		rng := rand.New(rand.NewPCG(s.Seed, uint64(i)))
		g.Go(func() error {
			for r := 0; r < s.Rounds; r++ {
				if ctx.Err() != nil {
					return nil
				}
				res, err := client.GetMatches(ctx, userID, s.Refresh)
				if err != nil && res.Status == 0 {
					collector.AddError()
					continue
				}
				collector.Add(opName("get", s.Refresh), res.Status, res.Latency)

				if len(res.MatchIDs) > 0 && rng.Float64() < s.PassRatio {
					pres, err := client.PassMatch(ctx, userID, res.MatchIDs[0])
					if err != nil && pres.Status == 0 {
						collector.AddError()
						continue
					}
					collector.Add("pass", pres.Status, pres.Latency)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func opName(op string, refresh bool) string {
	if refresh {
		return op + "_refresh"
	}
	return op
}
