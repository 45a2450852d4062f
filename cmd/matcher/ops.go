package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/camila-go/networknav-sub000/internal/config"
	"github.com/camila-go/networknav-sub000/internal/matching"
	"github.com/camila-go/networknav-sub000/internal/messaging"
	"github.com/camila-go/networknav-sub000/internal/protocol"
	"github.com/camila-go/networknav-sub000/internal/ratelimit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	quotaReset   bool
	queryRefresh bool
)

var quotaCmd = &cobra.Command{
	Use:   "quota <user_id>",
	Short: "Show, or with --reset clear, a user's recomputation quota",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if cfg.RateLimit.Backend != config.BackendRedis {
			return errors.New("quota needs ratelimit.backend=redis; memory counters live inside the serving process")
		}

		rdb, err := openRedis(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		userID, rule := args[0], recomputeRule(cfg)
		limiter := ratelimit.NewLimiter(rdb, log)
		if quotaReset {
			if err := limiter.Reset(cmd.Context(), userID, rule); err != nil {
				return fmt.Errorf("reset quota: %w", err)
			}
			log.Info("quota reset", zap.String("user_id", userID))
		}

		left, err := limiter.Remaining(cmd.Context(), userID, rule)
		if err != nil {
			return fmt.Errorf("read quota: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d recomputations left per %s\n", userID, left, rule.Limit, rule.Window)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <user_id>",
	Short: "Print refresh events published for a user until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		nc, err := messaging.NewNATSClient(cfg.NATS.NATSConfig, log)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer nc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		userID := args[0]
		out := cmd.OutOrStdout()
		err = nc.SubscribeRefreshed(userID, func(data []byte) {
			var ev matching.RefreshEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Warn("malformed refresh event", zap.Error(err))
				return
			}
			fmt.Fprintf(out, "%s  %s  count=%d high_affinity=%d strategic=%d avg=%.3f placeholder=%t\n",
				ev.GeneratedAt.Format("15:04:05"), ev.UserID, ev.Count,
				ev.HighAffinityCount, ev.StrategicCount, ev.AverageScore, ev.Placeholder)
		})
		if err != nil {
			return err
		}
		log.Info("watching refreshes", zap.String("user_id", userID))

		<-ctx.Done()
		return nc.UnsubscribeRefreshed(userID)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <user_id>",
	Short: "Fetch a user's matches over NATS request-reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		nc, err := messaging.NewNATSClient(cfg.NATS.NATSConfig, log)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer nc.Close()

		req, err := json.Marshal(protocol.GetMatchesMsg{
			Type:    protocol.TypeGetMatches,
			UserID:  args[0],
			Refresh: queryRefresh,
		})
		if err != nil {
			return err
		}

		reply, err := nc.Request(messaging.SubjectMatchesGet, req, cfg.NATS.RequestTimeout)
		if err != nil {
			return err
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, reply, "", "  "); err != nil {
			pretty.Reset()
			pretty.Write(reply)
		}
		pretty.WriteByte('\n')
		_, err = pretty.WriteTo(cmd.OutOrStdout())
		return err
	},
}

func init() {
	quotaCmd.Flags().BoolVar(&quotaReset, "reset", false, "clear the counter before reporting")
	queryCmd.Flags().BoolVar(&queryRefresh, "refresh", false, "force a recomputation")

	rootCmd.AddCommand(quotaCmd, watchCmd, queryCmd)
}
