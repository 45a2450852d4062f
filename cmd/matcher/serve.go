package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/camila-go/networknav-sub000/internal/api"
	"github.com/camila-go/networknav-sub000/internal/cache"
	"github.com/camila-go/networknav-sub000/internal/config"
	"github.com/camila-go/networknav-sub000/internal/enrich"
	"github.com/camila-go/networknav-sub000/internal/matching"
	"github.com/camila-go/networknav-sub000/internal/messaging"
	"github.com/camila-go/networknav-sub000/internal/moderation"
	"github.com/camila-go/networknav-sub000/internal/profile"
	"github.com/camila-go/networknav-sub000/internal/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve matches over HTTP and, when enabled, NATS",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// closer releases one resource on shutdown.
type closer func()

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	checks := make(map[string]api.HealthCheck)

	var rdb *redis.Client
	if cfg.UsesRedis() {
		var err error
		if rdb, err = openRedis(ctx, cfg); err != nil {
			return err
		}
		closers = append(closers, func() { rdb.Close() })
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	repo, db, err := buildRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		closers = append(closers, func() { db.Close() })
		checks["postgres"] = db.PingContext
	}

	deps := matching.Deps{
		Repo:    repo,
		Scorer:  matching.NewScorer(weights(cfg.Scoring.Weights), profile.DefaultCatalog),
		Cache:   buildCache(ctx, cfg, rdb, log),
		Limiter: buildLimiter(cfg, rdb, log),
		Store:   buildStore(cfg, rdb),
		Logger:  log,
	}

	if cfg.Enrichment.Enabled {
		gen, err := enrich.NewGemini(ctx, cfg.Enrichment.APIKey, cfg.Enrichment.Model, cfg.Enrichment.Temperature)
		if err != nil {
			return err
		}
		deps.Enricher = enrich.NewOpeners(gen, moderation.NewFilter(), cfg.Enrichment.Breaker, log)
		log.Info("enrichment enabled", zap.String("model", gen.Model()))
	}

	var nc *messaging.NATSClient
	if cfg.NATS.Enabled {
		nc, err = messaging.NewNATSClient(cfg.NATS.NATSConfig, log)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		closers = append(closers, nc.Close)
		checks["nats"] = func(context.Context) error {
			if !nc.Connected() {
				return errors.New("disconnected")
			}
			return nil
		}
		deps.Publisher = nc
	}

	svc, err := matching.NewService(deps, matching.Config{
		CacheTTL:          cfg.Cache.TTL,
		Rule:              recomputeRule(cfg),
		EnrichmentTimeout: cfg.Enrichment.Timeout,
	})
	if err != nil {
		return err
	}

	if nc != nil {
		requests := api.NewRequests(svc, cfg.NATS.RequestTimeout, log)
		if err := requests.Register(nc, cfg.NATS.Queue); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewHandler(svc, checks, log).Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("matcher listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("repository", cfg.Repository.Backend),
			zap.String("cache", cfg.Cache.Backend),
			zap.String("ratelimit", cfg.RateLimit.Backend),
			zap.String("matchstore", cfg.MatchStore.Backend),
			zap.Bool("nats", cfg.NATS.Enabled),
			zap.Bool("enrichment", cfg.Enrichment.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

func recomputeRule(cfg *config.Config) ratelimit.Rule {
	return ratelimit.Rule{
		Key:    ratelimit.RuleRecompute.Key,
		Limit:  cfg.RateLimit.Limit,
		Window: cfg.RateLimit.Window,
	}
}

func buildRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (profile.Repository, *sql.DB, error) {
	if cfg.Repository.Backend == config.BackendPostgres {
		db, err := profile.OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.Migrate {
			version, err := profile.Migrate(db)
			if err != nil {
				db.Close()
				return nil, nil, err
			}
			log.Info("migrations applied", zap.Uint("version", version))
		}
		return profile.NewPostgresRepository(db, log), db, nil
	}

	repo := profile.NewMemoryRepository()
	if cfg.Repository.Fixtures != "" {
		if err := repo.LoadFixtures(cfg.Repository.Fixtures); err != nil {
			return nil, nil, err
		}
		log.Info("fixtures loaded",
			zap.String("path", cfg.Repository.Fixtures),
			zap.Int("profiles", len(repo.IDs())),
		)
	}
	return repo, nil, nil
}

func buildCache(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *zap.Logger) matching.ResultCache {
	if cfg.Cache.Backend == config.BackendRedis {
		return cache.NewRedis[matching.MatchSet](rdb, cfg.Cache.Prefix)
	}
	mem := cache.NewMemory[matching.MatchSet](log)
	go mem.Run(ctx, cfg.Cache.SweepInterval)
	return mem
}

func buildLimiter(cfg *config.Config, rdb *redis.Client, log *zap.Logger) matching.Limiter {
	if cfg.RateLimit.Backend == config.BackendRedis {
		return ratelimit.NewLimiter(rdb, log)
	}
	return ratelimit.NewMemory()
}

func buildStore(cfg *config.Config, rdb *redis.Client) matching.MatchStore {
	if cfg.MatchStore.Backend == config.BackendRedis {
		return matching.NewRedisStore(rdb)
	}
	return matching.NewMemoryStore()
}

func weights(raw map[string]float64) matching.Weights {
	if len(raw) == 0 {
		return nil
	}
	w := make(matching.Weights, len(raw))
	for k, val := range raw {
		w[profile.Category(k)] = val
	}
	return w
}
