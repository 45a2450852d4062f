package main

import (
	"context"
	"errors"
	"time"

	"github.com/camila-go/networknav-sub000/internal/profile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixtures.yaml>",
	Short: "Upsert profiles and responses from a YAML fixture file into postgres.dsn",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}

		fx, err := profile.ReadFixtures(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		db, err := profile.OpenPostgres(ctx, cfg.Postgres.DSN, 1, 1)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := profile.NewPostgresRepository(db, log).Seed(ctx, fx); err != nil {
			return err
		}
		log.Info("fixtures seeded",
			zap.String("path", args[0]),
			zap.Int("profiles", len(fx.Profiles)),
			zap.Int("responses", len(fx.Responses)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
