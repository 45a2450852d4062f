package main

import (
	"context"
	"errors"
	"time"

	"github.com/camila-go/networknav-sub000/internal/profile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply profile schema migrations to postgres.dsn",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		db, err := profile.OpenPostgres(ctx, cfg.Postgres.DSN, 1, 1)
		if err != nil {
			return err
		}
		defer db.Close()

		version, err := profile.Migrate(db)
		if err != nil {
			return err
		}
		log.Info("migrations applied", zap.Uint("version", version))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
