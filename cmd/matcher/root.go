package main

import (
	"fmt"

	"github.com/camila-go/networknav-sub000/internal/config"
	"github.com/camila-go/networknav-sub000/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const app = "matcher"

var (
	cfgFile string
	envFile string

	v = config.New()

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "matcher computes and serves ranked networking matches",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is matcher.yaml in the current directory)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	_ = v.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = v.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("json"))
}

// setup loads configuration and builds the logger for a subcommand.
func setup() (*config.Config, *zap.Logger, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}
	return cfg, log, nil
}
