package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/config"
	"github.com/JakeFAU/conductio-api/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conductio-api",
		Short: "HTTP API for the Conductio music generation engine.",
		Long: `conductio-api exposes the Conductio generation engine over HTTP.
It validates generation requests, runs the engine as a subprocess, streams
the rendered MIDI or WAV back to the caller and tracks async jobs.`,
		SilenceUsage: true,

		// Values from .env never override variables already set in the environment.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); env vars use the CONDUCTIO_ prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInstrumentsCmd())

	return cmd
}

// loadRuntime reads configuration and builds the process logger.
func loadRuntime() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
