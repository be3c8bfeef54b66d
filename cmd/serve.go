package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/conductio-api/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and async workers",
		Long: `Starts the HTTP server and the async worker pool. The process drains
in-flight requests and queued jobs on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
