package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/conductio"
	"github.com/JakeFAU/conductio-api/internal/engine"
	"github.com/JakeFAU/conductio-api/internal/server"
)

func newInstrumentsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "instruments",
		Short: "List the engine's instruments by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			invoker, err := server.NewEngine(cfg, logger)
			if err != nil {
				return err
			}
			return runInstruments(cmd.Context(), invoker, cmd.OutOrStdout(), asJSON, logger)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print categories as JSON")
	return cmd
}

func runInstruments(ctx context.Context, catalog conductio.Catalog, out io.Writer, asJSON bool, logger *zap.Logger) error {
	instruments, err := catalog.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("list instruments: %w", err)
	}
	categories := engine.Categorize(instruments)
	logger.Debug("instrument catalog loaded", zap.Int("instruments", len(instruments)), zap.Int("categories", len(categories)))

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(categories); err != nil {
			return fmt.Errorf("encode categories: %w", err)
		}
		return nil
	}

	for _, category := range categories {
		fmt.Fprintf(out, "%s (%d)\n", category.Name, len(category.Instruments))
		for _, inst := range category.Instruments {
			fmt.Fprintf(out, "  %-4d %-30s %s\n", inst.ID, inst.Name, inst.DisplayName)
		}
	}
	return nil
}
