package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"softdex/internal/enrich"
)

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var batchSize int
	var maxBatches int

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fetch metadata for catalog entries that need it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Enrichment.Enabled {
				return errors.New("enrichment is disabled (enrichment.enabled = false)")
			}
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			st, err := ctx.openStores(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			settings := enrich.SettingsFromConfig(cfg)
			if batchSize > 0 {
				settings.BatchSize = batchSize
			}
			if maxBatches > 0 {
				settings.MaxBatches = maxBatches
			}
			scheduler, err := newScheduler(cfg, logger, st, nil, settings)
			if err != nil {
				return err
			}
			defer scheduler.Close()

			summary, err := scheduler.Run(cmd.Context())
			if errors.Is(err, enrich.ErrAlreadyRunning) {
				return fmt.Errorf("%w; another process is enriching this catalog", err)
			}
			if jsonOutput {
				if encErr := writeJSON(cmd, summary); encErr != nil {
					return encErr
				}
			} else {
				out := cmd.OutOrStdout()
				kind := statusOK
				if err != nil || summary.Failed > 0 {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Enrichment", kind, enrichmentMessage(summary), shouldColorize(out)))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Entries per batch (defaults to enrichment.batch_size)")
	cmd.Flags().IntVar(&maxBatches, "max-batches", 0, "Batch limit for this run (defaults to enrichment.max_batches)")
	return cmd
}

func enrichmentMessage(summary enrich.RunSummary) string {
	return fmt.Sprintf("%d enriched, %d not found, %d failed in %d batches (%s, %s)",
		summary.Enriched, summary.NotFound, summary.Failed, summary.Batches,
		summary.StopReason, summary.Duration.Round(time.Millisecond))
}
