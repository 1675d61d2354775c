package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"softdex/internal/enrich"
	"softdex/internal/logging"
	"softdex/internal/scan"
)

// scanReport is the --json shape of a local scan.
type scanReport struct {
	Summary            scan.Summary       `json:"summary"`
	Error              string             `json:"error,omitempty"`
	Enrichment         *enrich.RunSummary `json:"enrichment,omitempty"`
	EnrichmentError    string             `json:"enrichment_error,omitempty"`
	EnrichmentTimedOut bool               `json:"enrichment_timed_out,omitempty"`
}

// foregroundEnricher records the post-scan trigger so the loop can run in the
// foreground before the process exits.
type foregroundEnricher struct {
	requested bool
}

func (f *foregroundEnricher) Trigger(context.Context) bool {
	f.requested = true
	return true
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var noEnrich bool
	var remote bool
	var async bool
	var enrichTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Detect installed software and update the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				return runRemoteScan(cmd, ctx, async, jsonOutput)
			}
			if async {
				return errors.New("--async requires --remote")
			}
			if enrichTimeout < 0 {
				return errors.New("--enrich-timeout must not be negative")
			}
			return runLocalScan(cmd, ctx, localScanOptions{
				noEnrich:      noEnrich,
				enrichTimeout: enrichTimeout,
				jsonOutput:    jsonOutput,
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noEnrich, "no-enrich", false, "Skip metadata enrichment after the pass")
	cmd.Flags().DurationVar(&enrichTimeout, "enrich-timeout", 0, "Stop foreground enrichment after this long (0 waits until caught up)")
	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the running daemon to scan instead")
	cmd.Flags().BoolVar(&async, "async", false, "With --remote, queue the pass and return immediately")
	return cmd
}

type localScanOptions struct {
	noEnrich      bool
	enrichTimeout time.Duration
	jsonOutput    bool
}

func runLocalScan(cmd *cobra.Command, ctx *commandContext, opts localScanOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
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

	p, err := newPipeline(cfg, logger, st, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	var post *foregroundEnricher
	var enricher scan.Enricher
	if !opts.noEnrich && cfg.Detection.EnrichAfterScan && p.scheduler != nil {
		post = &foregroundEnricher{}
		enricher = post
	}

	summary, passErr := p.scanRunner(enricher).Run(cmd.Context())
	if passErr != nil && (summary.CorrelationID == "" || errors.Is(passErr, context.Canceled)) {
		return passErr
	}

	report := scanReport{Summary: summary}
	if passErr != nil {
		report.Error = passErr.Error()
	}
	enrichNow := post != nil && post.requested
	// The pass result is printed before the enrichment loop, which can take
	// minutes on a large catalog.
	if !opts.jsonOutput {
		printScanLines(cmd, report)
	}
	if enrichNow {
		runEnrichment(cmd.Context(), p.scheduler, summary.CorrelationID, opts.enrichTimeout, &report)
	}

	if opts.jsonOutput {
		if err := writeJSON(cmd, report); err != nil {
			return err
		}
	} else if enrichNow {
		printEnrichmentLine(cmd, report)
	}
	if passErr != nil {
		return fmt.Errorf("detection pass finished with errors: %w", passErr)
	}
	return nil
}

// runEnrichment drives the post-scan loop in the foreground. Hitting the
// timeout is a partial run, not a failure: the remaining entries stay eligible
// for the next loop.
func runEnrichment(parent context.Context, scheduler *enrich.Scheduler, correlationID string, timeout time.Duration, report *scanReport) {
	runCtx := logging.WithCorrelationID(parent, correlationID)
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	run, err := scheduler.Run(runCtx)
	switch {
	case err == nil:
		report.Enrichment = &run
	case errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil:
		report.Enrichment = &run
		report.EnrichmentTimedOut = true
	case errors.Is(err, context.Canceled):
		report.Enrichment = &run
		report.EnrichmentError = err.Error()
	default:
		report.EnrichmentError = err.Error()
	}
}

func printScanLines(cmd *cobra.Command, report scanReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range scanLines(report.Summary, report.Error, colorize) {
		fmt.Fprintln(out, line)
	}
}

func printEnrichmentLine(cmd *cobra.Command, report scanReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	switch {
	case report.EnrichmentError != "":
		fmt.Fprintln(out, renderStatusLine("Enrichment", statusWarn, report.EnrichmentError, colorize))
	case report.EnrichmentTimedOut:
		msg := "timed out, remaining entries wait for the next run"
		if report.Enrichment != nil {
			msg = enrichmentMessage(*report.Enrichment) + "; " + msg
		}
		fmt.Fprintln(out, renderStatusLine("Enrichment", statusWarn, msg, colorize))
	case report.Enrichment != nil:
		fmt.Fprintln(out, renderStatusLine("Enrichment", statusOK, enrichmentMessage(*report.Enrichment), colorize))
	}
}

func runRemoteScan(cmd *cobra.Command, ctx *commandContext, async, jsonOutput bool) error {
	client, err := ctx.apiClient()
	if err != nil {
		return err
	}
	resp, err := client.Scan(cmd.Context(), async)
	if err != nil {
		return wrapAPIError(err, ctx.apiAddress())
	}
	if jsonOutput {
		return writeJSON(cmd, resp)
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	if resp.Queued || resp.Summary == nil {
		fmt.Fprintln(out, renderStatusLine("Detection pass", statusInfo, "queued on daemon", colorize))
		return nil
	}
	for _, line := range scanLines(*resp.Summary, resp.Error, colorize) {
		fmt.Fprintln(out, line)
	}
	if resp.Error != "" {
		return fmt.Errorf("detection pass finished with errors: %s", resp.Error)
	}
	return nil
}
