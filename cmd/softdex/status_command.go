package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"softdex/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			status, err := client.Status(cmd.Context())
			if err != nil {
				if !api.IsAPIUnavailable(err) {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.DaemonStatus{Running: false})
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running at "+ctx.apiAddress(), colorize))
				return nil
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			for _, line := range statusLines(status, colorize) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func statusLines(status api.DaemonStatus, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	lines = append(lines,
		renderStatusLine("Daemon", statusOK, fmt.Sprintf("pid %d, started %s", status.PID, relativeTime(status.StartedAt)), colorize),
		renderStatusLine("Scan interval", statusInfo, (time.Duration(status.ScanIntervalSeconds) * time.Second).String(), colorize),
		renderStatusLine("Device events", statusInfo, yesNo(status.DeviceEvents), colorize),
	)
	if len(status.WatchedDirs) > 0 {
		lines = append(lines, renderStatusLine("Watching", statusInfo, strings.Join(status.WatchedDirs, ", "), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Detection", colorize)...)
	switch {
	case status.ScanInProgress:
		lines = append(lines, renderStatusLine("Scan", statusInfo, "in progress", colorize))
	case status.LastScanError != "":
		lines = append(lines, renderStatusLine("Last scan", statusError,
			fmt.Sprintf("%s: %s", relativeTime(status.LastScanAt), status.LastScanError), colorize))
	default:
		lines = append(lines, renderStatusLine("Last scan", statusOK, relativeTime(status.LastScanAt), colorize))
	}
	if status.LastScan != nil {
		for _, line := range scanLines(*status.LastScan, "", colorize) {
			lines = append(lines, statusIndent+line)
		}
	}
	enrichment := "idle"
	if status.Enriching {
		enrichment = "running"
	}
	lines = append(lines, renderStatusLine("Enrichment", statusInfo, enrichment, colorize))
	return lines
}
