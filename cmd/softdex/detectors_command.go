package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"softdex/internal/detect"
)

type detectorRow struct {
	Source  string `json:"source"`
	Role    string `json:"role"`
	Present bool   `json:"present"`
}

func newDetectorsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "detectors",
		Short: "Show the configured detectors and whether their platform is installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			registry, err := detect.NewRegistry(cfg, logger)
			if err != nil {
				return err
			}

			var rows []detectorRow
			if inv := registry.Inventory(); inv != nil {
				rows = append(rows, detectorRow{Source: inv.Source(), Role: "inventory", Present: inv.IsPlatformPresent()})
			}
			for i, d := range registry.Platforms() {
				rows = append(rows, detectorRow{
					Source:  d.Source(),
					Role:    fmt.Sprintf("platform #%d", i+1),
					Present: d.IsPlatformPresent(),
				})
			}

			if jsonOutput {
				if rows == nil {
					rows = []detectorRow{}
				}
				return writeJSON(cmd, rows)
			}
			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{r.Source, r.Role, yesNo(r.Present)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
				{header: "Source"},
				{header: "Role"},
				{header: "Present"},
			}, table))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
