package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"softdex/internal/query"
	"softdex/internal/software"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var filter query.Filter
	var jsonOutput bool
	var remote bool
	var orphans bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed software",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateCategory(filter.Category); err != nil {
				return err
			}
			if orphans {
				return runListOrphans(cmd, ctx, jsonOutput)
			}

			var views []software.MergedView
			if remote {
				client, err := ctx.apiClient()
				if err != nil {
					return err
				}
				resp, err := client.Software(cmd.Context(), filter)
				if err != nil {
					return wrapAPIError(err, ctx.apiAddress())
				}
				views = resp.Items
			} else {
				logger, err := ctx.commandLogger()
				if err != nil {
					return err
				}
				st, err := ctx.openStores(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()
				views, err = query.New(st.catalog, st.installs, logger).Query(cmd.Context(), filter)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				if views == nil {
					views = []software.MergedView{}
				}
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "No installed software recorded; run `softdex scan` first")
				return nil
			}
			fmt.Fprintln(out, renderTable(softwareColumns, softwareRows(views)))
			fmt.Fprintf(out, "%s installations\n", humanize.Comma(int64(len(views))))
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Category, "category", "", "Only show this category")
	cmd.Flags().StringVar(&filter.Source, "source", "", "Only show this source (Steam, Epic, GOG, DesktopEntry, Registry)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&remote, "remote", false, "Query the running daemon instead of the local databases")
	cmd.Flags().BoolVar(&orphans, "orphans", false, "Show installations whose catalog entry is missing")
	return cmd
}

var softwareColumns = []column{
	{header: "Name", maxWidth: 40},
	{header: "Source"},
	{header: "Category"},
	{header: "Version", maxWidth: 16},
	{header: "Size", align: alignRight},
	{header: "Installed"},
	{header: "Enriched"},
}

func softwareRows(views []software.MergedView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		size := "-"
		if v.SizeBytes > 0 {
			size = humanize.IBytes(uint64(v.SizeBytes))
		}
		installed := "-"
		if v.InstallDate != nil {
			installed = v.InstallDate.Format("2006-01-02")
		}
		rows = append(rows, []string{
			v.Name,
			v.Source,
			v.Category.String(),
			dashIfEmpty(v.Version),
			size,
			installed,
			yesNo(v.Enriched),
		})
	}
	return rows
}

func runListOrphans(cmd *cobra.Command, ctx *commandContext, jsonOutput bool) error {
	logger, err := ctx.commandLogger()
	if err != nil {
		return err
	}
	st, err := ctx.openStores(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	orphans, err := query.New(st.catalog, st.installs, logger).Orphans(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		if orphans == nil {
			orphans = []software.LocalInstallation{}
		}
		return writeJSON(cmd, orphans)
	}
	out := cmd.OutOrStdout()
	if len(orphans) == 0 {
		fmt.Fprintln(out, "No orphaned installations")
		return nil
	}
	rows := make([][]string, 0, len(orphans))
	for _, o := range orphans {
		rows = append(rows, []string{
			fmt.Sprintf("%d", o.ID),
			fmt.Sprintf("%d", o.ReferenceID),
			dashIfEmpty(firstNonEmpty(o.InstallLocation, o.ExecutablePath)),
			humanize.Time(o.LastDetected),
		})
	}
	fmt.Fprintln(out, renderTable([]column{
		{header: "ID", align: alignRight},
		{header: "Reference", align: alignRight},
		{header: "Location", maxWidth: 60},
		{header: "Last Seen"},
	}, rows))
	return nil
}

func validateCategory(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if parsed := software.ParseCategory(value); parsed.IsDefault() && !strings.EqualFold(value, string(software.CategoryUnknown)) {
		names := make([]string, 0, len(software.Categories()))
		for _, c := range software.Categories() {
			names = append(names, string(c))
		}
		return fmt.Errorf("unknown category %q (valid: %s)", value, strings.Join(names, ", "))
	}
	return nil
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
