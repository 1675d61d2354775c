package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"softdex/internal/catalog"
	"softdex/internal/catalogfile"
	"softdex/internal/query"
	"softdex/internal/software"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Reference catalog maintenance",
	}

	catalogCmd.AddCommand(newCatalogStatsCommand(ctx))
	catalogCmd.AddCommand(newCatalogImportCommand(ctx))
	catalogCmd.AddCommand(newCatalogDownloadCommand(ctx))
	catalogCmd.AddCommand(newCatalogPruneCommand(ctx))

	return catalogCmd
}

type catalogStats struct {
	CatalogPath      string                           `json:"catalog_path"`
	CatalogBytes     int64                            `json:"catalog_bytes"`
	Entries          int                              `json:"entries"`
	LocalPath        string                           `json:"local_path"`
	LocalBytes       int64                            `json:"local_bytes"`
	Installations    int                              `json:"installations"`
	ReferencedByHost int                              `json:"referenced_entries"`
	States           map[software.EnrichmentState]int `json:"enrichment_states"`
}

func newCatalogStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and installation counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := ctx.openStores(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			stats := catalogStats{
				CatalogPath:  cfg.Paths.CatalogPath,
				CatalogBytes: fileSize(cfg.Paths.CatalogPath),
				LocalPath:    cfg.Paths.LocalPath,
				LocalBytes:   fileSize(cfg.Paths.LocalPath),
			}
			if stats.Entries, err = st.catalog.Count(cmd.Context()); err != nil {
				return err
			}
			if stats.Installations, err = st.installs.GetCount(cmd.Context()); err != nil {
				return err
			}
			referenced, err := st.installs.ReferenceIDs(cmd.Context())
			if err != nil {
				return err
			}
			stats.ReferencedByHost = len(referenced)
			if stats.States, err = st.catalog.StateCounts(cmd.Context(), cfg.MaxEnrichmentAge()); err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, stats)
			}
			facts := [][2]string{
				{"Catalog entries", humanize.Comma(int64(stats.Entries))},
				{"Catalog size", humanize.IBytes(uint64(stats.CatalogBytes))},
				{"Installations", humanize.Comma(int64(stats.Installations))},
				{"Installed titles", humanize.Comma(int64(stats.ReferencedByHost))},
				{"Local size", humanize.IBytes(uint64(stats.LocalBytes))},
			}
			states := make([]string, 0, len(stats.States))
			for state := range stats.States {
				states = append(states, string(state))
			}
			sort.Strings(states)
			for _, state := range states {
				label := "Enrichment " + strings.ReplaceAll(state, "_", " ")
				facts = append(facts, [2]string{label, humanize.Comma(int64(stats.States[software.EnrichmentState(state)]))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderFacts(facts))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCatalogImportCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "import <file.csv|->",
		Short: "Import reference entries from CSV (name,source,external_id,category,publisher,description)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader
			if args[0] == "-" {
				in = cmd.InOrStdin()
			} else {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer file.Close()
				in = file
			}

			st, err := ctx.openStores(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			result, importErr := catalogfile.ImportCSV(cmd.Context(), st.catalog, in)
			if jsonOutput {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rows: %d created, %d updated, %d skipped\n",
					result.Rows, result.Created, result.Updated, result.Skipped)
			}
			if importErr != nil {
				return fmt.Errorf("import finished with errors: %w", importErr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCatalogDownloadCommand(ctx *commandContext) *cobra.Command {
	var sourceURL string
	var checksum string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Replace the reference catalog with a published copy",
		Long: "Download a catalog database, verify it and swap it in. The previous catalog is kept " +
			"next to it with a " + catalogfile.BackupSuffix + " suffix. Stop the daemon first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimSpace(sourceURL)
			if target == "" {
				target = cfg.Paths.CatalogURL
			}
			if target == "" {
				return errors.New("no catalog url configured; set paths.catalog_url or pass --url")
			}

			var progress io.Writer
			if errOut := cmd.ErrOrStderr(); shouldColorize(errOut) {
				progress = errOut
			}
			staged := cfg.Paths.CatalogPath + ".download"
			defer os.Remove(staged)

			result, err := catalogfile.Download(cmd.Context(), target, staged, progress,
				catalogfile.WithUserAgent(cfg.Enrichment.UserAgent),
				catalogfile.WithChecksum(checksum),
			)
			if err != nil {
				return err
			}
			if err := catalogfile.Replace(cmd.Context(), cfg.Paths.CatalogPath, result.Path); err != nil {
				return err
			}

			store, err := catalog.Open(cmd.Context(), cfg.Paths.CatalogPath)
			if err != nil {
				return err
			}
			defer store.Close()
			count, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Downloaded %s (sha256 %s)\n", humanize.IBytes(uint64(result.Bytes)), result.SHA256)
			fmt.Fprintf(out, "Catalog now holds %s entries; previous copy kept at %s\n",
				humanize.Comma(int64(count)), cfg.Paths.CatalogPath+catalogfile.BackupSuffix)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceURL, "url", "", "Catalog URL (defaults to paths.catalog_url)")
	cmd.Flags().StringVar(&checksum, "sha256", "", "Expected SHA-256 of the download")
	return cmd
}

func newCatalogPruneCommand(ctx *commandContext) *cobra.Command {
	var unreferenced bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove installations whose catalog entry is gone",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			missing := make(map[int64]struct{}, len(orphans))
			for _, o := range orphans {
				missing[o.ReferenceID] = struct{}{}
			}
			missingIDs := sortedIDs(missing)

			var unusedIDs []int64
			if unreferenced {
				unusedIDs, err = unreferencedEntries(cmd, st)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "Would remove %d orphaned installations", len(orphans))
				if unreferenced {
					fmt.Fprintf(out, " and %d unreferenced catalog entries", len(unusedIDs))
				}
				fmt.Fprintln(out)
				return nil
			}

			removed, err := st.installs.DeleteByReference(cmd.Context(), missingIDs...)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %d orphaned installations\n", removed)
			if unreferenced {
				deleted, err := st.catalog.Delete(cmd.Context(), unusedIDs...)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d unreferenced catalog entries\n", deleted)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unreferenced, "unreferenced", false, "Also delete catalog entries no installation points at")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed without deleting")
	return cmd
}

func unreferencedEntries(cmd *cobra.Command, st *stores) ([]int64, error) {
	entries, err := st.catalog.List(cmd.Context())
	if err != nil {
		return nil, err
	}
	referenced, err := st.installs.ReferenceIDs(cmd.Context())
	if err != nil {
		return nil, err
	}
	used := make(map[int64]struct{}, len(referenced))
	for _, id := range referenced {
		used[id] = struct{}{}
	}
	unused := make(map[int64]struct{})
	for _, e := range entries {
		if _, ok := used[e.ID]; !ok {
			unused[e.ID] = struct{}{}
		}
	}
	return sortedIDs(unused), nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
