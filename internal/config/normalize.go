package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDetection(); err != nil {
		return err
	}
	c.normalizeEnrichment()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("SOFTDEX_DATA_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DataDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("SOFTDEX_CATALOG_PATH"); ok && strings.TrimSpace(value) != "" {
		c.Paths.CatalogPath = strings.TrimSpace(value)
	}

	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CatalogPath) == "" {
		c.Paths.CatalogPath = filepath.Join(c.Paths.DataDir, "catalog.db")
	}
	if c.Paths.CatalogPath, err = expandPath(c.Paths.CatalogPath); err != nil {
		return fmt.Errorf("paths.catalog_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LocalPath) == "" {
		c.Paths.LocalPath = filepath.Join(c.Paths.DataDir, "local.db")
	}
	if c.Paths.LocalPath, err = expandPath(c.Paths.LocalPath); err != nil {
		return fmt.Errorf("paths.local_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if value, ok := os.LookupEnv("SOFTDEX_API_TOKEN"); ok {
		c.Paths.APIToken = value
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Paths.CatalogURL = strings.TrimSpace(c.Paths.CatalogURL)
	return nil
}

func (c *Config) normalizeDetection() error {
	c.Detection.Platforms = normalizeList(c.Detection.Platforms, true)

	var err error
	if c.Detection.SteamRoot, err = expandPath(strings.TrimSpace(c.Detection.SteamRoot)); err != nil {
		return fmt.Errorf("detection.steam_root: %w", err)
	}
	if c.Detection.EpicManifestDir, err = expandPath(strings.TrimSpace(c.Detection.EpicManifestDir)); err != nil {
		return fmt.Errorf("detection.epic_manifest_dir: %w", err)
	}
	if c.Detection.GOGRoots, err = expandPaths(c.Detection.GOGRoots); err != nil {
		return fmt.Errorf("detection.gog_roots: %w", err)
	}
	if c.Detection.DesktopDirs, err = expandPaths(c.Detection.DesktopDirs); err != nil {
		return fmt.Errorf("detection.desktop_dirs: %w", err)
	}
	if c.Detection.StaleDays == 0 {
		c.Detection.StaleDays = defaultStaleDays
	}
	if c.Detection.ScanIntervalMinutes == 0 {
		c.Detection.ScanIntervalMinutes = defaultScanIntervalMinutes
	}
	return nil
}

func (c *Config) normalizeEnrichment() {
	c.Enrichment.Providers = normalizeList(c.Enrichment.Providers, true)
	if c.Enrichment.MaxAgeDays == 0 {
		c.Enrichment.MaxAgeDays = defaultMaxAgeDays
	}
	if c.Enrichment.BatchSize == 0 {
		c.Enrichment.BatchSize = defaultBatchSize
	}
	if c.Enrichment.MaxBatches == 0 {
		c.Enrichment.MaxBatches = defaultMaxBatches
	}
	if c.Enrichment.RequestTimeoutSeconds == 0 {
		c.Enrichment.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Enrichment.RequestsPerSecond == 0 {
		c.Enrichment.RequestsPerSecond = defaultRequestsPerSecond
	}
	c.Enrichment.SteamStoreURL = strings.TrimRight(strings.TrimSpace(c.Enrichment.SteamStoreURL), "/")
	if c.Enrichment.SteamStoreURL == "" {
		c.Enrichment.SteamStoreURL = defaultSteamStoreURL
	}
	c.Enrichment.WikipediaURL = strings.TrimRight(strings.TrimSpace(c.Enrichment.WikipediaURL), "/")
	if c.Enrichment.WikipediaURL == "" {
		c.Enrichment.WikipediaURL = defaultWikipediaURL
	}
	c.Enrichment.UserAgent = strings.TrimSpace(c.Enrichment.UserAgent)
	if c.Enrichment.UserAgent == "" {
		c.Enrichment.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeList(values []string, lower bool) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if lower {
			value = strings.ToLower(value)
		}
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func expandPaths(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, value := range normalizeList(values, false) {
		expanded, err := expandPath(value)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}
