package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CatalogPath) == "" {
		return errors.New("paths.catalog_path must be set")
	}
	if strings.TrimSpace(c.Paths.LocalPath) == "" {
		return errors.New("paths.local_path must be set")
	}
	if c.Paths.CatalogPath == c.Paths.LocalPath {
		return errors.New("paths.catalog_path and paths.local_path must point at different files")
	}
	return nil
}

func (c *Config) validateDetection() error {
	known := map[string]struct{}{PlatformSteam: {}, PlatformEpic: {}, PlatformGOG: {}}
	for _, platform := range c.Detection.Platforms {
		if _, ok := known[platform]; !ok {
			return fmt.Errorf("detection.platforms: unsupported platform %q", platform)
		}
	}
	return ensurePositiveMap(map[string]int{
		"detection.stale_days":            c.Detection.StaleDays,
		"detection.scan_interval_minutes": c.Detection.ScanIntervalMinutes,
	})
}

func (c *Config) validateEnrichment() error {
	known := map[string]struct{}{ProviderSteamStore: {}, ProviderWikipedia: {}}
	for _, provider := range c.Enrichment.Providers {
		if _, ok := known[provider]; !ok {
			return fmt.Errorf("enrichment.providers: unsupported provider %q", provider)
		}
	}
	if err := ensurePositiveMap(map[string]int{
		"enrichment.max_age_days":            c.Enrichment.MaxAgeDays,
		"enrichment.batch_size":              c.Enrichment.BatchSize,
		"enrichment.max_batches":             c.Enrichment.MaxBatches,
		"enrichment.request_timeout_seconds": c.Enrichment.RequestTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Enrichment.BatchDelaySeconds < 0 {
		return errors.New("enrichment.batch_delay_seconds must be >= 0")
	}
	if c.Enrichment.CacheMinutes < 0 {
		return errors.New("enrichment.cache_minutes must be >= 0")
	}
	if c.Enrichment.RequestsPerSecond <= 0 {
		return errors.New("enrichment.requests_per_second must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
