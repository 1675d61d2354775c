package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains storage locations and the daemon bind address.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	CatalogPath string `toml:"catalog_path"`
	LocalPath   string `toml:"local_path"`
	APIBind     string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on mutating API calls.
	APIToken    string `toml:"api_token"`
	// CatalogURL is the default source for `softdex catalog download`.
	CatalogURL  string `toml:"catalog_url"`
}

// Detection contains platform probing settings.
type Detection struct {
	// Platforms lists enabled platform detectors in precedence order. The first
	// detector that claims an install path wins during reconciliation.
	Platforms           []string `toml:"platforms"`
	SteamRoot           string   `toml:"steam_root"`
	EpicManifestDir     string   `toml:"epic_manifest_dir"`
	GOGRoots            []string `toml:"gog_roots"`
	DesktopDirs         []string `toml:"desktop_dirs"`
	StaleDays           int      `toml:"stale_days"`
	ScanIntervalMinutes int      `toml:"scan_interval_minutes"`
	EnrichAfterScan     bool     `toml:"enrich_after_scan"`
}

// Enrichment contains metadata enrichment settings.
type Enrichment struct {
	Enabled               bool     `toml:"enabled"`
	Providers             []string `toml:"providers"`
	MaxAgeDays            int      `toml:"max_age_days"`
	BatchSize             int      `toml:"batch_size"`
	MaxBatches            int      `toml:"max_batches"`
	BatchDelaySeconds     int      `toml:"batch_delay_seconds"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
	RequestsPerSecond     float64  `toml:"requests_per_second"`
	CacheMinutes          int      `toml:"cache_minutes"`
	SteamStoreURL         string   `toml:"steam_store_url"`
	WikipediaURL          string   `toml:"wikipedia_url"`
	UserAgent             string   `toml:"user_agent"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for softdex.
//
// Configuration sections by subsystem:
//   - Paths: data directory, catalog/local databases, API bind address
//   - Detection: enabled platforms, platform roots, staleness window
//   - Enrichment: metadata providers and batch/rate limits
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Detection  Detection  `toml:"detection"`
	Enrichment Enrichment `toml:"enrichment"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/softdex/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("softdex.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories plus the parent
// directories of both databases.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.CatalogPath),
		filepath.Dir(c.Paths.LocalPath),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StaleWindow returns how long an installation may go unobserved before the
// staleness sweep removes it.
func (c *Config) StaleWindow() time.Duration {
	return time.Duration(c.Detection.StaleDays) * 24 * time.Hour
}

// ScanInterval returns the daemon's periodic detection interval.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Detection.ScanIntervalMinutes) * time.Minute
}

// MaxEnrichmentAge returns the age after which an enriched entry is refreshed.
func (c *Config) MaxEnrichmentAge() time.Duration {
	return time.Duration(c.Enrichment.MaxAgeDays) * 24 * time.Hour
}

// BatchDelay returns the pause inserted between enrichment batches.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Enrichment.BatchDelaySeconds) * time.Second
}

// RequestTimeout returns the per-request timeout for metadata providers.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Enrichment.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns how long provider responses are memoized.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Enrichment.CacheMinutes) * time.Minute
}

// ScanLockPath is the file lock serializing detection passes across processes.
func (c *Config) ScanLockPath() string {
	return filepath.Join(c.Paths.DataDir, "scan.lock")
}

// EnrichLockPath is the file lock that keeps a single enrichment loop active.
func (c *Config) EnrichLockPath() string {
	return filepath.Join(c.Paths.DataDir, "enrich.lock")
}

// DaemonLockPath is the single-instance lock held by the daemon.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.DataDir, "softdexd.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
