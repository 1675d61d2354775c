package testsupport

import (
	"path/filepath"
	"testing"

	"softdex/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every platform root points inside the temp directory so detectors never
// touch the real machine.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CatalogPath = filepath.Join(base, "data", "catalog.db")
	cfgVal.Paths.LocalPath = filepath.Join(base, "data", "local.db")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Detection.SteamRoot = filepath.Join(base, "steam")
	cfgVal.Detection.EpicManifestDir = filepath.Join(base, "epic", "Manifests")
	cfgVal.Detection.GOGRoots = []string{filepath.Join(base, "gog")}
	cfgVal.Detection.DesktopDirs = []string{filepath.Join(base, "applications")}
	cfgVal.Detection.EnrichAfterScan = false
	cfgVal.Enrichment.BatchDelaySeconds = 0
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithPlatforms overrides the enabled platform detectors.
func WithPlatforms(platforms ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Detection.Platforms = platforms
	}
}

// WithEnrichAfterScan toggles the post-scan enrichment trigger.
func WithEnrichAfterScan(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Detection.EnrichAfterScan = enabled
	}
}

// WithProviderURLs points the metadata providers at test servers.
func WithProviderURLs(steamStore, wikipedia string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enrichment.SteamStoreURL = steamStore
		b.cfg.Enrichment.WikipediaURL = wikipedia
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
