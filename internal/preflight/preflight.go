package preflight

import (
	"context"

	"softdex/internal/config"
	"softdex/internal/detect"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every applicable check for the given config. Provider and
// API checks touch the network and are skipped when offline is set.
func RunAll(ctx context.Context, cfg *config.Config, registry *detect.Registry, offline bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckCatalog(ctx, cfg.Paths.CatalogPath),
		CheckInstallations(ctx, cfg.Paths.LocalPath),
	}

	for _, d := range registry.All() {
		results = append(results, CheckPlatform(d))
	}

	if offline {
		return results
	}

	if cfg.Enrichment.Enabled {
		for _, provider := range cfg.Enrichment.Providers {
			switch provider {
			case config.ProviderSteamStore:
				results = append(results, CheckEndpoint(ctx, "Steam storefront", cfg.Enrichment.SteamStoreURL, cfg.Enrichment.UserAgent))
			case config.ProviderWikipedia:
				results = append(results, CheckEndpoint(ctx, "Wikipedia", cfg.Enrichment.WikipediaURL, cfg.Enrichment.UserAgent))
			}
		}
	}

	if cfg.Paths.APIBind != "" {
		results = append(results, CheckAPIBind(ctx, cfg.Paths.APIBind))
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
