package enrich

import (
	"fmt"
	"log/slog"

	"softdex/internal/config"
	"softdex/internal/metadata"
	"softdex/internal/metadata/steamstore"
	"softdex/internal/metadata/wikipedia"
)

// NewProvider assembles the configured providers, in configured order, into a
// cached chain.
func NewProvider(cfg *config.Config, logger *slog.Logger) (*metadata.Chain, error) {
	if cfg == nil {
		return nil, fmt.Errorf("metadata providers: config is nil")
	}
	providers := make([]metadata.Provider, 0, len(cfg.Enrichment.Providers))
	for _, name := range cfg.Enrichment.Providers {
		var (
			provider metadata.Provider
			err      error
		)
		switch name {
		case config.ProviderSteamStore:
			provider, err = steamstore.New(cfg.Enrichment.SteamStoreURL, cfg.Enrichment.UserAgent, cfg.RequestTimeout(),
				steamstore.WithLogger(logger))
		case config.ProviderWikipedia:
			provider, err = wikipedia.New(cfg.Enrichment.WikipediaURL, cfg.Enrichment.UserAgent, cfg.RequestTimeout(),
				cfg.Enrichment.RequestsPerSecond, wikipedia.WithLogger(logger))
		default:
			return nil, fmt.Errorf("metadata providers: unknown provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("metadata provider %s: %w", name, err)
		}
		providers = append(providers, metadata.NewCached(provider, cfg.CacheTTL()))
	}
	return metadata.NewChain(logger, providers...), nil
}
