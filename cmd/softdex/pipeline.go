package main

import (
	"fmt"
	"log/slog"

	"softdex/internal/config"
	"softdex/internal/detect"
	"softdex/internal/enrich"
	"softdex/internal/metrics"
	"softdex/internal/query"
	"softdex/internal/reconcile"
	"softdex/internal/scan"
)

// pipeline wires detection, enrichment and the read side over one pair of
// open stores.
type pipeline struct {
	cfg       *config.Config
	logger    *slog.Logger
	stores    *stores
	metrics   *metrics.Metrics
	registry  *detect.Registry
	scheduler *enrich.Scheduler
	query     *query.Service
}

// newPipeline builds the detector registry and, when enrichment is enabled,
// the provider chain and scheduler. m may be nil.
func newPipeline(cfg *config.Config, logger *slog.Logger, st *stores, m *metrics.Metrics) (*pipeline, error) {
	registry, err := detect.NewRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	p := &pipeline{
		cfg:      cfg,
		logger:   logger,
		stores:   st,
		metrics:  m,
		registry: registry,
		query:    query.New(st.catalog, st.installs, logger),
	}
	if cfg.Enrichment.Enabled {
		scheduler, err := newScheduler(cfg, logger, st, m, enrich.SettingsFromConfig(cfg))
		if err != nil {
			return nil, err
		}
		p.scheduler = scheduler
	}
	return p, nil
}

func newScheduler(cfg *config.Config, logger *slog.Logger, st *stores, m *metrics.Metrics, settings enrich.Settings) (*enrich.Scheduler, error) {
	provider, err := enrich.NewProvider(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build metadata providers: %w", err)
	}
	return enrich.New(st.catalog, provider, settings,
		enrich.WithLogger(logger),
		enrich.WithMetrics(m),
	), nil
}

// scanRunner builds a detection pass runner. enricher may be nil.
func (p *pipeline) scanRunner(enricher scan.Enricher) *scan.Runner {
	opts := []scan.Option{
		scan.WithLockPath(p.cfg.ScanLockPath()),
		scan.WithStaleWindow(p.cfg.StaleWindow()),
		scan.WithLogger(p.logger),
		scan.WithMetrics(p.metrics),
	}
	if enricher != nil {
		opts = append(opts, scan.WithEnricher(enricher))
	}
	return scan.New(reconcile.New(p.registry, p.logger), p.stores.catalog, p.stores.installs, opts...)
}

func (p *pipeline) Close() {
	if p != nil && p.scheduler != nil {
		p.scheduler.Close()
	}
}
