// Package metrics provides Prometheus collectors for detection passes and
// enrichment runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scan results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultBusy    = "busy"
)

// Enrichment outcomes per attempted entry.
const (
	OutcomeEnriched = "enriched"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "failed"
)

// Metrics holds the softdex collectors. A nil *Metrics is a valid no-op
// recorder so components can be built without observability.
type Metrics struct {
	registry *prometheus.Registry

	scansTotal        *prometheus.CounterVec
	scanDuration      prometheus.Histogram
	candidates        prometheus.Gauge
	installations     prometheus.Gauge
	catalogEntries    prometheus.Gauge
	staleRemoved      prometheus.Counter
	detectorFailures  *prometheus.CounterVec
	enrichRuns        *prometheus.CounterVec
	enrichBatches     prometheus.Counter
	enrichAttempts    *prometheus.CounterVec
	enrichFetchTiming *prometheus.HistogramVec
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a private registry.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()
	if err := m.registry.Register(m); err != nil {
		return nil, err
	}
	if err := m.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := m.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "softdex_scans_total",
			Help: "Total number of detection passes",
		},
		[]string{"result"}, // result: success, error, busy
	)

	m.scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "softdex_scan_duration_seconds",
		Help: "Time taken by a full detection pass",
		// 50ms to ~100s
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	m.candidates = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "softdex_reconciled_candidates",
		Help: "Deduplicated candidates produced by the last detection pass",
	})

	m.installations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "softdex_local_installations",
		Help: "Local installation rows after the last detection pass",
	})

	m.catalogEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "softdex_catalog_entries",
		Help: "Reference catalog entries after the last detection pass",
	})

	m.staleRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "softdex_stale_installations_removed_total",
		Help: "Installations removed by the staleness sweep",
	})

	m.detectorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "softdex_detector_failures_total",
			Help: "Detectors that failed during a detection pass",
		},
		[]string{"source"},
	)

	m.enrichRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "softdex_enrichment_runs_total",
			Help: "Enrichment loop invocations by stop reason",
		},
		[]string{"stop_reason"},
	)

	m.enrichBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "softdex_enrichment_batches_total",
		Help: "Enrichment batches processed",
	})

	m.enrichAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "softdex_enrichment_attempts_total",
			Help: "Catalog entries attempted by outcome",
		},
		[]string{"outcome"}, // outcome: enriched, not_found, failed
	)

	m.enrichFetchTiming = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "softdex_enrichment_fetch_duration_seconds",
			Help: "Time taken by one metadata provider lookup",
			// 10ms to ~20s
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"outcome"},
	)
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.scansTotal.Describe(ch)
	m.scanDuration.Describe(ch)
	m.candidates.Describe(ch)
	m.installations.Describe(ch)
	m.catalogEntries.Describe(ch)
	m.staleRemoved.Describe(ch)
	m.detectorFailures.Describe(ch)
	m.enrichRuns.Describe(ch)
	m.enrichBatches.Describe(ch)
	m.enrichAttempts.Describe(ch)
	m.enrichFetchTiming.Describe(ch)
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.scansTotal.Collect(ch)
	m.scanDuration.Collect(ch)
	m.candidates.Collect(ch)
	m.installations.Collect(ch)
	m.catalogEntries.Collect(ch)
	m.staleRemoved.Collect(ch)
	m.detectorFailures.Collect(ch)
	m.enrichRuns.Collect(ch)
	m.enrichBatches.Collect(ch)
	m.enrichAttempts.Collect(ch)
	m.enrichFetchTiming.Collect(ch)
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ScanReport carries the counters of one finished detection pass.
type ScanReport struct {
	Candidates      int
	Installations   int
	CatalogEntries  int
	StaleRemoved    int64
	FailedDetectors []string
	Duration        time.Duration
}

// RecordScan records a finished detection pass.
func (m *Metrics) RecordScan(report ScanReport) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(ResultSuccess).Inc()
	m.scanDuration.Observe(report.Duration.Seconds())
	m.candidates.Set(float64(report.Candidates))
	m.installations.Set(float64(report.Installations))
	m.catalogEntries.Set(float64(report.CatalogEntries))
	if report.StaleRemoved > 0 {
		m.staleRemoved.Add(float64(report.StaleRemoved))
	}
	for _, source := range report.FailedDetectors {
		m.detectorFailures.WithLabelValues(source).Inc()
	}
}

// RecordScanResult counts a pass that did not finish, result being
// ResultError or ResultBusy.
func (m *Metrics) RecordScanResult(result string) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(result).Inc()
}

// RecordEnrichmentBatch counts one processed batch.
func (m *Metrics) RecordEnrichmentBatch() {
	if m == nil {
		return
	}
	m.enrichBatches.Inc()
}

// RecordEnrichmentAttempt records one provider lookup.
func (m *Metrics) RecordEnrichmentAttempt(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.enrichAttempts.WithLabelValues(outcome).Inc()
	m.enrichFetchTiming.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordEnrichmentRun records a finished enrichment loop.
func (m *Metrics) RecordEnrichmentRun(stopReason string) {
	if m == nil {
		return
	}
	m.enrichRuns.WithLabelValues(stopReason).Inc()
}
