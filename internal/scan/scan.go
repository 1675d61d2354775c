package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"softdex/internal/installs"
	"softdex/internal/logging"
	"softdex/internal/metrics"
	"softdex/internal/reconcile"
	"softdex/internal/software"
)

// ErrScanInProgress is returned when another detection pass holds the guard.
var ErrScanInProgress = errors.New("detection pass already in progress")

// DefaultStaleWindow is how long an installation may go unobserved before the
// staleness sweep removes it.
const DefaultStaleWindow = 30 * 24 * time.Hour

// Reconciler produces the deduplicated candidate list.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Result, error)
}

// Catalog is the reference catalog surface used by a pass.
type Catalog interface {
	FindOrCreate(ctx context.Context, name, source, externalID string, category software.Category) (*software.ReferenceEntry, error)
	Count(ctx context.Context) (int, error)
}

// Installations is the local installation surface used by a pass.
type Installations interface {
	UpsertBatch(ctx context.Context, installations []software.LocalInstallation) (installs.BatchResult, error)
	RemoveStaleEntries(ctx context.Context, olderThan time.Time) (int64, error)
	GetCount(ctx context.Context) (int, error)
}

// Enricher starts a background enrichment loop.
type Enricher interface {
	Trigger(ctx context.Context) bool
}

// Summary reports one detection pass.
type Summary struct {
	CorrelationID string                      `json:"correlation_id"`
	StartedAt     time.Time                   `json:"started_at"`
	Duration      time.Duration               `json:"duration"`
	Candidates    int                         `json:"candidates"`
	Baseline      int                         `json:"baseline"`
	Classified    int                         `json:"classified"`
	Collapsed     int                         `json:"collapsed"`
	Unnamed       int                         `json:"unnamed"`
	CatalogNew    int                         `json:"catalog_new"`
	CatalogFailed int                         `json:"catalog_failed"`
	Inserted      int                         `json:"inserted"`
	Updated       int                         `json:"updated"`
	Failed        int                         `json:"failed"`
	StaleRemoved  int64                       `json:"stale_removed"`
	SweepSkipped  bool                        `json:"sweep_skipped,omitempty"`
	Installations int                         `json:"installations"`
	Failures      []reconcile.DetectorFailure `json:"detector_failures,omitempty"`
	Enrichment    bool                        `json:"enrichment_triggered"`
}

// Runner executes detection passes one at a time.
type Runner struct {
	reconciler  Reconciler
	catalog     Catalog
	installs    Installations
	enricher    Enricher
	staleWindow time.Duration
	lockPath    string
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu sync.Mutex
}

// Option customizes a Runner.
type Option func(*Runner)

// WithEnricher triggers enrichment after every pass whose writes succeeded.
func WithEnricher(e Enricher) Option {
	return func(r *Runner) {
		r.enricher = e
	}
}

// WithStaleWindow overrides the staleness window.
func WithStaleWindow(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.staleWindow = d
		}
	}
}

// WithLockPath serializes passes across processes through a file lock.
func WithLockPath(path string) Option {
	return func(r *Runner) {
		r.lockPath = path
	}
}

// WithClock overrides the time source used for the stale cutoff.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logging.NewComponentLogger(logger, "scan")
	}
}

// WithMetrics records pass statistics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New builds a runner.
func New(reconciler Reconciler, catalog Catalog, installations Installations, opts ...Option) *Runner {
	r := &Runner{
		reconciler:  reconciler,
		catalog:     catalog,
		installs:    installations,
		staleWindow: DefaultStaleWindow,
		now:         time.Now,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one detection pass: reconcile, resolve every representative in
// the reference catalog, upsert the local installations in one batch, then
// sweep installations not observed within the stale window. A failed catalog
// or installation write does not stop the pass; the joined write errors are
// returned alongside the summary.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if !r.mu.TryLock() {
		r.metrics.RecordScanResult(metrics.ResultBusy)
		return Summary{}, ErrScanInProgress
	}
	defer r.mu.Unlock()

	if r.lockPath != "" {
		lock := flock.New(r.lockPath)
		locked, err := lock.TryLock()
		if err != nil {
			r.metrics.RecordScanResult(metrics.ResultError)
			return Summary{}, fmt.Errorf("acquire scan lock: %w", err)
		}
		if !locked {
			r.metrics.RecordScanResult(metrics.ResultBusy)
			return Summary{}, ErrScanInProgress
		}
		defer func() {
			_ = lock.Unlock()
		}()
	}

	correlationID, ok := logging.CorrelationIDFromContext(ctx)
	if !ok {
		correlationID = uuid.NewString()
		ctx = logging.WithCorrelationID(ctx, correlationID)
	}
	logger := logging.WithContext(ctx, r.logger)
	summary := Summary{CorrelationID: correlationID, StartedAt: r.now().UTC()}
	start := time.Now()
	logger.Info("detection pass started")

	result, err := r.reconciler.Reconcile(ctx)
	if err != nil {
		r.metrics.RecordScanResult(metrics.ResultError)
		return summary, fmt.Errorf("reconcile: %w", err)
	}
	summary.Candidates = len(result.Candidates)
	summary.Baseline = result.Baseline
	summary.Classified = result.Classified
	summary.Collapsed = result.Collapsed
	summary.Unnamed = result.Unnamed
	summary.Failures = result.Failures

	before, err := r.catalog.Count(ctx)
	if err != nil {
		r.metrics.RecordScanResult(metrics.ResultError)
		return summary, fmt.Errorf("count catalog entries: %w", err)
	}

	rows, catalogErr := r.resolve(ctx, logger, result.Candidates, &summary)
	if err := ctx.Err(); err != nil {
		r.metrics.RecordScanResult(metrics.ResultError)
		return summary, err
	}

	batch, upsertErr := r.installs.UpsertBatch(ctx, rows)
	summary.Inserted = batch.Inserted
	summary.Updated = batch.Updated
	summary.Failed = batch.Failed
	if upsertErr != nil && batch.Inserted+batch.Updated == 0 && len(rows) > 0 {
		r.metrics.RecordScanResult(metrics.ResultError)
		return summary, fmt.Errorf("upsert installations: %w", upsertErr)
	}

	// A detector that failed wholesale did not refresh its rows, so they must
	// not age out because of this pass.
	if len(result.Failures) > 0 {
		summary.SweepSkipped = true
		logger.Info("staleness sweep skipped", logging.Int("failed_detectors", len(result.Failures)))
	} else {
		cutoff := r.now().UTC().Add(-r.staleWindow)
		removed, err := r.installs.RemoveStaleEntries(ctx, cutoff)
		if err != nil {
			r.metrics.RecordScanResult(metrics.ResultError)
			return summary, fmt.Errorf("remove stale installations: %w", err)
		}
		summary.StaleRemoved = removed
	}

	if after, err := r.catalog.Count(ctx); err == nil {
		summary.CatalogNew = max(after-before, 0)
	}
	entries := before + summary.CatalogNew
	if count, err := r.installs.GetCount(ctx); err == nil {
		summary.Installations = count
	}

	writeErr := errors.Join(catalogErr, upsertErr)
	if writeErr == nil && r.enricher != nil {
		summary.Enrichment = r.enricher.Trigger(ctx)
	}
	summary.Duration = time.Since(start)

	failed := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		failed = append(failed, f.Source)
	}
	r.metrics.RecordScan(metrics.ScanReport{
		Candidates:      summary.Candidates,
		Installations:   summary.Installations,
		CatalogEntries:  entries,
		StaleRemoved:    summary.StaleRemoved,
		FailedDetectors: failed,
		Duration:        summary.Duration,
	})
	logger.Info("detection pass finished",
		logging.Int("candidates", summary.Candidates),
		logging.Int("catalog_new", summary.CatalogNew),
		logging.Int("inserted", summary.Inserted),
		logging.Int("updated", summary.Updated),
		logging.Int("failed", summary.Failed+summary.CatalogFailed),
		logging.Int64("stale_removed", summary.StaleRemoved),
		logging.Bool("enrichment_triggered", summary.Enrichment),
		logging.Duration("duration", summary.Duration),
	)
	return summary, writeErr
}

// resolve maps each candidate to its catalog entry and builds the
// installation rows. Candidates whose catalog write fails are skipped.
func (r *Runner) resolve(ctx context.Context, logger *slog.Logger, candidates []software.Candidate, summary *Summary) ([]software.LocalInstallation, error) {
	rows := make([]software.LocalInstallation, 0, len(candidates))
	var errs []error
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		entry, err := r.catalog.FindOrCreate(ctx, candidate.Name, candidate.Source, candidate.ExternalID, candidate.Category)
		if err != nil {
			summary.CatalogFailed++
			errs = append(errs, fmt.Errorf("catalog entry %q: %w", candidate.Name, err))
			logging.WarnWithContext(logger, "catalog write failed", "catalog_write_failed",
				logging.String("name", candidate.Name),
				logging.String(logging.FieldSource, candidate.Source),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check catalog database access"),
				logging.String(logging.FieldImpact, "title missing from this pass"),
			)
			continue
		}
		rows = append(rows, software.InstallationFromCandidate(entry.ID, candidate))
	}
	return rows, errors.Join(errs...)
}
