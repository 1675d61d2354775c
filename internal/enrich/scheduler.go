package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"softdex/internal/config"
	"softdex/internal/logging"
	"softdex/internal/metadata"
	"softdex/internal/metrics"
	"softdex/internal/software"
)

// ErrAlreadyRunning is returned when another enrichment loop holds the guard,
// either in this process or in another process sharing the data directory.
var ErrAlreadyRunning = errors.New("enrichment already running")

// Stop reasons reported in RunSummary.
const (
	StopCaughtUp   = "caught_up"
	StopMaxBatches = "max_batches"
	StopCancelled  = "cancelled"
	StopFailed     = "failed"
)

const defaultWorkers = 4

// Store is the catalog surface the scheduler needs.
type Store interface {
	GetUnenrichedEntries(ctx context.Context, maxAge time.Duration, maxResults int) ([]software.ReferenceEntry, error)
	RecordEnrichmentAttempt(ctx context.Context, id int64, at time.Time) error
	ApplyEnrichment(ctx context.Context, id int64, attrs software.Attributes, at time.Time) (*software.ReferenceEntry, error)
}

// Settings bound one enrichment loop.
type Settings struct {
	BatchSize  int
	MaxBatches int
	BatchDelay time.Duration
	MaxAge     time.Duration
	// LockPath is the cross-process guard file. Empty disables it.
	LockPath string
}

// SettingsFromConfig reads the loop bounds from configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		BatchSize:  cfg.Enrichment.BatchSize,
		MaxBatches: cfg.Enrichment.MaxBatches,
		BatchDelay: cfg.BatchDelay(),
		MaxAge:     cfg.MaxEnrichmentAge(),
		LockPath:   cfg.EnrichLockPath(),
	}
}

// RunSummary reports the outcome of one enrichment loop.
type RunSummary struct {
	Batches    int           `json:"batches"`
	Attempted  int           `json:"attempted"`
	Enriched   int           `json:"enriched"`
	NotFound   int           `json:"not_found"`
	Failed     int           `json:"failed"`
	StopReason string        `json:"stop_reason"`
	Duration   time.Duration `json:"duration"`
}

// Scheduler runs the bounded enrichment loop. At most one loop is active per
// process and, through a file lock, per data directory.
type Scheduler struct {
	store    Store
	provider metadata.Provider
	settings Settings
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	workers  int
	logger   *slog.Logger
	metrics  *metrics.Metrics

	running  atomic.Bool
	mu       sync.Mutex
	closed   bool
	lifetime context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used for attempt and enrichment stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleep overrides the inter-batch delay implementation.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(s *Scheduler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithWorkers sets how many entries of a batch are fetched concurrently.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logging.NewComponentLogger(logger, "enrich")
	}
}

// WithMetrics records batches and attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New builds a scheduler. Non-positive batch bounds fall back to 50 entries
// and 20 batches.
func New(store Store, provider metadata.Provider, settings Settings, opts ...Option) *Scheduler {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 50
	}
	if settings.MaxBatches <= 0 {
		settings.MaxBatches = 20
	}
	if settings.MaxAge <= 0 {
		settings.MaxAge = 30 * 24 * time.Hour
	}
	lifetime, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:    store,
		provider: provider,
		settings: settings,
		now:      time.Now,
		sleep:    SleepWithContext,
		workers:  defaultWorkers,
		logger:   logging.NewNop(),
		lifetime: lifetime,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether a loop is active in this process.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Trigger starts a loop in the background and returns immediately. The loop
// is detached from ctx cancellation; it keeps ctx's correlation ID and stops
// when the scheduler is closed. It reports whether a loop was started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("enrichment already running; trigger ignored")
		return false
	}
	runCtx := s.lifetime
	if id, ok := logging.CorrelationIDFromContext(ctx); ok {
		runCtx = logging.WithCorrelationID(runCtx, id)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		if _, err := s.run(runCtx); err != nil && !errors.Is(err, ErrAlreadyRunning) && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(logging.WithContext(runCtx, s.logger), "background enrichment failed", "enrichment_run_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check catalog database access"),
				logging.String(logging.FieldImpact, "catalog entries stay unenriched until the next run"),
			)
		}
	}()
	return true
}

// Close cancels a background loop and waits for it to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Run executes one bounded loop: pull a batch of eligible entries, stamp and
// fetch each, pause, repeat until caught up or MaxBatches is reached.
// Cancellation keeps the attempt stamps already written.
func (s *Scheduler) Run(ctx context.Context) (RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunSummary{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)
	return s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) (summary RunSummary, err error) {
	if s.settings.LockPath != "" {
		lock := flock.New(s.settings.LockPath)
		locked, lockErr := lock.TryLock()
		if lockErr != nil {
			return RunSummary{}, fmt.Errorf("acquire enrichment lock: %w", lockErr)
		}
		if !locked {
			return RunSummary{}, ErrAlreadyRunning
		}
		defer func() {
			_ = lock.Unlock()
		}()
	}

	if _, ok := logging.CorrelationIDFromContext(ctx); !ok {
		ctx = logging.WithCorrelationID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, s.logger)
	start := time.Now()
	defer func() {
		summary.Duration = time.Since(start)
		s.metrics.RecordEnrichmentRun(summary.StopReason)
		logger.Info("enrichment finished",
			logging.String("stop_reason", summary.StopReason),
			logging.Int("batches", summary.Batches),
			logging.Int("attempted", summary.Attempted),
			logging.Int("enriched", summary.Enriched),
			logging.Int("not_found", summary.NotFound),
			logging.Int("failed", summary.Failed),
			logging.Duration("duration", summary.Duration),
		)
	}()

	for summary.Batches < s.settings.MaxBatches {
		if summary.Batches > 0 {
			if err := s.sleep(ctx, s.settings.BatchDelay); err != nil {
				summary.StopReason = StopCancelled
				return summary, err
			}
		}
		if err := ctx.Err(); err != nil {
			summary.StopReason = StopCancelled
			return summary, err
		}
		batch, err := s.store.GetUnenrichedEntries(ctx, s.settings.MaxAge, s.settings.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				summary.StopReason = StopCancelled
				return summary, ctx.Err()
			}
			summary.StopReason = StopFailed
			return summary, fmt.Errorf("select unenriched entries: %w", err)
		}
		if len(batch) == 0 {
			summary.StopReason = StopCaughtUp
			return summary, nil
		}
		summary.Batches++
		logger.Debug("enrichment batch",
			logging.Int("batch", summary.Batches),
			logging.Int("entries", len(batch)),
		)
		outcome, err := s.processBatch(ctx, logger, batch)
		summary.add(outcome)
		s.metrics.RecordEnrichmentBatch()
		if err != nil {
			if ctx.Err() != nil {
				summary.StopReason = StopCancelled
				return summary, ctx.Err()
			}
			summary.StopReason = StopFailed
			return summary, err
		}
	}
	summary.StopReason = StopMaxBatches
	return summary, nil
}

type batchOutcome struct {
	attempted int
	enriched  int
	notFound  int
	failed    int
}

func (r *RunSummary) add(o batchOutcome) {
	r.Attempted += o.attempted
	r.Enriched += o.enriched
	r.NotFound += o.notFound
	r.Failed += o.failed
}

// processBatch enriches every entry of one batch. Provider failures are
// counted and logged; only store failures on the attempt stamp abort the
// batch, because without the stamp the daily limit cannot be honored.
func (s *Scheduler) processBatch(ctx context.Context, logger *slog.Logger, batch []software.ReferenceEntry) (batchOutcome, error) {
	var (
		mu      sync.Mutex
		outcome batchOutcome
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for _, entry := range batch {
		group.Go(func() error {
			result, err := s.enrichOne(groupCtx, logger, entry)
			mu.Lock()
			defer mu.Unlock()
			switch result {
			case metrics.OutcomeEnriched:
				outcome.attempted++
				outcome.enriched++
			case metrics.OutcomeNotFound:
				outcome.attempted++
				outcome.notFound++
			case metrics.OutcomeFailed:
				outcome.attempted++
				outcome.failed++
			}
			return err
		})
	}
	err := group.Wait()
	return outcome, err
}

// enrichOne stamps the attempt, fetches, and stores attributes when found. An
// empty outcome means the entry was not attempted.
func (s *Scheduler) enrichOne(ctx context.Context, logger *slog.Logger, entry software.ReferenceEntry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	attemptAt := s.now().UTC()
	// Another process may have enriched or attempted the entry since selection.
	if !software.NeedsEnrichment(entry, attemptAt, s.settings.MaxAge) {
		logger.Debug("entry no longer eligible", logging.Int64(logging.FieldReferenceID, entry.ID))
		return "", nil
	}
	if err := s.store.RecordEnrichmentAttempt(ctx, entry.ID, attemptAt); err != nil {
		return "", fmt.Errorf("record enrichment attempt for %d: %w", entry.ID, err)
	}

	entryLogger := logger.With(
		logging.Int64(logging.FieldReferenceID, entry.ID),
		logging.String(logging.FieldSource, entry.Source),
	)
	fetchStart := time.Now()
	attrs, found, err := s.provider.Fetch(ctx, metadata.RequestFor(entry))
	elapsed := time.Since(fetchStart)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.metrics.RecordEnrichmentAttempt(metrics.OutcomeFailed, elapsed)
		logging.WarnWithContext(entryLogger, "metadata fetch failed", "enrichment_fetch_failed",
			logging.String("name", entry.Name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "provider unreachable or rate limited"),
			logging.String(logging.FieldImpact, "entry retried on the next UTC day"),
		)
		return metrics.OutcomeFailed, nil
	}
	if !found || attrs.IsEmpty() {
		s.metrics.RecordEnrichmentAttempt(metrics.OutcomeNotFound, elapsed)
		entryLogger.Debug("no metadata found", logging.String("name", entry.Name))
		return metrics.OutcomeNotFound, nil
	}
	if _, err := s.store.ApplyEnrichment(ctx, entry.ID, attrs, s.now().UTC()); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.metrics.RecordEnrichmentAttempt(metrics.OutcomeFailed, elapsed)
		logging.WarnWithContext(entryLogger, "store enrichment failed", "enrichment_store_failed",
			logging.String("name", entry.Name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
			logging.String(logging.FieldImpact, "entry retried on the next UTC day"),
		)
		return metrics.OutcomeFailed, nil
	}
	s.metrics.RecordEnrichmentAttempt(metrics.OutcomeEnriched, elapsed)
	entryLogger.Debug("entry enriched",
		logging.String("name", entry.Name),
		logging.String("provider", attrs.Provider),
	)
	return metrics.OutcomeEnriched, nil
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
