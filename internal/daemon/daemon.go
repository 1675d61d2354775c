package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"softdex/internal/api"
	"softdex/internal/config"
	"softdex/internal/logging"
	"softdex/internal/metrics"
	"softdex/internal/query"
	"softdex/internal/scan"
	"softdex/internal/software"
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("another softdex daemon instance is already running")

const defaultDebounce = 5 * time.Second

// Scanner runs one detection pass.
type Scanner interface {
	Run(ctx context.Context) (scan.Summary, error)
}

// Querier serves merged software views.
type Querier interface {
	Query(ctx context.Context, filter query.Filter) ([]software.MergedView, error)
}

// EnrichmentState reports whether an enrichment loop is active.
type EnrichmentState interface {
	Running() bool
}

// Daemon runs periodic and event-driven detection passes and serves the HTTP
// API. One daemon runs per data directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	scanner  Scanner
	querier  Querier
	enricher EnrichmentState
	metrics  *metrics.Metrics

	interval     time.Duration
	debounce     time.Duration
	deviceEvents bool
	watchDirs    bool

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	scanning  atomic.Int32
	rescan    chan string
	startedAt time.Time

	mu         sync.Mutex
	addr       string
	lastScan   *scan.Summary
	lastErr    error
	lastScanAt time.Time
	devices    *deviceMonitor
	watcher    *manifestWatcher
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithQuerier serves GET /api/software from q.
func WithQuerier(q Querier) Option {
	return func(d *Daemon) {
		d.querier = q
	}
}

// WithEnrichment reports the enrichment loop state in /api/status.
func WithEnrichment(e EnrichmentState) Option {
	return func(d *Daemon) {
		d.enricher = e
	}
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) {
		d.metrics = m
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) {
		d.logger = logging.NewComponentLogger(logger, "daemon")
	}
}

// WithScanInterval overrides the periodic scan interval.
func WithScanInterval(interval time.Duration) Option {
	return func(d *Daemon) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithDebounce sets how long rescan requests are coalesced before a pass runs.
func WithDebounce(window time.Duration) Option {
	return func(d *Daemon) {
		if window >= 0 {
			d.debounce = window
		}
	}
}

// WithDeviceEvents toggles udev block device monitoring.
func WithDeviceEvents(enabled bool) Option {
	return func(d *Daemon) {
		d.deviceEvents = enabled
	}
}

// WithManifestWatch toggles filesystem watching of platform manifest folders.
func WithManifestWatch(enabled bool) Option {
	return func(d *Daemon) {
		d.watchDirs = enabled
	}
}

// New constructs a daemon.
func New(cfg *config.Config, scanner Scanner, opts ...Option) (*Daemon, error) {
	if cfg == nil || scanner == nil {
		return nil, errors.New("daemon requires config and scanner")
	}
	lockPath := cfg.DaemonLockPath()
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewNop(),
		scanner:      scanner,
		interval:     cfg.ScanInterval(),
		debounce:     defaultDebounce,
		deviceEvents: true,
		watchDirs:    true,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
		rescan:       make(chan string, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run acquires the instance lock and blocks until ctx is cancelled or a
// component fails. A scan runs immediately, then every scan interval and
// after debounced device or manifest changes.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock",
				logging.Error(err),
				logging.String(logging.FieldEventType, "daemon_unlock_failed"),
				logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
				logging.String(logging.FieldImpact, "next daemon start may report a running instance"),
			)
		}
	}()

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		return err
	}
	if srv != nil {
		addr, err := srv.listen()
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.addr = addr
		d.mu.Unlock()
	}

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()
	d.logger.Info("softdex daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("scan_interval", d.interval),
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return d.scanLoop(gctx) })
	if srv != nil {
		group.Go(func() error { return srv.serve(gctx) })
	}
	if d.deviceEvents {
		monitor := newDeviceMonitor(d.logger, d.RequestScan)
		d.mu.Lock()
		d.devices = monitor
		d.mu.Unlock()
		group.Go(func() error { return monitor.run(gctx) })
	}
	if d.watchDirs {
		watcher := newManifestWatcher(ManifestDirs(d.cfg), d.logger, d.RequestScan)
		d.mu.Lock()
		d.watcher = watcher
		d.mu.Unlock()
		group.Go(func() error { return watcher.run(gctx) })
	}

	err = group.Wait()
	d.mu.Lock()
	d.addr = ""
	d.mu.Unlock()
	d.logger.Info("softdex daemon stopped")
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Addr returns the API listen address while the daemon runs.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Running reports whether Run is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// RequestScan queues a debounced detection pass. Requests arriving while one
// is already queued are coalesced into it.
func (d *Daemon) RequestScan(reason string) {
	select {
	case d.rescan <- reason:
		d.logger.Debug("rescan requested", logging.String("reason", reason))
	default:
	}
}

// ScanNow runs a detection pass inline and records it as the latest result.
func (d *Daemon) ScanNow(ctx context.Context) (scan.Summary, error) {
	return d.runScan(ctx, "api")
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) api.DaemonStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := api.DaemonStatus{
		Running:             d.running.Load(),
		PID:                 os.Getpid(),
		StartedAt:           api.FormatTime(d.startedAt),
		LockFilePath:        d.lockPath,
		CatalogPath:         d.cfg.Paths.CatalogPath,
		LocalPath:           d.cfg.Paths.LocalPath,
		ScanIntervalSeconds: int64(d.interval / time.Second),
		ScanInProgress:      d.scanning.Load() > 0,
		DeviceEvents:        d.devices.Running(),
		WatchedDirs:         d.watcher.Watching(),
		LastScanAt:          api.FormatTime(d.lastScanAt),
	}
	if d.enricher != nil {
		status.Enriching = d.enricher.Running()
	}
	if d.lastScan != nil {
		summary := *d.lastScan
		status.LastScan = &summary
	}
	if d.lastErr != nil {
		status.LastScanError = d.lastErr.Error()
	}
	return status
}

// ManifestDirs lists the folders whose changes signal an install or removal:
// Steam steamapps folders, the Epic manifest folder, GOG roots and desktop
// entry folders.
func ManifestDirs(cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}
	var dirs []string
	add := func(path string) {
		if path = strings.TrimSpace(path); path != "" {
			dirs = append(dirs, path)
		}
	}
	if root := strings.TrimSpace(cfg.Detection.SteamRoot); root != "" {
		add(filepath.Join(root, "steamapps"))
	}
	add(cfg.Detection.EpicManifestDir)
	for _, root := range cfg.Detection.GOGRoots {
		add(root)
	}
	for _, dir := range cfg.Detection.DesktopDirs {
		add(dir)
	}
	return dirs
}
