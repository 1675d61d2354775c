package scan_test

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"softdex/internal/catalog"
	"softdex/internal/config"
	"softdex/internal/detect"
	"softdex/internal/installs"
	"softdex/internal/reconcile"
	"softdex/internal/scan"
	"softdex/internal/software"
	"softdex/internal/testsupport"
)

type stubReconciler struct {
	mu      sync.Mutex
	result  reconcile.Result
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (s *stubReconciler) set(result reconcile.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
}

func (s *stubReconciler) Reconcile(ctx context.Context) (reconcile.Result, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return reconcile.Result{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

type countingEnricher struct {
	mu    sync.Mutex
	calls int
}

func (e *countingEnricher) Trigger(context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return true
}

type flakyCatalog struct {
	*catalog.Store
	failName string
}

func (f *flakyCatalog) FindOrCreate(ctx context.Context, name, source, externalID string, category software.Category) (*software.ReferenceEntry, error) {
	if name == f.failName {
		return nil, errors.New("disk I/O error")
	}
	return f.Store.FindOrCreate(ctx, name, source, externalID, category)
}

type fixture struct {
	cfg      *config.Config
	clock    *testsupport.Clock
	catalog  *catalog.Store
	installs *installs.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{
		cfg:      cfg,
		clock:    clock,
		catalog:  testsupport.MustOpenCatalog(t, cfg, catalog.WithClock(clock.Now)),
		installs: testsupport.MustOpenInstalls(t, cfg, installs.WithClock(clock.Now)),
	}
}

func (f *fixture) runner(r scan.Reconciler, opts ...scan.Option) *scan.Runner {
	opts = append([]scan.Option{scan.WithClock(f.clock.Now), scan.WithLockPath(f.cfg.ScanLockPath())}, opts...)
	return scan.New(r, f.catalog, f.installs, opts...)
}

var (
	halfLife = software.Candidate{
		Name: "Half-Life 2", Source: "Steam", ExternalID: "220",
		InstallLocation: "/games/steamapps/common/Half-Life 2", Category: software.CategoryGame,
	}
	vim = software.Candidate{
		Name: "Vim", Source: "DesktopEntry", ExecutablePath: "/usr/bin/vim", Category: software.CategoryDevelopment,
	}
)

func TestRunWritesCatalogThenInstallations(t *testing.T) {
	f := newFixture(t)
	stub := &stubReconciler{result: reconcile.Result{Candidates: []software.Candidate{halfLife, vim}}}
	runner := f.runner(stub)
	ctx := context.Background()

	first, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if first.CorrelationID == "" {
		t.Fatal("expected a correlation id")
	}
	if first.Candidates != 2 || first.CatalogNew != 2 || first.Inserted != 2 || first.Installations != 2 {
		t.Fatalf("unexpected first summary %#v", first)
	}

	entry, err := f.catalog.FindByExternalID(ctx, "Steam", "220")
	if err != nil || entry == nil {
		t.Fatalf("expected catalog entry for appid 220, got %v %v", entry, err)
	}
	rows, err := f.installs.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	found := false
	for _, row := range rows {
		if row.ReferenceID == entry.ID && row.InstallLocation == halfLife.InstallLocation {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected installation linked to catalog entry %d, got %#v", entry.ID, rows)
	}

	f.clock.Advance(time.Hour)
	second, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if second.CatalogNew != 0 || second.Inserted != 0 || second.Updated != 2 || second.Installations != 2 {
		t.Fatalf("expected idempotent second pass, got %#v", second)
	}
}

func TestRunSweepsInstallationsNoLongerObserved(t *testing.T) {
	f := newFixture(t)
	stub := &stubReconciler{result: reconcile.Result{Candidates: []software.Candidate{halfLife, vim}}}
	runner := f.runner(stub)
	ctx := context.Background()

	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	f.clock.Advance(31 * 24 * time.Hour)
	stub.set(reconcile.Result{Candidates: []software.Candidate{halfLife}})
	summary, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.StaleRemoved != 1 || summary.Installations != 1 {
		t.Fatalf("expected vim to be swept, got %#v", summary)
	}

	count, err := f.catalog.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("sweep must keep catalog entries, got %d", count)
	}
}

func TestRunKeepsRowsWhenDetectorFailed(t *testing.T) {
	f := newFixture(t)
	stub := &stubReconciler{result: reconcile.Result{Candidates: []software.Candidate{halfLife, vim}}}
	runner := f.runner(stub)
	ctx := context.Background()

	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	f.clock.Advance(31 * 24 * time.Hour)
	stub.set(reconcile.Result{
		Candidates: []software.Candidate{vim},
		Failures:   []reconcile.DetectorFailure{{Source: "Steam", Error: "permission denied"}},
	})
	summary, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !summary.SweepSkipped || summary.StaleRemoved != 0 || summary.Installations != 2 {
		t.Fatalf("expected sweep to be skipped, got %#v", summary)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("expected detector failure to be reported, got %#v", summary.Failures)
	}
}

func TestRunContinuesPastCatalogFailure(t *testing.T) {
	f := newFixture(t)
	stub := &stubReconciler{result: reconcile.Result{Candidates: []software.Candidate{halfLife, vim}}}
	enricher := &countingEnricher{}
	runner := scan.New(stub, &flakyCatalog{Store: f.catalog, failName: "Vim"}, f.installs,
		scan.WithClock(f.clock.Now), scan.WithEnricher(enricher))

	summary, err := runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected the failed catalog write to be reported")
	}
	if summary.CatalogFailed != 1 || summary.Inserted != 1 || summary.Installations != 1 {
		t.Fatalf("expected the healthy candidate to be written, got %#v", summary)
	}
	if enricher.calls != 0 || summary.Enrichment {
		t.Fatal("enrichment must not be triggered after a failed write")
	}
}

func TestRunTriggersEnrichmentAfterSuccess(t *testing.T) {
	f := newFixture(t)
	stub := &stubReconciler{result: reconcile.Result{Candidates: []software.Candidate{vim}}}
	enricher := &countingEnricher{}
	runner := f.runner(stub, scan.WithEnricher(enricher))

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if enricher.calls != 1 || !summary.Enrichment {
		t.Fatalf("expected one enrichment trigger, got %d", enricher.calls)
	}
}

func TestRunRejectsConcurrentPass(t *testing.T) {
	f := newFixture(t)
	stub := &stubReconciler{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	runner := f.runner(stub)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background())
		done <- err
	}()
	<-stub.entered

	if _, err := runner.Run(context.Background()); !errors.Is(err, scan.ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}

	close(stub.block)
	if err := <-done; err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("expected guard to be released, got %v", err)
	}
}

func TestRunPropagatesCancellation(t *testing.T) {
	f := newFixture(t)
	stub := &stubReconciler{err: context.Canceled}
	runner := f.runner(stub)

	if _, err := runner.Run(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	count, err := f.installs.GetCount(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("expected no writes, got %d %v", count, err)
	}
}

func TestRunHalfLifeClaimedBySteam(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("desktop entry inventory is not used on windows")
	}
	cfg := testsupport.NewConfig(t, testsupport.WithPlatforms(config.PlatformSteam))
	testsupport.WriteSteamLibrary(t, cfg.Detection.SteamRoot)
	hl2 := testsupport.WriteSteamApp(t, cfg.Detection.SteamRoot, "220", "Half-Life 2", "Half-Life 2")
	testsupport.WriteDesktopEntry(t, cfg.Detection.DesktopDirs[0], "hl2.desktop", testsupport.DesktopEntry{
		Name: "Half-Life 2", Exec: filepath.Join(hl2, "hl2.sh"), Path: hl2, Categories: "Game;",
	})

	registry, err := detect.NewRegistry(cfg, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	catalogStore := testsupport.MustOpenCatalog(t, cfg)
	installStore := testsupport.MustOpenInstalls(t, cfg)
	runner := scan.New(reconcile.New(registry, nil), catalogStore, installStore,
		scan.WithStaleWindow(cfg.StaleWindow()))

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Candidates != 1 || summary.Classified != 1 {
		t.Fatalf("expected the desktop entry to be claimed by steam, got %#v", summary)
	}
	entries, err := catalogStore.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Source != detect.SourceSteam || entries[0].ExternalID != "220" {
		t.Fatalf("expected a single steam entry, got %#v", entries)
	}
}
