package enrich_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"softdex/internal/catalog"
	"softdex/internal/enrich"
	"softdex/internal/metadata"
	"softdex/internal/software"
	"softdex/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Provider caches run a janitor that stops only when collected.
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

var baseNow = time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)

type scriptedProvider struct {
	mu       sync.Mutex
	calls    []string
	notFound map[string]bool
	failing  map[string]bool
	block    chan struct{}
	started  chan struct{}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Supports(metadata.Request) bool { return true }

func (p *scriptedProvider) Fetch(ctx context.Context, req metadata.Request) (software.Attributes, bool, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req.Name)
	p.mu.Unlock()
	if p.started != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return software.Attributes{}, false, ctx.Err()
		}
	}
	if p.failing[req.Name] {
		return software.Attributes{}, false, errors.New("provider timeout")
	}
	if p.notFound[req.Name] {
		return software.Attributes{}, false, nil
	}
	return software.Attributes{Publisher: "Pub " + req.Name, Genres: []string{"Action"}, Provider: "scripted"}, true, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fixture struct {
	store *catalog.Store
	clock *testsupport.Clock
	sleep *recordingSleep
}

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delays)
}

func newFixture(t *testing.T, entries int) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock(baseNow)
	store := testsupport.MustOpenCatalog(t, cfg, catalog.WithClock(clock.Now))
	for i := range entries {
		testsupport.NewEntry(t, store, fmt.Sprintf("Title %02d", i), "Steam", fmt.Sprintf("%d", 100+i))
	}
	return &fixture{store: store, clock: clock, sleep: &recordingSleep{}}
}

func (f *fixture) scheduler(provider metadata.Provider, settings enrich.Settings) *enrich.Scheduler {
	return enrich.New(f.store, provider, settings,
		enrich.WithClock(f.clock.Now),
		enrich.WithSleep(f.sleep.Sleep),
		enrich.WithWorkers(2),
	)
}

func TestRunEnrichesUntilCaughtUp(t *testing.T) {
	f := newFixture(t, 5)
	provider := &scriptedProvider{notFound: map[string]bool{"Title 01": true}, failing: map[string]bool{"Title 03": true}}
	settings := enrich.Settings{BatchSize: 2, MaxBatches: 20, BatchDelay: 3 * time.Second}
	s := f.scheduler(provider, settings)
	t.Cleanup(s.Close)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, enrich.StopCaughtUp, summary.StopReason)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 5, summary.Attempted)
	assert.Equal(t, 3, summary.Enriched)
	assert.Equal(t, 1, summary.NotFound)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 5, provider.callCount())
	// Delay only between batches, including before the empty batch.
	assert.Equal(t, 3, f.sleep.count())
	assert.Equal(t, 3*time.Second, f.sleep.delays[0])

	entries, err := f.store.List(context.Background())
	require.NoError(t, err)
	for _, e := range entries {
		require.NotNil(t, e.LastEnrichmentAttempt, "attempt stamped for %s", e.Name)
		assert.True(t, e.LastEnrichmentAttempt.Equal(baseNow))
		switch e.Name {
		case "Title 01", "Title 03":
			assert.Nil(t, e.LastEnrichedAt, "%s must stay unenriched", e.Name)
			assert.Equal(t, software.StateAttemptedToday, software.StateOf(e, baseNow, 30*24*time.Hour))
		default:
			require.NotNil(t, e.LastEnrichedAt)
			assert.Equal(t, "Pub "+e.Name, e.Publisher)
			assert.Equal(t, software.StateFresh, software.StateOf(e, baseNow, 30*24*time.Hour))
		}
	}
}

func TestRunStopsAfterMaxBatches(t *testing.T) {
	f := newFixture(t, 7)
	provider := &scriptedProvider{}
	s := f.scheduler(provider, enrich.Settings{BatchSize: 2, MaxBatches: 2})
	t.Cleanup(s.Close)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, enrich.StopMaxBatches, summary.StopReason)
	assert.Equal(t, 2, summary.Batches)
	assert.Equal(t, 4, summary.Attempted)
	assert.Equal(t, 1, f.sleep.count())

	remaining, err := f.store.GetUnenrichedEntries(context.Background(), 30*24*time.Hour, 50)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestFailedEntriesWaitForNextUTCDay(t *testing.T) {
	f := newFixture(t, 2)
	provider := &scriptedProvider{failing: map[string]bool{"Title 00": true, "Title 01": true}}
	s := f.scheduler(provider, enrich.Settings{BatchSize: 50, MaxBatches: 20})
	t.Cleanup(s.Close)
	ctx := context.Background()

	first, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Failed)

	// Same day: nothing eligible, so the provider is not called again.
	f.clock.Advance(6 * time.Hour)
	second, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Attempted)
	assert.Equal(t, enrich.StopCaughtUp, second.StopReason)
	assert.Equal(t, 2, provider.callCount())

	// Next UTC day the entries are retried.
	f.clock.Set(time.Date(2026, 5, 21, 0, 30, 0, 0, time.UTC))
	provider.failing = nil
	third, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, third.Enriched)
	assert.Equal(t, 4, provider.callCount())
}

func TestCancellationKeepsAttemptStamps(t *testing.T) {
	f := newFixture(t, 3)
	provider := &scriptedProvider{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := enrich.New(f.store, provider, enrich.Settings{BatchSize: 50, MaxBatches: 1},
		enrich.WithClock(f.clock.Now), enrich.WithWorkers(1))
	t.Cleanup(s.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx)
		done <- err
	}()

	<-provider.started
	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	entries, err := f.store.List(context.Background())
	require.NoError(t, err)
	stamped := 0
	for _, e := range entries {
		if e.LastEnrichmentAttempt != nil {
			stamped++
		}
		assert.Nil(t, e.LastEnrichedAt)
	}
	assert.Equal(t, 1, stamped, "only the in-flight entry was attempted")
}

func TestRunRejectsConcurrentLoop(t *testing.T) {
	f := newFixture(t, 1)
	provider := &scriptedProvider{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := f.scheduler(provider, enrich.Settings{BatchSize: 50, MaxBatches: 1})
	t.Cleanup(s.Close)

	require.True(t, s.Trigger(context.Background()))
	<-provider.started
	assert.True(t, s.Running())

	_, err := s.Run(context.Background())
	require.ErrorIs(t, err, enrich.ErrAlreadyRunning)
	assert.False(t, s.Trigger(context.Background()))

	close(provider.block)
	require.Eventually(t, func() bool { return !s.Running() }, 5*time.Second, 10*time.Millisecond)
}

func TestRunHonorsFileLock(t *testing.T) {
	f := newFixture(t, 1)
	lockPath := t.TempDir() + "/enrich.lock"
	held := flock.New(lockPath)
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = held.Unlock() })

	other := flock.New(lockPath)
	if ok, _ := other.TryLock(); ok {
		_ = other.Unlock()
		t.Skip("platform allows re-locking from the same process")
	}

	s := f.scheduler(&scriptedProvider{}, enrich.Settings{LockPath: lockPath})
	t.Cleanup(s.Close)

	_, err = s.Run(context.Background())
	require.ErrorIs(t, err, enrich.ErrAlreadyRunning)
}

func TestTriggerIsDetachedFromCallerContext(t *testing.T) {
	f := newFixture(t, 2)
	provider := &scriptedProvider{}
	s := f.scheduler(provider, enrich.Settings{BatchSize: 50, MaxBatches: 20})
	t.Cleanup(s.Close)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, s.Trigger(ctx))
	cancel()

	require.Eventually(t, func() bool { return !s.Running() }, 5*time.Second, 10*time.Millisecond)
	remaining, err := f.store.GetUnenrichedEntries(context.Background(), 30*24*time.Hour, 50)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Equal(t, 2, provider.callCount())
}

func TestCloseStopsBackgroundLoop(t *testing.T) {
	f := newFixture(t, 1)
	provider := &scriptedProvider{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := f.scheduler(provider, enrich.Settings{BatchSize: 50, MaxBatches: 1})

	require.True(t, s.Trigger(context.Background()))
	<-provider.started
	s.Close()

	assert.False(t, s.Running())
	assert.False(t, s.Trigger(context.Background()))
}

func TestSleepWithContext(t *testing.T) {
	require.NoError(t, enrich.SleepWithContext(context.Background(), 0))
	require.NoError(t, enrich.SleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, enrich.SleepWithContext(ctx, time.Hour), context.Canceled)
}

// onceStore hands out one batch and then reports nothing left.
type onceStore struct {
	mu       sync.Mutex
	batch    []software.ReferenceEntry
	served   bool
	attempts []int64
}

func (s *onceStore) GetUnenrichedEntries(context.Context, time.Duration, int) ([]software.ReferenceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.served {
		return nil, nil
	}
	s.served = true
	return s.batch, nil
}

func (s *onceStore) RecordEnrichmentAttempt(_ context.Context, id int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, id)
	return nil
}

func (s *onceStore) ApplyEnrichment(_ context.Context, id int64, _ software.Attributes, _ time.Time) (*software.ReferenceEntry, error) {
	return &software.ReferenceEntry{ID: id}, nil
}

func TestRunSkipsEntriesEnrichedSinceSelection(t *testing.T) {
	enrichedAt := baseNow.Add(-time.Hour)
	attemptedAt := baseNow.Add(-2 * time.Hour)
	store := &onceStore{batch: []software.ReferenceEntry{
		{ID: 1, Name: "Fresh", Source: "Steam", LastEnrichedAt: &enrichedAt},
		{ID: 2, Name: "Attempted", Source: "Steam", LastEnrichmentAttempt: &attemptedAt},
		{ID: 3, Name: "Stale", Source: "Steam"},
	}}
	provider := &scriptedProvider{}
	s := enrich.New(store, provider, enrich.Settings{BatchSize: 10, MaxBatches: 5, MaxAge: 30 * 24 * time.Hour},
		enrich.WithClock(func() time.Time { return baseNow }),
		enrich.WithSleep((&recordingSleep{}).Sleep),
	)
	t.Cleanup(s.Close)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, enrich.StopCaughtUp, summary.StopReason)
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 1, summary.Enriched)
	assert.Equal(t, []int64{3}, store.attempts)
	assert.Equal(t, 1, provider.callCount())
}
