package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"softdex/internal/catalog"
	"softdex/internal/config"
	"softdex/internal/installs"
	"softdex/internal/software"
)

// MustOpenCatalog opens a catalog.Store for tests and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config, opts ...catalog.Option) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(context.Background(), cfg.Paths.CatalogPath, opts...)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenInstalls opens an installs.Store for tests and registers cleanup.
func MustOpenInstalls(t testing.TB, cfg *config.Config, opts ...installs.Option) *installs.Store {
	t.Helper()

	store, err := installs.Open(context.Background(), cfg.Paths.LocalPath, opts...)
	if err != nil {
		t.Fatalf("installs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewEntry creates a catalog entry for tests.
func NewEntry(t testing.TB, store *catalog.Store, name, source, externalID string) *software.ReferenceEntry {
	t.Helper()

	entry, err := store.FindOrCreate(context.Background(), name, source, externalID, software.CategoryUnknown)
	if err != nil {
		t.Fatalf("store.FindOrCreate: %v", err)
	}
	return entry
}

// Clock is a manually advanced time source for store options.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock starts a clock at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{current: start.UTC()}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set jumps the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t.UTC()
}
