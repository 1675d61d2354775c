package metadata_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softdex/internal/logging"
	"softdex/internal/metadata"
	"softdex/internal/software"
)

type fakeProvider struct {
	name    string
	source  string
	found   bool
	err     error
	attrs   software.Attributes
	fetches int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(req metadata.Request) bool {
	return f.source == "" || strings.EqualFold(req.Source, f.source)
}

func (f *fakeProvider) Fetch(context.Context, metadata.Request) (software.Attributes, bool, error) {
	f.fetches++
	return f.attrs, f.found, f.err
}

func TestChainFirstFoundWins(t *testing.T) {
	steam := &fakeProvider{name: "steam", source: "Steam", found: true, attrs: software.Attributes{Publisher: "Valve"}}
	wiki := &fakeProvider{name: "wikipedia", found: true, attrs: software.Attributes{Publisher: "Other"}}
	chain := metadata.NewChain(logging.NewNop(), steam, nil, wiki)

	attrs, found, err := chain.Fetch(context.Background(), metadata.Request{Name: "Half-Life 2", Source: "Steam", ExternalID: "220"})

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Valve", attrs.Publisher)
	assert.Equal(t, "steam", attrs.Provider)
	assert.Equal(t, 0, wiki.fetches)
	assert.Equal(t, 2, chain.Len())
	assert.Equal(t, "steam,wikipedia", chain.Name())
}

func TestChainSkipsUnsupportedAndFailingProviders(t *testing.T) {
	steam := &fakeProvider{name: "steam", source: "Steam", found: true}
	broken := &fakeProvider{name: "broken", err: errors.New("boom")}
	wiki := &fakeProvider{name: "wikipedia", found: true, attrs: software.Attributes{Description: "Editor"}}
	chain := metadata.NewChain(nil, steam, broken, wiki)

	attrs, found, err := chain.Fetch(context.Background(), metadata.Request{Name: "Vim", Source: "DesktopEntry"})

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Editor", attrs.Description)
	assert.Equal(t, 0, steam.fetches)
	assert.Equal(t, 1, broken.fetches)
}

func TestChainReportsErrorsWhenNothingFound(t *testing.T) {
	broken := &fakeProvider{name: "broken", err: errors.New("timeout")}
	empty := &fakeProvider{name: "empty"}
	chain := metadata.NewChain(nil, broken, empty)

	_, found, err := chain.Fetch(context.Background(), metadata.Request{Name: "Vim"})

	assert.False(t, found)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: timeout")
}

func TestChainNotFoundIsNotAnError(t *testing.T) {
	chain := metadata.NewChain(nil, &fakeProvider{name: "empty"})

	_, found, err := chain.Fetch(context.Background(), metadata.Request{Name: "Vim"})

	require.NoError(t, err)
	assert.False(t, found)
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	p := &fakeProvider{name: "p", found: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := metadata.NewChain(nil, p).Fetch(ctx, metadata.Request{Name: "Vim"})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.fetches)
}

func TestCachedMemoizesPositiveAndNegativeResults(t *testing.T) {
	hit := &fakeProvider{name: "hit", found: true, attrs: software.Attributes{Publisher: "Valve"}}
	miss := &fakeProvider{name: "miss"}
	cachedHit := metadata.NewCached(hit, time.Minute)
	cachedMiss := metadata.NewCached(miss, time.Minute)
	req := metadata.Request{Name: "Portal", Source: "Steam", ExternalID: "400"}

	for range 3 {
		attrs, found, err := cachedHit.Fetch(context.Background(), req)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Valve", attrs.Publisher)

		_, found, err = cachedMiss.Fetch(context.Background(), req)
		require.NoError(t, err)
		require.False(t, found)
	}

	assert.Equal(t, 1, hit.fetches)
	assert.Equal(t, 1, miss.fetches)
	assert.Equal(t, 1, cachedHit.Len())

	cachedHit.Flush()
	_, _, _ = cachedHit.Fetch(context.Background(), req)
	assert.Equal(t, 2, hit.fetches)
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	broken := &fakeProvider{name: "broken", err: errors.New("unavailable")}
	cached := metadata.NewCached(broken, time.Minute)

	for range 2 {
		_, _, err := cached.Fetch(context.Background(), metadata.Request{Name: "Vim"})
		require.Error(t, err)
	}
	assert.Equal(t, 2, broken.fetches)
	assert.Equal(t, 0, cached.Len())
}

func TestRequestForTrimsFields(t *testing.T) {
	req := metadata.RequestFor(software.ReferenceEntry{Name: " Vim ", Source: "DesktopEntry ", ExternalID: " "})
	assert.Equal(t, metadata.Request{Name: "Vim", Source: "DesktopEntry"}, req)
}
