package metadata

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"softdex/internal/software"
	"softdex/internal/textutil"
)

type cachedResult struct {
	attrs software.Attributes
	found bool
}

// Cached memoizes a provider's answers, including "not found", for a TTL.
// Errors are never cached so a failing title is retried on the next run.
type Cached struct {
	inner Provider
	cache *cache.Cache
}

var _ Provider = (*Cached)(nil)

// NewCached wraps inner with a cache of the given TTL.
func NewCached(inner Provider, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{inner: inner, cache: cache.New(ttl, ttl*2)}
}

// Name returns the wrapped provider's name.
func (c *Cached) Name() string { return c.inner.Name() }

// Supports delegates to the wrapped provider.
func (c *Cached) Supports(req Request) bool { return c.inner.Supports(req) }

// Fetch returns a cached answer or asks the wrapped provider.
func (c *Cached) Fetch(ctx context.Context, req Request) (software.Attributes, bool, error) {
	key := cacheKey(req)
	if value, ok := c.cache.Get(key); ok {
		if res, ok := value.(cachedResult); ok {
			return res.attrs, res.found, nil
		}
	}
	attrs, found, err := c.inner.Fetch(ctx, req)
	if err != nil {
		return attrs, found, err
	}
	c.cache.Set(key, cachedResult{attrs: attrs, found: found}, cache.DefaultExpiration)
	return attrs, found, nil
}

// Len returns the number of cached answers.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}

// Flush drops every cached answer.
func (c *Cached) Flush() {
	c.cache.Flush()
}

func cacheKey(req Request) string {
	return strings.Join([]string{
		textutil.Fold(req.Source),
		strings.TrimSpace(req.ExternalID),
		textutil.Fold(req.Name),
	}, "|")
}
