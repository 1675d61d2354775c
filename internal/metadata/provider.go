package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"softdex/internal/logging"
	"softdex/internal/software"
)

// Request identifies the catalog entry a provider should describe.
type Request struct {
	Name       string
	Source     string
	ExternalID string
}

// RequestFor builds a Request from a catalog entry.
func RequestFor(e software.ReferenceEntry) Request {
	return Request{
		Name:       strings.TrimSpace(e.Name),
		Source:     strings.TrimSpace(e.Source),
		ExternalID: strings.TrimSpace(e.ExternalID),
	}
}

// Provider fetches descriptive attributes for one software title. A title the
// provider does not know returns found=false and a nil error.
type Provider interface {
	Name() string
	Supports(req Request) bool
	Fetch(ctx context.Context, req Request) (software.Attributes, bool, error)
}

// Chain queries providers in order and returns the first found result.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

var _ Provider = (*Chain)(nil)

// NewChain builds a chain over the non-nil providers.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	chain := &Chain{logger: logging.NewComponentLogger(logger, "metadata")}
	for _, p := range providers {
		if p != nil {
			chain.providers = append(chain.providers, p)
		}
	}
	return chain
}

// Name lists the chained provider names.
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, ",")
}

// Len returns the number of chained providers.
func (c *Chain) Len() int {
	return len(c.providers)
}

// Supports reports whether any provider supports req.
func (c *Chain) Supports(req Request) bool {
	for _, p := range c.providers {
		if p.Supports(req) {
			return true
		}
	}
	return false
}

// Fetch tries each supporting provider in turn. Errors from one provider do
// not stop the chain; they are returned only when no provider found the title.
func (c *Chain) Fetch(ctx context.Context, req Request) (software.Attributes, bool, error) {
	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return software.Attributes{}, false, err
		}
		if !p.Supports(req) {
			continue
		}
		attrs, found, err := p.Fetch(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return software.Attributes{}, false, err
			}
			c.logger.Debug("provider fetch failed",
				logging.String("provider", p.Name()),
				logging.String("name", req.Name),
				logging.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		if found {
			if attrs.Provider == "" {
				attrs.Provider = p.Name()
			}
			return attrs, true, nil
		}
	}
	return software.Attributes{}, false, errors.Join(errs...)
}
