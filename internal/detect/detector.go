package detect

import (
	"context"
	"fmt"
	"log/slog"

	"softdex/internal/config"
	"softdex/internal/logging"
	"softdex/internal/software"
)

// Source tags attached to candidates.
const (
	SourceSteam    = "Steam"
	SourceEpic     = "Epic"
	SourceGOG      = "GOG"
	SourceDesktop  = "DesktopEntry"
	SourceRegistry = "Registry"
)

// Detector probes one source of installed software.
type Detector interface {
	// Source returns the tag stamped on every candidate this detector yields.
	Source() string
	// IsPlatformPresent reports whether the platform is installed at all.
	IsPlatformPresent() bool
	// ListCandidates enumerates installed titles. Malformed items are skipped.
	ListCandidates(ctx context.Context) ([]software.Candidate, error)
	// ClassifyPath claims an install path that carries this platform's
	// on-disk signature and returns the platform's view of that title.
	ClassifyPath(path string) (software.Candidate, bool)
}

type factory func(cfg *config.Config, logger *slog.Logger) Detector

// factories maps configuration platform names to detector constructors.
// Adding a platform means adding its constructor here.
var factories = map[string]factory{
	config.PlatformSteam: func(cfg *config.Config, logger *slog.Logger) Detector {
		return NewSteam(cfg.Detection.SteamRoot, logger)
	},
	config.PlatformEpic: func(cfg *config.Config, logger *slog.Logger) Detector {
		return NewEpic(cfg.Detection.EpicManifestDir, logger)
	},
	config.PlatformGOG: func(cfg *config.Config, logger *slog.Logger) Detector {
		return NewGOG(cfg.Detection.GOGRoots, logger)
	},
}

// Registry is the static detector list consulted by the reconciler.
type Registry struct {
	inventory Detector
	platforms []Detector
}

// NewRegistry builds the inventory detector for this OS plus the configured
// platform detectors in precedence order.
func NewRegistry(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("detector registry: config is nil")
	}
	platforms := make([]Detector, 0, len(cfg.Detection.Platforms))
	for _, name := range cfg.Detection.Platforms {
		build, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("detector registry: unknown platform %q", name)
		}
		platforms = append(platforms, build(cfg, logger))
	}
	return NewRegistryFrom(NewInventory(cfg, logger), platforms...), nil
}

// NewRegistryFrom assembles a registry from explicit detectors.
func NewRegistryFrom(inventory Detector, platforms ...Detector) *Registry {
	return &Registry{inventory: inventory, platforms: platforms}
}

// Inventory returns the generic inventory detector, which may be nil.
func (r *Registry) Inventory() Detector {
	if r == nil {
		return nil
	}
	return r.inventory
}

// Platforms returns the platform detectors in precedence order.
func (r *Registry) Platforms() []Detector {
	if r == nil {
		return nil
	}
	out := make([]Detector, len(r.platforms))
	copy(out, r.platforms)
	return out
}

// All returns the inventory detector followed by the platform detectors.
func (r *Registry) All() []Detector {
	if r == nil {
		return nil
	}
	var all []Detector
	if r.inventory != nil {
		all = append(all, r.inventory)
	}
	return append(all, r.platforms...)
}

func componentLogger(logger *slog.Logger, source string) *slog.Logger {
	return logging.NewComponentLogger(logger, "detect").With(logging.String(logging.FieldSource, source))
}

func warnSkipped(logger *slog.Logger, msg, item string, err error) {
	logging.WarnWithContext(logger, msg, "detector_item_skipped",
		logging.String("item", item),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect or remove the malformed launcher file"),
		logging.String(logging.FieldImpact, "title omitted from this scan"),
	)
}
