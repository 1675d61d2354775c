// Package query joins the reference catalog with local installations into
// display-ready MergedView records.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"softdex/internal/logging"
	"softdex/internal/software"
	"softdex/internal/textutil"
)

// CatalogReader lists reference entries.
type CatalogReader interface {
	List(ctx context.Context) ([]software.ReferenceEntry, error)
}

// InstallationReader lists local installations.
type InstallationReader interface {
	GetAll(ctx context.Context) ([]software.LocalInstallation, error)
}

// Filter narrows a query. Empty fields match everything; set fields match
// case-insensitively and exactly.
type Filter struct {
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
}

func (f Filter) matches(entry software.ReferenceEntry) bool {
	if strings.TrimSpace(f.Category) != "" && !textutil.EqualFold(f.Category, entry.Category.String()) {
		return false
	}
	if strings.TrimSpace(f.Source) != "" && !textutil.EqualFold(f.Source, entry.Source) {
		return false
	}
	return true
}

// Service is the read side consumed by display surfaces.
type Service struct {
	catalog  CatalogReader
	installs InstallationReader
	logger   *slog.Logger
}

// New constructs a query service.
func New(catalog CatalogReader, installs InstallationReader, logger *slog.Logger) *Service {
	return &Service{
		catalog:  catalog,
		installs: installs,
		logger:   logging.NewComponentLogger(logger, "query"),
	}
}

// Query returns one MergedView per installation whose reference entry passes
// the filter. Installations pointing at a missing reference entry are logged
// and left out.
func (s *Service) Query(ctx context.Context, filter Filter) ([]software.MergedView, error) {
	views, _, err := s.join(ctx, filter)
	return views, err
}

// Orphans returns installations whose ReferenceID has no catalog entry.
func (s *Service) Orphans(ctx context.Context) ([]software.LocalInstallation, error) {
	_, orphans, err := s.join(ctx, Filter{})
	return orphans, err
}

func (s *Service) join(ctx context.Context, filter Filter) ([]software.MergedView, []software.LocalInstallation, error) {
	entries, err := s.catalog.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load reference entries: %w", err)
	}
	installations, err := s.installs.GetAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load installations: %w", err)
	}

	byID := make(map[int64]software.ReferenceEntry, len(entries))
	for _, entry := range entries {
		byID[entry.ID] = entry
	}

	views := make([]software.MergedView, 0, len(installations))
	var orphans []software.LocalInstallation
	for _, inst := range installations {
		entry, ok := byID[inst.ReferenceID]
		if !ok {
			orphans = append(orphans, inst)
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "installation references missing catalog entry", "orphan_installation",
				logging.Int64("installation_id", inst.ID),
				logging.Int64(logging.FieldReferenceID, inst.ReferenceID),
				logging.String("install_location", inst.InstallLocation),
				logging.String(logging.FieldErrorHint, "run softdex scan to rebuild catalog links or softdex catalog prune to drop orphans"),
				logging.String(logging.FieldImpact, "installation hidden from results"),
			)
			continue
		}
		if !filter.matches(entry) {
			continue
		}
		views = append(views, software.Merge(entry, inst))
	}

	sort.SliceStable(views, func(i, j int) bool {
		if c := textutil.CompareFolded(views[i].Name, views[j].Name); c != 0 {
			return c < 0
		}
		if c := textutil.CompareFolded(views[i].InstallLocation, views[j].InstallLocation); c != 0 {
			return c < 0
		}
		return views[i].InstallationID < views[j].InstallationID
	})
	return views, orphans, nil
}
