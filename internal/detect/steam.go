package detect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"softdex/internal/software"
	"softdex/internal/textutil"
)

// Steam redistributable bundles are tools, not titles.
var steamIgnoredApps = map[string]struct{}{
	"228980":  {}, // Steamworks Common Redistributables
	"1070560": {}, // Steam Linux Runtime
	"1391110": {}, // Steam Linux Runtime - Soldier
	"1628350": {}, // Steam Linux Runtime - Sniper
}

const steamStateFullyInstalled = 4

// Steam reads libraryfolders.vdf and appmanifest_*.acf files.
type Steam struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	index []software.Candidate
	built bool
}

// NewSteam constructs a Steam detector rooted at the Steam installation.
func NewSteam(root string, logger *slog.Logger) *Steam {
	return &Steam{root: strings.TrimSpace(root), logger: componentLogger(logger, SourceSteam)}
}

func (s *Steam) Source() string { return SourceSteam }

func (s *Steam) IsPlatformPresent() bool {
	if s.root == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(s.root, "steamapps"))
	return err == nil && info.IsDir()
}

// ListCandidates rescans every library and refreshes the index ClassifyPath
// uses.
func (s *Steam) ListCandidates(ctx context.Context) ([]software.Candidate, error) {
	if !s.IsPlatformPresent() {
		return nil, nil
	}
	apps, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.index = apps
	s.built = true
	s.mu.Unlock()

	return append([]software.Candidate(nil), apps...), nil
}

// ClassifyPath claims paths under <library>/steamapps/common/<installdir>.
func (s *Steam) ClassifyPath(path string) (software.Candidate, bool) {
	if strings.TrimSpace(path) == "" || !s.IsPlatformPresent() {
		return software.Candidate{}, false
	}
	s.mu.Lock()
	if !s.built {
		apps, err := s.scan(context.Background())
		if err == nil {
			s.index = apps
			s.built = true
		}
	}
	apps := s.index
	s.mu.Unlock()

	for _, app := range apps {
		if app.InstallLocation == "" {
			continue
		}
		if textutil.PathWithin(path, app.InstallLocation) {
			return app, true
		}
	}
	return software.Candidate{}, false
}

func (s *Steam) scan(ctx context.Context) ([]software.Candidate, error) {
	libraries, err := s.libraries()
	if err != nil {
		return nil, err
	}
	var apps []software.Candidate
	seen := make(map[string]struct{})
	for _, library := range libraries {
		manifests, err := filepath.Glob(filepath.Join(library, "steamapps", "appmanifest_*.acf"))
		if err != nil {
			return nil, fmt.Errorf("glob steam manifests: %w", err)
		}
		for _, manifest := range manifests {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			app, ok, err := readSteamManifest(library, manifest)
			if err != nil {
				warnSkipped(s.logger, "steam manifest skipped", manifest, err)
				continue
			}
			if !ok {
				continue
			}
			if _, dup := seen[app.ExternalID]; dup {
				continue
			}
			seen[app.ExternalID] = struct{}{}
			apps = append(apps, app)
		}
	}
	return apps, nil
}

// libraries returns the Steam root plus every library folder it knows about.
func (s *Steam) libraries() ([]string, error) {
	libraries := []string{s.root}
	seen := map[string]struct{}{textutil.PathKey(s.root): {}}

	candidates := []string{
		filepath.Join(s.root, "steamapps", "libraryfolders.vdf"),
		filepath.Join(s.root, "config", "libraryfolders.vdf"),
	}
	for _, path := range candidates {
		doc, err := readVDF(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			warnSkipped(s.logger, "steam library folders unreadable", path, err)
			continue
		}
		folders := doc.object("libraryfolders")
		if folders == nil {
			continue
		}
		for _, index := range folders.numericKeys() {
			// Current layout nests {"path": ...}; pre-2021 files map the
			// index straight to the path.
			libraryPath := folders.str(index)
			if entry := folders.object(index); entry != nil {
				libraryPath = entry.str("path")
			}
			if libraryPath == "" {
				continue
			}
			key := textutil.PathKey(libraryPath)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			libraries = append(libraries, libraryPath)
		}
		break
	}
	return libraries, nil
}

func readSteamManifest(library, path string) (software.Candidate, bool, error) {
	doc, err := readVDF(path)
	if err != nil {
		return software.Candidate{}, false, err
	}
	state := doc.object("AppState")
	if state == nil {
		return software.Candidate{}, false, fmt.Errorf("missing AppState")
	}
	appID := strings.TrimSpace(state.str("appid"))
	name := strings.TrimSpace(state.str("name"))
	installDir := strings.TrimSpace(state.str("installdir"))
	if appID == "" || name == "" {
		return software.Candidate{}, false, fmt.Errorf("manifest lacks appid or name")
	}
	if _, ignored := steamIgnoredApps[appID]; ignored {
		return software.Candidate{}, false, nil
	}
	if flags, err := strconv.Atoi(state.str("StateFlags")); err == nil && flags&steamStateFullyInstalled == 0 {
		return software.Candidate{}, false, nil
	}

	common := filepath.Join(library, "steamapps", "common")
	candidate := software.Candidate{
		Name:       name,
		Source:     SourceSteam,
		ExternalID: appID,
		Category:   software.CategoryGame,
		Version:    state.str("buildid"),
	}
	if installDir != "" {
		candidate.InstallLocation = filepath.Join(common, installDir)
	}
	if size, err := strconv.ParseInt(state.str("SizeOnDisk"), 10, 64); err == nil && size > 0 {
		candidate.SizeBytes = size
	}
	if updated, err := strconv.ParseInt(state.str("LastUpdated"), 10, 64); err == nil && updated > 0 {
		stamp := time.Unix(updated, 0).UTC()
		candidate.InstallDate = &stamp
	}
	return candidate, true, nil
}
