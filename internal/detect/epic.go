package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"softdex/internal/logging"
	"softdex/internal/software"
	"softdex/internal/textutil"
)

// Epic reads the Epic Games Launcher's *.item install manifests.
type Epic struct {
	manifestDir string
	logger      *slog.Logger

	mu    sync.Mutex
	index []software.Candidate
	built bool
}

type epicManifest struct {
	DisplayName         string   `json:"DisplayName"`
	AppName             string   `json:"AppName"`
	CatalogNamespace    string   `json:"CatalogNamespace"`
	InstallLocation     string   `json:"InstallLocation"`
	LaunchExecutable    string   `json:"LaunchExecutable"`
	AppVersionString    string   `json:"AppVersionString"`
	InstallSize         int64    `json:"InstallSize"`
	AppCategories       []string `json:"AppCategories"`
	IsIncompleteInstall bool     `json:"bIsIncompleteInstall"`
	IsApplication       bool     `json:"bIsApplication"`
	MainGameAppName     string   `json:"MainGameAppName"`
}

// NewEpic constructs an Epic detector reading manifests from manifestDir.
func NewEpic(manifestDir string, logger *slog.Logger) *Epic {
	return &Epic{manifestDir: strings.TrimSpace(manifestDir), logger: componentLogger(logger, SourceEpic)}
}

func (e *Epic) Source() string { return SourceEpic }

func (e *Epic) IsPlatformPresent() bool {
	if e.manifestDir == "" {
		return false
	}
	info, err := os.Stat(e.manifestDir)
	return err == nil && info.IsDir()
}

// ListCandidates reads every manifest and refreshes the ClassifyPath index.
func (e *Epic) ListCandidates(ctx context.Context) ([]software.Candidate, error) {
	if !e.IsPlatformPresent() {
		return nil, nil
	}
	candidates, err := e.scan(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.index = candidates
	e.built = true
	e.mu.Unlock()
	return append([]software.Candidate(nil), candidates...), nil
}

// ClassifyPath claims paths inside a manifest's InstallLocation.
func (e *Epic) ClassifyPath(path string) (software.Candidate, bool) {
	if strings.TrimSpace(path) == "" || !e.IsPlatformPresent() {
		return software.Candidate{}, false
	}
	e.mu.Lock()
	if !e.built {
		if candidates, err := e.scan(context.Background()); err == nil {
			e.index = candidates
			e.built = true
		}
	}
	index := e.index
	e.mu.Unlock()

	for _, candidate := range index {
		if candidate.InstallLocation != "" && textutil.PathWithin(path, candidate.InstallLocation) {
			return candidate, true
		}
	}
	return software.Candidate{}, false
}

func (e *Epic) scan(ctx context.Context) ([]software.Candidate, error) {
	paths, err := filepath.Glob(filepath.Join(e.manifestDir, "*.item"))
	if err != nil {
		return nil, fmt.Errorf("glob epic manifests: %w", err)
	}
	var candidates []software.Candidate
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate, ok, err := readEpicManifest(path)
		if err != nil {
			warnSkipped(e.logger, "epic manifest skipped", path, err)
			continue
		}
		if !ok {
			e.logger.Debug("epic manifest ignored", logging.String("item", path))
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func readEpicManifest(path string) (software.Candidate, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return software.Candidate{}, false, err
	}
	var manifest epicManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return software.Candidate{}, false, fmt.Errorf("decode manifest: %w", err)
	}
	name := strings.TrimSpace(manifest.DisplayName)
	if name == "" || strings.TrimSpace(manifest.AppName) == "" {
		return software.Candidate{}, false, fmt.Errorf("manifest lacks DisplayName or AppName")
	}
	if manifest.IsIncompleteInstall {
		return software.Candidate{}, false, nil
	}
	// DLC manifests point back at their base game.
	if main := strings.TrimSpace(manifest.MainGameAppName); main != "" && !strings.EqualFold(main, manifest.AppName) {
		return software.Candidate{}, false, nil
	}

	candidate := software.Candidate{
		Name:            name,
		Source:          SourceEpic,
		ExternalID:      strings.TrimSpace(manifest.AppName),
		InstallLocation: strings.TrimSpace(manifest.InstallLocation),
		Version:         strings.TrimSpace(manifest.AppVersionString),
		SizeBytes:       manifest.InstallSize,
		Category:        epicCategory(manifest),
	}
	if exe := strings.TrimSpace(manifest.LaunchExecutable); exe != "" && candidate.InstallLocation != "" {
		candidate.ExecutablePath = filepath.Join(candidate.InstallLocation, exe)
	}
	return candidate, true, nil
}

func epicCategory(manifest epicManifest) software.Category {
	if manifest.IsApplication {
		return software.CategoryApplication
	}
	for _, category := range manifest.AppCategories {
		switch strings.ToLower(category) {
		case "games":
			return software.CategoryGame
		case "applications", "software":
			return software.CategoryApplication
		}
	}
	return software.CategoryGame
}
