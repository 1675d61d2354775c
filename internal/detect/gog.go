package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"softdex/internal/software"
)

// gogSearchDepth bounds how far ClassifyPath walks up looking for a
// goggame-*.info signature.
const gogSearchDepth = 4

// GOG finds GOG Galaxy and offline-installer games by their goggame-<id>.info
// signature files.
type GOG struct {
	roots  []string
	logger *slog.Logger
}

type gogInfo struct {
	GameID     string `json:"gameId"`
	RootGameID string `json:"rootGameId"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	PlayTasks  []struct {
		IsPrimary bool   `json:"isPrimary"`
		Path      string `json:"path"`
		Type      string `json:"type"`
		Category  string `json:"category"`
	} `json:"playTasks"`
}

// NewGOG constructs a GOG detector scanning the given library roots.
func NewGOG(roots []string, logger *slog.Logger) *GOG {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if root = strings.TrimSpace(root); root != "" {
			cleaned = append(cleaned, root)
		}
	}
	return &GOG{roots: cleaned, logger: componentLogger(logger, SourceGOG)}
}

func (g *GOG) Source() string { return SourceGOG }

func (g *GOG) IsPlatformPresent() bool {
	for _, root := range g.roots {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// ListCandidates inspects each direct subdirectory of every root.
func (g *GOG) ListCandidates(ctx context.Context) ([]software.Candidate, error) {
	var candidates []software.Candidate
	seen := make(map[string]struct{})
	for _, root := range g.roots {
		entries, err := os.ReadDir(root)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read gog root %q: %w", root, err)
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			candidate, ok, err := readGOGDir(dir)
			if err != nil {
				warnSkipped(g.logger, "gog game skipped", dir, err)
				continue
			}
			if !ok {
				continue
			}
			if _, dup := seen[candidate.ExternalID]; dup {
				continue
			}
			seen[candidate.ExternalID] = struct{}{}
			candidates = append(candidates, candidate)
		}
	}
	return candidates, nil
}

// ClassifyPath walks up from path looking for a directory with a GOG
// signature. Games installed outside the configured roots are still claimed.
func (g *GOG) ClassifyPath(path string) (software.Candidate, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return software.Candidate{}, false
	}
	dir := filepath.Clean(path)
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for depth := 0; depth < gogSearchDepth; depth++ {
		candidate, ok, err := readGOGDir(dir)
		if err == nil && ok {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return software.Candidate{}, false
}

// readGOGDir parses the base game's info file in dir. ok is false when dir
// has no signature.
func readGOGDir(dir string) (software.Candidate, bool, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "goggame-*.info"))
	if err != nil || len(matches) == 0 {
		return software.Candidate{}, false, err
	}

	var base *gogInfo
	var firstErr error
	for _, match := range matches {
		data, err := os.ReadFile(match)
		if err != nil {
			firstErr = err
			continue
		}
		var info gogInfo
		if err := json.Unmarshal(data, &info); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("decode %s: %w", filepath.Base(match), err)
			}
			continue
		}
		// DLC info files share the directory and carry the base game's id
		// in rootGameId.
		if info.RootGameID == "" || info.RootGameID == info.GameID {
			base = &info
			break
		}
		if base == nil {
			base = &info
		}
	}
	if base == nil {
		return software.Candidate{}, false, firstErr
	}
	name := strings.TrimSpace(base.Name)
	if name == "" || strings.TrimSpace(base.GameID) == "" {
		return software.Candidate{}, false, fmt.Errorf("gog info lacks name or gameId")
	}

	candidate := software.Candidate{
		Name:            name,
		Source:          SourceGOG,
		ExternalID:      strings.TrimSpace(base.GameID),
		InstallLocation: dir,
		Version:         strings.TrimSpace(base.Version),
		Category:        software.CategoryGame,
	}
	for _, task := range base.PlayTasks {
		if task.IsPrimary && strings.TrimSpace(task.Path) != "" {
			candidate.ExecutablePath = filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(task.Path, `\`, "/")))
			break
		}
	}
	return candidate, true, nil
}
