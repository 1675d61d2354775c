package detect

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"softdex/internal/software"
)

// Desktop enumerates freedesktop .desktop application entries. Directories
// earlier in the list shadow entries with the same desktop file id later on,
// matching the XDG lookup order.
type Desktop struct {
	dirs   []string
	logger *slog.Logger
}

// Executables in these directories belong to the system, not to an install
// location of their own.
var systemBinDirs = []string{
	"/bin",
	"/sbin",
	"/usr/bin",
	"/usr/sbin",
	"/usr/games",
	"/usr/local/bin",
	"/snap/bin",
	"/var/lib/flatpak/exports/bin",
}

// NewDesktop constructs a desktop-entry inventory over dirs.
func NewDesktop(dirs []string, logger *slog.Logger) *Desktop {
	cleaned := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir = strings.TrimSpace(dir); dir != "" {
			cleaned = append(cleaned, dir)
		}
	}
	return &Desktop{dirs: cleaned, logger: componentLogger(logger, SourceDesktop)}
}

func (d *Desktop) Source() string { return SourceDesktop }

func (d *Desktop) IsPlatformPresent() bool {
	for _, dir := range d.dirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// ClassifyPath never matches: the inventory has no platform signature.
func (d *Desktop) ClassifyPath(string) (software.Candidate, bool) {
	return software.Candidate{}, false
}

// ListCandidates parses every visible application entry.
func (d *Desktop) ListCandidates(ctx context.Context) ([]software.Candidate, error) {
	var candidates []software.Candidate
	seen := make(map[string]struct{})
	for _, dir := range d.dirs {
		err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				if path == dir && os.IsNotExist(err) {
					return filepath.SkipDir
				}
				warnSkipped(d.logger, "desktop entry directory unreadable", path, err)
				if entry != nil && entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), ".desktop") {
				return nil
			}
			id := desktopFileID(dir, path)
			if _, shadowed := seen[id]; shadowed {
				return nil
			}
			seen[id] = struct{}{}

			candidate, ok, parseErr := readDesktopFile(path)
			if parseErr != nil {
				warnSkipped(d.logger, "desktop entry skipped", path, parseErr)
				return nil
			}
			if ok {
				candidates = append(candidates, candidate)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}
	return candidates, nil
}

// desktopFileID follows the XDG rule: path relative to the applications
// directory with separators replaced by dashes.
func desktopFileID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "-")
}

func readDesktopFile(path string) (software.Candidate, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return software.Candidate{}, false, err
	}
	fields, err := parseDesktopEntry(data)
	if err != nil {
		return software.Candidate{}, false, err
	}
	if fields == nil {
		return software.Candidate{}, false, fmt.Errorf("no [Desktop Entry] group")
	}
	if kind := fields["Type"]; kind != "" && kind != "Application" {
		return software.Candidate{}, false, nil
	}
	if isTrue(fields["NoDisplay"]) || isTrue(fields["Hidden"]) {
		return software.Candidate{}, false, nil
	}
	name := strings.TrimSpace(fields["Name"])
	if name == "" {
		return software.Candidate{}, false, fmt.Errorf("entry has no Name")
	}

	executable := strings.TrimSpace(fields["TryExec"])
	if executable == "" {
		executable = execProgram(fields["Exec"])
	}
	candidate := software.Candidate{
		Name:           name,
		Source:         SourceDesktop,
		ExecutablePath: executable,
		IconPath:       strings.TrimSpace(fields["Icon"]),
		Version:        strings.TrimSpace(fields["X-AppImage-Version"]),
		Category:       desktopCategory(fields["Categories"]),
	}
	candidate.InstallLocation = strings.TrimSpace(fields["Path"])
	if candidate.InstallLocation == "" && filepath.IsAbs(executable) && !inSystemBinDir(executable) {
		candidate.InstallLocation = filepath.Dir(executable)
	}
	if info, err := os.Stat(path); err == nil {
		modified := info.ModTime().UTC()
		candidate.InstallDate = &modified
	}
	return candidate, true, nil
}

// Desktop entry values keep ';' lists, '#' and surrounding quotes verbatim,
// and a trailing backslash is an escape rather than a line continuation.
var desktopLoadOptions = ini.LoadOptions{
	IgnoreContinuation:      true,
	IgnoreInlineComment:     true,
	PreserveSurroundedQuote: true,
	SkipUnrecognizableLines: true,
	KeyValueDelimiters:      "=",
}

// parseDesktopEntry returns the unlocalized keys of the [Desktop Entry]
// group, or nil when the group is absent.
func parseDesktopEntry(data []byte) (map[string]string, error) {
	file, err := ini.LoadSources(desktopLoadOptions, data)
	if err != nil {
		return nil, fmt.Errorf("parse desktop entry: %w", err)
	}
	section, err := file.GetSection("Desktop Entry")
	if err != nil {
		return nil, nil
	}
	fields := make(map[string]string, len(section.Keys()))
	for _, key := range section.Keys() {
		if strings.Contains(key.Name(), "[") {
			continue
		}
		fields[key.Name()] = unescapeDesktopValue(key.Value())
	}
	return fields, nil
}

func unescapeDesktopValue(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	replacer := strings.NewReplacer(`\s`, " ", `\n`, "\n", `\t`, "\t", `\r`, "\r", `\\`, `\`)
	return replacer.Replace(value)
}

// execProgram extracts the program from an Exec line, skipping an "env"
// prefix with its assignments and dropping field codes.
func execProgram(exec string) string {
	args := splitExec(exec)
	for len(args) > 0 {
		arg := args[0]
		switch {
		case filepath.Base(arg) == "env":
			args = args[1:]
			continue
		case strings.Contains(arg, "=") && !strings.Contains(arg, "/"):
			args = args[1:]
			continue
		case strings.HasPrefix(arg, "%"):
			args = args[1:]
			continue
		}
		return arg
	}
	return ""
}

func splitExec(exec string) []string {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		escaped bool
	)
	flush := func() {
		if current.Len() > 0 {
			args = append(args, current.String())
			current.Reset()
		}
	}
	for _, r := range exec {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quoted:
			escaped = true
		case r == '"':
			quoted = !quoted
		case (r == ' ' || r == '\t') && !quoted:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return args
}

func desktopCategory(categories string) software.Category {
	var fallback software.Category
	for _, raw := range strings.Split(categories, ";") {
		switch strings.TrimSpace(raw) {
		case "Game":
			return software.CategoryGame
		case "Development", "IDE":
			return software.CategoryDevelopment
		case "AudioVideo", "Audio", "Video", "Graphics":
			if fallback == "" {
				fallback = software.CategoryMedia
			}
		case "System", "Settings":
			if fallback == "" {
				fallback = software.CategorySystem
			}
		case "Utility":
			if fallback == "" {
				fallback = software.CategoryUtility
			}
		case "Office", "Network", "Education", "Science":
			if fallback == "" {
				fallback = software.CategoryApplication
			}
		}
	}
	if fallback == "" {
		return software.CategoryUnknown
	}
	return fallback
}

func inSystemBinDir(executable string) bool {
	dir := filepath.Dir(filepath.Clean(executable))
	for _, bin := range systemBinDirs {
		if dir == bin {
			return true
		}
	}
	return false
}

func isTrue(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "true")
}
