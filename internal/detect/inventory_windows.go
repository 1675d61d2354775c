//go:build windows

package detect

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/windows/registry"

	"softdex/internal/config"
	"softdex/internal/software"
	"softdex/internal/textutil"
)

const uninstallKeyPath = `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`

// UninstallRegistry enumerates the Windows Uninstall keys for both hives and
// both registry views.
type UninstallRegistry struct {
	logger *slog.Logger
}

// NewInventory returns the Uninstall-registry inventory on Windows.
func NewInventory(_ *config.Config, logger *slog.Logger) Detector {
	return &UninstallRegistry{logger: componentLogger(logger, SourceRegistry)}
}

func (r *UninstallRegistry) Source() string { return SourceRegistry }

func (r *UninstallRegistry) IsPlatformPresent() bool { return true }

func (r *UninstallRegistry) ClassifyPath(string) (software.Candidate, bool) {
	return software.Candidate{}, false
}

type uninstallView struct {
	root   registry.Key
	access uint32
	label  string
}

var uninstallViews = []uninstallView{
	{registry.LOCAL_MACHINE, registry.WOW64_64KEY, `HKLM`},
	{registry.LOCAL_MACHINE, registry.WOW64_32KEY, `HKLM (32-bit)`},
	{registry.CURRENT_USER, 0, `HKCU`},
}

// ListCandidates reads every Uninstall subkey. Keys that cannot be opened are
// skipped.
func (r *UninstallRegistry) ListCandidates(ctx context.Context) ([]software.Candidate, error) {
	var candidates []software.Candidate
	seen := make(map[string]struct{})
	for _, view := range uninstallViews {
		key, err := registry.OpenKey(view.root, uninstallKeyPath, registry.READ|view.access)
		if err != nil {
			if errors.Is(err, registry.ErrNotExist) {
				continue
			}
			warnSkipped(r.logger, "uninstall hive unreadable", view.label, err)
			continue
		}
		names, err := key.ReadSubKeyNames(-1)
		if err != nil {
			key.Close()
			warnSkipped(r.logger, "uninstall hive unreadable", view.label, err)
			continue
		}
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				key.Close()
				return nil, err
			}
			candidate, ok, err := readUninstallKey(key, name)
			if err != nil {
				warnSkipped(r.logger, "uninstall entry skipped", view.label+`\`+name, err)
				continue
			}
			if !ok {
				continue
			}
			dedupe := textutil.Fold(candidate.Name) + "|" + textutil.PathKey(candidate.InstallLocation)
			if _, dup := seen[dedupe]; dup {
				continue
			}
			seen[dedupe] = struct{}{}
			candidates = append(candidates, candidate)
		}
		key.Close()
	}
	return candidates, nil
}

func readUninstallKey(parent registry.Key, name string) (software.Candidate, bool, error) {
	key, err := registry.OpenKey(parent, name, registry.READ)
	if err != nil {
		return software.Candidate{}, false, err
	}
	defer key.Close()

	displayName := readString(key, "DisplayName")
	if displayName == "" {
		return software.Candidate{}, false, nil
	}
	if value, _, err := key.GetIntegerValue("SystemComponent"); err == nil && value == 1 {
		return software.Candidate{}, false, nil
	}
	if readString(key, "ParentKeyName") != "" {
		return software.Candidate{}, false, nil
	}
	switch strings.ToLower(readString(key, "ReleaseType")) {
	case "update", "hotfix", "security update", "service pack":
		return software.Candidate{}, false, nil
	}

	candidate := software.Candidate{
		Name:            displayName,
		Source:          SourceRegistry,
		InstallLocation: strings.Trim(readString(key, "InstallLocation"), `"`),
		Version:         readString(key, "DisplayVersion"),
		Publisher:       readString(key, "Publisher"),
		Category:        software.CategoryUnknown,
	}
	if icon := iconPath(readString(key, "DisplayIcon")); icon != "" {
		candidate.IconPath = icon
		if strings.EqualFold(filepath.Ext(icon), ".exe") {
			candidate.ExecutablePath = icon
		}
	}
	if raw := readString(key, "InstallDate"); len(raw) == 8 {
		if date, err := time.Parse("20060102", raw); err == nil {
			candidate.InstallDate = &date
		}
	}
	if kb, _, err := key.GetIntegerValue("EstimatedSize"); err == nil && kb > 0 {
		candidate.SizeBytes = int64(kb) * 1024
	}
	return candidate, true, nil
}

func readString(key registry.Key, name string) string {
	value, _, err := key.GetStringValue(name)
	if err != nil {
		if n, _, intErr := key.GetIntegerValue(name); intErr == nil {
			return strconv.FormatUint(n, 10)
		}
		return ""
	}
	return strings.TrimSpace(value)
}

// iconPath strips quotes and the ",<index>" suffix from a DisplayIcon value.
func iconPath(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.LastIndex(value, ","); idx > 0 {
		if _, err := strconv.Atoi(strings.TrimSpace(value[idx+1:])); err == nil {
			value = value[:idx]
		}
	}
	return strings.Trim(strings.TrimSpace(value), `"`)
}
