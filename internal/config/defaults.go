package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	defaultDataDir               = "~/.local/share/softdex"
	defaultAPIBind               = "127.0.0.1:7611"
	defaultStaleDays             = 30
	defaultScanIntervalMinutes   = 60
	defaultMaxAgeDays            = 30
	defaultBatchSize             = 50
	defaultMaxBatches            = 20
	defaultBatchDelaySeconds     = 5
	defaultRequestTimeoutSeconds = 10
	defaultRequestsPerSecond     = 2
	defaultCacheMinutes          = 60
	defaultSteamStoreURL         = "https://store.steampowered.com"
	defaultWikipediaURL          = "https://en.wikipedia.org/api/rest_v1"
	defaultUserAgent             = "softdex/dev (+https://github.com/softdex/softdex)"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Platform identifiers accepted in detection.platforms.
const (
	PlatformSteam = "steam"
	PlatformEpic  = "epic"
	PlatformGOG   = "gog"
)

// Provider identifiers accepted in enrichment.providers.
const (
	ProviderSteamStore = "steam"
	ProviderWikipedia  = "wikipedia"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Detection: Detection{
			Platforms:           []string{PlatformSteam, PlatformEpic, PlatformGOG},
			SteamRoot:           defaultSteamRoot(),
			EpicManifestDir:     defaultEpicManifestDir(),
			GOGRoots:            defaultGOGRoots(),
			DesktopDirs:         defaultDesktopDirs(),
			StaleDays:           defaultStaleDays,
			ScanIntervalMinutes: defaultScanIntervalMinutes,
			EnrichAfterScan:     true,
		},
		Enrichment: Enrichment{
			Enabled:               true,
			Providers:             []string{ProviderSteamStore, ProviderWikipedia},
			MaxAgeDays:            defaultMaxAgeDays,
			BatchSize:             defaultBatchSize,
			MaxBatches:            defaultMaxBatches,
			BatchDelaySeconds:     defaultBatchDelaySeconds,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			RequestsPerSecond:     defaultRequestsPerSecond,
			CacheMinutes:          defaultCacheMinutes,
			SteamStoreURL:         defaultSteamStoreURL,
			WikipediaURL:          defaultWikipediaURL,
			UserAgent:             defaultUserAgent,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultSteamRoot() string {
	switch runtime.GOOS {
	case "windows":
		return `C:\Program Files (x86)\Steam`
	case "darwin":
		return "~/Library/Application Support/Steam"
	default:
		return "~/.local/share/Steam"
	}
}

func defaultEpicManifestDir() string {
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\Epic\EpicGamesLauncher\Data\Manifests`
	}
	if runtime.GOOS == "darwin" {
		return "~/Library/Application Support/Epic/EpicGamesLauncher/Data/Manifests"
	}
	return ""
}

func defaultGOGRoots() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{`C:\GOG Games`, `C:\Program Files (x86)\GOG Galaxy\Games`}
	default:
		return []string{"~/GOG Games"}
	}
}

func defaultDesktopDirs() []string {
	if runtime.GOOS == "windows" {
		return nil
	}
	dirs := []string{"~/.local/share/applications"}
	if value, ok := os.LookupEnv("XDG_DATA_DIRS"); ok && strings.TrimSpace(value) != "" {
		for _, base := range filepath.SplitList(value) {
			if strings.TrimSpace(base) == "" {
				continue
			}
			dirs = append(dirs, filepath.Join(base, "applications"))
		}
		return dirs
	}
	return append(dirs, "/usr/local/share/applications", "/usr/share/applications")
}
