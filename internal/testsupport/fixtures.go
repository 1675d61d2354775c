package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeText(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteSteamLibrary writes libraryfolders.vdf under steamRoot listing the
// root itself plus any extra library folders.
func WriteSteamLibrary(t testing.TB, steamRoot string, extraLibraries ...string) {
	t.Helper()

	var b strings.Builder
	b.WriteString("\"libraryfolders\"\n{\n")
	for i, library := range append([]string{steamRoot}, extraLibraries...) {
		fmt.Fprintf(&b, "\t\"%d\"\n\t{\n\t\t\"path\"\t\t%q\n\t\t\"label\"\t\t\"\"\n\t}\n", i, library)
	}
	b.WriteString("}\n")
	writeText(t, filepath.Join(steamRoot, "steamapps", "libraryfolders.vdf"), b.String())
}

// WriteSteamApp writes an installed appmanifest into library and creates the
// game directory. It returns the install location.
func WriteSteamApp(t testing.TB, library, appID, name, installDir string) string {
	t.Helper()

	manifest := fmt.Sprintf(`"AppState"
{
	"appid"		"%s"
	"Universe"		"1"
	"name"		"%s"
	"StateFlags"		"4"
	"installdir"		"%s"
	"LastUpdated"		"1700000000"
	"SizeOnDisk"		"4096"
	"buildid"		"1234"
}
`, appID, name, installDir)
	writeText(t, filepath.Join(library, "steamapps", "appmanifest_"+appID+".acf"), manifest)

	location := filepath.Join(library, "steamapps", "common", installDir)
	if err := os.MkdirAll(location, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", location, err)
	}
	return location
}

// EpicItem mirrors the fields softdex reads from an Epic .item manifest.
type EpicItem struct {
	AppName             string `json:"AppName"`
	DisplayName         string `json:"DisplayName"`
	InstallLocation     string `json:"InstallLocation"`
	LaunchExecutable    string `json:"LaunchExecutable,omitempty"`
	AppVersionString    string `json:"AppVersionString,omitempty"`
	InstallSize         int64  `json:"InstallSize,omitempty"`
	IsIncompleteInstall bool   `json:"bIsIncompleteInstall"`
}

// WriteEpicManifest writes item as <manifestDir>/<AppName>.item.
func WriteEpicManifest(t testing.TB, manifestDir string, item EpicItem) string {
	t.Helper()

	data, err := json.MarshalIndent(item, "", "\t")
	if err != nil {
		t.Fatalf("marshal epic item: %v", err)
	}
	path := filepath.Join(manifestDir, item.AppName+".item")
	writeText(t, path, string(data))
	return path
}

// WriteGOGGame creates <root>/<dirName> with a goggame-<id>.info signature
// and a primary play task. It returns the game directory.
func WriteGOGGame(t testing.TB, root, dirName, gameID, name string) string {
	t.Helper()

	dir := filepath.Join(root, dirName)
	info := map[string]any{
		"gameId":     gameID,
		"rootGameId": gameID,
		"name":       name,
		"playTasks": []map[string]any{
			{"isPrimary": true, "path": "start.sh", "type": "FileTask", "category": "game"},
		},
	}
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal gog info: %v", err)
	}
	writeText(t, filepath.Join(dir, "goggame-"+gameID+".info"), string(data))
	writeText(t, filepath.Join(dir, "start.sh"), "#!/bin/sh\nexec ./game \"$@\"\n")
	return dir
}

// DesktopEntry describes a freedesktop .desktop file.
type DesktopEntry struct {
	Name       string
	Exec       string
	Path       string
	Icon       string
	Categories string
	NoDisplay  bool
}

// WriteDesktopEntry writes entry to <dir>/<fileName>.
func WriteDesktopEntry(t testing.TB, dir, fileName string, entry DesktopEntry) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("[Desktop Entry]\nType=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", entry.Name)
	fmt.Fprintf(&b, "Name[de]=%s (de)\n", entry.Name)
	if entry.Exec != "" {
		fmt.Fprintf(&b, "Exec=%s\n", entry.Exec)
	}
	if entry.Path != "" {
		fmt.Fprintf(&b, "Path=%s\n", entry.Path)
	}
	if entry.Icon != "" {
		fmt.Fprintf(&b, "Icon=%s\n", entry.Icon)
	}
	if entry.Categories != "" {
		fmt.Fprintf(&b, "Categories=%s\n", entry.Categories)
	}
	if entry.NoDisplay {
		b.WriteString("NoDisplay=true\n")
	}
	path := filepath.Join(dir, fileName)
	writeText(t, path, b.String())
	return path
}
