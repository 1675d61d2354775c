package catalogfile_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softdex/internal/catalog"
	"softdex/internal/catalogfile"
	"softdex/internal/software"
	"softdex/internal/testsupport"
)

const seedCSV = `name,source,external_id,category,publisher,description
Half-Life 2,Steam,220,Game,Valve,Gordon returns
# comment lines are ignored
Blender,DesktopEntry,,Media,Blender Foundation
,Steam,999,Game
Portal 2,Steam,620
`

func TestImportCSV(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	result, err := catalogfile.ImportCSV(ctx, store, strings.NewReader(seedCSV))
	require.NoError(t, err)
	assert.Equal(t, catalogfile.ImportResult{Rows: 4, Created: 3, Updated: 2, Skipped: 1}, result)

	hl2, err := store.FindByExternalID(ctx, "Steam", "220")
	require.NoError(t, err)
	require.NotNil(t, hl2)
	assert.Equal(t, "Valve", hl2.Publisher)
	assert.Equal(t, "Gordon returns", hl2.Description)
	assert.Equal(t, software.CategoryGame, hl2.Category)

	portal, err := store.FindByExternalID(ctx, "Steam", "620")
	require.NoError(t, err)
	require.NotNil(t, portal)
	assert.Equal(t, software.CategoryUnknown, portal.Category)

	// Re-importing the same rows is a no-op.
	again, err := catalogfile.ImportCSV(ctx, store, strings.NewReader(seedCSV))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 0, again.Updated)
}

type failingImporter struct {
	*catalog.Store
}

func (f failingImporter) Update(context.Context, *software.ReferenceEntry) error {
	return errors.New("database is locked")
}

func TestImportCSVJoinsRowFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)

	result, err := catalogfile.ImportCSV(context.Background(), failingImporter{store}, strings.NewReader(seedCSV))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 0, result.Updated)
}

func TestImportCSVRejectsMalformedInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)

	_, err := catalogfile.ImportCSV(context.Background(), store, strings.NewReader("name,source\n\"unterminated,Steam\n"))
	require.Error(t, err)
}

func TestDownload(t *testing.T) {
	body := bytes.Repeat([]byte("softdex"), 4096)
	digest := sha256.Sum256(body)
	sum := hex.EncodeToString(digest[:])

	agents := make(chan string, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		if r.URL.Path != "/catalog.db" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "downloads", "catalog.db")
	var progress bytes.Buffer
	result, err := catalogfile.Download(context.Background(), server.URL+"/catalog.db", dest, &progress,
		catalogfile.WithUserAgent("softdex-test/1.0"), catalogfile.WithChecksum(strings.ToUpper(sum)))
	require.NoError(t, err)

	assert.Equal(t, int64(len(body)), result.Bytes)
	assert.Equal(t, sum, result.SHA256)
	assert.Equal(t, "softdex-test/1.0", <-agents)
	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, written)
	assert.NotEmpty(t, progress.String())

	_, err = catalogfile.Download(context.Background(), server.URL+"/missing.db", dest, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDownloadChecksumMismatchLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	dest := filepath.Join(dir, "catalog.db")
	_, err := catalogfile.Download(context.Background(), server.URL, dest, nil, catalogfile.WithChecksum("00ff"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary download must be removed")
}

func seedCatalog(t *testing.T, path, name, externalID string) {
	t.Helper()
	store, err := catalog.Open(context.Background(), path)
	require.NoError(t, err)
	_, err = store.FindOrCreate(context.Background(), name, "Steam", externalID, software.CategoryGame)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func entryNames(t *testing.T, path string) []string {
	t.Helper()
	store, err := catalog.Open(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()
	entries, err := store.List(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func TestReplaceKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "catalog.db")
	replacement := filepath.Join(dir, "incoming.db")
	seedCatalog(t, current, "Half-Life 2", "220")
	seedCatalog(t, replacement, "Portal 2", "620")

	require.NoError(t, catalogfile.Replace(context.Background(), current, replacement))

	assert.Equal(t, []string{"Portal 2"}, entryNames(t, current))
	assert.Equal(t, []string{"Half-Life 2"}, entryNames(t, current+catalogfile.BackupSuffix))
	assert.FileExists(t, replacement)
}

func TestReplaceRestoresBackupOnInvalidCatalog(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "catalog.db")
	replacement := filepath.Join(dir, "garbage.db")
	seedCatalog(t, current, "Half-Life 2", "220")
	require.NoError(t, os.WriteFile(replacement, bytes.Repeat([]byte("this is not a sqlite database "), 64), 0o644))

	err := catalogfile.Replace(context.Background(), current, replacement)
	require.Error(t, err)

	assert.Equal(t, []string{"Half-Life 2"}, entryNames(t, current))
	assert.NoFileExists(t, current+catalogfile.BackupSuffix)
}

func TestReplaceWithoutExistingCatalog(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "catalog.db")
	replacement := filepath.Join(dir, "incoming.db")
	seedCatalog(t, replacement, "Portal 2", "620")

	require.NoError(t, catalogfile.Replace(context.Background(), current, replacement))
	assert.Equal(t, []string{"Portal 2"}, entryNames(t, current))
	assert.NoFileExists(t, current+catalogfile.BackupSuffix)

	err := catalogfile.Replace(context.Background(), current, filepath.Join(dir, "absent.db"))
	require.Error(t, err)
}
