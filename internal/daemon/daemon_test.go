package daemon_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"softdex/internal/api"
	"softdex/internal/config"
	"softdex/internal/daemon"
	"softdex/internal/metrics"
	"softdex/internal/query"
	"softdex/internal/scan"
	"softdex/internal/software"
	"softdex/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeScanner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeScanner) Run(context.Context) (scan.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return scan.Summary{}, f.err
	}
	return scan.Summary{CorrelationID: "pass", Candidates: 2, Installations: 2}, nil
}

func (f *fakeScanner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQuerier struct {
	mu     sync.Mutex
	filter query.Filter
}

func (f *fakeQuerier) Query(_ context.Context, filter query.Filter) ([]software.MergedView, error) {
	f.mu.Lock()
	f.filter = filter
	f.mu.Unlock()
	return []software.MergedView{{Name: "Half-Life 2", Source: "Steam", Category: software.CategoryGame}}, nil
}

type runningDaemon struct {
	d      *daemon.Daemon
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, cfg *config.Config, scanner daemon.Scanner, opts ...daemon.Option) *runningDaemon {
	t.Helper()
	opts = append([]daemon.Option{
		daemon.WithDeviceEvents(false),
		daemon.WithManifestWatch(false),
		daemon.WithScanInterval(time.Hour),
	}, opts...)
	d, err := daemon.New(cfg, scanner, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rd := &runningDaemon{d: d, cancel: cancel, done: make(chan error, 1)}
	go func() { rd.done <- d.Run(ctx) }()
	t.Cleanup(func() {
		rd.stop(t)
		http.DefaultTransport.(*http.Transport).CloseIdleConnections()
	})
	return rd
}

func (rd *runningDaemon) stop(t *testing.T) {
	t.Helper()
	if rd.cancel == nil {
		return
	}
	rd.cancel()
	rd.cancel = nil
	select {
	case err := <-rd.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func waitForAddr(t *testing.T, d *daemon.Daemon) string {
	t.Helper()
	require.Eventually(t, func() bool { return d.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	return d.Addr()
}

func TestDaemonServesAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	scanner := &fakeScanner{}
	querier := &fakeQuerier{}
	m, err := metrics.New()
	require.NoError(t, err)

	rd := start(t, cfg, scanner, daemon.WithQuerier(querier), daemon.WithMetrics(m))
	addr := waitForAddr(t, rd.d)
	require.Eventually(t, func() bool { return scanner.count() >= 1 }, 5*time.Second, 10*time.Millisecond, "startup scan")

	client, err := api.NewClient(addr, "")
	require.NoError(t, err)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		status, err := client.Status(ctx)
		return err == nil && status.LastScan != nil
	}, 5*time.Second, 10*time.Millisecond)
	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, cfg.DaemonLockPath(), status.LockFilePath)
	assert.Equal(t, int64(3600), status.ScanIntervalSeconds)
	assert.Equal(t, 2, status.LastScan.Candidates)
	assert.Empty(t, status.LastScanError)

	listing, err := client.Software(ctx, query.Filter{Category: "game", Source: "steam"})
	require.NoError(t, err)
	require.Equal(t, 1, listing.Count)
	assert.Equal(t, "Half-Life 2", listing.Items[0].Name)
	querier.mu.Lock()
	assert.Equal(t, query.Filter{Category: "game", Source: "steam"}, querier.filter)
	querier.mu.Unlock()

	before := scanner.count()
	result, err := client.Scan(ctx, false)
	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	assert.Equal(t, "pass", result.Summary.CorrelationID)
	assert.Equal(t, before+1, scanner.count())

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")

	rd.stop(t)
	assert.False(t, rd.d.Running())
	assert.Empty(t, rd.d.Addr())
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	held := flock.New(cfg.DaemonLockPath())
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = held.Unlock() })

	other := flock.New(cfg.DaemonLockPath())
	if ok, _ := other.TryLock(); ok {
		_ = other.Unlock()
		t.Skip("platform allows re-locking from the same process")
	}

	d, err := daemon.New(cfg, &fakeScanner{}, daemon.WithDeviceEvents(false), daemon.WithManifestWatch(false))
	require.NoError(t, err)
	err = d.Run(context.Background())
	require.ErrorIs(t, err, daemon.ErrAlreadyRunning)
}

func TestDaemonCoalescesRescanRequests(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	scanner := &fakeScanner{}
	rd := start(t, cfg, scanner, daemon.WithDebounce(50*time.Millisecond))

	require.Eventually(t, func() bool { return scanner.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	for range 3 {
		rd.d.RequestScan("test")
	}
	require.Eventually(t, func() bool { return scanner.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return scanner.count() > 2 }, 200*time.Millisecond, 20*time.Millisecond)
}

func TestDaemonRescansOnManifestChange(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	desktopDir := cfg.Detection.DesktopDirs[0]
	require.NoError(t, os.MkdirAll(desktopDir, 0o755))

	scanner := &fakeScanner{}
	rd := start(t, cfg, scanner, daemon.WithManifestWatch(true), daemon.WithDebounce(20*time.Millisecond))

	require.Eventually(t, func() bool {
		status := rd.d.Status(context.Background())
		for _, dir := range status.WatchedDirs {
			if dir == desktopDir {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return scanner.count() >= 1 }, 5*time.Second, 10*time.Millisecond)
	baseline := scanner.count()

	testsupport.WriteDesktopEntry(t, desktopDir, "blender.desktop", testsupport.DesktopEntry{Name: "Blender", Exec: "blender"})
	require.Eventually(t, func() bool { return scanner.count() > baseline }, 5*time.Second, 10*time.Millisecond)
}

func TestScanEndpointRequiresToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "secret"
	scanner := &fakeScanner{}
	rd := start(t, cfg, scanner)
	addr := waitForAddr(t, rd.d)

	anonymous, err := api.NewClient(addr, "")
	require.NoError(t, err)
	_, err = anonymous.Scan(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	// Reads stay open.
	_, err = anonymous.Status(context.Background())
	require.NoError(t, err)

	authorized, err := api.NewClient(addr, "secret")
	require.NoError(t, err)
	queued, err := authorized.Scan(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, queued.Queued)
	assert.Nil(t, queued.Summary)
}

func TestScanEndpointReportsBusyAndFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	scanner := &fakeScanner{err: scan.ErrScanInProgress}
	rd := start(t, cfg, scanner)
	addr := waitForAddr(t, rd.d)

	client, err := api.NewClient(addr, "")
	require.NoError(t, err)
	_, err = client.Scan(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")

	scanner.mu.Lock()
	scanner.err = errors.New("catalog unavailable")
	scanner.mu.Unlock()
	_, err = client.Scan(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "catalog unavailable", status.LastScanError)
}

func TestManifestDirs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dirs := daemon.ManifestDirs(cfg)

	assert.Contains(t, dirs, filepath.Join(cfg.Detection.SteamRoot, "steamapps"))
	assert.Contains(t, dirs, cfg.Detection.EpicManifestDir)
	assert.Contains(t, dirs, cfg.Detection.GOGRoots[0])
	assert.Contains(t, dirs, cfg.Detection.DesktopDirs[0])
	assert.Nil(t, daemon.ManifestDirs(nil))
	for _, dir := range dirs {
		assert.False(t, strings.TrimSpace(dir) == "")
	}
}
