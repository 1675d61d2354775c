package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"softdex/internal/api"
	"softdex/internal/catalog"
	"softdex/internal/detect"
	"softdex/internal/installs"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := checkAccess(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCatalog opens the reference catalog, applying migrations, and counts
// its entries.
func CheckCatalog(ctx context.Context, path string) Result {
	const name = "Catalog database"
	store, err := catalog.Open(ctx, path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer store.Close()
	count, err := store.Count(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d entries)", path, count)}
}

// CheckInstallations opens the local installation database and counts its rows.
func CheckInstallations(ctx context.Context, path string) Result {
	const name = "Local database"
	store, err := installs.Open(ctx, path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer store.Close()
	count, err := store.GetCount(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d installations)", path, count)}
}

// CheckPlatform reports whether a detector's platform is installed. An
// absent platform passes; its detector simply yields nothing.
func CheckPlatform(d detect.Detector) Result {
	name := "Platform " + d.Source()
	if d.IsPlatformPresent() {
		return Result{Name: name, Passed: true, Detail: "installed"}
	}
	return Result{Name: name, Passed: true, Detail: "not installed (skipped during scans)"}
}

// CheckEndpoint verifies a metadata provider answers HTTP. Any status below
// 500 counts as reachable.
func CheckEndpoint(ctx context.Context, name, baseURL, userAgent string) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	if ua := strings.TrimSpace(userAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("%s answered %d", base, resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", base)}
}

// CheckAPIBind reports whether a daemon already serves addr, or else whether
// addr is free to bind.
func CheckAPIBind(ctx context.Context, addr string) Result {
	const name = "API bind"

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	client, err := api.NewClient(addr, "")
	if err != nil || client == nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: invalid address)", addr)}
	}
	status, err := client.Status(checkCtx)
	if err == nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (daemon running, pid %d)", addr, status.PID)}
	}
	if !api.IsAPIUnavailable(err) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (in use by another service: %v)", addr, err)}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot bind: %v)", addr, err)}
	}
	_ = ln.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (available)", addr)}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
