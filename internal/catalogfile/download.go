package catalogfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
)

// DownloadResult describes a completed download.
type DownloadResult struct {
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// DownloadOption customizes Download.
type DownloadOption func(*downloadConfig)

type downloadConfig struct {
	client    *http.Client
	userAgent string
	checksum  string
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) DownloadOption {
	return func(c *downloadConfig) {
		if client != nil {
			c.client = client
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) DownloadOption {
	return func(c *downloadConfig) {
		c.userAgent = strings.TrimSpace(ua)
	}
}

// WithChecksum requires the downloaded body to match a hex SHA256 digest.
func WithChecksum(sum string) DownloadOption {
	return func(c *downloadConfig) {
		c.checksum = strings.ToLower(strings.TrimSpace(sum))
	}
}

// Download streams url into dest. The body is written to a temporary file in
// dest's directory and renamed into place only after the size and optional
// checksum verify, so a failed download never leaves a partial dest behind.
// Progress is rendered to progress when it is non-nil.
func Download(ctx context.Context, url, dest string, progress io.Writer, opts ...DownloadOption) (DownloadResult, error) {
	cfg := downloadConfig{client: &http.Client{Timeout: 10 * time.Minute}}
	for _, opt := range opts {
		opt(&cfg)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("build catalog request: %w", err)
	}
	if cfg.userAgent != "" {
		req.Header.Set("User-Agent", cfg.userAgent)
	}
	resp, err := cfg.client.Do(req)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("download catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DownloadResult{}, fmt.Errorf("download catalog: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return DownloadResult{}, fmt.Errorf("create catalog directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return DownloadResult{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	hasher := sha256.New()
	writers := []io.Writer{tmp, hasher}
	var bar *progressbar.ProgressBar
	if progress != nil {
		bar = progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("downloading catalog"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(progress) }),
		)
		writers = append(writers, bar)
	}

	written, err := io.Copy(io.MultiWriter(writers...), resp.Body)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("download catalog: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return DownloadResult{}, fmt.Errorf("download size mismatch: expected %d bytes, received %d bytes", resp.ContentLength, written)
	}
	sum := hex.EncodeToString(hasher.Sum(nil))
	if cfg.checksum != "" && sum != cfg.checksum {
		return DownloadResult{}, fmt.Errorf("download checksum mismatch: expected %s, got %s", cfg.checksum, sum)
	}
	if err := tmp.Sync(); err != nil {
		return DownloadResult{}, fmt.Errorf("sync catalog download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return DownloadResult{}, fmt.Errorf("close catalog download: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return DownloadResult{}, fmt.Errorf("move catalog download: %w", err)
	}
	committed = true
	return DownloadResult{Path: dest, Bytes: written, SHA256: sum}, nil
}
