package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"softdex/internal/logging"
	"softdex/internal/scan"
)

// scanLoop runs a pass at startup, on every interval tick and once per
// debounce window after rescan requests.
func (d *Daemon) scanLoop(ctx context.Context) error {
	_, _ = d.runScan(ctx, "startup")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var (
		debounce <-chan time.Time
		pending  string
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = d.runScan(ctx, "interval")
		case reason := <-d.rescan:
			pending = reason
			if debounce == nil {
				debounce = time.After(d.debounce)
			}
		case <-debounce:
			debounce = nil
			_, _ = d.runScan(ctx, pending)
		}
	}
}

func (d *Daemon) runScan(ctx context.Context, reason string) (scan.Summary, error) {
	ctx = logging.WithCorrelationID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, d.logger)

	d.scanning.Add(1)
	summary, err := d.scanner.Run(ctx)
	d.scanning.Add(-1)

	if errors.Is(err, scan.ErrScanInProgress) {
		logger.Debug("scan skipped; another pass is running", logging.String("reason", reason))
		return summary, err
	}
	if ctx.Err() != nil {
		return summary, err
	}

	d.mu.Lock()
	d.lastScan = &summary
	d.lastErr = err
	d.lastScanAt = time.Now()
	d.mu.Unlock()

	if err != nil {
		logging.WarnWithContext(logger, "daemon scan failed", "daemon_scan_failed",
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run softdex scan for details"),
			logging.String(logging.FieldImpact, "installed software list may be out of date"),
		)
		return summary, err
	}
	logger.Info("daemon scan completed",
		logging.String("reason", reason),
		logging.Int("candidates", summary.Candidates),
		logging.Int("installations", summary.Installations),
	)
	return summary, nil
}
