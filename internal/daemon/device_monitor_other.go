//go:build !linux

package daemon

import (
	"context"
	"log/slog"
)

// deviceMonitor is inert where udev is unavailable; rescans then come from
// the scan interval and manifest watching only.
type deviceMonitor struct{}

func newDeviceMonitor(*slog.Logger, func(reason string)) *deviceMonitor {
	return &deviceMonitor{}
}

func (m *deviceMonitor) Running() bool { return false }

func (m *deviceMonitor) run(context.Context) error { return nil }
