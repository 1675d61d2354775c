//go:build linux

package daemon

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"

	"github.com/pilebones/go-udev/netlink"

	"softdex/internal/logging"
)

// deviceMonitor requests a rescan when a block device partition is attached
// or detached, which is how external game libraries come and go.
type deviceMonitor struct {
	logger  *slog.Logger
	notify  func(reason string)
	running atomic.Bool
}

func newDeviceMonitor(logger *slog.Logger, notify func(reason string)) *deviceMonitor {
	return &deviceMonitor{
		logger: logging.NewComponentLogger(logger, "device-monitor"),
		notify: notify,
	}
}

// Running reports whether the udev socket is being read.
func (m *deviceMonitor) Running() bool {
	return m != nil && m.running.Load()
}

// run reads udev events until ctx is cancelled. A socket that cannot be
// opened only disables device-triggered rescans.
func (m *deviceMonitor) run(ctx context.Context) error {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "udev socket unavailable", "device_monitor_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run the daemon with access to netlink sockets"),
			logging.String(logging.FieldImpact, "removable libraries are picked up on the scan interval only"),
		)
		return nil
	}
	defer conn.Close()

	events := make(chan netlink.UEvent)
	errs := make(chan error, 1)
	stop := conn.Monitor(events, errs, partitionMatcher())
	defer close(stop)

	m.running.Store(true)
	defer m.running.Store(false)
	m.logger.Info("device monitor started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("device monitor stopped")
			return nil
		case event := <-events:
			m.handleEvent(event)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "udev read failed", "device_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "device-triggered rescans may be missed"),
			)
		}
	}
}

// partitionMatcher accepts SUBSYSTEM=block DEVTYPE=partition add and remove
// events. Whole disks are ignored because libraries live on filesystems.
func partitionMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": "block", "DEVTYPE": "partition"},
	})
	return rules
}

func (m *deviceMonitor) handleEvent(event netlink.UEvent) {
	device := devicePath(event.Env)
	if device == "" {
		m.logger.Debug("udev event without device", logging.String("action", string(event.Action)))
		return
	}
	m.logger.Info("partition change detected",
		logging.String("device", device),
		logging.String("action", string(event.Action)),
	)
	if m.notify != nil {
		m.notify("udev " + string(event.Action) + " " + device)
	}
}

// devicePath prefers DEVNAME and falls back to the last DEVPATH element.
func devicePath(env map[string]string) string {
	name := env["DEVNAME"]
	if name == "" {
		if devpath := env["DEVPATH"]; devpath != "" {
			name = path.Base(devpath)
		}
	}
	if name == "" || name == "." || name == "/" {
		return ""
	}
	if !strings.HasPrefix(name, "/") {
		name = "/dev/" + name
	}
	return name
}
