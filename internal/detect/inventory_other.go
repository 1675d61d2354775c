//go:build !windows

package detect

import (
	"log/slog"

	"softdex/internal/config"
)

// NewInventory returns the desktop-entry inventory on Unix systems.
func NewInventory(cfg *config.Config, logger *slog.Logger) Detector {
	return NewDesktop(cfg.Detection.DesktopDirs, logger)
}
