package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"softdex/internal/logging"
)

// manifestWatcher requests a rescan when a platform manifest folder changes.
type manifestWatcher struct {
	dirs   []string
	logger *slog.Logger
	notify func(reason string)

	mu       sync.Mutex
	watching []string
}

func newManifestWatcher(dirs []string, logger *slog.Logger, notify func(reason string)) *manifestWatcher {
	return &manifestWatcher{
		dirs:   dirs,
		logger: logging.NewComponentLogger(logger, "manifest-watcher"),
		notify: notify,
	}
}

// Watching returns the folders currently watched.
func (w *manifestWatcher) Watching() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.watching)
}

// run watches every existing folder until ctx is cancelled. Missing folders
// and a watcher that cannot be created are logged and tolerated.
func (w *manifestWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("failed to create filesystem watcher",
			logging.Error(err),
			logging.String(logging.FieldEventType, "manifest_watch_failed"),
			logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_instances"),
			logging.String(logging.FieldImpact, "installs are picked up on the scan interval only"),
		)
		return nil
	}
	defer watcher.Close()

	for _, dir := range w.dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			w.logger.Debug("manifest folder not present; skipping", logging.String("dir", dir))
			continue
		}
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn("failed to watch manifest folder",
				logging.String("dir", dir),
				logging.Error(err),
				logging.String(logging.FieldEventType, "manifest_watch_failed"),
				logging.String(logging.FieldErrorHint, "check folder permissions"),
				logging.String(logging.FieldImpact, "changes in this folder wait for the next scheduled scan"),
			)
			continue
		}
		w.mu.Lock()
		w.watching = append(w.watching, dir)
		w.mu.Unlock()
	}
	defer func() {
		w.mu.Lock()
		w.watching = nil
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			w.logger.Debug("manifest folder changed",
				logging.String("path", event.Name),
				logging.String("op", event.Op.String()),
			)
			if w.notify != nil {
				w.notify("watch " + event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "manifest_watch_error"),
				logging.String(logging.FieldErrorHint, "check inotify limits"),
				logging.String(logging.FieldImpact, "some install changes may be missed until the next scan"),
			)
		}
	}
}

// relevantEvent keeps entry creation, removal and renames, plus writes to the
// manifest formats the detectors read.
func relevantEvent(event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return true
	}
	if !event.Has(fsnotify.Write) {
		return false
	}
	switch strings.ToLower(filepath.Ext(event.Name)) {
	case ".acf", ".vdf", ".item", ".desktop", ".info":
		return true
	}
	return false
}
