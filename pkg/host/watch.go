package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ormasoftchile/rpaflow/pkg/trigger"
)

// reloadDelay coalesces the burst of events a single save produces.
const reloadDelay = 150 * time.Millisecond

// watch reloads the scheduler when the trigger file changes on disk. The
// directory is watched so that editors replacing the file are seen.
func (h *Host) watch(ctx context.Context, s *trigger.Scheduler) error {
	path, err := filepath.Abs(s.Path())
	if err != nil {
		return fmt.Errorf("watch %s: %w", s.Path(), err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	h.logger.Info("watching triggers", "path", path)

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(reloadDelay)
			reload = timer.C

		case <-reload:
			reload = nil
			if err := s.Load(); err != nil {
				h.logger.Warn("reload triggers", "path", path, "error", err)
				continue
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn("watcher error", "error", err)
		}
	}
}
