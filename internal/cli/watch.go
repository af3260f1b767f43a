package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"docqa/internal/logger"
)

const watchDebounce = 300 * time.Millisecond

// isReloadEvent reports whether ev means target now has new content.
// Editors that save through a temp file produce Create on the target.
func isReloadEvent(ev fsnotify.Event, target string) bool {
	if filepath.Clean(ev.Name) != target {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}

// watchFile calls onChange after path is modified, coalescing bursts of events
// within debounce. It watches the parent directory so atomic saves are seen.
// The watcher stops when ctx is done.
func watchFile(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	go func() {
		defer w.Close()
		timer := time.NewTimer(debounce)
		timer.Stop()
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if isReloadEvent(ev, target) {
					logger.Debug("file event %s", ev)
					timer.Reset(debounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("watch %s: %v", target, err)
			case <-timer.C:
				onChange()
			}
		}
	}()
	return nil
}
