package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the seed file whenever it changes on disk, until ctx is
// done. Editors often replace the file rather than write in place, so the
// watch is on the directory and events are filtered by name.
func (b *Base) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()

		// Coalesce bursts of events into one reload.
		var timer *time.Timer
		reload := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(500*time.Millisecond, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				b.logger.Warn("seed watcher error", "error", err)
			case <-reload:
				added, err := b.LoadSeed(ctx, path)
				if err != nil {
					b.logger.Warn("seed reload failed", "path", path, "error", err)
					continue
				}
				if added > 0 {
					b.logger.Info("seed reloaded", "path", path, "added", added)
				}
			}
		}
	}()
	return nil
}
