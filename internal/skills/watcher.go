package skills

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 2 * time.Second

// Watch reloads the registry when files under any skill root change.
// Events are debounced so a burst of editor writes triggers one reload.
// Blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, rt := range r.roots {
		if err := watcher.Add(rt.dir); err != nil {
			r.log.Warn("cannot watch skill root", "dir", rt.dir, "error", err)
		}
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				fire = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("skill watcher error", "error", err)
		case <-fire:
			timer = nil
			fire = nil
			if err := r.Load(); err != nil {
				r.log.Error("skill reload failed", "error", err)
			}
		}
	}
}
