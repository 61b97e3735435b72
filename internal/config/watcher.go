package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration file when it changes on disk and hands
// each valid result to the callback. Invalid edits are logged and skipped;
// the running configuration is never replaced by a broken one.
type Watcher struct {
	path     string
	log      *slog.Logger
	onReload func(*Config)
	debounce time.Duration
}

// NewWatcher creates a watcher for the given config path.
func NewWatcher(path string, log *slog.Logger, onReload func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		log:      log,
		onReload: onReload,
		debounce: 250 * time.Millisecond,
	}
}

// Run watches until the context is cancelled. Editors replace rather than
// rewrite config files, so the parent directory is watched and events are
// filtered by name; a short debounce coalesces the write burst of a save.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watch error", "error", err)
		case <-fire:
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn("ignoring invalid config change", "path", w.path, "error", err)
				continue
			}
			w.log.Info("configuration reloaded", "path", w.path)
			w.onReload(cfg)
		}
	}
}
