package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prodline/prodline/pkg/telemetry"
)

// Watcher watches a configuration file and triggers a reload callback on
// change. Its main use is live log-level changes without a restart.
type Watcher struct {
	path    string
	log     *telemetry.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given configuration file.
func NewWatcher(path string, log *telemetry.Logger) *Watcher {
	return &Watcher{
		path: path,
		log:  log.NewComponentLogger("config-watcher"),
	}
}

// Watch starts watching the configuration file. On every change the file is
// reloaded and passed to onChange. Watch returns immediately; processing
// stops when the context is cancelled.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go w.processEvents(ctx, onChange)

	w.log.WithField("path", w.path).Info("Watching configuration file")
	return nil
}

// processEvents debounces file system events and triggers reloads.
func (w *Watcher) processEvents(ctx context.Context, onChange func(*Config)) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.log.WithField("op", event.Op.String()).Debug("Configuration file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				cfg, err := Load(w.path)
				if err != nil {
					w.log.WithError(err).Error("Failed to reload configuration")
					return
				}
				onChange(cfg)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("Configuration watcher error")
		}
	}
}
