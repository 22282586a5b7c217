package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces the burst of events editors emit on save.
const DefaultReloadDebounce = 250 * time.Millisecond

// Watch reloads the configuration file at path whenever it changes and
// passes each successfully validated result to onChange. Invalid files are
// logged and skipped. Watch blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file so that editors which
// replace the file through a rename keep triggering reloads.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "path", absPath, "error", err)

		case <-timer.C:
			cfg, err := Load(absPath)
			if err != nil {
				slog.Warn("config reload rejected", "path", absPath, "error", err)
				continue
			}
			slog.Info("config reloaded", "path", absPath)
			onChange(cfg)
		}
	}
}
