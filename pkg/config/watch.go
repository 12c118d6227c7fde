package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay collapses the burst of events an editor produces when saving.
const reloadDelay = 250 * time.Millisecond

// Watch reloads the configuration at path each time the file changes and sends the result on the
// returned channel. Files that fail to load are logged and skipped. Removing the file yields the
// defaults, as Load does.
//
// The directory of path must exist. The channel is closed once ctx is done.
func Watch(ctx context.Context, path string, logger *log.Logger) (<-chan *Config, error) {
	if logger == nil {
		logger = log.Default()
	}

	path = filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors replace the file instead of writing to it, watching the directory catches both.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	reloaded := make(chan *Config, 1)
	go func() {
		defer close(reloaded)
		defer watcher.Close()

		var reload <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path || event.Op == fsnotify.Chmod {
					continue
				}
				reload = time.After(reloadDelay)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("Config watcher error: %v", err)
			case <-reload:
				reload = nil

				cfg, err := Load(path)
				if err != nil {
					logger.Printf("Ignoring config change: %v", err)
					continue
				}

				select {
				case reloaded <- cfg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return reloaded, nil
}
