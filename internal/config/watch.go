package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config whenever the file changes on disk, so toggles
// edited externally (or by another pilot process) take effect at the next
// turn boundary. The watcher goroutine exits when ctx is cancelled. Reload
// failures are reported through onErr and the previous snapshot stays live.
func Watch(ctx context.Context, cfg *Config, onErr func(error)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	// Watch the parent directory: editors replace the file on save, which
	// drops a watch registered on the file itself.
	dir := filepath.Dir(cfg.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != cfg.Path() {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := cfg.Reload(); err != nil && onErr != nil {
					onErr(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if err != nil && onErr != nil {
					onErr(err)
				}
			}
		}
	}()

	stop := func() {
		_ = watcher.Close()
		<-done
	}
	return stop, nil
}
