package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and calls onChange with the newly loaded Config each
// time the file changes in a way that affects the hub. It blocks until ctx
// is cancelled.
//
// A reload that fails to parse or validate keeps the previous config active.
// A reload that parses to an identical config is skipped, so editors that
// touch the file without changing it do not churn the hub's secret.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	last, err := Load(path)
	if err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves show up as Create after a rename, plain saves as
			// Write. Everything else (chmod, remove of a temp file) is noise.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// The inode may have been replaced by an atomic save.
			_ = watcher.Add(path)

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			if cfg.Hub == last.Hub {
				continue
			}

			slog.Info("config: reloaded",
				"path", path,
				"password_rotated", cfg.Hub.Password != last.Hub.Password,
			)
			last = cfg
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
