package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"fluidsim/core"
)

// Watch reloads path whenever it is written or replaced and passes the new
// settings to onChange. Files that fail to load or validate are logged and
// skipped. The parent directory is watched so editors that save by rename
// are seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", path)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}
	core.Logger().Info("watching settings", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s, err := Load(abs)
			if err != nil {
				core.Logger().Warn("settings reload rejected", "path", abs, "err", err)
				continue
			}
			core.Logger().Info("settings reloaded", "path", abs)
			onChange(s)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			core.Logger().Warn("settings watcher error", "err", err)
		}
	}
}
