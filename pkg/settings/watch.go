package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/offlinefirst/scrollzoom/pkg/config"
)

// ReloadDelay coalesces the burst of writes editors produce on save.
const ReloadDelay = 100 * time.Millisecond

// LoadFile reads the configuration file at path into Values.
func LoadFile(path string) (Values, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return Values{}, err
	}
	return Load(cfg)
}

// Watch re-reads path with load whenever the file changes and replaces the
// store's values, until ctx is done. The parent directory is watched so
// atomic renames by editors are seen. A failing reload keeps the previous
// values.
func (s *Store) Watch(ctx context.Context, path string, load func(string) (Values, error)) error {
	if load == nil {
		load = LoadFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				pending = time.After(ReloadDelay)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("config watcher error", "error", err)
			case <-pending:
				pending = nil
				v, err := load(abs)
				if err != nil {
					s.logger.Warn("config reload failed; keeping previous settings", "path", abs, "error", err)
					continue
				}
				s.Replace(v)
			}
		}
	}()
	return nil
}
