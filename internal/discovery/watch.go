package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn whenever definition files under dir are created, written,
// removed or renamed. Bursts of events are coalesced: fn runs once the
// directory has been quiet for the debounce period. fn runs on the calling
// goroutine, so a slow fn delays the next rescan rather than overlapping it.
//
// Watch blocks until ctx is cancelled and then returns nil.
func (d *Discoverer) Watch(ctx context.Context, dir string, fn func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	d.logger.Info("watching definitions", "dir", dir, "debounce", d.debounce)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						d.logger.Warn("watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			if !IsDefinitionFile(event.Name) {
				continue
			}
			if !(event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) ||
				event.Has(fsnotify.Rename)) {
				continue
			}
			d.logger.Debug("definition changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(d.debounce)
			} else {
				timer.Reset(d.debounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("watcher error", "error", err)

		case <-fire:
			fire = nil
			fn(ctx)
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
