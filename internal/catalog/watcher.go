package catalog

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events a rename-into-place produces.
const watchDebounce = 500 * time.Millisecond

// Watch reloads the snapshot when the on-disk data file is replaced by
// another process (a separate refresh run, or a manual download). Blocks
// until ctx is done.
func (c *Catalog) Watch(ctx context.Context) (err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	// Watch the directory, not the file: rename-into-place replaces the
	// inode, which would silently detach a file-level watch.
	if err := watcher.Add(c.dataDir); err != nil {
		return fmt.Errorf("failed to watch data directory: %w", err)
	}

	var pending *time.Timer
	var pendingC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != DataFileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			if pending == nil {
				pending = time.NewTimer(watchDebounce)
				pendingC = pending.C
			} else {
				pending.Reset(watchDebounce)
			}

		case <-pendingC:
			pending = nil
			pendingC = nil
			if err := c.Reload(); err != nil {
				log.Printf("[Catalog] Watcher reload failed: %v", err)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[Catalog] Watcher error: %v", watchErr)
		}
	}
}
