package prompt

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the contract file whenever it changes, until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are picked up too. It is a no-op for the embedded contracts.
func (c *Compiler) Watch(ctx context.Context) error {
	if c.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create contract watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("watch %s: %w", c.path, err)
	}
	c.logger.Info("watching contract", "path", c.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			c.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("contract watcher error", "error", err)
		}
	}
}

// handleEvent reloads the contract when ev touches it and reports whether a
// reload was attempted.
func (c *Compiler) handleEvent(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(c.path) {
		return false
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}

	if err := c.Reload(); err != nil {
		c.logger.Error("contract rejected, keeping previous version", "path", c.path, "error", err)
		return true
	}
	c.logger.Info("contract reloaded", "path", c.path)
	return true
}
