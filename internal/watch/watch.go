// Package watch turns a directory into a segmentation inbox: volumes that
// appear in it are handed to a callback once they stop growing.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/brainseg/internal/ctxlog"
)

// DefaultSettle is how long a file must stay quiet before it is treated as
// fully written. Scanners and network copies deliver volumes in bursts of
// write events.
const DefaultSettle = 2 * time.Second

// Watcher observes one directory and invokes Handle for every matching file
// that settles.
type Watcher struct {
	Dir    string
	Settle time.Duration // defaults to DefaultSettle

	// Match filters paths before they are tracked. Nil matches everything.
	Match func(path string) bool
	// Handle processes one settled file. Errors are logged, not fatal; the
	// watch keeps running.
	Handle func(ctx context.Context, path string) error
}

// Run watches until ctx is cancelled. It returns the watcher setup error, if
// any; cancellation itself returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	settle := w.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.Dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.Dir, err)
	}
	logger.Info("Watching directory for incoming volumes.", "dir", w.Dir, "settle", settle)

	// One timer per in-flight path, reset on every write event. Firing sends
	// the path back on the settled channel so Handle runs on this goroutine.
	timers := make(map[string]*time.Timer)
	settled := make(chan string)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping directory watch.")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			path := filepath.Clean(event.Name)
			if w.Match != nil && !w.Match(path) {
				continue
			}
			if t, ok := timers[path]; ok {
				t.Reset(settle)
				continue
			}
			logger.Debug("Tracking new file.", "path", path)
			timers[path] = time.AfterFunc(settle, func() {
				select {
				case settled <- path:
				case <-ctx.Done():
				}
			})

		case path := <-settled:
			delete(timers, path)
			logger.Info("File settled.", "path", path)
			if err := w.Handle(ctx, path); err != nil {
				logger.Error("Failed to process file.", "path", path, "error", err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("Filesystem watcher error.", "error", err)
		}
	}
}
