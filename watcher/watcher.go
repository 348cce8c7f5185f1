package watcher

import (
	"context"
	"log"
	"os"

	"github.com/fsnotify/fsnotify"
)

// WatchGraphRoot watches root for filesystem events and invokes onChange
// (typically graphinfo.Updater.UpdateInfo) immediately on any
// Write/Create/Remove event, so the cache is kept fresh between scheduled
// sweeps rather than only on a fixed cadence. It blocks until ctx is
// cancelled or the watcher fails to start, returning the latter error.
func WatchGraphRoot(ctx context.Context, root string, onChange func(context.Context) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger := log.New(os.Stderr, "watcher: ", log.LstdFlags)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			if err := onChange(ctx); err != nil {
				logger.Printf("out-of-cadence update after %s on %s: %v", event.Op, event.Name, err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Printf("fsnotify error: %v", err)
		}
	}
}
