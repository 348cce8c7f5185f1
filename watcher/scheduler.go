// Package watcher drives the periodic and filesystem-event-triggered
// refresh of the graph info cache, and the cleanup of malformed or
// uninteresting graph files.
package watcher

import (
	"context"
	"log"
	"os"
	"time"
)

// RunScheduled ticks every interval, awaiting each fn in registration order
// on every tick. A single fn's error is logged, not propagated or retried
// early: it does not stop the remaining fns in that tick, nor the
// scheduler itself. RunScheduled returns when ctx is cancelled.
func RunScheduled(ctx context.Context, interval time.Duration, fns ...func(context.Context) error) {
	logger := log.New(os.Stderr, "watcher: ", log.LstdFlags)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, fn := range fns {
				if err := fn(ctx); err != nil {
					logger.Printf("scheduled task failed: %v", err)
				}
			}
		}
	}
}
