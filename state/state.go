// Package state wires the crawler engine, task queue, graph info cache and
// background scheduler into a single process-lifetime object, and owns the
// graceful shutdown sequence on SIGINT/SIGTERM.
package state

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/antsinar/crawlerapi/codec"
	"github.com/antsinar/crawlerapi/crawler"
	"github.com/antsinar/crawlerapi/graphinfo"
	"github.com/antsinar/crawlerapi/messaging"
	"github.com/antsinar/crawlerapi/queue"
	"github.com/antsinar/crawlerapi/watcher"
)

// Config configures State construction. Zero-valued fields fall back to the
// same defaults crawler.DefaultSettings/queue.New already apply.
type Config struct {
	Env              string
	GraphRoot        string
	Compressor       codec.ID
	QueueCapacity    int
	CrawlSettings    crawler.Settings
	ScheduleInterval time.Duration
	ShutdownGrace    time.Duration
}

const defaultScheduleInterval = 5 * time.Minute
const defaultShutdownGrace = 30 * time.Second

// State is the shared, process-lifetime object every request handler and
// background loop reads from.
type State struct {
	Env        string
	GraphRoot  string
	Compressor codec.ID
	Queue      *queue.Queue
	Updater    *graphinfo.Updater
	Cleaner    *watcher.Cleaner

	mu            sync.RWMutex
	activeCourses map[string]string

	stopped chan struct{}
}

// Stopped returns a channel that is closed once teardown has cancelled the
// background loops and finished waiting for the queue admission loop and
// the filesystem watcher (each wait bounded by ShutdownGrace), whether
// teardown was triggered by an OS signal or by the caller invoking the
// teardown closure returned from New. The scheduler loop is cancelled but
// not waited for. A CLI entrypoint blocks on this to know when to exit.
func (s *State) Stopped() <-chan struct{} {
	return s.stopped
}

// New constructs a State from cfg: the crawler engine, the task queue, the
// graph info updater and the cleaner, creating GraphRoot if it does not
// exist. It returns the State and a teardown closure the caller must defer;
// the closure stops the queue and watcher loops, in that order, each
// bounded by cfg.ShutdownGrace.
func New(cfg Config) (*State, func(), error) {
	if cfg.GraphRoot == "" {
		cfg.GraphRoot = "./graphs"
	}
	if cfg.Compressor == "" {
		cfg.Compressor = codec.GZIP
	}
	if cfg.ScheduleInterval == 0 {
		cfg.ScheduleInterval = defaultScheduleInterval
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	if err := os.MkdirAll(cfg.GraphRoot, 0o755); err != nil {
		return nil, func() {}, err
	}

	logger := log.New(os.Stderr, "state: ", log.LstdFlags)

	engine := crawler.New(cfg.CrawlSettings)
	events := messaging.NewChannelQueue()
	q := queue.New(cfg.QueueCapacity, engine, cfg.GraphRoot, events)
	q.GracePeriod = cfg.ShutdownGrace

	updater := graphinfo.NewUpdater(cfg.GraphRoot)
	cleaner := watcher.NewCleaner(cfg.GraphRoot)

	s := &State{
		Env:           cfg.Env,
		GraphRoot:     cfg.GraphRoot,
		Compressor:    cfg.Compressor,
		Queue:         q,
		Updater:       updater,
		Cleaner:       cleaner,
		activeCourses: make(map[string]string),
		stopped:       make(chan struct{}),
	}

	runCtx, cancelRun := context.WithCancel(context.Background())

	queueDone := make(chan error, 1)
	go func() { queueDone <- q.Run(runCtx) }()

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		_ = watcher.WatchGraphRoot(runCtx, cfg.GraphRoot, updater.UpdateInfo)
	}()

	go watcher.RunScheduled(runCtx, cfg.ScheduleInterval, updater.UpdateInfo, cleaner.Sweep)

	completions := make(chan []byte)
	go func() { _ = events.Consume(completions) }()
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case payload, ok := <-completions:
				if !ok {
					return
				}
				logger.Printf("task completed: %s", payload)
			}
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	var teardownOnce sync.Once
	teardown := func() {
		teardownOnce.Do(func() {
			signal.Stop(signalCh)
			cancelRun()
			select {
			case <-queueDone:
			case <-time.After(cfg.ShutdownGrace):
				logger.Println("queue shutdown grace period elapsed, abandoning")
			}
			select {
			case <-watcherDone:
			case <-time.After(cfg.ShutdownGrace):
				logger.Println("watcher shutdown grace period elapsed, abandoning")
			}
			close(s.stopped)
		})
	}

	go func() {
		<-signalCh
		logger.Println("shutdown signal received")
		teardown()
	}()

	return s, teardown, nil
}

// SetActiveCourse records host as the crawl target currently associated
// with sessionID, an out-of-scope consumer concern the shared state simply
// holds on behalf of callers.
func (s *State) SetActiveCourse(sessionID, host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeCourses[sessionID] = host
}

// ActiveCourse returns the host associated with sessionID, if any.
func (s *State) ActiveCourse(sessionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host, ok := s.activeCourses[sessionID]
	return host, ok
}
