package queue

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/antsinar/crawlerapi/crawler"
	"github.com/antsinar/crawlerapi/messaging"
)

// Status is the synchronous admission verdict returned by Enqueue.
type Status int

const (
	Accepted Status = iota
	RejectedDuplicate
	RejectedFull
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case RejectedDuplicate:
		return "rejected_duplicate"
	case RejectedFull:
		return "rejected_full"
	default:
		return "unknown"
	}
}

const defaultGracePeriod = 30 * time.Second

// pendingBufferSize bounds the FIFO of admitted-but-not-yet-dispatched
// tasks. It is deliberately decoupled from capacity: capacity is "Task
// Queue capacity" per the Glossary, the maximum number of *concurrent
// crawls*, not the maximum number of tasks that may be waiting their turn.
// spec.md §8's literal scenario 6 requires a second distinct-host task to
// be accepted-and-queued even with capacity=1, so the pending buffer must
// be far larger than any realistic capacity.
const pendingBufferSize = 1024

// Queue is the bounded admission point in front of the crawler engine. A
// buffered channel of pendingBufferSize bounds pending tasks; a
// semaphore.Weighted sized capacity bounds tasks actually in flight, so
// "in-flight task count <= queue capacity" holds independent of how fast
// Run drains the channel.
type Queue struct {
	capacity int
	pending  chan CrawlTask
	sem      *semaphore.Weighted

	mu       sync.Mutex
	inflight map[string]struct{}

	crawler     *crawler.WebCrawler
	graphRoot   string
	producer    messaging.Producer
	logger      *log.Logger
	GracePeriod time.Duration
}

// New constructs a Queue of the given capacity, driving crawls with engine
// and persisting graphs under graphRoot. producer may be nil; when set, a
// completion event is produced for every finished task.
func New(capacity int, engine *crawler.WebCrawler, graphRoot string, producer messaging.Producer) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		capacity:    capacity,
		pending:     make(chan CrawlTask, pendingBufferSize),
		sem:         semaphore.NewWeighted(int64(capacity)),
		inflight:    make(map[string]struct{}),
		crawler:     engine,
		graphRoot:   graphRoot,
		producer:    producer,
		logger:      log.New(os.Stderr, "queue: ", log.LstdFlags),
		GracePeriod: defaultGracePeriod,
	}
}

// Enqueue admits t synchronously. It returns RejectedDuplicate when an
// origin already equal to t's is pending or in flight, RejectedFull when the
// channel buffer is saturated, and Accepted otherwise.
func (q *Queue) Enqueue(t CrawlTask) (Status, error) {
	origin, err := t.Origin()
	if err != nil {
		return RejectedFull, err
	}

	q.mu.Lock()
	if _, ok := q.inflight[origin]; ok {
		q.mu.Unlock()
		return RejectedDuplicate, nil
	}

	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}

	select {
	case q.pending <- t:
		q.inflight[origin] = struct{}{}
		q.mu.Unlock()
		return Accepted, nil
	default:
		q.mu.Unlock()
		return RejectedFull, nil
	}
}

// Run is the infinite background admission loop. It stops accepting new
// work as soon as ctx is cancelled and waits up to GracePeriod for in-flight
// crawls to finish. If they all finish in time it returns the errgroup's
// result (nil, since task failures are not propagated); otherwise it
// abandons whatever remains and returns ctx.Err().
func (q *Queue) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for {
		select {
		case <-ctx.Done():
			done := make(chan error, 1)
			go func() { done <- g.Wait() }()
			select {
			case err := <-done:
				return err
			case <-time.After(q.GracePeriod):
				q.logger.Printf("grace period of %s elapsed, abandoning in-flight tasks", q.GracePeriod)
				return ctx.Err()
			}
		case t := <-q.pending:
			task := t
			if err := q.sem.Acquire(gctx, 1); err != nil {
				q.release(task)
				continue
			}
			g.Go(func() error {
				defer q.sem.Release(1)
				defer q.release(task)
				q.runTask(gctx, task)
				return nil
			})
		}
	}
}

// release removes task's origin from the in-flight set, making the origin
// eligible for re-enqueueing.
func (q *Queue) release(t CrawlTask) {
	origin, err := t.Origin()
	if err != nil {
		return
	}
	q.mu.Lock()
	delete(q.inflight, origin)
	q.mu.Unlock()
}

// completionEvent is the payload produced to q.producer after a task
// finishes, win or lose.
type completionEvent struct {
	Origin     string `json:"origin"`
	GraphPath  string `json:"graph_path,omitempty"`
	Error      string `json:"error,omitempty"`
	FinishedAt string `json:"finished_at"`
}

// runTask drives a single crawl end to end: pre-crawl HEAD check, graph
// build, compression, and completion notification. Errors are logged and
// reported on the completion event rather than propagated, since one failed
// task must never abort the queue's admission loop.
func (q *Queue) runTask(ctx context.Context, t CrawlTask) {
	origin, err := t.Origin()
	if err != nil {
		q.logger.Printf("task %s: %v", t.URL, err)
		return
	}

	startURL, err := url.Parse(t.URL)
	if err != nil {
		q.logger.Printf("task %s: %v", t.URL, err)
		q.notify(completionEvent{Origin: origin, Error: err.Error(), FinishedAt: time.Now().Format(time.RFC3339)})
		return
	}

	ok, client, release := q.crawler.PreCrawlSetup(startURL)
	defer release()
	if !ok {
		q.logger.Printf("task %s: pre-crawl setup failed, aborting", origin)
		q.notify(completionEvent{Origin: origin, Error: "pre-crawl setup failed", FinishedAt: time.Now().Format(time.RFC3339)})
		return
	}

	graph, err := q.crawler.BuildGraph(ctx, startURL, client, t.CrawlDepth, t.RequestLimit)
	if err != nil {
		q.logger.Printf("task %s: %v", origin, err)
		q.notify(completionEvent{Origin: origin, Error: err.Error(), FinishedAt: time.Now().Format(time.RFC3339)})
		return
	}

	path, err := q.crawler.CompressGraph(q.graphRoot, startURL.Host, t.CompressorID, graph)
	if err != nil {
		q.logger.Printf("task %s: %v", origin, err)
		q.notify(completionEvent{Origin: origin, Error: err.Error(), FinishedAt: time.Now().Format(time.RFC3339)})
		return
	}

	q.notify(completionEvent{Origin: origin, GraphPath: path, FinishedAt: time.Now().Format(time.RFC3339)})
}

// notify serializes ev and produces it if a Producer was configured.
// Marshal/produce errors are logged, never propagated: a broken event bus
// must not fail the crawl that already completed.
func (q *Queue) notify(ev completionEvent) {
	if q.producer == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		q.logger.Printf("marshal completion event for %s: %v", ev.Origin, err)
		return
	}
	if err := q.producer.Produce(payload); err != nil {
		q.logger.Printf("produce completion event for %s: %v", ev.Origin, err)
	}
}

// Len reports the number of tasks currently pending (queued, not yet
// dispatched to a worker).
func (q *Queue) Len() int {
	return len(q.pending)
}
