// Package queue implements the bounded Task Queue sitting in front of the
// crawler engine: admission, FIFO ordering, in-flight concurrency bounds and
// graceful shutdown.
package queue

import (
	"fmt"
	"net/url"
	"time"

	"github.com/antsinar/crawlerapi/codec"
)

// CrawlTask is an immutable request to crawl a single origin. Identity is by
// normalized origin (scheme+host), so two tasks naming the same origin are
// duplicates regardless of path or query string on the submitted URL.
//
// CrawlDepth and RequestLimit override the crawler engine's configured
// Settings for this task only (§3: "crawl_depth, request_limit" are
// per-task fields). CrawlDepth < 0 and RequestLimit <= 0 both mean "inherit
// the engine's default" — a negative sentinel is required for CrawlDepth
// since 0 is itself a meaningful, distinct value (§8: "max_depth = 0 ->
// graph has exactly one node").
type CrawlTask struct {
	URL          string
	CompressorID codec.ID
	CrawlDepth   int
	RequestLimit int
	EnqueuedAt   time.Time
}

// DefaultCrawlDepth is the CrawlDepth sentinel meaning "use the crawler
// engine's configured Settings.MaxDepth".
const DefaultCrawlDepth = -1

// Origin returns the normalized scheme://host identity used for duplicate
// detection and in completion events. The graph file itself is named after
// the URL's host alone.
func (t CrawlTask) Origin() (string, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return "", fmt.Errorf("queue: parse task url %q: %w", t.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("queue: task url %q missing scheme or host", t.URL)
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}
