// Package crawler containing the crawling logics and utilities to scrape
// remote resources on the web
package crawler

import (
	"context"
	"errors"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/antsinar/crawlerapi/codec"
	"github.com/antsinar/crawlerapi/crawler/fetcher"
)

const (
	// Default fetcher timeout before giving up an URL
	defaultFetchTimeout time.Duration = 10 * time.Second
	// Default politeness delay, fixed delay to calculate a randomized wait
	// time for subsequent HTTP calls to a domain
	defaultPolitenessDelay time.Duration = 500 * time.Millisecond
	// Default depth to crawl for each domain
	defaultMaxDepth int = 16
	// Default number of concurrent in-flight fetches per crawl task
	defaultRequestLimit int = 8
)

// Settings represents general settings for a single crawl task and its
// dependencies.
type Settings struct {
	// FetchTimeout is the time to wait before closing a connection that
	// does not respond
	FetchTimeout time.Duration
	// MaxDepth bounds the number of fetch hops from start_url (§3, §8:
	// "no node is reached through a path longer than max_depth fetches").
	// 0 means only the start URL is fetched.
	MaxDepth int
	// RequestLimit bounds the number of in-flight fetches for this task
	// (the per-task semaphore of §4.3/§5).
	RequestLimit int
	// UserAgent is sent as the User-Agent header and used to select the
	// matching robots.txt rule group.
	UserAgent string
	// PolitenessFixedDelay is the delay floor used when no robots.txt
	// Crawl-delay is present, §4.3/crawlingrules.go.
	PolitenessFixedDelay time.Duration
	// ExclusionSuffixes suppresses fetching (not node admission) of any URL
	// whose path ends with one of these suffixes, §3/§8.
	ExclusionSuffixes []string
	// HTTP2 toggles HTTP/2 negotiation on the scoped client (§4.1).
	HTTP2 bool
}

// DefaultSettings returns the crawler's baseline configuration.
func DefaultSettings() Settings {
	return Settings{
		FetchTimeout:         defaultFetchTimeout,
		MaxDepth:             defaultMaxDepth,
		RequestLimit:         defaultRequestLimit,
		UserAgent:            fetcher.DefaultUserAgent,
		PolitenessFixedDelay: defaultPolitenessDelay,
		ExclusionSuffixes:    DefaultExclusionSuffixes,
		HTTP2:                true,
	}
}

// WebCrawler is the main object representing a single-domain crawl engine.
// It is stateless between calls to BuildGraph: all per-crawl state (visited
// set, robots policy, graph) is scoped to a single BuildGraph invocation, so
// one WebCrawler can safely be reused to drive many sequential or
// concurrent crawl tasks (§5: "the Graph is exclusively owned by its crawl
// task").
type WebCrawler struct {
	logger   *log.Logger
	parser   fetcher.Parser
	settings Settings
}

// New creates a new WebCrawler with the given settings, defaulting a zero
// FetchTimeout, PolitenessFixedDelay or UserAgent, a RequestLimit <= 0 and a
// nil ExclusionSuffixes to DefaultSettings. MaxDepth and HTTP2 are taken as
// given: a zero MaxDepth crawls only the start URL, and a false HTTP2
// disables HTTP/2.
func New(settings Settings) *WebCrawler {
	defaults := DefaultSettings()
	if settings.FetchTimeout == 0 {
		settings.FetchTimeout = defaults.FetchTimeout
	}
	if settings.RequestLimit <= 0 {
		settings.RequestLimit = defaults.RequestLimit
	}
	if settings.UserAgent == "" {
		settings.UserAgent = defaults.UserAgent
	}
	if settings.PolitenessFixedDelay == 0 {
		settings.PolitenessFixedDelay = defaults.PolitenessFixedDelay
	}
	if settings.ExclusionSuffixes == nil {
		settings.ExclusionSuffixes = defaults.ExclusionSuffixes
	}
	parser := fetcher.NewGoqueryParser()
	return &WebCrawler{
		logger:   log.New(os.Stderr, "crawler: ", log.LstdFlags),
		parser:   parser,
		settings: settings,
	}
}

// frontierEntry is one pending worklist item: a discovered URL and the
// depth (number of fetch hops from start_url) at which it was discovered.
type frontierEntry struct {
	url   *url.URL
	depth int
}

// outcomeKind classifies a per-URL fetch failure for the grouped-by-kind
// summary logged at task end (Design Notes §9 "Exception groups").
type outcomeKind string

const (
	outcomeOK           outcomeKind = "ok"
	outcomeTransient    outcomeKind = "transient"
	outcomeHTTPStatus   outcomeKind = "http_status"
	outcomeParseError   outcomeKind = "parse_error"
	outcomeRobotsDenied outcomeKind = "robots_denied"
	outcomeExcluded     outcomeKind = "excluded"
)

// fetchOutcome is what a single frontier-entry expansion reports back to
// the driver loop.
type fetchOutcome struct {
	url   string
	kind  outcomeKind
	links []frontierEntry
}

// PreCrawlSetup issues a HEAD request against start_url. It returns false
// (caller should skip the crawl entirely) on any HTTP error status or
// transport failure, per §4.3 and §8's boundary behavior ("Start URL
// returns non-2xx -> no file written, task reports abort"). On success it
// returns the acquired scoped client and a release function the caller
// must defer.
func (c *WebCrawler) PreCrawlSetup(startURL *url.URL) (bool, *fetcher.Client, func()) {
	opts := fetcher.DefaultOptions()
	opts.UserAgent = c.settings.UserAgent
	opts.Timeout = c.settings.FetchTimeout
	opts.HTTP2 = c.settings.HTTP2

	client, release := fetcher.Acquire(startURL, c.parser, opts)
	if !client.PreCrawlSetup(startURL.String()) {
		release()
		return false, nil, func() {}
	}
	return true, client, release
}

// BuildGraph traverses same-origin links reachable from startURL up to
// maxDepth, bounded in flight by a semaphore sized requestLimit, and
// accumulates the result into a Graph (§4.3). maxDepth and requestLimit
// come from the originating CrawlTask (§3); a negative maxDepth or a
// requestLimit <= 0 falls back to the engine's configured Settings, so a
// task that does not override them inherits the shared defaults while
// still allowing an explicit max_depth=0 (§8: "graph has exactly one
// node") to be honored verbatim. The traversal is iterative (an explicit
// worklist, not recursion, per Design Notes §9) and opportunistic: a
// greedy/eager expansion under the depth cap, with first-found processed
// first.
func (c *WebCrawler) BuildGraph(ctx context.Context, startURL *url.URL, client *fetcher.Client, maxDepth, requestLimit int) (*Graph, error) {
	if maxDepth < 0 {
		maxDepth = c.settings.MaxDepth
	}
	if requestLimit <= 0 {
		requestLimit = c.settings.RequestLimit
	}

	graph := NewGraph()
	visited := newMemoryCache()
	const ns = "visited"

	policy := NewRobotsPolicy(startURL, c.settings.PolitenessFixedDelay)
	if policy.Fetch(client, c.settings.UserAgent, startURL) {
		c.logger.Printf("found a valid %s/robots.txt", startURL.Host)
	} else {
		c.logger.Printf("no valid %s/robots.txt found, crawling permissively", startURL.Host)
	}

	frontier := []frontierEntry{{url: startURL, depth: 0}}
	sem := make(chan struct{}, requestLimit)
	results := make(chan fetchOutcome)
	pending := 0
	tally := make(map[outcomeKind]int)

	dispatch := func(entry frontierEntry) {
		pending++
		go func(entry frontierEntry) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- fetchOutcome{url: entry.url.String(), kind: outcomeTransient}
				return
			}
			defer func() { <-sem }()
			results <- c.expand(ctx, startURL, client, policy, entry)
		}(entry)
	}

	for len(frontier) > 0 || pending > 0 {
		for len(frontier) > 0 {
			entry := frontier[0]
			frontier = frontier[1:]

			if entry.depth > maxDepth {
				continue
			}
			if visited.Contains(ns, entry.url.String()) {
				continue
			}
			visited.Set(ns, entry.url.String())
			graph.AddNode(entry.url.String())

			dispatch(entry)
		}

		if pending == 0 {
			break
		}

		select {
		case out := <-results:
			pending--
			tally[out.kind]++
			if out.kind == outcomeOK {
				for _, next := range out.links {
					if next.depth <= maxDepth {
						graph.AddEdge(out.url, next.url.String())
						frontier = append(frontier, next)
					}
				}
			}
		case <-ctx.Done():
			pending--
			tally[outcomeTransient]++
		}
	}

	c.logReport(startURL.Host, tally)
	return graph, nil
}

// expand fetches a single frontier entry, classifying the outcome and
// returning the discovered same-origin children. It never returns an
// error: per §7/§4.3, transient and protocol failures prune the subtree
// rooted at entry and let the task continue.
func (c *WebCrawler) expand(ctx context.Context, startURL *url.URL, client *fetcher.Client, policy *RobotsPolicy, entry frontierEntry) fetchOutcome {
	target := entry.url.String()

	if excluded(entry.url.Path, c.settings.ExclusionSuffixes) {
		// The node already exists in the graph (added before this check);
		// it simply stays a leaf. §4.3 step 2, §8 "Exclusion" invariant.
		return fetchOutcome{url: target, kind: outcomeExcluded}
	}

	elapsed, links, err := client.FetchLinks(target)
	policy.UpdateLastDelay(elapsed)
	time.Sleep(policy.CrawlDelay())

	if err != nil {
		c.logger.Println(err)
		return fetchOutcome{url: target, kind: classifyError(err)}
	}

	// §4.3 step 3: robots-disallow suppresses extraction, checked after
	// fetch (kept as-is, see DESIGN.md Open Question decisions).
	if !policy.Allowed(entry.url) {
		return fetchOutcome{url: target, kind: outcomeRobotsDenied}
	}

	children := make([]frontierEntry, 0, len(links))
	for _, link := range links {
		if !sameOrigin(startURL, link) {
			continue
		}
		children = append(children, frontierEntry{url: link, depth: entry.depth + 1})
	}
	return fetchOutcome{url: target, kind: outcomeOK, links: children}
}

// classifyError buckets a fetch error into one of the grouped kinds logged
// at task end, branching on the sentinel errors fetcher.FetchLinks wraps
// its failures with rather than matching message text.
func classifyError(err error) outcomeKind {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, fetcher.ErrHTTPStatus), errors.Is(err, fetcher.ErrNonHTML):
		return outcomeHTTPStatus
	case errors.Is(err, fetcher.ErrParse):
		return outcomeParseError
	default:
		return outcomeTransient
	}
}

// logReport logs one grouped summary line per failure kind observed during
// a crawl task, per Design Notes §9 "Exception groups".
func (c *WebCrawler) logReport(host string, tally map[outcomeKind]int) {
	for kind, count := range tally {
		if kind == outcomeOK || count == 0 {
			continue
		}
		c.logger.Printf("%s: %d URLs ended in %s", host, count, kind)
	}
}

// CompressGraph persists g to disk under root using the given compressor,
// skipping the write entirely when the graph has at most one node (§4.3,
// §8: "Site with <=1 linkable page -> compression skipped, no file
// written").
func (c *WebCrawler) CompressGraph(root, host string, compressor codec.ID, g *Graph) (string, error) {
	if g.NodeCount() <= 1 {
		c.logger.Printf("%s: graph has %d node(s), skipping persistence", host, g.NodeCount())
		return "", nil
	}
	path, err := codec.Write(root, host, compressor, g)
	if err != nil {
		return "", err
	}
	c.logger.Printf("%s: wrote %s (%s)", host, path, codec.FileSizeHuman(path))
	return path, nil
}
