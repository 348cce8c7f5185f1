// Package crawler containing the crawling logics and utilities to scrape
// remote resources on the web
package crawler

import (
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/antsinar/crawlerapi/crawler/fetcher"
)

// Default /robots.txt path on server
const robotsTxtPath string = "/robots.txt"

// RobotsPolicy contains the rules to be obeyed during the crawling of a
// single domain: the parsed robots.txt group for user-agent "*" (permissive
// if absent or unparsable, §4.2) plus the politeness delay to respect
// between subsequent requests to that domain.
//
// One RobotsPolicy exists per crawl task; there is no cross-task sharing
// (§4.2). There are up to 3 different delays considered for each domain:
// the robots.txt Crawl-delay, a random value derived from the fixed
// configured delay, and a value derived from the last response time; the
// largest of the three is used.
type RobotsPolicy struct {
	// baseDomain represents the domain where we start the crawling process
	baseDomain *url.URL
	// temoto/robotstxt backend is used to fetch the robotsGroup from the
	// robots.txt file
	robotsGroup *robotstxt.Group
	// A fixed delay to respect on each request if no valid robots.txt is found
	fixedDelay time.Duration
	// The delay of the last request, useful to calculate a new delay for the
	// next request
	lastDelay time.Duration
	// A RWMutex makes the delay calculation threadsafe, as this struct is
	// shared among the goroutines fetching links for one crawl task.
	rwMutex sync.RWMutex
}

// NewRobotsPolicy creates a new, permissive-by-default RobotsPolicy for
// baseDomain. Call Fetch to attempt loading its robots.txt.
func NewRobotsPolicy(baseDomain *url.URL, fixedDelay time.Duration) *RobotsPolicy {
	return &RobotsPolicy{
		baseDomain: baseDomain,
		fixedDelay: fixedDelay,
	}
}

// Allowed tests whether url may be fetched under the current robots.txt
// rule group. If no valid robots.txt was found, all URLs are allowed,
// per §4.2 ("empty/permissive if fetch fails or returns non-200").
func (r *RobotsPolicy) Allowed(u *url.URL) bool {
	if r.robotsGroup == nil {
		return true
	}
	return r.robotsGroup.Test(u.RequestURI())
}

// CrawlDelay returns the delay to respect before the next request to this
// domain. It chooses the larger of three candidates:
//
//   - robots.txt Crawl-delay (0 if absent)
//   - a random value between 0.5*fixedDelay and 1.5*fixedDelay
//   - the squared duration of the last response (see UpdateLastDelay)
func (r *RobotsPolicy) CrawlDelay() time.Duration {
	r.rwMutex.RLock()
	defer r.rwMutex.RUnlock()
	var delay time.Duration
	if r.robotsGroup != nil {
		delay = r.robotsGroup.CrawlDelay
	}
	randomDelay := randDelay(int64(r.fixedDelay.Milliseconds())) * time.Millisecond
	baseDelay := time.Duration(
		math.Max(float64(randomDelay.Milliseconds()), float64(delay.Milliseconds())),
	) * time.Millisecond
	return time.Duration(
		math.Max(float64(r.lastDelay.Milliseconds()), float64(baseDelay.Milliseconds())),
	) * time.Millisecond
}

// UpdateLastDelay squares the last response time (in seconds) and stores it
// as the new floor for CrawlDelay, so that slow-responding origins are
// backed off from automatically.
func (r *RobotsPolicy) UpdateLastDelay(lastResponseTime time.Duration) {
	r.rwMutex.Lock()
	r.lastDelay = time.Duration(
		math.Pow(lastResponseTime.Seconds(), 2.0) * float64(time.Second),
	)
	r.rwMutex.Unlock()
}

// Fetch tries to fetch and parse domain's /robots.txt using client,
// selecting the rule group for userAgent. It returns true on success; on
// any network failure or non-200 status the policy stays permissive (§4.2).
// Any status other than 200 is treated as "no robots.txt found", not just
// 404: robotstxt.FromResponse itself maps some non-2xx statuses (401, 403)
// to a disallow-all group, which would make the policy blocking instead of
// permissive, contradicting §4.2's unambiguous text.
func (r *RobotsPolicy) Fetch(client *fetcher.Client, userAgent string, domain *url.URL) bool {
	target, _ := url.Parse(robotsTxtPath)
	targetURL := domain.ResolveReference(target)

	_, resp, err := client.Fetch(targetURL.String())
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := robotstxt.FromResponse(resp)
	if err != nil {
		// Invalid robots.txt behaves like no robots.txt: fully permissive.
		return false
	}
	r.robotsGroup = body.FindGroup(userAgent)
	return r.robotsGroup != nil
}

// Return a random value between 1.5*value and 0.5*value
func randDelay(value int64) time.Duration {
	if value == 0 {
		return 0
	}
	max, min := 1.5*float64(value), 0.5*float64(value)
	return time.Duration(rand.Int63n(int64(max-min)) + int64(min))
}

// sameOrigin reports whether link shares the exact network location of
// start. Host canonicalization ("www." vs bare host) is intentionally not
// applied — see DESIGN.md's Open Question decisions.
func sameOrigin(start *url.URL, link *url.URL) bool {
	return link.Host == start.Host
}
