// Package fetcher defines and implements the scoped HTTP client acquisition,
// downloading and link-extraction utilities used by the crawler engine.
package fetcher

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/http2"
)

// Sentinel errors classifying a FetchLinks failure, so callers can branch
// on error class with errors.Is instead of matching message text.
var (
	// ErrHTTPStatus marks a GET response whose status code was not 200.
	ErrHTTPStatus = errors.New("fetcher: http status error")
	// ErrNonHTML marks a response whose Content-Type was not HTML.
	ErrNonHTML = errors.New("fetcher: non-HTML content-type")
	// ErrParse marks a failure to parse an otherwise-successful HTML body.
	ErrParse = errors.New("fetcher: parse error")
)

// Parser is an interface exposing a single method `Parse`, to be used on
// raw results of a fetch call
type Parser interface {
	Parse(string, io.Reader) ([]*url.URL, error)
}

// Default headers set on every outbound request unless overridden by
// Options. DefaultUserAgent is stable and versioned, identifying the
// crawler to remote servers and to the robots.txt rule matcher.
const (
	DefaultUserAgent      string = "CrawlerAPI-bot/1.0 (+https://github.com/antsinar/crawlerapi)"
	DefaultAccept         string = "text/html,application/json,application/xml;q=0.9"
	DefaultAcceptEncoding string = "gzip, deflate, br"
	DefaultAcceptLanguage string = "en, el-GR;q=0.9"
	// maxRedirectHops bounds the automatically-followed 3xx chain.
	maxRedirectHops int = 10
)

// h2IllegalHeaders lists the connection-management headers that must not be
// sent once the client has negotiated HTTP/2 with the remote origin.
var h2IllegalHeaders = []string{"Keep-Alive", "Connection"}

// Options configures a scoped Client acquired via Acquire.
type Options struct {
	// UserAgent identifies the crawler; also used to select the robots.txt
	// rule group.
	UserAgent string
	// AcceptLanguage is sent on every request.
	AcceptLanguage string
	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration
	// HTTP2 enables HTTP/2 support on the underlying transport.
	HTTP2 bool
	// InsecureSkipVerify disables TLS certificate verification; useful for
	// crawling self-signed or staging origins.
	InsecureSkipVerify bool
}

// DefaultOptions returns sane defaults matching §4.1 of the crawler design.
func DefaultOptions() Options {
	return Options{
		UserAgent:      DefaultUserAgent,
		AcceptLanguage: DefaultAcceptLanguage,
		Timeout:        10 * time.Second,
		HTTP2:          true,
	}
}

// Client is a scoped HTTP client bound to a single crawl task's base_url.
// It owns a connection pool and tracks whether the remote origin has
// negotiated HTTP/2, so that illegal connection-management headers can be
// stripped from subsequent requests.
type Client struct {
	baseURL *url.URL
	opts    Options
	parser  Parser
	client  *http.Client

	mu           sync.Mutex
	negotiatedH2 bool
}

// Acquire constructs a scoped Client targeting baseURL and returns it
// alongside a release function. The release function MUST be deferred by
// the caller immediately, guaranteeing cleanup on every exit path including
// panics and context cancellation.
func Acquire(baseURL *url.URL, parser Parser, opts Options) (*Client, func()) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = DefaultAcceptLanguage
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	base := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
	}
	if opts.HTTP2 {
		// Best-effort: a transport that cannot be upgraded (e.g. already
		// configured) simply keeps negotiating HTTP/1.1.
		_ = http2.ConfigureTransport(base)
	}
	transport := rehttp.NewTransport(
		base,
		rehttp.RetryAll(rehttp.RetryMaxRetries(3), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(1, 10*time.Second),
	)
	httpClient := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirectHops {
				return fmt.Errorf("fetcher: stopped after %d redirects", maxRedirectHops)
			}
			return nil
		},
	}

	c := &Client{baseURL: baseURL, opts: opts, parser: parser, client: httpClient}
	release := func() {
		httpClient.CloseIdleConnections()
	}
	return c, release
}

// applyHeaders sets the standard browser-like headers on req, stripping
// connection-management headers once HTTP/2 has been negotiated with this
// origin (illegal under HTTP/2, see PreCrawlSetup).
func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", DefaultAccept)
	req.Header.Set("Accept-Encoding", DefaultAcceptEncoding)
	req.Header.Set("Accept-Language", c.opts.AcceptLanguage)

	c.mu.Lock()
	h2 := c.negotiatedH2
	c.mu.Unlock()
	if !h2 {
		req.Header.Set("Connection", "keep-alive")
		req.Header.Set("Keep-Alive", "timeout=5")
	}
}

// StripH2OnlyHeaders marks this client's connection as HTTP/2-negotiated,
// so future requests omit Keep-Alive/Connection headers.
func (c *Client) StripH2OnlyHeaders() {
	c.mu.Lock()
	c.negotiatedH2 = true
	c.mu.Unlock()
}

// NegotiatedHTTP2 reports whether this client has observed an HTTP/2
// response from its base origin.
func (c *Client) NegotiatedHTTP2() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiatedH2
}

// PreCrawlSetup issues a HEAD request against targetURL. It returns false on
// any transport error or HTTP error status (§4.3), signalling the caller to
// skip the crawl entirely. If the negotiated protocol is HTTP/2 it marks
// this client so that Keep-Alive/Connection headers are stripped from
// subsequent GET requests.
func (c *Client) PreCrawlSetup(targetURL string) bool {
	req, err := http.NewRequest(http.MethodHead, targetURL, nil)
	if err != nil {
		return false
	}
	c.applyHeaders(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return false
	}
	if resp.ProtoMajor == 2 {
		c.StripH2OnlyHeaders()
	}
	return true
}

// Fetch makes a single HTTP GET request toward an URL, returning the
// elapsed round-trip time alongside the response or any error.
func (c *Client) Fetch(target string) (time.Duration, *http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	c.applyHeaders(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, nil, err
	}
	return elapsed, resp, nil
}

// FetchLinks downloads targetURL and parses its body for anchor/canonical
// links, applying charset detection when the server omits one. Non-200 and
// non-HTML responses are reported as errors to the caller, which treats
// them as a prune-this-subtree signal rather than a fatal task error.
func (c *Client) FetchLinks(targetURL string) (time.Duration, []*url.URL, error) {
	if c.parser == nil {
		return 0, nil, fmt.Errorf("fetching links from %s failed: no parser set", targetURL)
	}
	baseDomain := parseStartURL(targetURL)

	elapsed, resp, err := c.Fetch(targetURL)
	if err != nil {
		return elapsed, nil, fmt.Errorf("fetching links from %s failed: %w", targetURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return elapsed, nil, fmt.Errorf("fetching links from %s failed with %s: %w", targetURL, resp.Status, ErrHTTPStatus)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return elapsed, nil, fmt.Errorf("fetching links from %s failed: non-HTML content-type %q: %w", targetURL, contentType, ErrNonHTML)
	}

	body, err := charset.NewReader(resp.Body, contentType)
	if err != nil {
		return elapsed, nil, fmt.Errorf("fetching links from %s failed: %w", targetURL, err)
	}

	links, err := c.parser.Parse(baseDomain, body)
	if err != nil {
		return elapsed, nil, fmt.Errorf("fetching links from %s failed: %w: %w", targetURL, ErrParse, err)
	}
	return elapsed, links, nil
}

// parseStartURL extracts the <scheme>://<host>:<port> portion of u.
func parseStartURL(u string) string {
	parsed, _ := url.Parse(u)
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
