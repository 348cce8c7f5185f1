package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

// linkedServer serves a tiny same-origin site: "/" links to "/a" and "/b",
// "/a" links back to "/" and out to "/c", "/b" and "/c" are leaves. "/skip"
// is linked from "/" but carries an excluded suffix.
func linkedServer() *httptest.Server {
	handler := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		}
	}
	handler.HandleFunc("/", page(`<html><body><a href="/a">a</a><a href="/b">b</a><a href="/skip.pdf">skip</a></body></html>`))
	handler.HandleFunc("/a", page(`<html><body><a href="/">home</a><a href="/c">c</a></body></html>`))
	handler.HandleFunc("/b", page(`<html><body>leaf</body></html>`))
	handler.HandleFunc("/c", page(`<html><body>leaf</body></html>`))
	handler.HandleFunc("/robots.txt", http.NotFound)
	return httptest.NewServer(handler)
}

func TestWebCrawlerBuildGraph(t *testing.T) {
	server := linkedServer()
	defer server.Close()

	startURL, _ := url.Parse(server.URL + "/")
	c := New(Settings{
		FetchTimeout:         2 * time.Second,
		MaxDepth:             defaultMaxDepth,
		RequestLimit:         4,
		PolitenessFixedDelay: time.Millisecond,
		HTTP2:                false,
	})

	ok, client, release := c.PreCrawlSetup(startURL)
	if !ok {
		t.Fatalf("PreCrawlSetup failed: expected true")
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	graph, err := c.BuildGraph(ctx, startURL, client, -1, 0)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	// nodes: "/", "/a", "/b", "/skip.pdf", "/c" = 5 (skip.pdf is a leaf, never fetched)
	if graph.NodeCount() != 5 {
		t.Errorf("BuildGraph failed: expected 5 nodes got %d: %v", graph.NodeCount(), graph.Nodes())
	}
	if graph.EdgeCount() == 0 {
		t.Errorf("BuildGraph failed: expected at least one edge")
	}
}

func TestWebCrawlerBuildGraphMaxDepthZero(t *testing.T) {
	server := linkedServer()
	defer server.Close()

	startURL, _ := url.Parse(server.URL + "/")
	c := New(Settings{
		FetchTimeout:         2 * time.Second,
		MaxDepth:             0,
		RequestLimit:         4,
		PolitenessFixedDelay: time.Millisecond,
		HTTP2:                false,
	})

	ok, client, release := c.PreCrawlSetup(startURL)
	if !ok {
		t.Fatalf("PreCrawlSetup failed: expected true")
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	graph, err := c.BuildGraph(ctx, startURL, client, -1, 0)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	if graph.NodeCount() != 1 {
		t.Errorf("BuildGraph failed: expected exactly 1 node at max_depth=0 got %d", graph.NodeCount())
	}
	if graph.EdgeCount() != 0 {
		t.Errorf("BuildGraph failed: expected 0 edges at max_depth=0 got %d", graph.EdgeCount())
	}
}

// TestWebCrawlerBuildGraphFiltersExternalLinks covers spec.md §8 scenario 3:
// a page links to both an external-origin URL and an internal one; only the
// internal edge is added to the graph, and the external host is never
// fetched at all.
func TestWebCrawlerBuildGraphFiltersExternalLinks(t *testing.T) {
	externalHits := 0
	externalHandler := http.NewServeMux()
	externalHandler.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		externalHits++
		w.WriteHeader(http.StatusOK)
	})
	external := httptest.NewServer(externalHandler)
	defer external.Close()

	handler := http.NewServeMux()
	handler.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><a href="` + external.URL + `/">out</a><a href="/inside">in</a></body></html>`))
	})
	handler.HandleFunc("/inside", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body>leaf</body></html>`))
	})
	handler.HandleFunc("/robots.txt", http.NotFound)
	server := httptest.NewServer(handler)
	defer server.Close()

	startURL, _ := url.Parse(server.URL + "/")
	c := New(Settings{
		FetchTimeout:         2 * time.Second,
		MaxDepth:             defaultMaxDepth,
		RequestLimit:         4,
		PolitenessFixedDelay: time.Millisecond,
		HTTP2:                false,
	})

	ok, client, release := c.PreCrawlSetup(startURL)
	if !ok {
		t.Fatalf("PreCrawlSetup failed: expected true")
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	graph, err := c.BuildGraph(ctx, startURL, client, -1, 0)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	if graph.NodeCount() != 2 {
		t.Errorf("BuildGraph failed: expected 2 nodes (start + /inside) got %d: %v", graph.NodeCount(), graph.Nodes())
	}
	adjacency := graph.Adjacency()
	if len(adjacency[server.URL+"/"]) != 1 || adjacency[server.URL+"/"][0] != server.URL+"/inside" {
		t.Errorf("BuildGraph failed: expected single internal edge to /inside got %v", adjacency[server.URL+"/"])
	}
	if externalHits != 0 {
		t.Errorf("BuildGraph failed: expected external host never fetched, got %d hits", externalHits)
	}
}

// TestWebCrawlerBuildGraphRobotsDisallowLeavesLeaf covers spec.md §8
// scenario 5: /admin/* is disallowed by robots.txt and "/a" links to
// "/admin/x"; /admin/x is present as a node (added before the robots check
// per §4.3 step 2) with its one incoming edge from "/a". "/admin/x" is
// fetched, but the robots check that follows the fetch suppresses link
// extraction: its own outgoing link ("/admin/y") is never discovered and
// never becomes a node.
func TestWebCrawlerBuildGraphRobotsDisallowLeavesLeaf(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /admin/"))
	})
	handler.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><a href="/a">a</a></body></html>`))
	})
	handler.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><a href="/admin/x">admin</a></body></html>`))
	})
	handler.HandleFunc("/admin/x", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><a href="/admin/y">nested</a></body></html>`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	startURL, _ := url.Parse(server.URL + "/")
	c := New(Settings{
		FetchTimeout:         2 * time.Second,
		MaxDepth:             defaultMaxDepth,
		RequestLimit:         4,
		PolitenessFixedDelay: time.Millisecond,
		HTTP2:                false,
	})

	ok, client, release := c.PreCrawlSetup(startURL)
	if !ok {
		t.Fatalf("PreCrawlSetup failed: expected true")
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	graph, err := c.BuildGraph(ctx, startURL, client, -1, 0)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	adminNode := server.URL + "/admin/x"
	found := false
	for _, n := range graph.Nodes() {
		if n == adminNode {
			found = true
		}
	}
	if !found {
		t.Errorf("BuildGraph failed: expected %s present as a node, got %v", adminNode, graph.Nodes())
	}
	adjacency := graph.Adjacency()
	if want := []string{server.URL + "/a"}; len(adjacency[adminNode]) != 1 || adjacency[adminNode][0] != want[0] {
		t.Errorf("BuildGraph failed: expected %s's only neighbor to be /a got %v", adminNode, adjacency[adminNode])
	}
	nestedNode := server.URL + "/admin/y"
	for _, n := range graph.Nodes() {
		if n == nestedNode {
			t.Errorf("BuildGraph failed: expected %s never discovered since extraction from %s was suppressed", nestedNode, adminNode)
		}
	}
}

func TestWebCrawlerPreCrawlSetupAbortsOnError(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	startURL, _ := url.Parse(server.URL + "/")
	c := New(Settings{HTTP2: false})

	ok, _, release := c.PreCrawlSetup(startURL)
	defer release()
	if ok {
		t.Errorf("PreCrawlSetup failed: expected false for 500 response")
	}
}

func TestWebCrawlerCompressGraphSkipsSingleNode(t *testing.T) {
	c := New(Settings{})
	g := NewGraph()
	g.AddNode("https://example.test/")

	dir := t.TempDir()
	path, err := c.CompressGraph(dir, "example.test", "gzip", g)
	if err != nil {
		t.Fatalf("CompressGraph failed: %v", err)
	}
	if path != "" {
		t.Errorf("CompressGraph failed: expected no file written for single-node graph, got %s", path)
	}
}
