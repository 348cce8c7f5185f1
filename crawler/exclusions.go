// Package crawler containing the crawling logics and utilities to scrape
// remote resources on the web
package crawler

import "strings"

// DefaultExclusionSuffixes lists path suffixes that suppress fetching of a
// matched URL. The URL still becomes a graph node (added before this check
// runs, §4.3 step 2) but is never fetched, so it remains a leaf: it cannot
// appear as the source of any edge.
var DefaultExclusionSuffixes = []string{
	".pdf", ".xml", ".jpg", ".jpeg", ".png", ".gif", ".svg",
	".css", ".js", ".ico", ".zip", ".mp3", ".mp4", ".woff", ".woff2",
}

// excluded reports whether target ends with any of the configured suffixes.
func excluded(target string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(target, suf) {
			return true
		}
	}
	return false
}
