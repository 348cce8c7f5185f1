// Package graphinfo maintains a small read-through cache of per-host graph
// statistics, lazily recomputed from the persisted graph files under a root
// directory.
package graphinfo

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antsinar/crawlerapi/codec"
)

const (
	// defaultMaxFilesPerSweep bounds the number of files UpdateInfo will
	// re-decode in a single call, so one slow sweep can't starve the
	// scheduler loop driving it.
	defaultMaxFilesPerSweep = 64
	// defaultTeleportK is the number of highest-degree nodes surfaced per
	// host as teleport-node candidates.
	defaultTeleportK = 5
)

// GraphInfo is the cached summary of one persisted graph file.
type GraphInfo struct {
	Host          string
	NodeCount     int
	EdgeCount     int
	TeleportNodes []string
	LastModified  time.Time
}

// Updater walks Root, decoding any graph file whose mtime is newer than the
// cached entry's LastModified (or has no cached entry yet), bounded to
// MaxFilesPerSweep files per UpdateInfo call.
type Updater struct {
	Root             string
	MaxFilesPerSweep int
	TeleportK        int

	mu     sync.RWMutex
	byHost map[string]GraphInfo
	logger *log.Logger
}

// NewUpdater constructs an Updater rooted at root.
func NewUpdater(root string) *Updater {
	return &Updater{
		Root:             root,
		MaxFilesPerSweep: defaultMaxFilesPerSweep,
		TeleportK:        defaultTeleportK,
		byHost:           make(map[string]GraphInfo),
		logger:           log.New(os.Stderr, "graphinfo: ", log.LstdFlags),
	}
}

// UpdateInfo rescans Root for graph files that changed since they were last
// cached, recomputing node/edge counts and teleport-node candidates for
// each. It never returns an error for a single malformed file: that file is
// skipped and logged, since a corrupt graph must not stall the cache for
// every other host (Graph Cleaner, not this updater, is responsible for
// removing malformed files).
func (u *Updater) UpdateInfo(ctx context.Context) error {
	entries, err := os.ReadDir(u.Root)
	if err != nil {
		return fmt.Errorf("graphinfo: read dir %s: %w", u.Root, err)
	}

	processed := 0
	for _, entry := range entries {
		if processed >= u.MaxFilesPerSweep {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if entry.IsDir() {
			continue
		}
		host, ok := hostFromFilename(entry.Name())
		if !ok {
			continue
		}

		path := filepath.Join(u.Root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			u.logger.Printf("stat %s: %v", path, err)
			continue
		}

		u.mu.RLock()
		cached, exists := u.byHost[host]
		u.mu.RUnlock()
		if exists && !info.ModTime().After(cached.LastModified) {
			continue
		}

		decoded, err := codec.Read(path)
		if err != nil {
			u.logger.Printf("decode %s: %v", path, err)
			continue
		}
		processed++

		gi := GraphInfo{
			Host:          host,
			NodeCount:     len(decoded.Nodes),
			EdgeCount:     len(decoded.Edges),
			TeleportNodes: teleportNodes(decoded.Nodes, decoded.Edges, u.TeleportK),
			LastModified:  info.ModTime(),
		}
		u.mu.Lock()
		u.byHost[host] = gi
		u.mu.Unlock()
	}
	return nil
}

// Get returns the cached GraphInfo for host, if any.
func (u *Updater) Get(host string) (GraphInfo, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	gi, ok := u.byHost[host]
	return gi, ok
}

// hostFromFilename strips a known codec extension from name, returning the
// host portion and whether name was recognized as a graph file.
func hostFromFilename(name string) (string, bool) {
	for _, ext := range []string{".gz", ".bz2", ".zst"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), true
		}
	}
	return "", false
}

// teleportNodes ranks nodes by degree and returns the top k identifiers, a
// degree-centrality heuristic for candidate "teleport" entry points into a
// crawled graph. Ties break by identifier for deterministic output.
func teleportNodes(nodes []string, edges [][2]string, k int) []string {
	degree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		degree[n] = 0
	}
	for _, e := range edges {
		degree[e[0]]++
		degree[e[1]]++
	}

	ranked := make([]string, 0, len(degree))
	for n := range degree {
		ranked = append(ranked, n)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if degree[ranked[i]] != degree[ranked[j]] {
			return degree[ranked[i]] > degree[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}
