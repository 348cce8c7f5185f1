package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/antsinar/crawlerapi/codec"
)

// minInterestingNodes is the node-count floor below which a persisted graph
// is considered uninteresting and swept, matching the crawler's own
// "<=1 node, skip persistence" rule (§8) applied retroactively to files
// that slipped through before that rule existed or were written by an
// older build.
const minInterestingNodes = 2

var graphExtensions = []string{".gz", ".bz2", ".zst"}

// Cleaner removes graph files under Root that fail to decompress/decode, or
// whose decoded node count falls below minInterestingNodes.
type Cleaner struct {
	Root   string
	logger *log.Logger
}

// NewCleaner constructs a Cleaner rooted at root.
func NewCleaner(root string) *Cleaner {
	return &Cleaner{Root: root, logger: log.New(os.Stderr, "cleaner: ", log.LstdFlags)}
}

// Sweep walks Root once, removing every file that is malformed or
// uninteresting. It returns the first unexpected (non-decode) error
// encountered, such as a failure to read Root itself or to remove a file;
// individual decode failures are treated as "this file needs removing", not
// reported as Sweep errors.
func (c *Cleaner) Sweep(ctx context.Context) error {
	entries, err := os.ReadDir(c.Root)
	if err != nil {
		return fmt.Errorf("watcher: read dir %s: %w", c.Root, err)
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if entry.IsDir() || !hasGraphExtension(entry.Name()) {
			continue
		}

		path := filepath.Join(c.Root, entry.Name())
		decoded, err := codec.Read(path)
		if err != nil {
			c.logger.Printf("removing malformed graph file %s: %v", path, err)
			if rmErr := os.Remove(path); rmErr != nil {
				return fmt.Errorf("watcher: remove %s: %w", path, rmErr)
			}
			continue
		}
		if len(decoded.Nodes) < minInterestingNodes {
			c.logger.Printf("removing uninteresting graph file %s (%d node(s))", path, len(decoded.Nodes))
			if rmErr := os.Remove(path); rmErr != nil {
				return fmt.Errorf("watcher: remove %s: %w", path, rmErr)
			}
		}
	}
	return nil
}

func hasGraphExtension(name string) bool {
	for _, ext := range graphExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
