// Package codec implements the Graph Codec: a closed registry of
// compressor variants and the JSON document format used to persist
// crawled link graphs to disk.
package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dsnet/compress/bzip2"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ID enumerates the supported compressor variants. Adding a new one means
// extending the enum, the registry below, and the extension switch in Read
// and openReader; graphinfo and watcher keep their own lists of graph file
// extensions as well.
type ID string

const (
	GZIP  ID = "gzip"
	BZIP2 ID = "bzip2"
	ZSTD  ID = "zstd"
)

// variant maps a compressor ID to its writable-stream constructor and file
// extension.
type variant struct {
	open func(w io.Writer) (io.WriteCloser, error)
	ext  string
}

// registry is the closed tagged enumeration of known compressors.
var registry = map[ID]variant{
	GZIP: {
		open: func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil },
		ext:  ".gz",
	},
	BZIP2: {
		open: func(w io.Writer) (io.WriteCloser, error) { return bzip2.NewWriter(w, nil) },
		ext:  ".bz2",
	},
	ZSTD: {
		open: func(w io.Writer) (io.WriteCloser, error) { return zstd.NewWriter(w) },
		ext:  ".zst",
	},
}

// ErrUnknownCompressor is returned when an ID has no registered variant;
// per §7 error kind 5 ("Configuration") this is an admission-time error.
var ErrUnknownCompressor = fmt.Errorf("codec: unknown compressor")

// Ext returns the file extension associated with a compressor ID.
func Ext(id ID) (string, error) {
	v, ok := registry[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCompressor, id)
	}
	return v.ext, nil
}

// Valid reports whether id names a registered compressor.
func Valid(id ID) bool {
	_, ok := registry[id]
	return ok
}

// GraphSource is the minimal read surface a graph must expose to be
// persisted. crawler.Graph satisfies it without codec needing to import
// the crawler package.
type GraphSource interface {
	Nodes() []string
	EdgeList() [][2]string
}

// document is the on-disk JSON shape, §4.4: a networkx-node-link-compatible
// document describing an undirected, non-multigraph.
type document struct {
	Directed   bool           `json:"directed"`
	Multigraph bool           `json:"multigraph"`
	Graph      map[string]any `json:"graph"`
	Nodes      []docNode      `json:"nodes"`
	Edges      []docEdge      `json:"edges"`
}

type docNode struct {
	ID string `json:"id"`
}

type docEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Write marshals g to the §4.4 JSON document and streams it through the
// compressor named by id to ${root}/${host}${ext}, using a
// write-to-temp-then-rename sequence for best-effort atomicity. It returns
// the final path written.
func Write(root, host string, id ID, g GraphSource) (string, error) {
	v, ok := registry[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCompressor, id)
	}

	doc := document{
		Directed:   false,
		Multigraph: false,
		Graph:      map[string]any{},
	}
	for _, n := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, docNode{ID: n})
	}
	for _, e := range g.EdgeList() {
		doc.Edges = append(doc.Edges, docEdge{Source: e[0], Target: e[1]})
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("codec: marshal graph for %s: %w", host, err)
	}

	finalPath := filepath.Join(root, host+v.ext)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("codec: create %s: %w", tmpPath, err)
	}

	writer, err := v.open(f)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("codec: open %s compressor: %w", id, err)
	}
	if _, err := writer.Write(payload); err != nil {
		writer.Close()
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("codec: write compressed graph for %s: %w", host, err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("codec: finalize compressed graph for %s: %w", host, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("codec: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("codec: rename %s to %s: %w", tmpPath, finalPath, err)
	}

	return finalPath, nil
}

// Decoded is the result of decompressing and parsing a persisted graph
// file: the node set (union of declared nodes and edge endpoints, per the
// §8 Roundtrip invariant) and the adjacency it implies.
type Decoded struct {
	Nodes []string
	Edges [][2]string
}

// Read opens path (named ${host}${ext}), selects the compressor by
// extension, decompresses and decodes the JSON document, and returns its
// node/edge sets. It returns an error if the file cannot be decompressed or
// parsed, letting the Graph Cleaner (C8) identify malformed files.
func Read(path string) (Decoded, error) {
	var id ID
	switch filepath.Ext(path) {
	case ".gz":
		id = GZIP
	case ".bz2":
		id = BZIP2
	case ".zst":
		id = ZSTD
	default:
		return Decoded{}, fmt.Errorf("%w: unrecognized extension for %s", ErrUnknownCompressor, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return Decoded{}, fmt.Errorf("codec: open %s: %w", path, err)
	}
	defer f.Close()

	reader, err := openReader(id, f)
	if err != nil {
		return Decoded{}, fmt.Errorf("codec: decompress %s: %w", path, err)
	}
	defer reader.Close()

	var doc document
	if err := json.NewDecoder(reader).Decode(&doc); err != nil {
		return Decoded{}, fmt.Errorf("codec: decode %s: %w", path, err)
	}

	out := Decoded{}
	seen := make(map[string]struct{}, len(doc.Nodes))
	addNode := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out.Nodes = append(out.Nodes, id)
	}
	for _, n := range doc.Nodes {
		addNode(n.ID)
	}
	for _, e := range doc.Edges {
		out.Edges = append(out.Edges, [2]string{e.Source, e.Target})
		addNode(e.Source)
		addNode(e.Target)
	}
	return out, nil
}

func openReader(id ID, f *os.File) (io.ReadCloser, error) {
	switch id {
	case GZIP:
		return gzip.NewReader(f)
	case BZIP2:
		return bzip2.NewReader(f, nil)
	case ZSTD:
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompressor, id)
	}
}

// FileSizeHuman returns a human-readable byte count for path, used in log
// lines emitted after a successful Write.
func FileSizeHuman(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return humanize.Bytes(uint64(info.Size()))
}
