package graphinfo

import (
	"context"
	"os"
	"testing"

	"github.com/antsinar/crawlerapi/codec"
)

type fakeGraph struct {
	nodes []string
	edges [][2]string
}

func (f fakeGraph) Nodes() []string       { return f.nodes }
func (f fakeGraph) EdgeList() [][2]string { return f.edges }

func TestUpdaterUpdateInfoAndGet(t *testing.T) {
	dir := t.TempDir()
	g := fakeGraph{
		nodes: []string{"a", "b", "c", "d"},
		edges: [][2]string{{"a", "b"}, {"a", "c"}, {"a", "d"}},
	}
	if _, err := codec.Write(dir, "example.test", codec.GZIP, g); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	u := NewUpdater(dir)
	if err := u.UpdateInfo(context.Background()); err != nil {
		t.Fatalf("UpdateInfo failed: %v", err)
	}

	info, ok := u.Get("example.test")
	if !ok {
		t.Fatalf("Get failed: expected entry for example.test")
	}
	if info.NodeCount != 4 || info.EdgeCount != 3 {
		t.Errorf("Get failed: expected 4 nodes/3 edges got %d/%d", info.NodeCount, info.EdgeCount)
	}
	if len(info.TeleportNodes) == 0 || info.TeleportNodes[0] != "a" {
		t.Errorf("Get failed: expected highest-degree node 'a' first, got %v", info.TeleportNodes)
	}
}

func TestUpdaterGetMissingHost(t *testing.T) {
	u := NewUpdater(t.TempDir())
	if _, ok := u.Get("nope.test"); ok {
		t.Errorf("Get failed: expected false for unknown host")
	}
}

func TestUpdaterSkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	badPath := dir + "/broken.gz"
	if err := os.WriteFile(badPath, []byte("not gzip"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	u := NewUpdater(dir)
	if err := u.UpdateInfo(context.Background()); err != nil {
		t.Fatalf("UpdateInfo failed: %v", err)
	}
	if _, ok := u.Get("broken"); ok {
		t.Errorf("Get failed: malformed file should not produce a cache entry")
	}
}
