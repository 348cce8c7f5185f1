package watcher

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

func TestCleanerSweepRemovesMalformedFile(t *testing.T) {
	dir := t.TempDir()
	badPath := dir + "/broken.gz"
	if err := os.WriteFile(badPath, []byte("not gzip"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	c := NewCleaner(dir)
	if err := c.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if _, err := os.Stat(badPath); !os.IsNotExist(err) {
		t.Errorf("Sweep failed: expected malformed file removed")
	}
}

func TestCleanerSweepRemovesSingleNodeGraph(t *testing.T) {
	dir := t.TempDir()
	g := fakeGraph{nodes: []string{"a"}}
	path, err := codec.Write(dir, "single.test", codec.GZIP, g)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	c := NewCleaner(dir)
	if err := c.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Sweep failed: expected single-node graph file removed")
	}
}

func TestCleanerSweepKeepsValidGraph(t *testing.T) {
	dir := t.TempDir()
	g := fakeGraph{nodes: []string{"a", "b"}, edges: [][2]string{{"a", "b"}}}
	path, err := codec.Write(dir, "valid.test", codec.GZIP, g)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	c := NewCleaner(dir)
	if err := c.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Sweep failed: expected valid graph file kept, got %v", err)
	}
}
