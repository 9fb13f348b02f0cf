package data

import (
	"testing"
	"time"

	"github.com/strata-backup/strata/internal/ids"
)

func TestNodeSameFingerprint(t *testing.T) {
	mtime := time.Now()
	a := &Node{Size: 100, ModTime: mtime, Mode: 0o644}
	b := &Node{Size: 100, ModTime: mtime, Mode: 0o644}
	c := &Node{Size: 200, ModTime: mtime, Mode: 0o644}

	if !a.SameFingerprint(b) {
		t.Fatal("expected identical (size, mtime, mode) to match")
	}
	if a.SameFingerprint(c) {
		t.Fatal("expected different size to produce a different fingerprint")
	}
}

func TestNodeEqualsFile(t *testing.T) {
	mtime := time.Now()
	a := &Node{Name: "f", Type: NodeTypeFile, Mode: 0o644, ModTime: mtime, Size: 10, Content: ids.IDs{{1}, {2}}}
	b := &Node{Name: "f", Type: NodeTypeFile, Mode: 0o644, ModTime: mtime, Size: 10, Content: ids.IDs{{1}, {2}}}
	c := &Node{Name: "f", Type: NodeTypeFile, Mode: 0o644, ModTime: mtime, Size: 10, Content: ids.IDs{{1}, {3}}}

	if !a.Equals(b) {
		t.Fatal("expected identical file nodes to be equal")
	}
	if a.Equals(c) {
		t.Fatal("expected nodes with different content to differ")
	}
}

func TestNodeEqualsDir(t *testing.T) {
	id1 := ids.ID{1}
	id2 := ids.ID{2}
	a := &Node{Name: "d", Type: NodeTypeDir, Subtree: &id1}
	b := &Node{Name: "d", Type: NodeTypeDir, Subtree: &id1}
	c := &Node{Name: "d", Type: NodeTypeDir, Subtree: &id2}

	if !a.Equals(b) {
		t.Fatal("expected dirs with the same subtree id to be equal")
	}
	if a.Equals(c) {
		t.Fatal("expected dirs with different subtree ids to differ")
	}
}

func TestNodesSort(t *testing.T) {
	nodes := Nodes{
		{Name: "c"},
		{Name: "a"},
		{Name: "b"},
	}
	nodes.Sort()

	want := []string{"a", "b", "c"}
	for i, n := range nodes {
		if n.Name != want[i] {
			t.Fatalf("nodes[%d] = %q, want %q", i, n.Name, want[i])
		}
	}
}
