package treecache

import (
	"testing"

	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/ids"
)

func treeID(b byte) ids.ID {
	var id ids.ID
	id[0] = b
	return id
}

// fakeLoader serves raw blob bytes from an in-memory map, standing in
// for *repository.Repository.
type fakeLoader map[ids.ID][]byte

func (f fakeLoader) LoadBlob(id ids.ID) ([]byte, error) {
	raw, ok := f[id]
	if !ok {
		return nil, errNotFound
	}
	return raw, nil
}

var errNotFound = errTreeNotFound{}

type errTreeNotFound struct{}

func (errTreeNotFound) Error() string { return "blob not found" }

func TestCacheAddGet(t *testing.T) {
	c := New(2)
	tree := data.NewTree()
	c.Add(treeID(1), tree)

	got, ok := c.Get(treeID(1))
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got != tree {
		t.Fatal("expected to get back the exact tree pointer stored")
	}
}

func TestCacheMissReturnsFalse(t *testing.T) {
	c := New(2)
	if _, ok := c.Get(treeID(9)); ok {
		t.Fatal("expected a miss on an empty cache")
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	c.Add(treeID(1), data.NewTree())
	c.Add(treeID(2), data.NewTree())

	// Touch id 1 so id 2 becomes the least recently used.
	if _, ok := c.Get(treeID(1)); !ok {
		t.Fatal("expected id 1 to still be cached")
	}

	c.Add(treeID(3), data.NewTree())

	if _, ok := c.Get(treeID(2)); ok {
		t.Fatal("expected id 2 to have been evicted as least recently used")
	}
	if _, ok := c.Get(treeID(1)); !ok {
		t.Fatal("expected id 1 to survive since it was just accessed")
	}
	if _, ok := c.Get(treeID(3)); !ok {
		t.Fatal("expected id 3 to be cached")
	}
}

func TestCacheLen(t *testing.T) {
	c := New(5)
	if c.Len() != 0 {
		t.Fatalf("expected an empty cache, got len %d", c.Len())
	}
	c.Add(treeID(1), data.NewTree())
	c.Add(treeID(2), data.NewTree())
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
}

func TestCacheLoadMissFetchesAndDecodes(t *testing.T) {
	tree := data.NewTree()
	tree.Insert(&data.Node{Name: "a.txt", Type: data.NodeTypeFile})
	raw, err := tree.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	loader := fakeLoader{treeID(1): raw}
	c := New(4)

	got, err := c.Load(loader, treeID(1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Nodes) != 1 || got.Nodes[0].Name != "a.txt" {
		t.Fatalf("unexpected decoded tree: %+v", got)
	}
	if c.Len() != 1 {
		t.Fatal("expected Load to populate the cache on miss")
	}
}

func TestCacheLoadHitSkipsLoader(t *testing.T) {
	tree := data.NewTree()
	c := New(4)
	c.Add(treeID(1), tree)

	got, err := c.Load(fakeLoader{}, treeID(1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != tree {
		t.Fatal("expected the cached pointer to be returned without consulting the loader")
	}
}

func TestCacheLoadInvalidTreeBlob(t *testing.T) {
	loader := fakeLoader{treeID(1): []byte("not json")}
	c := New(4)

	_, err := c.Load(loader, treeID(1))
	treeErr, ok := err.(*data.TreeError)
	if !ok {
		t.Fatalf("expected a *data.TreeError, got %T: %v", err, err)
	}
	if treeErr.Kind != data.NotATree {
		t.Fatalf("expected NotATree, got %v", treeErr.Kind)
	}
}
