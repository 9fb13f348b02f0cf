package walker

import (
	"context"
	"testing"

	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/ids"
	"github.com/strata-backup/strata/internal/treecache"
)

type memLoader map[ids.ID][]byte

func (m memLoader) LoadBlob(id ids.ID) ([]byte, error) {
	raw, ok := m[id]
	if !ok {
		return nil, errNotFound{}
	}
	return raw, nil
}

type errNotFound struct{}

func (errNotFound) Error() string { return "tree not found" }

// buildFixture constructs:
//
//	/
//	  foo        (file)
//	  subdir/
//	    subfile  (file)
//
// and returns the loader populated with both tree blobs plus the root
// tree's id.
func buildFixture(t *testing.T) (memLoader, ids.ID) {
	t.Helper()
	loader := memLoader{}

	subdir := data.NewTree()
	subdir.Insert(&data.Node{Name: "subfile", Type: data.NodeTypeFile})
	subRaw, err := subdir.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	subID := idOf(subRaw)
	loader[subID] = subRaw

	root := data.NewTree()
	root.Insert(&data.Node{Name: "foo", Type: data.NodeTypeFile})
	root.Insert(&data.Node{Name: "subdir", Type: data.NodeTypeDir, Subtree: &subID})
	rootRaw, err := root.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	rootID := idOf(rootRaw)
	loader[rootID] = rootRaw

	return loader, rootID
}

// idOf derives a stable fixture id from raw bytes without depending on
// the real content hash, since these tests only care about identity,
// not the hash algorithm.
func idOf(raw []byte) ids.ID {
	var id ids.ID
	for i, b := range raw {
		id[i%len(id)] ^= b
	}
	return id
}

func TestStreamVisitsInLexicographicOrder(t *testing.T) {
	loader, rootID := buildFixture(t)
	cache := treecache.New(8)

	var paths []string
	for p, node := range Stream(context.Background(), cache, loader, rootID, Filter{}) {
		paths = append(paths, p)
		_ = node
	}

	want := []string{"/foo", "/subdir", "/subdir/subfile"}
	if len(paths) != len(want) {
		t.Fatalf("got %d paths, want %d: %v", len(paths), len(want), paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths[%d] = %q, want %q (full: %v)", i, paths[i], want[i], paths)
		}
	}
}

func TestStreamStopsEarly(t *testing.T) {
	loader, rootID := buildFixture(t)
	cache := treecache.New(8)

	var visited int
	for range Stream(context.Background(), cache, loader, rootID, Filter{}) {
		visited++
		break
	}
	if visited != 1 {
		t.Fatalf("expected the iterator to stop after one yield, got %d", visited)
	}
}

func TestStreamExcludeFilter(t *testing.T) {
	loader, rootID := buildFixture(t)
	cache := treecache.New(8)

	var paths []string
	for p := range Stream(context.Background(), cache, loader, rootID, Filter{Exclude: []string{"/subdir/*"}}) {
		paths = append(paths, p)
	}

	want := []string{"/foo", "/subdir"}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestStreamCancelledContext(t *testing.T) {
	loader, rootID := buildFixture(t)
	cache := treecache.New(8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var visited int
	for range Stream(ctx, cache, loader, rootID, Filter{}) {
		visited++
	}
	if visited != 0 {
		t.Fatalf("expected a cancelled context to short-circuit the walk, got %d visits", visited)
	}
}
