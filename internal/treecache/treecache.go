// Package treecache implements the Tree cache component (§4.9): a
// fixed-size, concurrency-safe LRU of decoded trees, keyed by tree blob
// id, so that the archiver and restorer don't re-fetch-and-decode a
// directory's Tree blob on every reference to it. Grounded on the
// teacher's internal/bloblru/cache.go, switched from a byte-budget to an
// item-count bound (§4.9: "the cache holds at most N decoded trees")
// since Tree values, unlike raw blob bytes, don't have a cheap "size in
// bytes" figure worth tracking.
package treecache

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/debug"
	"github.com/strata-backup/strata/internal/errors"
	"github.com/strata-backup/strata/internal/ids"
)

// Loader is the subset of *repository.Repository that Load needs: a
// plain blob fetch by id. Declared here, rather than importing
// internal/repository directly, so the repository package is free to
// import treecache (the archiver wires both together) without a cycle.
type Loader interface {
	LoadBlob(id ids.ID) ([]byte, error)
}

// Cache is a fixed-capacity LRU of decoded trees. It is safe for
// concurrent use.
type Cache struct {
	mu sync.Mutex
	c  *simplelru.LRU[ids.ID, *data.Tree]
}

// New constructs a tree cache holding at most capacity decoded trees.
func New(capacity int) *Cache {
	lru, err := simplelru.NewLRU[ids.ID, *data.Tree](capacity, func(id ids.ID, _ *data.Tree) {
		debug.Log("treecache: evict %v", id)
	})
	if err != nil {
		// Only returned for capacity <= 0, which is a programming error:
		// every caller passes a fixed, positive constant.
		panic(errors.Wrap(err, "treecache: construct LRU"))
	}
	return &Cache{c: lru}
}

// Add stores tree under id, evicting the least recently used entry if
// the cache is already at capacity. It reports whether an eviction
// occurred.
func (c *Cache) Add(id ids.ID, tree *data.Tree) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := c.c.Add(id, tree)
	debug.Log("treecache: add %v, evicted %v", id, evicted)
	return evicted
}

// Get returns the cached tree for id, if present, moving it to
// most-recently-used.
func (c *Cache) Get(id ids.ID) (*data.Tree, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tree, ok := c.c.Get(id)
	debug.Log("treecache: get %v, hit %v", id, ok)
	return tree, ok
}

// Len returns the number of trees currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.Len()
}

// Load returns the tree named by id, promoting it to most-recently-used
// on a hit, or fetching it via loader and decoding it on a miss (§5.10).
// A blob that fails to decode as a Tree is reported as
// data.TreeError{Kind: NotATree}.
func (c *Cache) Load(loader Loader, id ids.ID) (*data.Tree, error) {
	if tree, ok := c.Get(id); ok {
		return tree, nil
	}

	raw, err := loader.LoadBlob(id)
	if err != nil {
		return nil, errors.Wrapf(err, "load tree blob %s", id)
	}

	tree, err := data.UnmarshalTree(raw)
	if err != nil {
		return nil, &data.TreeError{Kind: data.NotATree, ID: id}
	}

	c.Add(id, tree)
	return tree, nil
}
