// Package walker implements the tree streamer (§4.8): a depth-first,
// lexicographically-ordered traversal of a snapshot's tree, adapted from
// the teacher's internal/walker callback-based WalkFunc (func(id
// ids.ID, path string, node *data.Node, err error) (bool, error)) into a
// Go 1.23 iter.Seq2, matching the streaming style the rest of this
// module uses (internal/chunker.Chunks).
package walker

import (
	"context"
	"iter"
	"path"

	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/ids"
	"github.com/strata-backup/strata/internal/treecache"
)

// Filter prunes entries before the walker yields or recurses into them,
// the same glob-style matching the teacher's SelectByName performs.
type Filter struct {
	Include []string
	Exclude []string
}

func (f Filter) allows(p string) bool {
	if len(f.Include) > 0 {
		matched := false
		for _, pat := range f.Include {
			if ok, err := path.Match(pat, p); err == nil && ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pat := range f.Exclude {
		if ok, err := path.Match(pat, p); err == nil && ok {
			return false
		}
	}
	return true
}

// Stream walks the tree rooted at rootID depth-first, in the
// lexicographic order guaranteed by spec §4.8 (a direct consequence of
// Tree.Nodes always being kept sorted by Name), yielding (path, node)
// pairs for every entry that survives filter. Directories are recursed
// into after being yielded; an entry excluded by filter is skipped
// entirely — neither yielded nor, if it is a directory, descended into.
//
// cache promotes/loads each directory's Tree blob through loader, so
// repeated Streams over overlapping trees don't re-fetch-and-decode
// subtrees already resident in cache.
func Stream(ctx context.Context, cache *treecache.Cache, loader treecache.Loader, rootID ids.ID, filter Filter) iter.Seq2[string, *data.Node] {
	return func(yield func(string, *data.Node) bool) {
		walk(ctx, cache, loader, rootID, "/", filter, yield)
	}
}

func walk(ctx context.Context, cache *treecache.Cache, loader treecache.Loader, treeID ids.ID, dir string, filter Filter, yield func(string, *data.Node) bool) bool {
	if ctx.Err() != nil {
		return false
	}

	tree, err := cache.Load(loader, treeID)
	if err != nil {
		return true
	}

	for _, node := range tree.Nodes {
		p := path.Join(dir, node.Name)
		if !filter.allows(p) {
			continue
		}

		if !yield(p, node) {
			return false
		}

		if node.Type == data.NodeTypeDir && node.Subtree != nil {
			if !walk(ctx, cache, loader, *node.Subtree, p, filter, yield) {
				return false
			}
		}
	}
	return true
}
