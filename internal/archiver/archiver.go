// Package archiver implements the incremental snapshot engine (§4.10):
// it walks a set of source paths, reuses unchanged subtrees from a
// parent snapshot, and writes a new Tree/Snapshot pair. Grounded on the
// teacher's internal/archiver package: archiver/tree.go's synthetic-root
// builder, archiver/scanner.go's lexicographic walk, and
// archiver/file_saver.go's/blob_saver.go's two-stage chunk pipeline.
package archiver

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/debug"
	"github.com/strata-backup/strata/internal/errors"
	"github.com/strata-backup/strata/internal/ids"
	"github.com/strata-backup/strata/internal/repository"
	"github.com/strata-backup/strata/internal/treecache"
	"github.com/strata-backup/strata/internal/walker"
)

// Options configures one Archiver (§4.10's inputs: worker counts and the
// full_scan flag).
type Options struct {
	// ReadWorkers bounds how many files within one directory are
	// chunked concurrently (§4.11, "cross-file parallelism").
	ReadWorkers int
	// FullScan disables parent-tree reuse entirely, forcing every file
	// to be re-chunked regardless of its (size, mtime, mode) fingerprint.
	FullScan bool
}

func (o Options) readWorkers() int {
	if o.ReadWorkers <= 0 {
		return 1
	}
	return o.ReadWorkers
}

// Archiver turns source filesystem paths into a Snapshot.
type Archiver struct {
	repo  *repository.Repository
	opts  Options
	cache *treecache.Cache
}

// New returns an Archiver that saves into repo.
func New(repo *repository.Repository, opts Options) *Archiver {
	return &Archiver{repo: repo, opts: opts, cache: treecache.New(128)}
}

// Snapshot runs the algorithm in spec §4.10 steps 1-5: it builds the
// synthetic root over paths, walks the real filesystem, reusing
// unchanged file content from parent where possible, and returns the
// freshly saved Snapshot.
func (a *Archiver) Snapshot(ctx context.Context, paths []string, parent *data.Snapshot, description string, tags []string) (*data.Snapshot, error) {
	root, err := buildSyntheticRoot(paths)
	if err != nil {
		return nil, err
	}

	parentIndex, err := a.buildParentIndex(ctx, parent)
	if err != nil {
		return nil, err
	}

	rootTree := data.NewTree()
	for _, name := range root.names {
		absPath := root.paths[name]
		node, err := a.walkEntry(ctx, absPath, "/"+name, parentIndex)
		if err != nil {
			return nil, err
		}
		node.Name = name
		rootTree.Insert(node)
	}

	rootTreeID, err := a.saveTree(rootTree)
	if err != nil {
		return nil, err
	}

	var parentID *ids.ID
	if parent != nil {
		id := parent.ID
		parentID = &id
	}

	snap := data.Snapshot{
		Parent:      parentID,
		Time:        time.Now(),
		Paths:       append([]string(nil), paths...),
		Tree:        rootTreeID,
		Description: description,
		Tags:        append([]string(nil), tags...),
	}

	saved, err := a.repo.SaveSnapshot(snap)
	if err != nil {
		return nil, errors.Wrap(err, "save snapshot")
	}
	if err := a.repo.Flush(); err != nil {
		return nil, errors.Wrap(err, "flush repository")
	}

	return &saved, nil
}

// buildParentIndex traverses parent's tree once via the streamer,
// materializing a path -> node map used for change detection (§4.10
// step 2). It is skipped entirely when there is no parent or FullScan
// is set.
func (a *Archiver) buildParentIndex(ctx context.Context, parent *data.Snapshot) (map[string]*data.Node, error) {
	if parent == nil || a.opts.FullScan {
		return nil, nil
	}

	index := make(map[string]*data.Node)
	for p, node := range walker.Stream(ctx, a.cache, a.repo, parent.Tree, walker.Filter{}) {
		index[p] = node
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return index, nil
}

// walkEntry processes one filesystem entry (file, directory, or
// symlink) at absPath, which is reported under relPath in the resulting
// Tree (§4.10 step 3).
func (a *Archiver) walkEntry(ctx context.Context, absPath, relPath string, parentIndex map[string]*data.Node) (*data.Node, error) {
	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, errors.Wrapf(err, "lstat %s", absPath)
	}

	uid, gid := nodeOwnership(info)
	node := &data.Node{
		Name:    filepath.Base(relPath),
		Mode:    info.Mode(),
		UID:     uid,
		GID:     gid,
		ModTime: info.ModTime(),
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(absPath)
		if err != nil {
			return nil, errors.Wrapf(err, "readlink %s", absPath)
		}
		node.Type = data.NodeTypeSymlink
		node.LinkTarget = target
		return node, nil

	case info.IsDir():
		node.Type = data.NodeTypeDir
		treeID, err := a.walkDir(ctx, absPath, relPath, parentIndex)
		if err != nil {
			return nil, err
		}
		node.Subtree = &treeID
		return node, nil

	default:
		node.Type = data.NodeTypeFile
		node.Size = uint64(info.Size())

		if a.reuseParentContent(relPath, node, parentIndex) {
			return node, nil
		}

		content, size, err := saveFileContent(ctx, a.repo, a.repo.Config().ChunkerPolynomial, absPath)
		if err != nil {
			return nil, err
		}
		node.Content = content
		node.Size = size
		return node, nil
	}
}

// reuseParentContent implements §4.10's change-detection reuse: if a
// parent entry exists at the same path with an identical (size, mtime,
// mode) fingerprint, and every one of its chunk ids is still present in
// the repository, the new node reuses the parent's chunk list verbatim
// with no file content read at all.
func (a *Archiver) reuseParentContent(relPath string, node *data.Node, parentIndex map[string]*data.Node) bool {
	if parentIndex == nil {
		return false
	}
	prev, ok := parentIndex[relPath]
	if !ok || prev.Type != data.NodeTypeFile {
		return false
	}
	if !node.SameFingerprint(prev) {
		return false
	}
	for _, id := range prev.Content {
		if !a.repo.HasBlob(id) {
			return false
		}
	}
	node.Content = prev.Content
	debug.Log("archiver: reused %d chunks for %s", len(prev.Content), relPath)
	return true
}

// walkDir recurses into a directory, processing its children
// concurrently (bounded by Options.ReadWorkers) and, once all children
// are materialized, builds and saves its Tree blob (§4.10 steps 3-4).
func (a *Archiver) walkDir(ctx context.Context, absDir, relDir string, parentIndex map[string]*data.Node) (ids.ID, error) {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return ids.Null, errors.Wrapf(err, "read dir %s", absDir)
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)

	nodes := make([]*data.Node, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.readWorkers())

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			node, err := a.walkEntry(gctx, filepath.Join(absDir, name), filepath.Join(relDir, name), parentIndex)
			if err != nil {
				return err
			}
			nodes[i] = node
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ids.Null, err
	}

	tree := data.NewTree()
	for _, n := range nodes {
		tree.Insert(n)
	}

	return a.saveTree(tree)
}

// saveTree serializes and saves tree, returning its id.
func (a *Archiver) saveTree(tree *data.Tree) (ids.ID, error) {
	raw, err := tree.Marshal()
	if err != nil {
		return ids.Null, errors.Wrap(err, "marshal tree")
	}
	id, _, _, err := a.repo.SaveBlob(data.KindTree, raw, true)
	if err != nil {
		return ids.Null, errors.Wrap(err, "save tree")
	}
	return id, nil
}
