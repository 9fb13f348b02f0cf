package data

import (
	"os"
	"sort"
	"time"

	"github.com/strata-backup/strata/internal/ids"
)

// NodeType distinguishes the three entry kinds a Tree can hold (§3).
// Simplified from the teacher's broader NodeType set (dev/chardev/fifo/
// socket/irregular), which this module's Non-goals don't need — a plain
// backup archiver only ever produces regular files, directories, and
// symlinks.
type NodeType string

const (
	NodeTypeFile    NodeType = "file"
	NodeTypeDir     NodeType = "dir"
	NodeTypeSymlink NodeType = "symlink"
)

// Node is one entry in a Tree: a file, directory, or symlink, together
// with the metadata needed to restore it faithfully (§3).
type Node struct {
	Name string   `json:"name"`
	Type NodeType `json:"type"`

	Mode       os.FileMode `json:"mode"`
	UID        uint32      `json:"uid"`
	GID        uint32      `json:"gid"`
	ModTime    time.Time   `json:"mtime"`
	AccessTime time.Time   `json:"atime"`
	ChangeTime time.Time   `json:"ctime,omitempty"`
	Size       uint64      `json:"size"`

	// Content holds the ordered chunk ids for a File node.
	Content ids.IDs `json:"content,omitempty"`
	// Subtree holds the child Tree's id for a Dir node.
	Subtree *ids.ID `json:"subtree,omitempty"`
	// LinkTarget holds the symlink target for a Symlink node.
	LinkTarget string `json:"linktarget,omitempty"`
}

// Fingerprint is the (size, mtime, mode) triple the archiver uses to
// decide whether a file is unchanged from its parent snapshot entry
// (§4.10, step 3: "Regular file").
type Fingerprint struct {
	Size    uint64
	ModTime time.Time
	Mode    os.FileMode
}

// Fingerprint returns n's change-detection fingerprint.
func (n *Node) Fingerprint() Fingerprint {
	return Fingerprint{Size: n.Size, ModTime: n.ModTime, Mode: n.Mode}
}

// SameFingerprint reports whether n and other have an identical
// (size, mtime, mode) triple. ModTime is compared with Equal, not ==:
// a parent node's ModTime comes back from a JSON round-trip (typically
// UTC or a FixedZone), while a freshly os.Lstat'd node carries Local,
// and time.Time's == compares the location pointer along with the
// wall/ext fields, so same-instant values in different zones would
// otherwise never be judged equal.
func (n *Node) SameFingerprint(other *Node) bool {
	a, b := n.Fingerprint(), other.Fingerprint()
	return a.Size == b.Size && a.Mode == b.Mode && a.ModTime.Equal(b.ModTime)
}

// Equals reports whether two nodes describe the same content and
// metadata, the way the teacher's Node.Equals does for its test suite.
func (n *Node) Equals(other *Node) bool {
	if n.Name != other.Name || n.Type != other.Type {
		return false
	}
	if n.Mode != other.Mode || n.UID != other.UID || n.GID != other.GID {
		return false
	}
	if !n.ModTime.Equal(other.ModTime) {
		return false
	}
	if n.Size != other.Size {
		return false
	}
	switch n.Type {
	case NodeTypeFile:
		return n.Content.Equal(other.Content)
	case NodeTypeDir:
		if n.Subtree == nil || other.Subtree == nil {
			return n.Subtree == other.Subtree
		}
		return *n.Subtree == *other.Subtree
	case NodeTypeSymlink:
		return n.LinkTarget == other.LinkTarget
	}
	return true
}

// Nodes is a slice of nodes sortable by name, the representation a Tree
// keeps internally so that lexicographic order (§4.8) is structural
// rather than something every caller must remember to maintain.
type Nodes []*Node

func (n Nodes) Len() int           { return len(n) }
func (n Nodes) Less(i, j int) bool { return n[i].Name < n[j].Name }
func (n Nodes) Swap(i, j int)      { n[i], n[j] = n[j], n[i] }

// Sort sorts nodes in place by name.
func (n Nodes) Sort() { sort.Sort(n) }
