package data

import (
	"encoding/json"

	"github.com/strata-backup/strata/internal/errors"
)

// ErrTreeNotOrdered is returned by Validate when a decoded tree's nodes
// are not in strict ascending, unique name order, the same invariant
// the teacher's streaming tree decoder enforces while reading (§4.8).
var ErrTreeNotOrdered = errors.New("data: tree nodes are not in strictly ascending, unique name order")

// Tree is an ordered list of Nodes (§3). Unlike the teacher's current,
// streaming-decoded Tree (internal/data/tree.go's TreeJSONBuilder /
// NewTreeNodeIterator, built for trees too large to hold in memory),
// this module's Tree cache (§5.10) always keeps fully-decoded trees in
// memory, so Tree here is a plain whole-value JSON document.
type Tree struct {
	Nodes Nodes `json:"nodes"`
}

// NewTree returns an empty Tree.
func NewTree() *Tree {
	return &Tree{}
}

// Insert appends node to the tree. Callers are expected to insert in
// ascending name order (the archiver's walk already visits children in
// that order); Validate is the backstop that catches violations.
func (t *Tree) Insert(node *Node) {
	t.Nodes = append(t.Nodes, node)
}

// Validate enforces the lexicographic-and-unique name invariant (§4.8)
// before a tree is trusted, whether freshly built by the archiver or
// just decoded from a loaded blob.
func (t *Tree) Validate() error {
	for i := 1; i < len(t.Nodes); i++ {
		if t.Nodes[i-1].Name >= t.Nodes[i].Name {
			return ErrTreeNotOrdered
		}
	}
	return nil
}

// Find returns the node named name, or nil if no such node exists.
// Since Nodes is kept sorted, this could binary search; a linear scan
// is used here because trees in this module's test fixtures are small
// and the archiver's own lookups go through a path map (§5.11), not
// through Tree.Find.
func (t *Tree) Find(name string) *Node {
	for _, n := range t.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Marshal serializes the tree as a lexicographically-ordered JSON
// document, the tree blob encoding locked in by DESIGN.md's Open
// Question resolution (matches both the teacher and the mapache
// source).
func (t *Tree) Marshal() ([]byte, error) {
	t.Nodes.Sort()
	data, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "marshal tree")
	}
	return data, nil
}

// UnmarshalTree decodes a tree blob and validates its ordering
// invariant.
func UnmarshalTree(raw []byte) (*Tree, error) {
	var t Tree
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errors.Wrap(err, "unmarshal tree")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
