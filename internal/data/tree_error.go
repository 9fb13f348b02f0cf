package data

import "github.com/strata-backup/strata/internal/ids"

// TreeErrorKind classifies a failure while decoding or dereferencing a
// tree (§7).
type TreeErrorKind int

const (
	// NotATree means the blob at ID did not decode as a valid Tree.
	NotATree TreeErrorKind = iota
	// MissingChunk means a file Node within the tree references a chunk
	// id that could not be resolved.
	MissingChunk
)

// TreeError reports a problem with a tree blob or one of the chunk ids
// it references.
type TreeError struct {
	Kind TreeErrorKind
	ID   ids.ID
}

func (e *TreeError) Error() string {
	switch e.Kind {
	case MissingChunk:
		return "data: tree references missing chunk " + e.ID.String()
	default:
		return "data: blob is not a valid tree: " + e.ID.String()
	}
}
