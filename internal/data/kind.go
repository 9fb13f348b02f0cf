// Package data holds the domain model shared by every layer above the
// raw object store: blob kinds, the file/directory Tree, and the
// Snapshot that names a point-in-time root (§3).
package data

// BlobKind classifies the plaintext an object id names. Kind travels
// alongside every index entry and pack directory entry, and is
// authenticated as part of the sealed pack directory and index shard;
// it is not stored inside each blob's own ciphertext.
type BlobKind uint8

const (
	// KindData is a file chunk.
	KindData BlobKind = iota
	// KindTree is a directory listing.
	KindTree
	// KindSnapshot is a named root.
	KindSnapshot
	// KindManifest is an index shard.
	KindManifest
)

// String renders the kind the way it appears in debug traces.
func (k BlobKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindTree:
		return "tree"
	case KindSnapshot:
		return "snapshot"
	case KindManifest:
		return "manifest"
	default:
		return "unknown"
	}
}
