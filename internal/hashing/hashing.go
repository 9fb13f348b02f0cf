// Package hashing implements the Hasher component (§4.1): a deterministic,
// streaming-capable 256-bit cryptographic digest used both for object IDs
// and for pack IDs.
package hashing

import (
	"io"

	"lukechampine.com/blake3"

	"github.com/strata-backup/strata/internal/ids"
)

// Hash computes the BLAKE3-256 digest of b. It is deterministic and
// unsalted: equal input always produces an equal ID.
func Hash(b []byte) ids.ID {
	var id ids.ID
	sum := blake3.Sum256(b)
	copy(id[:], sum[:])
	return id
}

// Writer hashes data as it is written through it, so large files can be
// hashed incrementally without being loaded into memory whole.
type Writer struct {
	h   *blake3.Hasher
	dst io.Writer
}

// NewWriter returns a Writer that hashes every byte written to it and, if
// dst is non-nil, also copies the bytes through to dst (so the hash can be
// computed in the same pass as, for example, spooling the bytes to a pack
// buffer).
func NewWriter(dst io.Writer) *Writer {
	return &Writer{h: blake3.New(32, nil), dst: dst}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.h.Write(p)
	if err != nil {
		return n, err
	}
	if w.dst != nil {
		return w.dst.Write(p)
	}
	return n, nil
}

// Sum returns the ID hashed so far without finalizing the underlying
// hasher, so writes may continue afterwards.
func (w *Writer) Sum() ids.ID {
	var id ids.ID
	sum := w.h.Sum(nil)
	copy(id[:], sum)
	return id
}
