// Package chunker implements the Chunker component (§4.6) as a thin
// wrapper over github.com/restic/chunker, the teacher's own
// content-defined chunking library: a gear-hash/Rabin-fingerprint
// rolling hash with a fixed 512 KiB..8 MiB range and normalization
// level baked into the library itself.
package chunker

import (
	"io"
	"iter"

	upstream "github.com/restic/chunker"

	"github.com/strata-backup/strata/internal/errors"
)

// Pol is a chunker polynomial: the degree-53 irreducible polynomial
// that seeds the rolling hash. It is generated once, at repository
// init, and persisted in the repository config for the life of the
// repository — changing it would change every future chunk boundary
// and break deduplication against existing data (spec §3).
type Pol = upstream.Pol

// MinSize and MaxSize are the library's fixed chunk size bounds.
const (
	MinSize = upstream.MinSize
	MaxSize = upstream.MaxSize
)

// NewPolynomial draws a fresh random irreducible polynomial, to be
// called exactly once per repository at init time.
func NewPolynomial() (Pol, error) {
	pol, err := upstream.RandomPolynomial()
	if err != nil {
		return 0, errors.Wrap(err, "generate chunker polynomial")
	}
	return pol, nil
}

// Chunks returns an iterator over (offset, bytes) pairs produced by
// content-defined chunking of r under polynomial pol, together with an
// errFunc that must be called once the iteration has finished (whether
// by running to completion or because yield returned false early). A
// read error other than io.EOF stops the sequence with no further
// chunks yielded; without errFunc that would be indistinguishable from
// a clean, complete read, silently truncating the sequence and
// violating the "concatenation reproduces the input exactly" guarantee
// (§4.6). Each yielded slice is only valid until the next iteration
// step, matching the underlying library's buffer-reuse contract —
// callers that need to retain a chunk's bytes past that point (e.g. to
// seal it into a pack) must copy it first.
func Chunks(r io.Reader, pol Pol) (seq iter.Seq2[int64, []byte], errFunc func() error) {
	var readErr error
	seq = func(yield func(int64, []byte) bool) {
		c := upstream.New(r, pol)
		buf := make([]byte, 0, MaxSize)
		var offset int64
		for {
			chunk, err := c.Next(buf)
			if err == io.EOF {
				return
			}
			if err != nil {
				readErr = errors.Wrap(err, "read chunk")
				return
			}
			buf = chunk.Data

			if !yield(offset, chunk.Data) {
				return
			}
			offset += int64(chunk.Length)
		}
	}
	return seq, func() error { return readErr }
}
