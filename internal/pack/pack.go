// Package pack implements the binary pack format (§4.4): many sealed
// blobs followed by a sealed directory and a plaintext trailer. Adapted
// from the teacher's repository/pack package, whose implementation was
// not retrieved in this pack but whose test-exposed API (NewPacker/Add/
// Finalize/Size, List) is preserved exactly.
package pack

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/strata-backup/strata/internal/crypto"
	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/errors"
	"github.com/strata-backup/strata/internal/ids"
)

// Magic identifies a finalized pack's plaintext trailer.
var Magic = [4]byte{'S', 'T', 'R', 'P'}

// FormatVersion is the on-disk pack format version.
const FormatVersion uint8 = 1

// trailerSize is the fixed plaintext trailer: footerOffset(8) +
// footerLength(8) + magic(4) + formatVersion(1).
const trailerSize = 8 + 8 + 4 + 1

// Entry describes one blob inside a pack's directory (§4.4).
type Entry struct {
	ID            ids.ID       `json:"id"`
	Kind          data.BlobKind `json:"kind"`
	Offset        uint64       `json:"offset"`
	EncodedLength uint32       `json:"encoded_length"`
	RawLength     uint32       `json:"raw_length"`
	Compressed    bool         `json:"compressed"`
}

var encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
var decoder, _ = zstd.NewReader(nil)

// Packer assembles one pack file. It is not safe for concurrent use by
// multiple goroutines; the object store's packer mutex (§4.5, §5) owns
// serialization of calls to Add.
type Packer struct {
	key     *crypto.Key
	w       io.Writer
	offset  uint64
	entries []Entry
}

// NewPacker returns a Packer that writes sealed blobs to w as they are
// added.
func NewPacker(key *crypto.Key, w io.Writer) *Packer {
	return &Packer{key: key, w: w}
}

// Add compresses (when requested), seals, and appends plaintext as one
// blob of the given kind/id. It returns the number of encoded bytes
// written to w for this blob (nonce+ciphertext+tag, after optional
// compression).
func (p *Packer) Add(kind data.BlobKind, id ids.ID, plaintext []byte, compress bool) (int, error) {
	rawLength := len(plaintext)

	payload := plaintext
	if compress {
		payload = encoder.EncodeAll(plaintext, make([]byte, 0, len(plaintext)))
	}

	sealed, err := crypto.Seal(p.key, payload)
	if err != nil {
		return 0, errors.Wrap(err, "seal blob")
	}

	n, err := p.w.Write(sealed)
	if err != nil {
		return 0, errors.Wrap(err, "write blob")
	}

	p.entries = append(p.entries, Entry{
		ID:            id,
		Kind:          kind,
		Offset:        p.offset,
		EncodedLength: uint32(n),
		RawLength:     uint32(rawLength),
		Compressed:    compress,
	})
	p.offset += uint64(n)

	return n, nil
}

// Size returns the number of encoded bytes written to w so far,
// excluding the footer and trailer that Finalize will add. The object
// store consults this to decide when the soft pack-size cap (§4.4) is
// exceeded.
func (p *Packer) Size() uint {
	return uint(p.offset)
}

// Count returns the number of blobs added so far.
func (p *Packer) Count() int {
	return len(p.entries)
}

// Finalize writes the sealed directory and the plaintext trailer to w,
// completing the pack byte stream. The caller is responsible for hashing
// everything written through w (including what Add already wrote) to
// obtain the pack id, since the packer itself only ever sees an
// io.Writer and never buffers the whole stream.
func (p *Packer) Finalize() error {
	footerPlain, err := json.Marshal(p.entries)
	if err != nil {
		return errors.Wrap(err, "marshal pack directory")
	}

	footerSealed, err := crypto.Seal(p.key, footerPlain)
	if err != nil {
		return errors.Wrap(err, "seal pack directory")
	}

	footerOffset := p.offset
	n, err := p.w.Write(footerSealed)
	if err != nil {
		return errors.Wrap(err, "write pack directory")
	}
	p.offset += uint64(n)

	trailer := make([]byte, trailerSize)
	binary.LittleEndian.PutUint64(trailer[0:8], footerOffset)
	binary.LittleEndian.PutUint64(trailer[8:16], uint64(n))
	copy(trailer[16:20], Magic[:])
	trailer[20] = FormatVersion

	if _, err := p.w.Write(trailer); err != nil {
		return errors.Wrap(err, "write pack trailer")
	}
	p.offset += uint64(len(trailer))

	return nil
}

// List reads a finalized pack's trailer and directory and returns its
// entries sorted by offset. size is the total length of the pack byte
// stream behind rd.
func List(key *crypto.Key, rd io.ReaderAt, size int64) ([]Entry, int64, error) {
	if size < trailerSize {
		return nil, 0, errors.Errorf("pack: too small to contain a trailer (%d bytes)", size)
	}

	trailer := make([]byte, trailerSize)
	if _, err := rd.ReadAt(trailer, size-trailerSize); err != nil {
		return nil, 0, errors.Wrap(err, "read pack trailer")
	}

	var magic [4]byte
	copy(magic[:], trailer[16:20])
	if magic != Magic {
		return nil, 0, errors.New("pack: trailer magic mismatch")
	}
	if trailer[20] != FormatVersion {
		return nil, 0, errors.Errorf("pack: unsupported format version %d", trailer[20])
	}

	footerOffset := binary.LittleEndian.Uint64(trailer[0:8])
	footerLength := binary.LittleEndian.Uint64(trailer[8:16])

	if int64(footerOffset+footerLength) > size-trailerSize {
		return nil, 0, errors.New("pack: footer extends past trailer")
	}

	footerSealed := make([]byte, footerLength)
	if _, err := rd.ReadAt(footerSealed, int64(footerOffset)); err != nil {
		return nil, 0, errors.Wrap(err, "read pack directory")
	}

	footerPlain, err := crypto.Open(key, footerSealed)
	if err != nil {
		return nil, 0, errors.Wrap(err, "open pack directory")
	}

	var entries []Entry
	if err := json.Unmarshal(footerPlain, &entries); err != nil {
		return nil, 0, errors.Wrap(err, "unmarshal pack directory")
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Offset < entries[j].Offset })
	return entries, int64(footerOffset), nil
}

// ReadBlob reads and opens (and, if needed, decompresses) the encoded
// bytes for entry e from rd, verifying nothing about id itself — that
// check belongs to the object store, which is the only layer that knows
// the expected id.
func ReadBlob(key *crypto.Key, rd io.ReaderAt, e Entry) ([]byte, error) {
	encoded := make([]byte, e.EncodedLength)
	if _, err := rd.ReadAt(encoded, int64(e.Offset)); err != nil {
		return nil, errors.Wrap(err, "read blob")
	}

	plain, err := crypto.Open(key, encoded)
	if err != nil {
		return nil, err
	}

	if e.Compressed {
		plain, err = decoder.DecodeAll(plain, make([]byte, 0, e.RawLength))
		if err != nil {
			return nil, errors.Wrap(err, "decompress blob")
		}
	}

	return plain, nil
}
