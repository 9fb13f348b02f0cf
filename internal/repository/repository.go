// Package repository implements the Object store component (§4.5) and
// repository-level layout (§6.2): it composes the pack, index, and
// crypto layers into SaveBlob/LoadBlob plus snapshot persistence.
// Grounded on spec §4.5 and §6.2 directly; the teacher's own
// internal/repository package body wasn't retrieved in this pack beyond
// its tests, so the wiring below composes internal/pack and
// internal/index the way spec §2's data-flow diagram describes.
package repository

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/strata-backup/strata/internal/backend"
	"github.com/strata-backup/strata/internal/chunker"
	"github.com/strata-backup/strata/internal/crypto"
	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/debug"
	"github.com/strata-backup/strata/internal/errors"
	"github.com/strata-backup/strata/internal/hashing"
	"github.com/strata-backup/strata/internal/ids"
	"github.com/strata-backup/strata/internal/index"
	"github.com/strata-backup/strata/internal/pack"
)

const (
	configPath   = "config"
	keysDir      = "keys"
	snapshotsDir = "snapshots"
	indexDir     = "index"
	packsDir     = "packs"

	// DefaultMaxPackSize is the soft cap (§4.4) on a pack's encoded byte
	// count before the active packer for its kind is sealed and a fresh
	// one started.
	DefaultMaxPackSize = 16 << 20
)

var configMagic = [4]byte{'S', 'T', 'R', 'C'}

const configFormatVersion byte = 1

// Config is the repository's public manifest (§1): the chunker
// polynomial and retention policy fixed at Init time, plus the
// repository's own random id.
type Config struct {
	ID                ids.ID               `json:"id"`
	ChunkerPolynomial chunker.Pol          `json:"chunker_polynomial"`
	Retention         data.RetentionPolicy `json:"retention"`
}

// ObjectErrorKind classifies a failure to locate or validate a stored
// blob (§7).
type ObjectErrorKind int

const (
	// NotFound means no index entry names the requested id.
	NotFound ObjectErrorKind = iota
	// Corrupt means the hash of the decrypted bytes does not match the
	// requested id.
	Corrupt
	// PackMalformed means a pack's trailer or footer could not be read.
	PackMalformed
)

// ObjectError reports a failure to locate or validate a stored blob.
type ObjectError struct {
	Kind ObjectErrorKind
	ID   ids.ID
}

func (e *ObjectError) Error() string {
	switch e.Kind {
	case NotFound:
		return "repository: object not found: " + e.ID.String()
	case Corrupt:
		return "repository: object corrupt, hash mismatch: " + e.ID.String()
	case PackMalformed:
		return "repository: pack malformed: " + e.ID.String()
	default:
		return "repository: object error: " + e.ID.String()
	}
}

// kindPacker is the active pack-in-progress for one blob kind (§5.6):
// an in-memory spool plus the packer writing sealed blobs to it, guarded
// by its own mutex so different kinds never contend with each other.
// The packer writes through a hashing.Writer so the pack's id is
// accumulated incrementally as blobs are sealed into it, rather than
// requiring a second full pass over the finalized bytes at flush time.
type kindPacker struct {
	mu     sync.Mutex
	buf    *bytes.Buffer
	hash   *hashing.Writer
	packer *pack.Packer
}

// Repository is the object store: it turns SaveBlob/LoadBlob calls into
// sealed packs and an encrypted index, and snapshot blobs into files
// under snapshots/ (§4.5, §6.2).
type Repository struct {
	be  backend.Backend
	key *crypto.Key
	cfg Config
	idx *index.MasterIndex

	maxPackSize uint
	kinds       [4]*kindPacker
}

func newKindPacker(key *crypto.Key) *kindPacker {
	buf := &bytes.Buffer{}
	hash := hashing.NewWriter(buf)
	return &kindPacker{buf: buf, hash: hash, packer: pack.NewPacker(key, hash)}
}

// Init creates the on-disk layout (§6.2: keys/, snapshots/, index/, the
// 256 packs/<hex> fan-out subdirectories), writes the initial config
// blob, and returns an empty, ready-to-use Repository.
func Init(be backend.Backend, key *crypto.Key, pol chunker.Pol, retention data.RetentionPolicy) (*Repository, error) {
	if !be.RootExists() {
		if err := be.Create(); err != nil {
			return nil, errors.Wrap(err, "create repository root")
		}
	}

	for _, dir := range []string{keysDir, snapshotsDir, indexDir, packsDir} {
		if err := be.CreateDirAll(dir); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	for i := 0; i < 256; i++ {
		sub := path.Join(packsDir, fmt.Sprintf("%02x", i))
		if err := be.CreateDirAll(sub); err != nil {
			return nil, errors.Wrapf(err, "create %s", sub)
		}
	}

	var repoID ids.ID
	if _, err := rand.Read(repoID[:]); err != nil {
		return nil, errors.Wrap(err, "generate repository id")
	}

	cfg := Config{ID: repoID, ChunkerPolynomial: pol, Retention: retention}
	if err := writeConfig(be, key, cfg); err != nil {
		return nil, err
	}

	repo := &Repository{
		be:          be,
		key:         key,
		cfg:         cfg,
		idx:         index.NewMasterIndex(),
		maxPackSize: DefaultMaxPackSize,
	}
	for i := range repo.kinds {
		repo.kinds[i] = newKindPacker(key)
	}
	return repo, nil
}

// Open loads an existing repository's config and every index shard.
func Open(be backend.Backend, key *crypto.Key) (*Repository, error) {
	cfg, err := readConfig(be, key)
	if err != nil {
		return nil, err
	}

	idx := index.NewMasterIndex()
	if err := idx.Load(be, key); err != nil {
		return nil, errors.Wrap(err, "load index")
	}

	repo := &Repository{
		be:          be,
		key:         key,
		cfg:         cfg,
		idx:         idx,
		maxPackSize: DefaultMaxPackSize,
	}
	for i := range repo.kinds {
		repo.kinds[i] = newKindPacker(key)
	}
	return repo, nil
}

// Config returns the repository's public manifest.
func (r *Repository) Config() Config {
	return r.cfg
}

func writeConfig(be backend.Backend, key *crypto.Key, cfg Config) error {
	plain, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	sealed, err := crypto.Seal(key, plain)
	if err != nil {
		return errors.Wrap(err, "seal config")
	}

	out := make([]byte, 0, 5+len(sealed))
	out = append(out, configMagic[:]...)
	out = append(out, configFormatVersion)
	out = append(out, sealed...)

	if err := be.Write(configPath, out); err != nil {
		return errors.Wrap(err, "write config")
	}
	return nil
}

func readConfig(be backend.Backend, key *crypto.Key) (Config, error) {
	raw, err := be.Read(configPath)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	if len(raw) < 5 {
		return Config{}, errors.New("repository: config file too short")
	}
	var magic [4]byte
	copy(magic[:], raw[:4])
	if magic != configMagic {
		return Config{}, errors.New("repository: config magic mismatch")
	}
	if raw[4] != configFormatVersion {
		return Config{}, errors.Errorf("repository: unsupported config format version %d", raw[4])
	}

	plain, err := crypto.Open(key, raw[5:])
	if err != nil {
		return Config{}, errors.Wrap(err, "open config")
	}

	var cfg Config
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	return cfg, nil
}

// SaveBlob stores plaintext under kind, deduplicating against already
// known ids, and returns its id plus the raw and (newly written, zero if
// deduplicated) encoded byte counts (§4.5).
//
// The duplicate check, the seal-and-append onto the in-memory pack
// buffer and the pending index entry all happen while holding the active
// packer's mutex for kind, so a second save of the same content under
// the same kind finds the first one's index entry. Kinds have separate
// mutexes: identical bytes saved concurrently under two different kinds
// can both be appended, and only one copy is then referenced by the
// index. When the append fills the pack, flushKind seals and writes it
// while holding the same mutex, so other savers of that kind wait for
// that I/O.
func (r *Repository) SaveBlob(kind data.BlobKind, plaintext []byte, compress bool) (id ids.ID, rawSize, encodedSize int, err error) {
	id = hashing.Hash(plaintext)

	kp := r.kinds[int(kind)]
	kp.mu.Lock()

	if r.idx.Has(id) {
		kp.mu.Unlock()
		return id, len(plaintext), 0, nil
	}

	n, err := kp.packer.Add(kind, id, plaintext, compress)
	if err != nil {
		kp.mu.Unlock()
		return ids.Null, 0, 0, errors.Wrap(err, "add blob to pack")
	}

	offset := kp.packer.Size() - uint(n)
	r.idx.Store(id, ids.Null, kind, uint64(offset), uint32(n), uint32(len(plaintext)))

	full := kp.packer.Size() >= r.maxPackSize
	kp.mu.Unlock()

	if full {
		if err := r.flushKind(kind); err != nil {
			return ids.Null, 0, 0, err
		}
	}

	return id, len(plaintext), n, nil
}

// flushKind seals the active packer for kind, writes the resulting pack
// file under a temporary name and renames it to its fan-out path, rewrites the pending index entries for the
// blobs it contains with the pack's real id (they were recorded with
// ids.Null as a placeholder while the pack was still open), and starts a
// fresh packer for the kind.
func (r *Repository) flushKind(kind data.BlobKind) error {
	kp := r.kinds[int(kind)]
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if kp.packer.Count() == 0 {
		return nil
	}

	if err := kp.packer.Finalize(); err != nil {
		return errors.Wrap(err, "finalize pack")
	}

	packBytes := kp.buf.Bytes()
	packID := kp.hash.Sum()

	entries, _, err := pack.List(r.key, bytes.NewReader(packBytes), int64(len(packBytes)))
	if err != nil {
		return errors.Wrap(err, "list finalized pack")
	}

	dest := path.Join(packsDir, fmt.Sprintf("%02x", packID[0]), packID.String())
	tmp := dest + ".tmp"
	if err := r.be.Write(tmp, packBytes); err != nil {
		return errors.Wrap(err, "write pack")
	}
	if err := r.be.Rename(tmp, dest); err != nil {
		return errors.Wrap(err, "publish pack")
	}

	for _, e := range entries {
		r.idx.Store(e.ID, packID, e.Kind, e.Offset, e.EncodedLength, e.RawLength)
	}

	debug.Log("flushed %s pack %s with %d blobs", kind, packID, len(entries))

	r.kinds[int(kind)] = newKindPacker(r.key)
	return nil
}

// Flush seals every kind's active packer and writes out a fresh index
// shard for everything accumulated since the last Flush, even if it
// hasn't reached the soft size cap. Callers (the archiver, at the end of
// a backup run) call this once at the end of a run (§4.5, "On store
// close").
func (r *Repository) Flush() error {
	for kind := data.BlobKind(0); int(kind) < len(r.kinds); kind++ {
		if err := r.flushKind(kind); err != nil {
			return err
		}
	}
	if _, err := r.idx.Save(r.be, r.key); err != nil {
		return errors.Wrap(err, "save index")
	}
	return nil
}

// HasBlob reports whether id is already known to the store, the check
// the archiver's change-detection reuse path (§4.10 step 3) uses to
// decide whether a parent file's chunk list can still be trusted
// without re-reading its content.
func (r *Repository) HasBlob(id ids.ID) bool {
	return r.idx.Has(id)
}

// LoadBlob returns the plaintext for id, verifying that its hash matches
// id (§4.5, §7 ObjectError{Corrupt}).
func (r *Repository) LoadBlob(id ids.ID) ([]byte, error) {
	entry, ok := r.idx.Lookup(id)
	if !ok {
		return nil, &ObjectError{Kind: NotFound, ID: id}
	}

	if entry.PackID == ids.Null {
		// Still sitting in an unflushed in-memory packer.
		kp := r.kinds[int(entry.Kind)]
		kp.mu.Lock()
		packBytes := append([]byte(nil), kp.buf.Bytes()...)
		kp.mu.Unlock()

		plain, err := pack.ReadBlob(r.key, bytes.NewReader(packBytes), pack.Entry{
			ID: id, Kind: entry.Kind, Offset: entry.Offset,
			EncodedLength: entry.EncodedLength, RawLength: entry.RawLength,
		})
		if err != nil {
			return nil, errors.Wrap(err, "read unflushed blob")
		}
		return verifyBlob(id, plain)
	}

	packPath := path.Join(packsDir, fmt.Sprintf("%02x", entry.PackID[0]), entry.PackID.String())
	packBytes, err := r.be.Read(packPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read pack %s", entry.PackID)
	}

	plain, err := pack.ReadBlob(r.key, bytes.NewReader(packBytes), pack.Entry{
		ID: id, Kind: entry.Kind, Offset: entry.Offset,
		EncodedLength: entry.EncodedLength, RawLength: entry.RawLength,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read blob %s from pack %s", id, entry.PackID)
	}
	return verifyBlob(id, plain)
}

var blobDecoder, _ = zstd.NewReader(nil)

func verifyBlob(id ids.ID, plain []byte) ([]byte, error) {
	if hashing.Hash(plain) == id {
		return plain, nil
	}
	// Index entries do not record whether a blob was stored compressed,
	// so bytes that do not hash to id are tried once more as a zstd frame
	// before the blob is reported as corrupt.
	if decoded, err := blobDecoder.DecodeAll(plain, nil); err == nil && hashing.Hash(decoded) == id {
		return decoded, nil
	}
	return nil, &ObjectError{Kind: Corrupt, ID: id}
}

// SaveSnapshot encrypts and writes a Snapshot blob, assigning it a fresh
// id and returning the stored Snapshot.
func (r *Repository) SaveSnapshot(s data.Snapshot) (data.Snapshot, error) {
	s.ID = ids.Null
	plain, err := json.Marshal(s)
	if err != nil {
		return data.Snapshot{}, errors.Wrap(err, "marshal snapshot")
	}

	id := hashing.Hash(plain)
	sealed, err := crypto.Seal(r.key, plain)
	if err != nil {
		return data.Snapshot{}, errors.Wrap(err, "seal snapshot")
	}

	if err := r.be.Write(path.Join(snapshotsDir, id.String()), sealed); err != nil {
		return data.Snapshot{}, errors.Wrap(err, "write snapshot")
	}

	s.ID = id
	return s, nil
}

// LoadSnapshot reads and decrypts one snapshot by id.
func (r *Repository) LoadSnapshot(id ids.ID) (data.Snapshot, error) {
	sealed, err := r.be.Read(path.Join(snapshotsDir, id.String()))
	if err != nil {
		return data.Snapshot{}, errors.Wrapf(err, "read snapshot %s", id)
	}
	plain, err := crypto.Open(r.key, sealed)
	if err != nil {
		return data.Snapshot{}, errors.Wrapf(err, "open snapshot %s", id)
	}
	var s data.Snapshot
	if err := json.Unmarshal(plain, &s); err != nil {
		return data.Snapshot{}, errors.Wrapf(err, "unmarshal snapshot %s", id)
	}
	s.ID = id
	return s, nil
}

// LoadAllSnapshots reads and decrypts every snapshot in the repository,
// in no particular order (callers that need time order use
// data.SortedByTime).
func (r *Repository) LoadAllSnapshots() ([]data.Snapshot, error) {
	names, err := r.be.ReadDir(snapshotsDir)
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}

	sort.Strings(names)
	out := make([]data.Snapshot, 0, len(names))
	for _, name := range names {
		id, err := ids.ParseID(name)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid snapshot filename %q", name)
		}
		s, err := r.LoadSnapshot(id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
