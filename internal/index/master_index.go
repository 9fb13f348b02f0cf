package index

import (
	"encoding/json"
	"path"
	"sync"

	"github.com/strata-backup/strata/internal/backend"
	"github.com/strata-backup/strata/internal/crypto"
	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/debug"
	"github.com/strata-backup/strata/internal/errors"
	"github.com/strata-backup/strata/internal/hashing"
	"github.com/strata-backup/strata/internal/ids"
)

// dirName is the on-disk directory holding one file per index shard
// (§6.2).
const dirName = "index"

// IndexErrorKind classifies an inconsistency detected while loading
// index shards (§7).
type IndexErrorKind int

const (
	// ConflictingEntries means the same id maps to different entries
	// across shards. Load does not fail on such a conflict: it keeps the
	// entry from the shard with the lexicographically greatest name and
	// logs the conflict. Shard mtimes are not consulted.
	ConflictingEntries IndexErrorKind = iota
)

// IndexError reports an inconsistency between index shards.
type IndexError struct {
	Kind IndexErrorKind
	ID   ids.ID
}

func (e *IndexError) Error() string {
	return "index: conflicting entries for " + e.ID.String()
}

// MasterIndex holds the union of every loaded shard plus a mutable
// "pending" shard for entries not yet flushed to disk (§5.5).
type MasterIndex struct {
	mu      sync.Mutex
	merged  *indexMap
	pending *indexMap
}

// NewMasterIndex returns an empty MasterIndex.
func NewMasterIndex() *MasterIndex {
	return &MasterIndex{
		merged:  newIndexMap(),
		pending: newIndexMap(),
	}
}

// Has reports whether id is known to the index, in either the merged or
// pending view.
func (mi *MasterIndex) Has(id ids.ID) bool {
	_, ok := mi.Lookup(id)
	return ok
}

// Lookup returns the entry for id, preferring the pending shard (the
// most recently stored entries) over the merged on-disk view.
func (mi *MasterIndex) Lookup(id ids.ID) (Entry, bool) {
	if e, ok := mi.pending.get(id); ok {
		return e, true
	}
	return mi.merged.get(id)
}

// Store records a freshly written blob's location in the pending shard.
func (mi *MasterIndex) Store(id, packID ids.ID, kind data.BlobKind, offset uint64, encodedLength, rawLength uint32) {
	mi.pending.add(id, packID, kind, offset, encodedLength, rawLength)
}

// PendingCount returns the number of entries accumulated in the pending
// shard since the last Save.
func (mi *MasterIndex) PendingCount() int {
	return mi.pending.len()
}

// Save serializes the pending shard, encrypts it, writes it to
// index/<shard_id>, and folds its entries into the merged view. It
// returns the shard's id (the hash of the encrypted bytes, matching the
// pack id construction used elsewhere).
func (mi *MasterIndex) Save(be backend.Backend, key *crypto.Key) (ids.ID, error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	if mi.pending.len() == 0 {
		return ids.Null, nil
	}

	s := shard{}
	mi.pending.foreach(func(e Entry) bool {
		s.Entries = append(s.Entries, shardEntry{
			ID:            e.ID,
			PackID:        e.PackID,
			Kind:          e.Kind,
			Offset:        e.Offset,
			EncodedLength: e.EncodedLength,
			RawLength:     e.RawLength,
		})
		return true
	})

	plain, err := json.Marshal(s)
	if err != nil {
		return ids.Null, errors.Wrap(err, "marshal index shard")
	}

	sealed, err := crypto.Seal(key, plain)
	if err != nil {
		return ids.Null, errors.Wrap(err, "seal index shard")
	}

	shardID := hashing.Hash(sealed)

	if err := be.Write(path.Join(dirName, shardID.String()), sealed); err != nil {
		return ids.Null, errors.Wrap(err, "write index shard")
	}

	for _, e := range s.Entries {
		mi.merged.add(e.ID, e.PackID, e.Kind, e.Offset, e.EncodedLength, e.RawLength)
	}
	mi.pending = newIndexMap()

	debug.Log("saved index shard %s with %d entries", shardID, len(s.Entries))
	return shardID, nil
}

// Load lists index/, decrypts and unions every shard into the merged
// view. On a conflict (same id present with different pack
// coordinates across shards), the entry from the shard with the
// lexicographically greatest name wins. The backend contract has no
// stat/mtime operation, so shard mtimes are not consulted; shard names
// are hashes of their sealed contents, so this order is unrelated to
// the order in which the shards were written. Every conflict is logged
// via debug.Log.
func (mi *MasterIndex) Load(be backend.Backend, key *crypto.Key) error {
	names, err := be.ReadDir(dirName)
	if err != nil {
		return errors.Wrap(err, "list index shards")
	}

	merged := newIndexMap()
	seenAt := make(map[ids.ID]string)

	for _, name := range names {
		sealed, err := be.Read(path.Join(dirName, name))
		if err != nil {
			return errors.Wrapf(err, "read index shard %s", name)
		}
		plain, err := crypto.Open(key, sealed)
		if err != nil {
			return errors.Wrapf(err, "open index shard %s", name)
		}
		var s shard
		if err := json.Unmarshal(plain, &s); err != nil {
			return errors.Wrapf(err, "unmarshal index shard %s", name)
		}

		for _, e := range s.Entries {
			if existing, ok := merged.get(e.ID); ok {
				if existing.PackID != e.PackID || existing.Offset != e.Offset {
					winner := name
					if seenAt[e.ID] > name {
						winner = seenAt[e.ID]
					}
					debug.Log("conflicting entries for %s across shards %s and %s, preferring %s",
						e.ID, seenAt[e.ID], name, winner)
					if winner != name {
						continue
					}
				}
			}
			merged.add(e.ID, e.PackID, e.Kind, e.Offset, e.EncodedLength, e.RawLength)
			seenAt[e.ID] = name
		}
	}

	mi.mu.Lock()
	mi.merged = merged
	mi.mu.Unlock()
	return nil
}

// MergedCount returns the number of entries in the on-disk (loaded)
// view, excluding pending entries.
func (mi *MasterIndex) MergedCount() int {
	return mi.merged.len()
}
