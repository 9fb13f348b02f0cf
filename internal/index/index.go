// Package index implements the Index component (§4.5, §5.5): the
// mapping from object id to (pack id, offset, length, kind), held both
// in memory and as encrypted on-disk shards. Grounded on the teacher's
// internal/index package, whose indexmap_test.go/master_index_test.go
// fix the add/get/foreach and Has/Lookup/Store/Save/Load call shapes
// (its implementation file wasn't retrieved in this pack).
package index

import (
	"sort"
	"sync"

	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/ids"
)

// Entry is one index record: everything needed to locate and interpret
// a blob inside a pack.
type Entry struct {
	ID            ids.ID
	PackID        ids.ID
	Kind          data.BlobKind
	Offset        uint64
	EncodedLength uint32
	RawLength     uint32
}

// indexMap is an open, mutex-guarded id→entry table. Pack ids are
// stored once in a side table and referenced by a small integer index,
// the same compaction the teacher's indexMap performs, so that entries
// don't repeat a 32-byte pack id per record.
type indexMap struct {
	mu      sync.RWMutex
	entries map[ids.ID]indexEntry
	packs   []ids.ID
	packIdx map[ids.ID]int
}

type indexEntry struct {
	packIndex int
	kind      data.BlobKind
	offset    uint64
	length    uint32
	rawLength uint32
}

func newIndexMap() *indexMap {
	return &indexMap{
		entries: make(map[ids.ID]indexEntry),
		packIdx: make(map[ids.ID]int),
	}
}

func (m *indexMap) add(id, packID ids.ID, kind data.BlobKind, offset uint64, length, rawLength uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pi, ok := m.packIdx[packID]
	if !ok {
		pi = len(m.packs)
		m.packs = append(m.packs, packID)
		m.packIdx[packID] = pi
	}

	m.entries[id] = indexEntry{
		packIndex: pi,
		kind:      kind,
		offset:    offset,
		length:    length,
		rawLength: rawLength,
	}
}

func (m *indexMap) get(id ids.ID) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		ID:            id,
		PackID:        m.packs[e.packIndex],
		Kind:          e.kind,
		Offset:        e.offset,
		EncodedLength: e.length,
		RawLength:     e.rawLength,
	}, true
}

func (m *indexMap) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *indexMap) foreach(fn func(Entry) bool) {
	m.mu.RLock()
	snapshot := make([]Entry, 0, len(m.entries))
	for id, e := range m.entries {
		snapshot = append(snapshot, Entry{
			ID:            id,
			PackID:        m.packs[e.packIndex],
			Kind:          e.kind,
			Offset:        e.offset,
			EncodedLength: e.length,
			RawLength:     e.rawLength,
		})
	}
	m.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].ID.String() < snapshot[j].ID.String()
	})
	for _, e := range snapshot {
		if !fn(e) {
			return
		}
	}
}

// shard is the on-disk, JSON-serialized form of one index blob
// (§4.5, "Index persistence").
type shard struct {
	Entries []shardEntry `json:"entries"`
}

type shardEntry struct {
	ID            ids.ID       `json:"id"`
	PackID        ids.ID       `json:"pack_id"`
	Kind          data.BlobKind `json:"kind"`
	Offset        uint64       `json:"offset"`
	EncodedLength uint32       `json:"encoded_length"`
	RawLength     uint32       `json:"raw_length"`
}
