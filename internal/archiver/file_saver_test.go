package archiver

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/strata-backup/strata/internal/chunker"
	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/ids"
)

// recordingSaver is a chunkSaver test double that stores each saved
// blob's plaintext, keyed by its dedup id, mirroring the repository's
// own content-addressing without needing a real Repository.
type recordingSaver struct {
	mu    sync.Mutex
	byID  map[ids.ID][]byte
	calls int
}

func newRecordingSaver() *recordingSaver {
	return &recordingSaver{byID: make(map[ids.ID][]byte)}
}

func (s *recordingSaver) SaveBlob(kind data.BlobKind, plaintext []byte, compress bool) (ids.ID, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	id := fakeContentID(plaintext)
	if _, ok := s.byID[id]; !ok {
		s.byID[id] = append([]byte(nil), plaintext...)
	}
	return id, len(plaintext), len(plaintext), nil
}

// fakeContentID derives a deterministic, collision-avoiding stand-in
// for a content hash, good enough to exercise dedup-by-content in these
// tests without pulling in the real hashing package.
func fakeContentID(content []byte) ids.ID {
	var id ids.ID
	if len(content) == 0 {
		return id
	}
	for i, b := range content {
		id[i%len(id)] ^= b
		id[(i*7+1)%len(id)] ^= byte(len(content))
	}
	return id
}

func writeTestFile(t *testing.T, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSaveFileContentSmallFileSingleBlob(t *testing.T) {
	saver := newRecordingSaver()
	path := writeTestFile(t, []byte("a tiny amount of content"))

	ids_, size, err := saveFileContent(context.Background(), saver, chunker.Pol(0x3DA3358B4DC173), path)
	if err != nil {
		t.Fatalf("saveFileContent: %v", err)
	}
	if len(ids_) != 1 {
		t.Fatalf("expected exactly one blob for a file under MinSize, got %d", len(ids_))
	}
	if size != uint64(len("a tiny amount of content")) {
		t.Fatalf("got size %d, want %d", size, len("a tiny amount of content"))
	}
	if saver.calls != 1 {
		t.Fatalf("expected exactly one SaveBlob call, got %d", saver.calls)
	}
}

func TestSaveFileContentLargeFileChunksAndDedups(t *testing.T) {
	saver := newRecordingSaver()

	// The chunker cuts at MaxSize at the latest, so two MaxSize runs of
	// one repeated byte split into at least two identical chunks, which
	// exercises dedup.
	chunk := bytes.Repeat([]byte{0xAB}, chunker.MaxSize)
	content := append(append([]byte{}, chunk...), chunk...)
	path := writeTestFile(t, content)

	gotIDs, size, err := saveFileContent(context.Background(), saver, chunker.Pol(0x3DA3358B4DC173), path)
	if err != nil {
		t.Fatalf("saveFileContent: %v", err)
	}
	if size != uint64(len(content)) {
		t.Fatalf("got size %d, want %d", size, len(content))
	}
	if len(gotIDs) < 2 {
		t.Fatalf("expected the chunker to split a %d-byte file into multiple chunks, got %d", len(content), len(gotIDs))
	}
	if len(saver.byID) >= len(gotIDs) {
		t.Fatalf("expected repeated chunks to dedup to fewer distinct blobs, got %d distinct for %d chunks", len(saver.byID), len(gotIDs))
	}

	var total int
	for _, id := range gotIDs {
		total += len(saver.byID[id])
	}
	if total != len(content) {
		t.Fatalf("concatenated chunk lengths %d do not reconstruct the file's %d bytes", total, len(content))
	}
}

func TestSaveFileContentEmptyFile(t *testing.T) {
	saver := newRecordingSaver()
	path := writeTestFile(t, nil)

	gotIDs, size, err := saveFileContent(context.Background(), saver, chunker.Pol(0x3DA3358B4DC173), path)
	if err != nil {
		t.Fatalf("saveFileContent: %v", err)
	}
	if size != 0 {
		t.Fatalf("got size %d, want 0", size)
	}
	if len(gotIDs) != 1 {
		t.Fatalf("expected a single (empty) blob for an empty file, got %d", len(gotIDs))
	}
}
