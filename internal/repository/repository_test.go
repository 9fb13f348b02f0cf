package repository

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/strata-backup/strata/internal/backend"
	"github.com/strata-backup/strata/internal/chunker"
	"github.com/strata-backup/strata/internal/crypto"
	"github.com/strata-backup/strata/internal/data"
)

func newTestRepo(t *testing.T) (*Repository, *crypto.Key) {
	t.Helper()
	be := backend.NewMem()
	key := crypto.NewRandomKey()

	repo, err := Init(be, key, chunker.Pol(0x3DA3358B4DC173), data.RetentionPolicy{Kind: data.KeepAll})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return repo, key
}

func TestInitLaysOutDirectories(t *testing.T) {
	be := backend.NewMem()
	key := crypto.NewRandomKey()

	if _, err := Init(be, key, chunker.Pol(1), data.RetentionPolicy{Kind: data.KeepAll}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	for _, dir := range []string{"keys", "snapshots", "index", "packs", "packs/00", "packs/ff"} {
		if !be.IsDir(dir) {
			t.Fatalf("expected directory %q to exist", dir)
		}
	}
	if !be.IsFile("config") {
		t.Fatal("expected a config file")
	}
}

func TestOpenRoundtripsConfig(t *testing.T) {
	be := backend.NewMem()
	key := crypto.NewRandomKey()
	retention := data.RetentionPolicy{Kind: data.KeepLastN, N: 5}

	repo, err := Init(be, key, chunker.Pol(42), retention)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	wantCfg := repo.Config()

	reopened, err := Open(be, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reopened.Config().ID != wantCfg.ID {
		t.Fatal("repository id did not round-trip")
	}
	if reopened.Config().ChunkerPolynomial != wantCfg.ChunkerPolynomial {
		t.Fatal("chunker polynomial did not round-trip")
	}
	if reopened.Config().Retention.N != 5 {
		t.Fatal("retention policy did not round-trip")
	}
}

func TestOpenWrongKeyFails(t *testing.T) {
	be := backend.NewMem()
	key := crypto.NewRandomKey()
	if _, err := Init(be, key, chunker.Pol(1), data.RetentionPolicy{Kind: data.KeepAll}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, err := Open(be, crypto.NewRandomKey()); err == nil {
		t.Fatal("expected Open with the wrong key to fail")
	}
}

func TestSaveLoadBlobRoundtrip(t *testing.T) {
	repo, _ := newTestRepo(t)

	content := bytes.Repeat([]byte("x"), 1000)
	id, rawSize, encodedSize, err := repo.SaveBlob(data.KindData, content, false)
	if err != nil {
		t.Fatalf("SaveBlob: %v", err)
	}
	if rawSize != len(content) {
		t.Fatalf("rawSize = %d, want %d", rawSize, len(content))
	}
	if encodedSize == 0 {
		t.Fatal("expected a nonzero encoded size for a first save")
	}

	got, err := repo.LoadBlob(id)
	if err != nil {
		t.Fatalf("LoadBlob: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("loaded content does not match saved content")
	}
}

func TestSaveBlobDeduplicates(t *testing.T) {
	repo, _ := newTestRepo(t)

	content := []byte("duplicate me")
	id1, _, encoded1, err := repo.SaveBlob(data.KindData, content, false)
	if err != nil {
		t.Fatalf("first SaveBlob: %v", err)
	}
	id2, _, encoded2, err := repo.SaveBlob(data.KindData, content, false)
	if err != nil {
		t.Fatalf("second SaveBlob: %v", err)
	}

	if id1 != id2 {
		t.Fatal("expected identical ids for identical content")
	}
	if encoded1 == 0 {
		t.Fatal("expected the first save to write bytes")
	}
	if encoded2 != 0 {
		t.Fatal("expected the second save to write zero additional bytes")
	}
}

func TestLoadBlobAfterFlush(t *testing.T) {
	repo, _ := newTestRepo(t)

	content := []byte("flush me to a real pack file")
	id, _, _, err := repo.SaveBlob(data.KindTree, content, true)
	if err != nil {
		t.Fatalf("SaveBlob: %v", err)
	}

	if err := repo.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := repo.LoadBlob(id)
	if err != nil {
		t.Fatalf("LoadBlob after flush: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("loaded content after flush does not match")
	}
}

func TestSaveLoadSnapshotRoundtrip(t *testing.T) {
	repo, _ := newTestRepo(t)

	treeID, _, _, err := repo.SaveBlob(data.KindTree, []byte("{}"), false)
	if err != nil {
		t.Fatalf("SaveBlob: %v", err)
	}

	s, err := repo.SaveSnapshot(data.Snapshot{
		Time:  time.Now(),
		Paths: []string{"/home/user"},
		Tree:  treeID,
	})
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := repo.LoadSnapshot(s.ID)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	want := s
	want.Time = got.Time // the JSON round-trip drops the monotonic clock reading and may change the location
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("loaded snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadAllSnapshots(t *testing.T) {
	repo, _ := newTestRepo(t)

	for i := 0; i < 3; i++ {
		if _, err := repo.SaveSnapshot(data.Snapshot{Time: time.Now(), Paths: []string{"/a"}}); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}

	all, err := repo.LoadAllSnapshots()
	if err != nil {
		t.Fatalf("LoadAllSnapshots: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(all))
	}
}

func TestLoadBlobMissingReturnsNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	var missing [32]byte
	missing[0] = 0xAB

	_, err := repo.LoadBlob(missing)
	objErr, ok := err.(*ObjectError)
	if !ok {
		t.Fatalf("expected an *ObjectError, got %T: %v", err, err)
	}
	if objErr.Kind != NotFound {
		t.Fatalf("expected NotFound, got %v", objErr.Kind)
	}
}
