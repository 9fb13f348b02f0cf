package pack

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/strata-backup/strata/internal/crypto"
	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/hashing"
	"github.com/strata-backup/strata/internal/ids"
)

var testLens = []int{23, 31650, 25860, 10928, 13769, 19862, 5211, 127, 13690, 30231}

type testBlob struct {
	data []byte
	id   ids.ID
}

func newPack(t testing.TB, k *crypto.Key, lengths []int, compress bool) ([]testBlob, []byte, uint) {
	t.Helper()

	var blobs []testBlob
	for _, l := range lengths {
		b := make([]byte, l)
		if _, err := io.ReadFull(rand.Reader, b); err != nil {
			t.Fatal(err)
		}
		id := hashing.Hash(b)
		blobs = append(blobs, testBlob{data: b, id: id})
	}

	var buf bytes.Buffer
	p := NewPacker(k, &buf)
	for _, b := range blobs {
		if _, err := p.Add(data.KindTree, b.id, b.data, compress); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Finalize(); err != nil {
		t.Fatal(err)
	}

	return blobs, buf.Bytes(), p.Size()
}

func verifyBlobs(t testing.TB, blobs []testBlob, k *crypto.Key, rd io.ReaderAt, packSize uint) {
	t.Helper()

	entries, _, err := List(k, rd, int64(packSize))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(blobs) {
		t.Fatalf("got %d entries, want %d", len(entries), len(blobs))
	}

	for i, b := range blobs {
		e := entries[i]
		if e.ID != b.id {
			t.Fatalf("entry %d id mismatch", i)
		}
		plain, err := ReadBlob(k, rd, e)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(plain, b.data) {
			t.Fatalf("data for blob %d doesn't match", i)
		}
	}
}

func TestCreatePack(t *testing.T) {
	k := crypto.NewRandomKey()
	blobs, packData, packSize := newPack(t, k, testLens, false)
	if uint(len(packData)) != packSize {
		t.Fatalf("packSize %d != len(packData) %d", packSize, len(packData))
	}
	verifyBlobs(t, blobs, k, bytes.NewReader(packData), packSize)
}

func TestCreatePackCompressed(t *testing.T) {
	k := crypto.NewRandomKey()
	lengths := []int{4096, 8192, 1024}

	var blobs []testBlob
	var buf bytes.Buffer
	p := NewPacker(k, &buf)
	for _, l := range lengths {
		raw := bytes.Repeat([]byte{'a'}, l)
		id := hashing.Hash(raw)
		blobs = append(blobs, testBlob{data: raw, id: id})
		if _, err := p.Add(data.KindData, id, raw, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Finalize(); err != nil {
		t.Fatal(err)
	}

	verifyBlobs(t, blobs, k, bytes.NewReader(buf.Bytes()), p.Size())
}

func TestShortPack(t *testing.T) {
	k := crypto.NewRandomKey()
	blobs, packData, packSize := newPack(t, k, []int{23}, false)
	verifyBlobs(t, blobs, k, bytes.NewReader(packData), packSize)
}

func TestListRejectsWrongKey(t *testing.T) {
	k := crypto.NewRandomKey()
	other := crypto.NewRandomKey()
	_, packData, packSize := newPack(t, k, []int{100}, false)

	if _, _, err := List(other, bytes.NewReader(packData), int64(packSize)); err == nil {
		t.Fatal("expected List to fail when opening the footer under the wrong key")
	}
}

func TestEntriesSortedByOffset(t *testing.T) {
	k := crypto.NewRandomKey()
	_, packData, packSize := newPack(t, k, testLens, false)

	entries, _, err := List(k, bytes.NewReader(packData), int64(packSize))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Offset > entries[i].Offset {
			t.Fatalf("entries not sorted by offset at index %d", i)
		}
	}
}
