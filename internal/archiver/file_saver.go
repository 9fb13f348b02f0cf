package archiver

import (
	"context"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/strata-backup/strata/internal/chunker"
	"github.com/strata-backup/strata/internal/data"
	"github.com/strata-backup/strata/internal/errors"
	"github.com/strata-backup/strata/internal/ids"
)

// chunkSaver is the subset of *repository.Repository the file pipeline
// needs: saving a Data blob.
type chunkSaver interface {
	SaveBlob(kind data.BlobKind, plaintext []byte, compress bool) (id ids.ID, rawSize, encodedSize int, err error)
}

// saveFileContent chunks the file at path and stores its chunks,
// returning the chunk ids in file order (§4.10 step 3, §4.11). Files
// smaller than chunker.MinSize are stored as a single Data blob without
// invoking the chunker at all, grounded on
// original_source/src/archiver/chunker.rs's small-file short-circuit.
//
// Internally this runs the two-stage producer/consumer pipeline spec
// §4.11 describes: stage 1 (this goroutine's errgroup member) reads the
// file and emits chunks onto a bounded channel; stage 2 drains the
// channel and calls SaveBlob, so sealing a pack never blocks the reader
// from getting ahead on I/O. Because both stages run under the same
// errgroup and the channel has a single consumer, ids are appended to
// the result in the exact order chunks were produced — "dispatch order,
// not completion order" per spec §4.11.
func saveFileContent(ctx context.Context, repo chunkSaver, pol chunker.Pol, path string) (ids.IDs, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, errors.Wrapf(err, "stat %s", path)
	}
	size := uint64(info.Size())

	if info.Size() < int64(chunker.MinSize) {
		content, err := io.ReadAll(f)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "read %s", path)
		}
		id, _, _, err := repo.SaveBlob(data.KindData, content, true)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "save blob for %s", path)
		}
		return ids.IDs{id}, size, nil
	}

	type chunkJob struct {
		data []byte
	}

	jobs := make(chan chunkJob, 4)
	g, gctx := errgroup.WithContext(ctx)

	seq, chunkErr := chunker.Chunks(f, pol)
	g.Go(func() error {
		defer close(jobs)
		for _, buf := range seq {
			cp := append([]byte(nil), buf...)
			select {
			case jobs <- chunkJob{data: cp}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return chunkErr()
	})

	var chunkIDs ids.IDs
	var chunked uint64
	g.Go(func() error {
		for job := range jobs {
			id, _, _, err := repo.SaveBlob(data.KindData, job.data, true)
			if err != nil {
				return errors.Wrapf(err, "save chunk for %s", path)
			}
			chunkIDs = append(chunkIDs, id)
			chunked += uint64(len(job.data))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	// A read error mid-file stops the chunk sequence with no further
	// signal beyond chunkErr's return; this is the second, independent
	// check that the full file was actually chunked, in case a future
	// reader ever stops short without reporting through chunkErr.
	if chunked != size {
		return nil, 0, errors.Errorf("chunked %d bytes but %s is %d bytes", chunked, path, size)
	}

	return chunkIDs, size, nil
}
