package ingest

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/MacPhobos/audio-ident-sub000/pkg/catalog"
)

func ingestOne(t *testing.T, p *Pipeline) Ingested {
	t.Helper()
	res, err := p.Ingest(context.Background(), "seed.mp3", []byte("seed bytes"))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := res.(Ingested)
	if !ok {
		t.Fatalf("seed ingest = %#v, want Ingested", res)
	}
	return got
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	p, f := newTestPipeline(t)
	seeded := ingestOne(t, p)

	if err := p.Remove(ctx, seeded.TrackID, false); err != nil {
		t.Fatal(err)
	}

	if _, err := f.catalog.GetByID(ctx, seeded.TrackID); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("catalog row survived removal: %v", err)
	}
	if len(f.olaf.deleted) != 1 || f.olaf.deleted[0] != seeded.TrackID {
		t.Errorf("fingerprint deletes = %v", f.olaf.deleted)
	}
	if len(f.vectors.deleted) != 1 || f.vectors.deleted[0] != seeded.TrackID {
		t.Errorf("vector deletes = %v", f.vectors.deleted)
	}
	// The archive is the reindex source; default removal keeps it.
	if len(f.raw.deleted) != 0 {
		t.Errorf("raw deletes = %v, want none", f.raw.deleted)
	}
}

func TestRemovePurge(t *testing.T) {
	ctx := context.Background()
	p, f := newTestPipeline(t)
	seeded := ingestOne(t, p)

	if err := p.Remove(ctx, seeded.TrackID, true); err != nil {
		t.Fatal(err)
	}
	if len(f.raw.deleted) != 1 {
		t.Fatalf("raw deletes = %v, want the archived file", f.raw.deleted)
	}
	if len(f.raw.files) != 0 {
		t.Errorf("archive still holds %d files", len(f.raw.files))
	}
}

func TestRemoveUnknownTrack(t *testing.T) {
	p, _ := newTestPipeline(t)
	err := p.Remove(context.Background(), "no-such-id", false)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoveWaitsForLock(t *testing.T) {
	p, _ := newTestPipeline(t)
	seeded := ingestOne(t, p)

	if !p.Locker().TryAcquire() {
		t.Fatal("fresh lock not acquirable")
	}
	defer p.Locker().Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Remove(ctx, seeded.TrackID, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled while lock held", err)
	}
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	p, f := newTestPipeline(t)
	seeded := ingestOne(t, p)

	// Reset write tracking so only the reindex calls show.
	f.olaf.stored = nil
	f.vectors.upserted = nil
	f.vectors.ensured = nil

	if err := p.Reindex(ctx, seeded.TrackID); err != nil {
		t.Fatal(err)
	}

	if len(f.olaf.deleted) != 1 || len(f.olaf.stored) != 1 || f.olaf.stored[0] != seeded.TrackID {
		t.Errorf("fingerprint calls: deleted=%v stored=%v", f.olaf.deleted, f.olaf.stored)
	}
	if len(f.vectors.deleted) != 1 || len(f.vectors.upserted) != 2 {
		t.Errorf("vector calls: deleted=%v upserted=%d", f.vectors.deleted, len(f.vectors.upserted))
	}
	for i, pt := range f.vectors.upserted {
		if pt.Payload.TrackID != seeded.TrackID || pt.Payload.Title != seeded.Title {
			t.Errorf("point %d payload = %+v", i, pt.Payload)
		}
	}
	if f.decoder.lastHint != "mp3" {
		t.Errorf("decode hint = %q, want mp3 from the stored format", f.decoder.lastHint)
	}

	row, err := f.catalog.GetByID(ctx, seeded.TrackID)
	if err != nil {
		t.Fatal(err)
	}
	if !row.OlafIndexed || row.EmbeddingModel != "fake-v1" || row.EmbeddingDim != 4 {
		t.Errorf("flags after reindex: %+v", row)
	}
}

func TestReindexMissingArchive(t *testing.T) {
	ctx := context.Background()
	p, f := newTestPipeline(t)
	seeded := ingestOne(t, p)

	delete(f.raw.files, f.raw.writes[0])

	err := p.Reindex(ctx, seeded.TrackID)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
	// Nothing was touched before the archive read failed.
	if len(f.olaf.deleted) != 0 || len(f.vectors.deleted) != 0 {
		t.Errorf("derived state touched: olaf=%v vectors=%v", f.olaf.deleted, f.vectors.deleted)
	}
}

func TestReindexUnknownTrack(t *testing.T) {
	p, _ := newTestPipeline(t)
	err := p.Reindex(context.Background(), "no-such-id")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
