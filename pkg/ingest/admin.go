package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/MacPhobos/audio-ident-sub000/pkg/decode"
	"github.com/MacPhobos/audio-ident-sub000/pkg/meta"
)

// Remove deletes a track from every store under the pipeline lock: the
// fingerprint index, the vector store, then the catalog row. Derived
// state goes first so a partial failure leaves a row that a retry can
// still find. The archived raw file is kept for future reindexing unless
// purge is set.
func (p *Pipeline) Remove(ctx context.Context, trackID string, purge bool) error {
	if err := p.locker.Acquire(ctx); err != nil {
		return err
	}
	defer p.locker.Release()

	t, err := p.catalog.GetByID(ctx, trackID)
	if err != nil {
		return err
	}
	if err := p.fingerprints.Delete(ctx, trackID); err != nil {
		return fmt.Errorf("fingerprint delete: %w", err)
	}
	if err := p.vectors.DeleteTrack(ctx, trackID); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	if err := p.catalog.Delete(ctx, trackID); err != nil {
		return fmt.Errorf("catalog delete: %w", err)
	}
	if purge {
		if err := p.raw.Delete(ctx, t.StoragePath); err != nil {
			return fmt.Errorf("raw purge: %w", err)
		}
	}
	p.log.Info("removed", "track_id", trackID, "title", t.Title, "purged", purge)
	return nil
}

// Reindex rebuilds a track's fingerprints and embeddings from the archived
// raw file and refreshes the catalog flags. This is the recovery path for
// index corruption and the upgrade path for new embedding models.
func (p *Pipeline) Reindex(ctx context.Context, trackID string) error {
	if err := p.locker.Acquire(ctx); err != nil {
		return err
	}
	defer p.locker.Release()

	t, err := p.catalog.GetByID(ctx, trackID)
	if err != nil {
		return err
	}
	rc, err := p.raw.Open(ctx, t.StoragePath)
	if err != nil {
		return fmt.Errorf("raw open: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("raw read: %w", err)
	}

	pcm16, pcm48, err := p.decoder.DecodeDualRate(ctx, data, decode.DemuxerHint(t.SourceFormat))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	// Old derived state goes first so replaced postings cannot stack.
	if err := p.fingerprints.Delete(ctx, trackID); err != nil {
		return fmt.Errorf("fingerprint delete: %w", err)
	}
	if err := p.vectors.DeleteTrack(ctx, trackID); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}

	if err := p.fingerprints.Store(ctx, pcm16, trackID); err != nil {
		return fmt.Errorf("fingerprint store: %w", err)
	}
	chunks, err := p.embedder.EmbedTrack(ctx, pcm48)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := p.vectors.EnsureCollection(ctx, p.embedder.Dimension()); err != nil {
		return fmt.Errorf("vector collection: %w", err)
	}
	md := meta.Metadata{Artist: t.Artist}
	if err := p.vectors.UpsertChunks(ctx, chunkPoints(trackID, t.Title, md, chunks)); err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}
	if err := p.catalog.UpdateFlags(ctx, trackID, true, p.embedder.ModelName(), p.embedder.Dimension()); err != nil {
		return fmt.Errorf("update flags: %w", err)
	}
	p.log.Info("reindexed", "track_id", trackID, "title", t.Title, "chunks", len(chunks))
	return nil
}
