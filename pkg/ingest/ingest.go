// Package ingest turns one uploaded file into a cataloged track: hash and
// perceptual dedup, dual-rate decode, raw archival, fingerprint indexing,
// embedding upsert, then the catalog insert that makes the track visible.
// The whole pipeline runs under a process-wide exclusive lock because the
// fingerprint index is single-writer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MacPhobos/audio-ident-sub000/pkg/audio"
	"github.com/MacPhobos/audio-ident-sub000/pkg/catalog"
	"github.com/MacPhobos/audio-ident-sub000/pkg/decode"
	"github.com/MacPhobos/audio-ident-sub000/pkg/dedup"
	"github.com/MacPhobos/audio-ident-sub000/pkg/embedding"
	"github.com/MacPhobos/audio-ident-sub000/pkg/journal"
	"github.com/MacPhobos/audio-ident-sub000/pkg/meta"
	"github.com/MacPhobos/audio-ident-sub000/pkg/vecstore"
)

// Hard duration bounds for ingestable audio.
const (
	MinDurationSec = 3.0
	MaxDurationSec = 30 * 60.0
)

// DefaultDupThreshold is the Chromaprint similarity above which an upload
// counts as a perceptual duplicate.
const DefaultDupThreshold = 0.85

// Decoder produces the two canonical PCM rates from container bytes.
type Decoder interface {
	DecodeDualRate(ctx context.Context, data []byte, formatHint string) (pcm16, pcm48 []byte, err error)
}

// Fingerprints is the writable side of the acoustic fingerprint index.
type Fingerprints interface {
	Store(ctx context.Context, pcm16 []byte, trackID string) error
	Delete(ctx context.Context, trackID string) error
}

// Embedder chunks 48 kHz PCM and embeds each window.
type Embedder interface {
	EmbedTrack(ctx context.Context, pcm48 []byte) ([]embedding.Chunk, error)
	ModelName() string
	Dimension() int
}

// Vectors is the writable side of the vector store.
type Vectors interface {
	EnsureCollection(ctx context.Context, dim int) error
	UpsertChunks(ctx context.Context, points []vecstore.Point) error
	DeleteTrack(ctx context.Context, trackID string) error
}

// Chromaprinter computes the perceptual fingerprint text.
type Chromaprinter interface {
	Fingerprint(ctx context.Context, pcm16s16 []byte, durationSec float64) (string, error)
}

// Catalog is the subset of the track catalog the pipeline touches.
type Catalog interface {
	FindByHash(ctx context.Context, sha256 string) (*catalog.Track, error)
	GetByID(ctx context.Context, id string) (*catalog.Track, error)
	Insert(ctx context.Context, t *catalog.Track) error
	ListByDurationRange(ctx context.Context, minSec, maxSec float64) ([]catalog.Track, error)
	UpdateFlags(ctx context.Context, id string, olafIndexed bool, embeddingModel string, embeddingDim int) error
	Delete(ctx context.Context, id string) error
}

// RawStore archives original file bytes and reads them back for reindexing.
type RawStore interface {
	WriteOnce(ctx context.Context, sha256Hex, ext string, data []byte) (path string, wrote bool, err error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// Journal records in-flight ingestions for crash recovery.
type Journal interface {
	Begin(ctx context.Context, e journal.Entry) error
	Complete(ctx context.Context, trackID string) error
	Pending(ctx context.Context) ([]journal.Entry, error)
}

// Config wires a Pipeline. All dependency fields are required.
type Config struct {
	Decoder      Decoder
	Chromaprint  Chromaprinter
	Catalog      Catalog
	Fingerprints Fingerprints
	Embedder     Embedder
	Vectors      Vectors
	Raw          RawStore
	Journal      Journal
	Locker       *Locker

	// DupThreshold overrides DefaultDupThreshold when > 0.
	DupThreshold float64
	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Pipeline ingests one file at a time.
type Pipeline struct {
	decoder      Decoder
	chromaprint  Chromaprinter
	catalog      Catalog
	fingerprints Fingerprints
	embedder     Embedder
	vectors      Vectors
	raw          RawStore
	journal      Journal
	locker       *Locker
	dupThreshold float64
	log          *slog.Logger
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Decoder == nil:
		return nil, errors.New("ingest: Config.Decoder is required")
	case cfg.Chromaprint == nil:
		return nil, errors.New("ingest: Config.Chromaprint is required")
	case cfg.Catalog == nil:
		return nil, errors.New("ingest: Config.Catalog is required")
	case cfg.Fingerprints == nil:
		return nil, errors.New("ingest: Config.Fingerprints is required")
	case cfg.Embedder == nil:
		return nil, errors.New("ingest: Config.Embedder is required")
	case cfg.Vectors == nil:
		return nil, errors.New("ingest: Config.Vectors is required")
	case cfg.Raw == nil:
		return nil, errors.New("ingest: Config.Raw is required")
	case cfg.Journal == nil:
		return nil, errors.New("ingest: Config.Journal is required")
	}
	if cfg.Locker == nil {
		cfg.Locker = NewLocker()
	}
	if cfg.DupThreshold <= 0 {
		cfg.DupThreshold = DefaultDupThreshold
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Pipeline{
		decoder:      cfg.Decoder,
		chromaprint:  cfg.Chromaprint,
		catalog:      cfg.Catalog,
		fingerprints: cfg.Fingerprints,
		embedder:     cfg.Embedder,
		vectors:      cfg.Vectors,
		raw:          cfg.Raw,
		journal:      cfg.Journal,
		locker:       cfg.Locker,
		dupThreshold: cfg.DupThreshold,
		log:          cfg.Log,
	}, nil
}

// Locker exposes the pipeline lock so callers sharing the pipeline can
// coordinate administrative operations with it.
func (p *Pipeline) Locker() *Locker {
	return p.locker
}

// TryIngest runs the pipeline if the lock is free, otherwise fails fast
// with ErrBusy. This is the HTTP entry point.
func (p *Pipeline) TryIngest(ctx context.Context, filename string, data []byte) (Result, error) {
	if !p.locker.TryAcquire() {
		return nil, ErrBusy
	}
	defer p.locker.Release()
	return p.run(ctx, filename, data, meta.Overrides{}), nil
}

// Ingest blocks until the lock is free, then runs the pipeline. The batch
// driver uses this so queued files wait instead of failing.
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte) (Result, error) {
	return p.IngestTagged(ctx, filename, data, meta.Overrides{})
}

// IngestTagged is Ingest with caller-supplied tag overrides for untagged
// or mistagged files. Non-empty fields win over the file's own tags.
func (p *Pipeline) IngestTagged(ctx context.Context, filename string, data []byte, over meta.Overrides) (Result, error) {
	if err := p.locker.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.locker.Release()
	return p.run(ctx, filename, data, over), nil
}

func (p *Pipeline) run(ctx context.Context, filename string, data []byte, over meta.Overrides) Result {
	md := meta.Extract(filename, data)
	md.Apply(over)

	// Byte-identical re-uploads are caught by hash before any subprocess
	// work happens.
	existing, err := p.catalog.FindByHash(ctx, md.SHA256)
	if err == nil {
		return Duplicate{TrackID: existing.ID, Title: existing.Title, Artist: existing.Artist, Via: ViaHash}
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return p.errored("hash lookup", err)
	}

	ext := extFor(md, filename)
	pcm16, pcm48, err := p.decoder.DecodeDualRate(ctx, data, decode.DemuxerHint(ext))
	if err != nil {
		return p.errored("decode", err)
	}
	durationSec := audio.F32Mono16K.Seconds(len(pcm16))
	if durationSec < MinDurationSec {
		return Skipped{Reason: ReasonTooShort, DurationSec: durationSec}
	}
	if durationSec > MaxDurationSec {
		return Skipped{Reason: ReasonTooLong, DurationSec: durationSec}
	}

	fp, err := p.chromaprint.Fingerprint(ctx, audio.S16LE(pcm16), durationSec)
	if err != nil {
		return p.errored("chromaprint", err)
	}
	rows, err := p.catalog.ListByDurationRange(ctx, durationSec*0.9, durationSec*1.1)
	if err != nil {
		return p.errored("duplicate scan", err)
	}
	cands := make([]dedup.Candidate, 0, len(rows))
	for _, r := range rows {
		if r.Chromaprint != "" {
			cands = append(cands, dedup.Candidate{TrackID: r.ID, Fingerprint: r.Chromaprint})
		}
	}
	if id, ok := dedup.FindDuplicate(cands, fp, p.dupThreshold); ok {
		dup := Duplicate{TrackID: id, Via: ViaPerceptual}
		for _, r := range rows {
			if r.ID == id {
				dup.Title, dup.Artist = r.Title, r.Artist
				break
			}
		}
		return dup
	}

	storagePath, _, err := p.raw.WriteOnce(ctx, md.SHA256, ext, data)
	if err != nil {
		return p.errored("raw store", err)
	}

	trackID := uuid.NewString()
	err = p.journal.Begin(ctx, journal.Entry{TrackID: trackID, SHA256: md.SHA256, StoragePath: storagePath})
	if err != nil {
		return p.errored("journal begin", err)
	}

	title := titleFor(md, filename)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.fingerprints.Store(gctx, pcm16, trackID); err != nil {
			return fmt.Errorf("fingerprint index: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		chunks, err := p.embedder.EmbedTrack(gctx, pcm48)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if err := p.vectors.EnsureCollection(gctx, p.embedder.Dimension()); err != nil {
			return fmt.Errorf("vector collection: %w", err)
		}
		if err := p.vectors.UpsertChunks(gctx, chunkPoints(trackID, title, md, chunks)); err != nil {
			return fmt.Errorf("vector upsert: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		p.undo(ctx, trackID)
		return p.errored("index", err)
	}

	track := &catalog.Track{
		ID:                     trackID,
		Title:                  title,
		Artist:                 md.Artist,
		Album:                  md.Album,
		DurationSec:            durationSec,
		SampleRate:             md.SampleRate,
		Channels:               md.Channels,
		Bitrate:                md.Bitrate,
		SourceFormat:           strings.ToLower(ext),
		SHA256:                 md.SHA256,
		SizeBytes:              md.SizeBytes,
		StoragePath:            storagePath,
		Chromaprint:            fp,
		ChromaprintDurationSec: durationSec,
		OlafIndexed:            true,
		EmbeddingModel:         p.embedder.ModelName(),
		EmbeddingDim:           p.embedder.Dimension(),
	}
	if err := p.catalog.Insert(ctx, track); err != nil {
		p.undo(ctx, trackID)
		return p.errored("catalog insert", err)
	}
	if err := p.journal.Complete(ctx, trackID); err != nil {
		// The catalog row exists, so startup recovery settles this entry.
		p.log.Warn("journal complete failed", "track_id", trackID, "error", err)
	}

	p.log.Info("ingested",
		"track_id", trackID,
		"title", title,
		"duration_sec", durationSec,
		"sha256", md.SHA256)
	return Ingested{TrackID: trackID, Title: title, Artist: md.Artist, DurationSec: durationSec}
}

// RecoverPending settles journal entries left behind by a crashed process.
// An entry whose catalog row exists crashed between insert and journal
// completion, so the track is whole; everything else is rolled back.
func (p *Pipeline) RecoverPending(ctx context.Context) error {
	entries, err := p.journal.Pending(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := p.catalog.GetByID(ctx, e.TrackID); err == nil {
			p.log.Info("journal recovery: ingestion finished, clearing entry", "track_id", e.TrackID)
			if err := p.journal.Complete(ctx, e.TrackID); err != nil {
				return err
			}
			continue
		} else if !errors.Is(err, catalog.ErrNotFound) {
			return err
		}
		p.log.Warn("journal recovery: rolling back interrupted ingestion",
			"track_id", e.TrackID, "sha256", e.SHA256, "started_at", e.StartedAt)
		p.undo(ctx, e.TrackID)
	}
	return nil
}

// undo removes derived state for a track that never reached the catalog.
// It runs detached from the request context so a cancelled caller still
// gets a cleanup attempt. Full success clears the journal entry; partial
// failure leaves it for startup recovery.
func (p *Pipeline) undo(ctx context.Context, trackID string) {
	ctx = context.WithoutCancel(ctx)
	ok := true
	if err := p.fingerprints.Delete(ctx, trackID); err != nil {
		ok = false
		p.log.Error("rollback: fingerprint delete failed", "track_id", trackID, "error", err)
	}
	if err := p.vectors.DeleteTrack(ctx, trackID); err != nil {
		ok = false
		p.log.Error("rollback: vector delete failed", "track_id", trackID, "error", err)
	}
	if !ok {
		return
	}
	if err := p.journal.Complete(ctx, trackID); err != nil {
		p.log.Warn("rollback: journal complete failed", "track_id", trackID, "error", err)
	}
}

func (p *Pipeline) errored(stage string, err error) Errored {
	p.log.Error("ingest failed", "stage", stage, "error", err)
	return Errored{Message: stage + ": " + err.Error()}
}

func chunkPoints(trackID, title string, md meta.Metadata, chunks []embedding.Chunk) []vecstore.Point {
	pts := make([]vecstore.Point, len(chunks))
	for i, ch := range chunks {
		pts[i] = vecstore.Point{
			ID:     uuid.NewString(),
			Vector: ch.Embedding,
			Payload: vecstore.Payload{
				TrackID:     trackID,
				OffsetSec:   ch.OffsetSec,
				ChunkIndex:  ch.ChunkIndex,
				DurationSec: ch.DurationSec,
				Title:       title,
				Artist:      md.Artist,
				Genre:       md.Genre,
			},
		}
	}
	return pts
}

// titleFor applies the filename-stem fallback for untagged files.
func titleFor(md meta.Metadata, filename string) string {
	if md.Title != "" {
		return md.Title
	}
	base := filepath.Base(filename)
	if stem := strings.TrimSuffix(base, filepath.Ext(base)); stem != "" && stem != "." {
		return stem
	}
	return "untitled"
}

// extFor picks the storage extension: filename extension first, then the
// container type detected from the tags.
func extFor(md meta.Metadata, filename string) string {
	if e := strings.TrimPrefix(filepath.Ext(filename), "."); e != "" {
		return e
	}
	if md.FileType != "" {
		return md.FileType
	}
	return "bin"
}
