package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MacPhobos/audio-ident-sub000/pkg/audio"
)

// Engine runs a Model behind a process-wide concurrency gate. Inference is
// CPU-bound; the gate (default capacity 1) keeps concurrent searches and
// ingests from stacking inferences and ruining tail latency.
type Engine struct {
	model Model
	sem   *semaphore.Weighted
}

// NewEngine gates model at the given concurrency (minimum 1).
func NewEngine(model Model, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		model: model,
		sem:   semaphore.NewWeighted(int64(concurrency)),
	}
}

// EmbedTrack chunks a whole track (10 s windows, 5 s hop, padded tail) and
// embeds every window. Any window failing fails the whole call; partial
// chunk sets never reach the vector store.
func (e *Engine) EmbedTrack(ctx context.Context, pcm48 []byte) ([]Chunk, error) {
	windows := SplitWindows(pcm48, audio.F32Mono48K)
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no audio to chunk", ErrEmptyInput)
	}
	chunks := make([]Chunk, 0, len(windows))
	for _, w := range windows {
		vec, err := e.embed(ctx, w.PCM)
		if err != nil {
			return nil, fmt.Errorf("embedding: chunk %d: %w", w.Index, err)
		}
		chunks = append(chunks, Chunk{
			Embedding:   vec,
			OffsetSec:   w.OffsetSec,
			ChunkIndex:  w.Index,
			DurationSec: w.DurationSec,
		})
	}
	return chunks, nil
}

// EmbedQuery embeds a query clip as a single window, no chunking.
func (e *Engine) EmbedQuery(ctx context.Context, pcm48 []byte) ([]float32, error) {
	return e.embed(ctx, pcm48)
}

// Warmup pushes one second of silence through the model so the first real
// request does not pay the cold-start cost. Returns the inference time.
func (e *Engine) Warmup(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := e.embed(ctx, audio.Silence(audio.F32Mono48K, 1)); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// ModelName reports the underlying model's identifier.
func (e *Engine) ModelName() string { return e.model.Name() }

// Dimension reports the underlying model's vector length.
func (e *Engine) Dimension() int { return e.model.Dimension() }

// Close closes the underlying model.
func (e *Engine) Close() error { return e.model.Close() }

func (e *Engine) embed(ctx context.Context, pcm []byte) ([]float32, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)
	return e.model.Embed(ctx, pcm)
}
