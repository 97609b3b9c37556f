// Package embedding turns 48 kHz PCM into fixed-dimension vectors for
// similarity search.
//
// A [Model] produces one vector per call. The [Engine] owns the chunking
// policy for whole tracks and the process-wide concurrency gate that keeps
// CPU-bound inference from stampeding under load.
package embedding

import (
	"context"
	"errors"
)

// Model converts one PCM window into an embedding vector.
//
// Implementations must be safe for concurrent use or serialize internally;
// the Engine additionally gates calls with a semaphore.
type Model interface {
	// Embed returns the embedding for 48 kHz mono float32 PCM.
	Embed(ctx context.Context, pcm48 []byte) ([]float32, error)

	// Name identifies the model (recorded per track in the catalog).
	Name() string

	// Dimension returns the output vector length.
	Dimension() int

	// Close releases the model.
	Close() error
}

// Chunk is one embedded window of a track.
type Chunk struct {
	Embedding   []float32
	OffsetSec   float64
	ChunkIndex  int
	DurationSec float64
}

// Common errors.
var (
	// ErrUnavailable is returned when the model cannot serve: not loaded,
	// or its backing process died.
	ErrUnavailable = errors.New("embedding: model unavailable")

	// ErrEmptyInput is returned for zero-length PCM.
	ErrEmptyInput = errors.New("embedding: empty input")
)
