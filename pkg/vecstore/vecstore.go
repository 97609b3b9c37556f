// Package vecstore stores and searches audio chunk embeddings.
//
// The [Store] interface defines the contract; backends are a Qdrant
// client for production ([NewQdrant]) and an in-memory brute-force
// index for tests and single-binary development ([NewMemory]).
//
// Scores are cosine similarity in [-1, 1] (in practice [0, 1] for the
// normalized embeddings this service stores); higher is more similar.
package vecstore

import (
	"context"
	"errors"
	"math"
)

// Store is the interface to the chunk embedding index.
//
// All implementations must be safe for concurrent use. Query failures are
// graceful at the caller (empty results); write failures wrap [ErrWrite].
type Store interface {
	// EnsureCollection creates the backing collection for dim-length
	// vectors if it does not exist. Idempotent.
	EnsureCollection(ctx context.Context, dim int) error

	// UpsertChunks writes points, overwriting any with the same ID.
	UpsertChunks(ctx context.Context, points []Point) error

	// DeleteTrack removes every point whose payload names trackID.
	DeleteTrack(ctx context.Context, trackID string) error

	// Query returns up to limit hits nearest to vector, best first.
	// searchEf tunes the HNSW search beam where the backend has one.
	Query(ctx context.Context, vector []float32, limit, searchEf int) ([]Hit, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the client.
	Close() error
}

// ErrWrite marks a failed index mutation.
var ErrWrite = errors.New("vecstore: index write failed")

// Point is one chunk embedding with its payload.
type Point struct {
	// ID is a fresh UUID assigned per upsert; chunk identity lives in
	// the payload, not the point ID.
	ID      string
	Vector  []float32
	Payload Payload
}

// Payload carries the chunk's provenance and optional display metadata.
type Payload struct {
	TrackID     string
	OffsetSec   float64
	ChunkIndex  int
	DurationSec float64

	// Optional; indexed for filtering (Genre) or carried for display.
	Title  string
	Artist string
	Genre  string
}

// Hit is one query result.
type Hit struct {
	// Score is cosine similarity; higher is better.
	Score   float32
	Payload Payload
}

// CosineSimilarity computes the cosine of the angle between a and b,
// clamped to [-1, 1]. Mismatched dimensions and zero vectors score -1
// (nothing can be less similar).
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return float32(sim)
}
