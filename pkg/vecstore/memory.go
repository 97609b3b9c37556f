package vecstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Store using brute-force cosine scoring. Intended
// for tests and single-binary development (`QDRANT_URL=memory`), where a
// few thousand chunks scan faster than a network round trip.
//
// It is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	points map[string]Point
	dim    int
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{points: make(map[string]Point)}
}

func (m *Memory) EnsureCollection(_ context.Context, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim != 0 && m.dim != dim {
		return fmt.Errorf("vecstore: collection has dimension %d, want %d", m.dim, dim)
	}
	m.dim = dim
	return nil
}

func (m *Memory) UpsertChunks(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: store closed", ErrWrite)
	}
	for _, p := range points {
		if m.dim != 0 && len(p.Vector) != m.dim {
			return fmt.Errorf("%w: vector dimension %d, want %d", ErrWrite, len(p.Vector), m.dim)
		}
		cp := p
		cp.Vector = make([]float32, len(p.Vector))
		copy(cp.Vector, p.Vector)
		m.points[p.ID] = cp
	}
	return nil
}

func (m *Memory) DeleteTrack(_ context.Context, trackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: store closed", ErrWrite)
	}
	for id, p := range m.points {
		if p.Payload.TrackID == trackID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *Memory) Query(_ context.Context, vector []float32, limit, _ int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.points) == 0 || limit <= 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(m.points))
	for _, p := range m.points {
		hits = append(hits, Hit{
			Score:   CosineSimilarity(vector, p.Vector),
			Payload: p.Payload,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("vecstore: store closed")
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len reports how many points are stored. Test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// Compile-time interface check.
var _ Store = (*Memory)(nil)
