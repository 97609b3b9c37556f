package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/MacPhobos/audio-ident-sub000/pkg/vecstore"
)

// Vibe-lane tuning.
const (
	// VectorSearchLimit is how many chunk hits one query pulls from the
	// vector store before track aggregation.
	VectorSearchLimit = 50

	// VectorSearchEf widens the HNSW search beam for query-time recall.
	VectorSearchEf = 128

	// TopChunks is how many best chunk scores average into a track score.
	TopChunks = 3

	// DefaultVibeThreshold drops weak tracks from the results.
	DefaultVibeThreshold = 0.60

	// Tracks hit at several distinct chunks earn a small bonus.
	diversityPerChunk = 0.01
	maxDiversityBonus = 0.05
)

// Embedder produces the query-clip embedding.
type Embedder interface {
	EmbedQuery(ctx context.Context, pcm48 []byte) ([]float32, error)
}

// VectorSearcher is the query side of the chunk embedding index.
type VectorSearcher interface {
	Query(ctx context.Context, vector []float32, limit, searchEf int) ([]vecstore.Hit, error)
}

// VibeLane finds tracks that sound like the query audio.
type VibeLane struct {
	embed     Embedder
	vectors   VectorSearcher
	tracks    TrackResolver
	threshold float64
	log       *slog.Logger
}

// NewVibeLane returns a lane embedding queries with embed and searching
// vectors. A non-positive threshold falls back to DefaultVibeThreshold.
func NewVibeLane(embed Embedder, vectors VectorSearcher, tracks TrackResolver, threshold float64, log *slog.Logger) *VibeLane {
	if threshold <= 0 {
		threshold = DefaultVibeThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &VibeLane{embed: embed, vectors: vectors, tracks: tracks, threshold: threshold, log: log}
}

// Search embeds pcm48 as a single window, pulls the nearest chunks from
// the vector store, and aggregates them into track-level matches sorted
// best-first. Vector-store trouble degrades to an empty list; a failed
// embedding fails the lane. maxResults caps the list when positive.
func (l *VibeLane) Search(ctx context.Context, pcm48 []byte, maxResults int) ([]VibeMatch, error) {
	if len(pcm48) == 0 {
		return []VibeMatch{}, nil
	}

	vector, err := l.embed.EmbedQuery(ctx, pcm48)
	if err != nil {
		return nil, fmt.Errorf("search: query embedding: %w", err)
	}

	hits, err := l.vectors.Query(ctx, vector, VectorSearchLimit, VectorSearchEf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.log.Warn("vector query failed", "error", err)
		return []VibeMatch{}, nil
	}

	scores := aggregateHits(hits)
	kept := scores[:0]
	for _, s := range scores {
		if s.score >= l.threshold {
			kept = append(kept, s)
		}
	}
	if maxResults > 0 && len(kept) > maxResults {
		kept = kept[:maxResults]
	}
	return l.enrich(ctx, kept)
}

// trackScore is an aggregated track before catalog enrichment.
type trackScore struct {
	trackID string
	score   float64
}

// aggregateHits folds chunk hits into per-track scores: the mean of the
// top TopChunks chunk scores, plus a small bonus for matching distinct
// chunks, capped at 1. Sorted best-first.
func aggregateHits(hits []vecstore.Hit) []trackScore {
	type group struct {
		scores  []float64
		indexes map[int]struct{}
	}
	byTrack := make(map[string]*group)
	for _, h := range hits {
		id := strings.TrimSpace(h.Payload.TrackID)
		if id == "" {
			continue
		}
		g := byTrack[id]
		if g == nil {
			g = &group{indexes: make(map[int]struct{})}
			byTrack[id] = g
		}
		g.scores = append(g.scores, float64(h.Score))
		g.indexes[h.Payload.ChunkIndex] = struct{}{}
	}

	out := make([]trackScore, 0, len(byTrack))
	for id, g := range byTrack {
		sort.Sort(sort.Reverse(sort.Float64Slice(g.scores)))
		top := g.scores
		if len(top) > TopChunks {
			top = top[:TopChunks]
		}
		sum := 0.0
		for _, s := range top {
			sum += s
		}
		base := sum / float64(len(top))
		bonus := math.Min(maxDiversityBonus, diversityPerChunk*float64(len(g.indexes)))
		out = append(out, trackScore{trackID: id, score: math.Min(1, base+bonus)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].trackID < out[j].trackID
	})
	return out
}

// enrich resolves scores against the catalog, dropping tracks the vector
// store still knows but the catalog no longer does.
func (l *VibeLane) enrich(ctx context.Context, scores []trackScore) ([]VibeMatch, error) {
	out := make([]VibeMatch, 0, len(scores))
	if len(scores) == 0 {
		return out, nil
	}

	ids := make([]string, len(scores))
	for i, s := range scores {
		ids[i] = s.trackID
	}
	tracks, err := l.tracks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("search: resolve tracks: %w", err)
	}

	for _, s := range scores {
		t, ok := tracks[s.trackID]
		if !ok {
			l.log.Warn("dropping match for uncataloged track", "track_id", s.trackID)
			continue
		}
		out = append(out, VibeMatch{
			Track:          NewTrackInfo(t),
			Similarity:     s.score,
			EmbeddingModel: t.EmbeddingModel,
		})
	}
	return out, nil
}
