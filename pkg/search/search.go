// Package search implements the two identification lanes, exact
// fingerprint matching and embedding similarity ("vibe"), plus the
// orchestrator that runs them under per-lane and total time budgets.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MacPhobos/audio-ident-sub000/pkg/catalog"
)

// Mode selects which lanes a request runs.
type Mode string

const (
	ModeExact Mode = "exact"
	ModeVibe  Mode = "vibe"
	ModeBoth  Mode = "both"
)

// ParseMode validates a client-supplied mode string. Empty means both.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeBoth, nil
	case ModeExact, ModeVibe, ModeBoth:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("search: unknown mode %q", s)
	}
}

var (
	// ErrTimeout reports that a lane or the whole request exceeded its
	// time budget.
	ErrTimeout = errors.New("search: timed out")

	// ErrUnavailable reports that no lane could produce a result for a
	// non-timeout reason.
	ErrUnavailable = errors.New("search: service unavailable")
)

// TrackInfo is the catalog view embedded in every match.
type TrackInfo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist,omitempty"`
	Album       string    `json:"album,omitempty"`
	DurationSec float64   `json:"duration_sec"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// ExactMatch is one fingerprint identification with its time alignment.
type ExactMatch struct {
	Track         TrackInfo `json:"track"`
	Confidence    float64   `json:"confidence"`
	OffsetSec     *float64  `json:"offset_seconds,omitempty"`
	AlignedHashes int       `json:"aligned_hashes"`
}

// VibeMatch is one embedding-similarity result.
type VibeMatch struct {
	Track          TrackInfo `json:"track"`
	Similarity     float64   `json:"similarity"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
}

// Response is the orchestrator's reply for one request.
type Response struct {
	RequestID      string       `json:"request_id"`
	TotalElapsedMS int64        `json:"total_elapsed_ms"`
	ModeUsed       Mode         `json:"mode_used"`
	ExactMatches   []ExactMatch `json:"exact_matches"`
	VibeMatches    []VibeMatch  `json:"vibe_matches"`
}

// TrackResolver resolves track identifiers to catalog records. Both lanes
// use it to drop matches whose track has been deleted since indexing.
type TrackResolver interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*catalog.Track, error)
}

// NewTrackInfo projects a catalog record onto the wire shape shared by
// match results and the track listing.
func NewTrackInfo(t *catalog.Track) TrackInfo {
	return TrackInfo{
		ID:          t.ID,
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		DurationSec: t.DurationSec,
		IngestedAt:  t.IngestedAt,
	}
}
