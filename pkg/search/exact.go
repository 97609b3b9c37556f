package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/MacPhobos/audio-ident-sub000/pkg/audio"
	"github.com/MacPhobos/audio-ident-sub000/pkg/olaf"
)

// Exact-lane tuning.
const (
	// MinAlignedHashes is the floor below which a candidate is noise.
	MinAlignedHashes = 8

	// StrongMatchHashes is the aligned-hash count treated as full confidence.
	StrongMatchHashes = 20

	// FullClipMinSec is the duration from which the whole clip is queried
	// in one shot. Shorter clips go through overlapping sub-windows.
	FullClipMinSec = 6.0

	// SubWindowSec and SubWindowHopSec shape the sub-window sweep: a 5 s
	// clip yields windows at 0, 0.75 and 1.5 s.
	SubWindowSec    = 3.5
	SubWindowHopSec = 0.75

	// OffsetToleranceSec bounds how far a window's reconciled offset may
	// sit from the track median and still count toward the consensus.
	OffsetToleranceSec = 1.0
)

// Fingerprinter is the query side of the fingerprint index.
type Fingerprinter interface {
	Query(ctx context.Context, pcm16 []byte) ([]olaf.Match, error)
}

// ExactLane finds tracks containing the query audio verbatim.
type ExactLane struct {
	index  Fingerprinter
	tracks TrackResolver
	log    *slog.Logger
}

// NewExactLane returns a lane querying index and resolving metadata
// through tracks.
func NewExactLane(index Fingerprinter, tracks TrackResolver, log *slog.Logger) *ExactLane {
	if log == nil {
		log = slog.Default()
	}
	return &ExactLane{index: index, tracks: tracks, log: log}
}

// exactCandidate is a scored track before catalog enrichment.
type exactCandidate struct {
	trackID    string
	aligned    int
	offset     float64
	confidence float64
}

// Search matches pcm16 against the fingerprint index and returns matches
// best-first. Clips of at least FullClipMinSec are queried whole; shorter
// ones are swept with overlapping sub-windows whose per-track offsets must
// agree before they count. maxResults caps the list when positive.
func (l *ExactLane) Search(ctx context.Context, pcm16 []byte, maxResults int) ([]ExactMatch, error) {
	if len(pcm16) == 0 {
		return []ExactMatch{}, nil
	}

	var cands []exactCandidate
	var err error
	if durationSec := audio.F32Mono16K.Seconds(len(pcm16)); durationSec >= FullClipMinSec {
		cands, err = l.fullClip(ctx, pcm16)
	} else {
		cands, err = l.subWindows(ctx, pcm16, durationSec)
	}
	if err != nil {
		return nil, err
	}

	kept := cands[:0]
	for _, c := range cands {
		if c.aligned < MinAlignedHashes {
			continue
		}
		c.confidence = confidence(c.aligned)
		kept = append(kept, c)
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].confidence != kept[j].confidence {
			return kept[i].confidence > kept[j].confidence
		}
		if kept[i].aligned != kept[j].aligned {
			return kept[i].aligned > kept[j].aligned
		}
		return kept[i].trackID < kept[j].trackID
	})
	if maxResults > 0 && len(kept) > maxResults {
		kept = kept[:maxResults]
	}
	return l.enrich(ctx, kept)
}

// fullClip queries the whole clip once and folds the returned segments
// per track. The reported offset comes from the strongest segment.
func (l *ExactLane) fullClip(ctx context.Context, pcm16 []byte) ([]exactCandidate, error) {
	rows, err := l.index.Query(ctx, pcm16)
	if err != nil {
		return nil, fmt.Errorf("search: fingerprint query: %w", err)
	}

	byTrack := make(map[string][]olaf.Match)
	for _, m := range rows {
		id := strings.TrimSpace(m.TrackID)
		if id == "" {
			continue
		}
		byTrack[id] = append(byTrack[id], m)
	}

	cands := make([]exactCandidate, 0, len(byTrack))
	for id, ms := range byTrack {
		total := 0
		best := ms[0]
		for _, m := range ms {
			total += m.MatchCount
			if m.MatchCount > best.MatchCount {
				best = m
			}
		}
		cands = append(cands, exactCandidate{
			trackID: id,
			aligned: total,
			offset:  best.RefStart - best.QueryStart,
		})
	}
	return cands, nil
}

// windowRow is one window's vote for a track: where the track would have
// to start for this window's match to hold, and how many hashes back it.
type windowRow struct {
	window int
	offset float64
	count  int
}

// subWindows sweeps overlapping windows across a short clip and keeps
// only tracks whose windows agree on the offset. Disagreeing windows are
// dropped before scoring; a lone surviving window scores at half weight.
func (l *ExactLane) subWindows(ctx context.Context, pcm16 []byte, durationSec float64) ([]exactCandidate, error) {
	starts := windowStarts(durationSec)

	byTrack := make(map[string][]windowRow)
	failed := 0
	for i, start := range starts {
		window := audio.Slice(pcm16, audio.F32Mono16K, start, SubWindowSec)
		if len(window) == 0 {
			continue
		}
		rows, err := l.index.Query(ctx, window)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			l.log.Warn("fingerprint window query failed", "window", i, "error", err)
			continue
		}
		for _, m := range rows {
			id := strings.TrimSpace(m.TrackID)
			if id == "" {
				continue
			}
			byTrack[id] = append(byTrack[id], windowRow{
				window: i,
				offset: m.RefStart - start,
				count:  m.MatchCount,
			})
		}
	}
	if failed == len(starts) {
		return nil, fmt.Errorf("search: all %d fingerprint windows failed", failed)
	}

	cands := make([]exactCandidate, 0, len(byTrack))
	for id, rows := range byTrack {
		med := medianOffset(rows)
		agreed := rows[:0]
		for _, r := range rows {
			if math.Abs(r.offset-med) <= OffsetToleranceSec {
				agreed = append(agreed, r)
			}
		}
		if len(agreed) == 0 {
			continue
		}

		windows := make(map[int]struct{}, len(agreed))
		total := 0
		for _, r := range agreed {
			windows[r.window] = struct{}{}
			total += r.count
		}
		aligned := total
		if len(windows) < 2 {
			aligned = max(total/2, 1)
		}
		cands = append(cands, exactCandidate{
			trackID: id,
			aligned: aligned,
			offset:  medianOffset(agreed),
		})
	}
	return cands, nil
}

// windowStarts returns the sub-window start times covering a short clip.
// A clip no longer than one window is queried whole.
func windowStarts(durationSec float64) []float64 {
	if durationSec <= SubWindowSec {
		return []float64{0}
	}
	const eps = 1e-9
	var starts []float64
	for s := 0.0; s+SubWindowSec <= durationSec+eps; s += SubWindowHopSec {
		starts = append(starts, s)
	}
	return starts
}

// medianOffset returns the median reconciled offset of rows.
func medianOffset(rows []windowRow) float64 {
	offs := make([]float64, len(rows))
	for i, r := range rows {
		offs[i] = r.offset
	}
	sort.Float64s(offs)
	mid := len(offs) / 2
	if len(offs)%2 == 0 {
		return (offs[mid-1] + offs[mid]) / 2
	}
	return offs[mid]
}

// confidence maps an aligned-hash count onto [0, 1].
func confidence(aligned int) float64 {
	if aligned <= 0 {
		return 0
	}
	return math.Min(float64(aligned)/StrongMatchHashes, 1)
}

// enrich resolves candidates against the catalog, dropping tracks the
// index still knows but the catalog no longer does.
func (l *ExactLane) enrich(ctx context.Context, cands []exactCandidate) ([]ExactMatch, error) {
	out := make([]ExactMatch, 0, len(cands))
	if len(cands) == 0 {
		return out, nil
	}

	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.trackID
	}
	tracks, err := l.tracks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("search: resolve tracks: %w", err)
	}

	for _, c := range cands {
		t, ok := tracks[c.trackID]
		if !ok {
			l.log.Warn("dropping match for uncataloged track", "track_id", c.trackID)
			continue
		}
		offset := c.offset
		out = append(out, ExactMatch{
			Track:         NewTrackInfo(t),
			Confidence:    c.confidence,
			OffsetSec:     &offset,
			AlignedHashes: c.aligned,
		})
	}
	return out, nil
}
