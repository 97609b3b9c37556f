package embedding

import "github.com/MacPhobos/audio-ident-sub000/pkg/audio"

// Chunking policy for whole tracks: 50 % overlapping windows, with a
// padded tail when at least one second of real audio remains.
const (
	WindowSec  = 10.0
	HopSec     = 5.0
	MinTailSec = 1.0
)

// Window is one model input cut from a track.
type Window struct {
	// PCM is exactly WindowSec long; tails are zero-padded.
	PCM []byte

	// Index is the window's ordinal; OffsetSec = Index * HopSec.
	Index     int
	OffsetSec float64

	// DurationSec is the real (pre-padding) audio length.
	DurationSec float64
}

// SplitWindows cuts pcm into the track chunking layout. Tails shorter
// than MinTailSec are dropped; an input shorter than that yields nothing.
func SplitWindows(pcm []byte, f audio.Format) []Window {
	total := f.Seconds(len(pcm))
	var out []Window
	for i := 0; ; i++ {
		start := float64(i) * HopSec
		if start >= total {
			break
		}
		have := min(WindowSec, total-start)
		if have < MinTailSec {
			break
		}
		cut := audio.Slice(pcm, f, start, WindowSec)
		out = append(out, Window{
			PCM:         audio.PadTo(cut, f, WindowSec),
			Index:       i,
			OffsetSec:   start,
			DurationSec: have,
		})
	}
	return out
}
