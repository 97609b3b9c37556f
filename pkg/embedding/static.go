package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/MacPhobos/audio-ident-sub000/pkg/audio"
	"github.com/MacPhobos/audio-ident-sub000/pkg/audio/fbank"
)

// Static is the built-in pure-Go model. It pools log mel filterbank
// statistics over time and projects them to the configured dimension
// with a projection seeded from the model name, so the weights are
// fixed (static) and identical in every process. Clips that sound alike
// land nearby in the vector space, but there are no learned weights; it
// stands in for a trained model, it does not rival one.
type Static struct {
	name string
	dim  int
	ext  *fbank.Extractor
	proj [][]float32 // [dim][2*numMels], unit rows
}

// staticFrontend is the 48 kHz analysis front-end (25 ms windows, 10 ms hop).
func staticFrontend() fbank.Config {
	return fbank.Config{
		SampleRate:  48000,
		WindowSize:  1200,
		HopSize:     480,
		FFTSize:     2048,
		NumMels:     64,
		LowFreq:     20,
		HighFreq:    16000,
		PreEmphasis: 0.97,
	}
}

// NewStatic returns a Static model producing dim-length vectors.
func NewStatic(name string, dim int) *Static {
	cfg := staticFrontend()
	s := &Static{
		name: name,
		dim:  dim,
		ext:  fbank.New(cfg),
	}

	// The projection must match in every process that reads or writes the
	// same collection, so it is derived from the model name alone.
	seed := sha256.Sum256([]byte(name))
	rng := rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(seed[0:8]),
		binary.LittleEndian.Uint64(seed[8:16]),
	))
	in := 2 * cfg.NumMels
	s.proj = make([][]float32, dim)
	for i := range s.proj {
		row := make([]float32, in)
		var norm float64
		for j := range row {
			v := float32(rng.NormFloat64())
			row[j] = v
			norm += float64(v) * float64(v)
		}
		inv := float32(1 / math.Sqrt(norm))
		for j := range row {
			row[j] *= inv
		}
		s.proj[i] = row
	}
	return s
}

func (s *Static) Embed(_ context.Context, pcm48 []byte) ([]float32, error) {
	if len(pcm48) == 0 {
		return nil, ErrEmptyInput
	}
	feats := s.ext.Extract(audio.Samples(pcm48))
	if len(feats) == 0 {
		return nil, fmt.Errorf("%w: shorter than one analysis window", ErrEmptyInput)
	}

	stats := poolStats(feats)
	out := make([]float32, s.dim)
	var norm float64
	for i, row := range s.proj {
		var sum float32
		for j, w := range row {
			sum += w * stats[j]
		}
		out[i] = sum
		norm += float64(sum) * float64(sum)
	}

	// L2-normalize so cosine scoring behaves like a trained model's output.
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range out {
			out[i] *= inv
		}
	}
	return out, nil
}

// poolStats reduces [T][numMels] features to per-mel mean and standard
// deviation, the usual utterance-level pooling.
func poolStats(feats [][]float32) []float32 {
	mels := len(feats[0])
	stats := make([]float32, 2*mels)
	frames := float64(len(feats))
	for m := 0; m < mels; m++ {
		var sum float64
		for _, f := range feats {
			sum += float64(f[m])
		}
		mean := sum / frames
		var varSum float64
		for _, f := range feats {
			d := float64(f[m]) - mean
			varSum += d * d
		}
		stats[m] = float32(mean)
		stats[mels+m] = float32(math.Sqrt(varSum / frames))
	}
	return stats
}

func (s *Static) Name() string   { return s.name }
func (s *Static) Dimension() int { return s.dim }
func (s *Static) Close() error   { return nil }

// Compile-time interface check.
var _ Model = (*Static)(nil)
