// Package fbank computes log mel filterbank features from PCM audio.
//
// This is the analysis front-end for the built-in embedding model: the
// output is a [T, numMels] float32 matrix that gets pooled over time
// into a clip-level vector. The defaults follow the common 16 kHz
// speech convention; the embedding model runs its own 48 kHz config.
package fbank

import (
	"math"
)

// Config controls mel filterbank extraction parameters.
type Config struct {
	SampleRate  int     // audio sample rate in Hz (default 16000)
	WindowSize  int     // window length in samples (default 400 = 25ms)
	HopSize     int     // hop length in samples (default 160 = 10ms)
	FFTSize     int     // FFT size (default 512)
	NumMels     int     // number of mel bins (default 80)
	LowFreq     float64 // lowest mel frequency (default 20)
	HighFreq    float64 // highest mel frequency (default 7600)
	PreEmphasis float64 // pre-emphasis coefficient (default 0.97)
}

// DefaultConfig returns the common 16 kHz speech configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		WindowSize:  400,
		HopSize:     160,
		FFTSize:     512,
		NumMels:     80,
		LowFreq:     20,
		HighFreq:    7600,
		PreEmphasis: 0.97,
	}
}

// Extractor computes mel filterbank features from PCM samples.
type Extractor struct {
	cfg     Config
	window  []float64 // Hamming window
	melBank [][]float64
}

// New creates a new fbank Extractor with the given config.
func New(cfg Config) *Extractor {
	e := &Extractor{cfg: cfg}
	e.window = hammingWindow(cfg.WindowSize)
	e.melBank = melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq)
	return e
}

// Extract computes log mel filterbank features from PCM float32 samples.
// Input: pcm is normalized float32 audio samples (range [-1, 1]).
// Output: [T][numMels] float32 matrix where T = (len(pcm) - windowSize) / hopSize + 1.
func (e *Extractor) Extract(pcm []float32) [][]float32 {
	cfg := e.cfg
	n := len(pcm)
	if n < cfg.WindowSize {
		return nil
	}

	numFrames := (n-cfg.WindowSize)/cfg.HopSize + 1
	nfft := cfg.FFTSize
	halfFFT := nfft/2 + 1

	// Pre-allocate output
	features := make([][]float32, numFrames)

	// Working buffers
	frame := make([]float64, nfft)
	real := make([]float64, nfft)
	imag := make([]float64, nfft)

	for t := 0; t < numFrames; t++ {
		start := t * cfg.HopSize

		// Pre-emphasis + windowing
		for i := 0; i < cfg.WindowSize; i++ {
			s := float64(pcm[start+i])
			if i > 0 {
				s -= cfg.PreEmphasis * float64(pcm[start+i-1])
			}
			frame[i] = s * e.window[i]
		}
		// Zero-pad
		for i := cfg.WindowSize; i < nfft; i++ {
			frame[i] = 0
		}

		// FFT
		copy(real, frame)
		for i := range imag {
			imag[i] = 0
		}
		fft(real, imag)

		// Power spectrum
		power := make([]float64, halfFFT)
		for i := 0; i < halfFFT; i++ {
			power[i] = real[i]*real[i] + imag[i]*imag[i]
		}

		// Mel filterbank
		mel := make([]float32, cfg.NumMels)
		for m := 0; m < cfg.NumMels; m++ {
			sum := 0.0
			for k, w := range e.melBank[m] {
				sum += w * power[k]
			}
			// Log with floor to avoid -inf
			if sum < 1e-10 {
				sum = 1e-10
			}
			mel[m] = float32(math.Log(sum))
		}
		features[t] = mel
	}

	return features
}
