// Package audio defines the canonical PCM layouts used across the service
// and the helpers for moving between them.
//
// All decoded audio is mono little-endian float32 at one of two rates:
// 16 kHz for fingerprinting and 48 kHz for embeddings. Byte counts, sample
// counts, and durations convert through [Format].
package audio

import "time"

// Format identifies a canonical PCM layout: mono, little-endian float32,
// at a fixed sample rate.
type Format int

const (
	// F32Mono16K is 32-bit float mono PCM at 16 kHz (fingerprint rate).
	F32Mono16K Format = iota + 1

	// F32Mono48K is 32-bit float mono PCM at 48 kHz (embedding rate).
	F32Mono48K
)

// SampleRate returns the sample rate in Hz.
func (f Format) SampleRate() int {
	switch f {
	case F32Mono16K:
		return 16000
	case F32Mono48K:
		return 48000
	}
	panic("audio: invalid format")
}

// Channels returns the channel count. All canonical formats are mono.
func (f Format) Channels() int {
	switch f {
	case F32Mono16K, F32Mono48K:
		return 1
	}
	panic("audio: invalid format")
}

// BytesPerSample returns the size of one sample in bytes.
func (f Format) BytesPerSample() int {
	switch f {
	case F32Mono16K, F32Mono48K:
		return 4
	}
	panic("audio: invalid format")
}

// BytesPerSecond returns the byte rate of the stream.
func (f Format) BytesPerSecond() int {
	return f.SampleRate() * f.Channels() * f.BytesPerSample()
}

// Samples returns how many whole samples n bytes hold.
func (f Format) Samples(n int) int {
	return n / f.BytesPerSample()
}

// Seconds returns the duration in seconds of n bytes of PCM.
func (f Format) Seconds(n int) float64 {
	return float64(f.Samples(n)) / float64(f.SampleRate())
}

// Duration returns the duration of n bytes of PCM.
func (f Format) Duration(n int) time.Duration {
	return time.Duration(f.Seconds(n) * float64(time.Second))
}

// BytesIn returns the byte length of sec seconds of PCM, aligned to a
// whole sample.
func (f Format) BytesIn(sec float64) int {
	samples := int(sec * float64(f.SampleRate()))
	return samples * f.BytesPerSample()
}

func (f Format) String() string {
	switch f {
	case F32Mono16K:
		return "f32le/16000/mono"
	case F32Mono48K:
		return "f32le/48000/mono"
	}
	panic("audio: invalid format")
}
