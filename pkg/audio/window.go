package audio

import "math"

// Slice returns the PCM bytes covering [startSec, startSec+lenSec) of data,
// aligned to whole samples and clamped to the stream bounds. A start at or
// past the end returns an empty slice. The returned slice aliases data.
func Slice(data []byte, f Format, startSec, lenSec float64) []byte {
	if startSec < 0 {
		startSec = 0
	}
	if lenSec <= 0 {
		return nil
	}
	lo := f.BytesIn(startSec)
	if lo >= len(data) {
		return nil
	}
	hi := lo + f.BytesIn(lenSec)
	if hi > len(data) {
		hi = len(data)
	}
	return data[lo:hi]
}

// PadTo zero-pads data with silence up to sec seconds. Data already at or
// beyond that length is returned unchanged.
func PadTo(data []byte, f Format, sec float64) []byte {
	want := f.BytesIn(sec)
	if len(data) >= want {
		return data
	}
	out := make([]byte, want)
	copy(out, data)
	return out
}

// Silence returns sec seconds of zero PCM in format f.
func Silence(f Format, sec float64) []byte {
	return make([]byte, f.BytesIn(sec))
}

// Sine synthesizes sec seconds of a freq Hz sine at the given amplitude.
// Handy for tests and for exercising decoders without real recordings.
func Sine(f Format, freq, amp, sec float64) []byte {
	n := f.Samples(f.BytesIn(sec))
	samples := make([]float32, n)
	w := 2 * math.Pi * freq / float64(f.SampleRate())
	for i := range samples {
		samples[i] = float32(amp * math.Sin(w*float64(i)))
	}
	return Bytes(samples)
}
