package audio

import (
	"encoding/binary"
	"math"
)

// Samples decodes little-endian float32 PCM bytes into samples. A trailing
// partial sample is dropped.
func Samples(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// Bytes encodes float32 samples as little-endian PCM bytes.
func Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// S16LE converts little-endian float32 PCM bytes to signed 16-bit
// little-endian PCM, clipping samples to [-1, 1]. This feeds tools that
// only accept integer PCM, so the float decode never has to run twice.
func S16LE(data []byte) []byte {
	n := len(data) / 4
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}
