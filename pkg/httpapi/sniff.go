package httpapi

import (
	"bytes"
	"strings"
)

// DetectFormat sniffs the container from the first bytes of data and
// returns its canonical extension, or "" when the payload is not a
// format the service accepts. The client-supplied filename and
// Content-Type are never consulted.
func DetectFormat(data []byte) string {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")):
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// Bare MPEG audio frame sync, no ID3 header.
		return "mp3"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return "wav"
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("fLaC")):
		return "flac"
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("OggS")):
		return "ogg"
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "m4a"
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "webm"
	}
	return ""
}

// contentTypeFor maps a stored container name to the media type served
// by the audio endpoint.
func contentTypeFor(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	case "ogg":
		return "audio/ogg"
	case "m4a", "mp4", "aac":
		return "audio/mp4"
	case "webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
