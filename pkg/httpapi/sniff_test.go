package httpapi

import "testing"

func TestDetectFormat(t *testing.T) {
	wavHeader := append([]byte("RIFF"), []byte{0x24, 0x08, 0x00, 0x00}...)
	wavHeader = append(wavHeader, []byte("WAVE")...)

	m4aHeader := append([]byte{0x00, 0x00, 0x00, 0x20}, []byte("ftypM4A ")...)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"id3 tagged mp3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), "mp3"},
		{"bare mpeg frame", []byte{0xFF, 0xFB, 0x90, 0x00}, "mp3"},
		{"mpeg2 frame", []byte{0xFF, 0xF3, 0x18, 0xC4}, "mp3"},
		{"wav", wavHeader, "wav"},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), "flac"},
		{"ogg", []byte("OggS\x00\x02"), "ogg"},
		{"m4a", m4aHeader, "m4a"},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, "webm"},
		{"plain text", []byte("hello there, not audio"), ""},
		{"riff without wave", []byte("RIFF\x00\x00\x00\x00AVI LIST"), ""},
		{"frame sync without second bits", []byte{0xFF, 0x1F, 0x00, 0x00}, ""},
		{"empty", nil, ""},
		{"single byte", []byte{0xFF}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("DetectFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"mp3", "audio/mpeg"},
		{"MP3", "audio/mpeg"},
		{"wav", "audio/wav"},
		{"flac", "audio/flac"},
		{"ogg", "audio/ogg"},
		{"m4a", "audio/mp4"},
		{"mp4", "audio/mp4"},
		{"webm", "audio/webm"},
		{"", "application/octet-stream"},
		{"xyz", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := contentTypeFor(tt.format); got != tt.want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

// ---

func BenchmarkDetectFormat(b *testing.B) {
	payload := mp3Payload(4096)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if DetectFormat(payload) != "mp3" {
			b.Fatal("misdetected")
		}
	}
}
