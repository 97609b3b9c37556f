// Package meta extracts best-effort descriptive and technical metadata
// from uploaded audio bytes.
//
// Extraction never fails: the content hash and size are always present,
// everything else is filled when the container allows it. Tags come from
// dhowden/tag (ID3v1/v2, Vorbis comments, MP4 atoms); WAV technical fields
// come from go-audio/wav.
package meta

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
)

// Metadata describes one uploaded file.
type Metadata struct {
	// Always present.
	SHA256    string
	SizeBytes int64

	// Best-effort tag fields; empty when the container carries none.
	Title  string
	Artist string
	Album  string
	Genre  string
	Year   int

	// FileType is the container as reported by the tag reader (MP3, FLAC,
	// M4A, ...), falling back to the filename extension.
	FileType string

	// Technical fields, populated for WAV payloads.
	SampleRate  int
	Channels    int
	BitDepth    int
	DurationSec float64

	// Bitrate in bits/s, derived from size and duration when known.
	Bitrate int
}

// Overrides carries caller-supplied tag values that take precedence over
// whatever the file itself says. Empty fields leave the extracted value.
type Overrides struct {
	Title  string
	Artist string
	Album  string
	Genre  string
}

// Apply replaces tag fields with the non-empty fields of o.
func (m *Metadata) Apply(o Overrides) {
	if o.Title != "" {
		m.Title = o.Title
	}
	if o.Artist != "" {
		m.Artist = o.Artist
	}
	if o.Album != "" {
		m.Album = o.Album
	}
	if o.Genre != "" {
		m.Genre = o.Genre
	}
}

// Extract reads what it can from data. name is only consulted for the
// extension fallback.
func Extract(name string, data []byte) Metadata {
	sum := sha256.Sum256(data)
	m := Metadata{
		SHA256:    hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(data)),
	}

	if t, err := tag.ReadFrom(bytes.NewReader(data)); err == nil {
		m.Title = strings.TrimSpace(t.Title())
		m.Artist = strings.TrimSpace(t.Artist())
		m.Album = strings.TrimSpace(t.Album())
		m.Genre = strings.TrimSpace(t.Genre())
		m.Year = t.Year()
		m.FileType = string(t.FileType())
	}
	if m.FileType == "" {
		m.FileType = strings.ToUpper(strings.TrimPrefix(filepath.Ext(name), "."))
	}

	readWAV(data, &m)

	if m.DurationSec > 0 {
		m.Bitrate = int(float64(m.SizeBytes*8) / m.DurationSec)
	}
	return m
}

// readWAV fills the technical fields from a RIFF/WAVE header. Anything
// malformed is silently skipped; tags already extracted stay intact.
func readWAV(data []byte, m *Metadata) {
	if len(data) < 12 || !bytes.HasPrefix(data, []byte("RIFF")) || string(data[8:12]) != "WAVE" {
		return
	}
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return
	}
	m.SampleRate = int(d.SampleRate)
	m.Channels = int(d.NumChans)
	m.BitDepth = int(d.BitDepth)
	if dur, err := d.Duration(); err == nil {
		m.DurationSec = dur.Seconds()
	}
}
