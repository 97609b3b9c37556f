package meta

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// id3v23 builds a minimal ID3v2.3 tag followed by one MP3 sync frame header.
func id3v23(frames [][2]string) []byte {
	var body bytes.Buffer
	for _, f := range frames {
		body.WriteString(f[0])
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(f[1])+1))
		body.Write(size[:])
		body.Write([]byte{0, 0}) // frame flags
		body.WriteByte(0)        // ISO-8859-1
		body.WriteString(f[1])
	}

	n := body.Len()
	var out bytes.Buffer
	out.WriteString("ID3")
	out.Write([]byte{3, 0, 0}) // v2.3, no flags
	out.Write([]byte{
		byte(n >> 21 & 0x7f),
		byte(n >> 14 & 0x7f),
		byte(n >> 7 & 0x7f),
		byte(n & 0x7f),
	})
	out.Write(body.Bytes())
	out.Write([]byte{0xff, 0xfb, 0x90, 0x00}) // MPEG1 layer III header
	return out.Bytes()
}

// wavBytes builds a minimal PCM RIFF/WAVE file.
func wavBytes(rate, channels, bits, samples int) []byte {
	dataLen := samples * channels * bits / 8
	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(36+dataLen))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(16))
	binary.Write(&out, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&out, binary.LittleEndian, uint16(channels))
	binary.Write(&out, binary.LittleEndian, uint32(rate))
	binary.Write(&out, binary.LittleEndian, uint32(rate*channels*bits/8))
	binary.Write(&out, binary.LittleEndian, uint16(channels*bits/8))
	binary.Write(&out, binary.LittleEndian, uint16(bits))
	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, uint32(dataLen))
	out.Write(make([]byte, dataLen))
	return out.Bytes()
}

func TestExtractAlwaysHashes(t *testing.T) {
	m := Extract("garbage.bin", []byte{0xde, 0xad, 0xbe, 0xef})
	if len(m.SHA256) != 64 {
		t.Errorf("SHA256 = %q, want 64 hex chars", m.SHA256)
	}
	if m.SizeBytes != 4 {
		t.Errorf("SizeBytes = %d, want 4", m.SizeBytes)
	}
	if m.Title != "" || m.Artist != "" {
		t.Errorf("tags from garbage: %+v", m)
	}
}

func TestExtractID3Tags(t *testing.T) {
	data := id3v23([][2]string{
		{"TIT2", "Night Drive"},
		{"TPE1", "The Valves"},
		{"TALB", "Static"},
		{"TCON", "Electronic"},
		{"TYER", "2021"},
	})
	m := Extract("night-drive.mp3", data)
	if m.Title != "Night Drive" {
		t.Errorf("Title = %q", m.Title)
	}
	if m.Artist != "The Valves" {
		t.Errorf("Artist = %q", m.Artist)
	}
	if m.Album != "Static" {
		t.Errorf("Album = %q", m.Album)
	}
	if m.Genre != "Electronic" {
		t.Errorf("Genre = %q", m.Genre)
	}
	if m.Year != 2021 {
		t.Errorf("Year = %d", m.Year)
	}
	if m.FileType != "MP3" {
		t.Errorf("FileType = %q, want MP3", m.FileType)
	}
}

func TestExtractWAV(t *testing.T) {
	data := wavBytes(16000, 1, 16, 16000) // one second
	m := Extract("tone.wav", data)
	if m.SampleRate != 16000 {
		t.Errorf("SampleRate = %d", m.SampleRate)
	}
	if m.Channels != 1 {
		t.Errorf("Channels = %d", m.Channels)
	}
	if m.BitDepth != 16 {
		t.Errorf("BitDepth = %d", m.BitDepth)
	}
	if math.Abs(m.DurationSec-1.0) > 0.05 {
		t.Errorf("DurationSec = %v, want ~1.0", m.DurationSec)
	}
	if m.Bitrate <= 0 {
		t.Errorf("Bitrate = %d, want > 0", m.Bitrate)
	}
	if m.FileType != "WAV" {
		t.Errorf("FileType = %q, want WAV", m.FileType)
	}
}

func TestExtractExtensionFallback(t *testing.T) {
	m := Extract("clip.flac", []byte("not really flac"))
	if m.FileType != "FLAC" {
		t.Errorf("FileType = %q, want FLAC", m.FileType)
	}
}

func TestApplyOverrides(t *testing.T) {
	data := id3v23([][2]string{{"TIT2", "Tagged Title"}, {"TPE1", "Tagged Artist"}})
	m := Extract("clip.mp3", data)

	m.Apply(Overrides{Title: "Manifest Title", Genre: "ambient"})

	if m.Title != "Manifest Title" {
		t.Errorf("Title = %q, want override", m.Title)
	}
	if m.Artist != "Tagged Artist" {
		t.Errorf("Artist = %q, want tag value kept", m.Artist)
	}
	if m.Genre != "ambient" {
		t.Errorf("Genre = %q, want override", m.Genre)
	}
}
