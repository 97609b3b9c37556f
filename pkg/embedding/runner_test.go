package embedding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/MacPhobos/audio-ident-sub000/pkg/audio"
)

func TestHandshake(t *testing.T) {
	c := newConn(strings.NewReader("ready clap-htsat 512\n"), &bytes.Buffer{})
	name, err := c.handshake(512)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if name != "clap-htsat" {
		t.Errorf("name = %q", name)
	}
}

func TestHandshakeDimensionMismatch(t *testing.T) {
	c := newConn(strings.NewReader("ready clap-htsat 256\n"), &bytes.Buffer{})
	if _, err := c.handshake(512); err == nil {
		t.Fatal("dimension mismatch should fail the handshake")
	}
}

func TestHandshakeGarbage(t *testing.T) {
	for _, line := range []string{"hello\n", "ready clap\n", "ready clap x\n"} {
		c := newConn(strings.NewReader(line), &bytes.Buffer{})
		if _, err := c.handshake(512); err == nil {
			t.Errorf("handshake(%q) should fail", strings.TrimSpace(line))
		}
	}
}

// vectorFrame encodes a response frame the way a well-behaved runner does.
func vectorFrame(vec []float32) []byte {
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(len(vec)))
	out.Write(audio.Bytes(vec))
	return out.Bytes()
}

func errorFrame(msg string) []byte {
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(0))
	binary.Write(&out, binary.LittleEndian, uint32(len(msg)))
	out.WriteString(msg)
	return out.Bytes()
}

func TestRoundTrip(t *testing.T) {
	want := []float32{0.25, -0.5, 1}
	var sent bytes.Buffer
	c := newConn(bytes.NewReader(vectorFrame(want)), &sent)

	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	vec, err := c.roundTrip(pcm)
	if err != nil {
		t.Fatalf("roundTrip: %v", err)
	}
	if len(vec) != len(want) {
		t.Fatalf("len = %d", len(vec))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d] = %v, want %v", i, vec[i], want[i])
		}
	}

	// Request frame: length prefix then the PCM bytes.
	got := sent.Bytes()
	if binary.LittleEndian.Uint32(got[:4]) != uint32(len(pcm)) {
		t.Errorf("request length prefix = %d", binary.LittleEndian.Uint32(got[:4]))
	}
	if !bytes.Equal(got[4:], pcm) {
		t.Errorf("request body = %v", got[4:])
	}
}

func TestRoundTripErrorFrame(t *testing.T) {
	c := newConn(bytes.NewReader(errorFrame("input too short")), &bytes.Buffer{})
	_, err := c.roundTrip([]byte{1, 2, 3, 4})
	if err == nil {
		t.Fatal("error frame should surface as an error")
	}
	var infErr *inferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("err = %T, want *inferenceError", err)
	}
	if !strings.Contains(err.Error(), "input too short") {
		t.Errorf("err = %q", err)
	}
}

func TestRoundTripTruncatedResponse(t *testing.T) {
	// Claims 4 floats but carries only one.
	var short bytes.Buffer
	binary.Write(&short, binary.LittleEndian, uint32(4))
	short.Write(audio.Bytes([]float32{1}))

	c := newConn(bytes.NewReader(short.Bytes()), &bytes.Buffer{})
	if _, err := c.roundTrip([]byte{0, 0, 0, 0}); err == nil {
		t.Fatal("truncated response should fail")
	}
}
