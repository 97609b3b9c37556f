// Package decode turns uploaded audio bytes into canonical PCM by shelling
// out to ffmpeg. Every supported container goes through the same path:
// bytes in on stdin, mono little-endian float32 out on stdout.
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MacPhobos/audio-ident-sub000/pkg/audio"
)

var (
	// ErrDecodeFailed marks input ffmpeg could not turn into PCM.
	ErrDecodeFailed = errors.New("decode: ffmpeg failed")

	// ErrFFmpegNotFound marks a missing or non-executable ffmpeg binary.
	ErrFFmpegNotFound = errors.New("decode: ffmpeg not found")
)

// stderrLimit caps how much of ffmpeg's stderr ends up in error messages.
const stderrLimit = 512

// Decoder runs one ffmpeg process per decode. It holds no state and is
// safe for concurrent use.
type Decoder struct {
	// Bin is the ffmpeg binary; a bare name is resolved through PATH.
	Bin string
}

// New returns a Decoder using bin.
func New(bin string) *Decoder {
	return &Decoder{Bin: bin}
}

// Decode converts data into PCM in format f. formatHint, when non-empty,
// is passed as ffmpeg's -f demuxer hint (e.g. "mp3", "wav").
func (d *Decoder) Decode(ctx context.Context, data []byte, formatHint string, f audio.Format) ([]byte, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if formatHint != "" {
		args = append(args, "-f", formatHint)
	}
	args = append(args,
		"-i", "pipe:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(f.Channels()),
		"-ar", strconv.Itoa(f.SampleRate()),
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, d.Bin, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrFFmpegNotFound, d.Bin)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrDecodeFailed, truncate(stderr.String(), stderrLimit))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no audio stream", ErrDecodeFailed)
	}
	return stdout.Bytes(), nil
}

// DecodeDualRate decodes data at both canonical rates concurrently and
// returns (16 kHz PCM, 48 kHz PCM).
func (d *Decoder) DecodeDualRate(ctx context.Context, data []byte, formatHint string) ([]byte, []byte, error) {
	var pcm16, pcm48 []byte
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pcm16, err = d.Decode(ctx, data, formatHint, audio.F32Mono16K)
		return err
	})
	g.Go(func() error {
		var err error
		pcm48, err = d.Decode(ctx, data, formatHint, audio.F32Mono48K)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return pcm16, pcm48, nil
}

// DemuxerHint maps a sniffed container name to the -f value worth forcing.
// Containers that only demux reliably from seekable input (mp4 family) and
// unknown names return "" so ffmpeg probes the stream itself.
func DemuxerHint(format string) string {
	switch strings.ToLower(format) {
	case "mp3", "wav", "flac", "ogg":
		return strings.ToLower(format)
	default:
		return ""
	}
}

// Version returns the first line of `ffmpeg -version`. Used as the startup
// health probe for the binary.
func (d *Decoder) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, d.Bin, "-version").Output()
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrFFmpegNotFound, d.Bin)
		}
		return "", fmt.Errorf("decode: ffmpeg -version: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// isNotFound covers both PATH misses and nonexistent absolute paths.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
