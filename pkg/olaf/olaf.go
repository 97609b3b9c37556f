// Package olaf wraps the external fingerprint tool that owns the on-disk
// acoustic landmark index.
//
// Every operation is one subprocess run: PCM goes to a temporary raw file,
// results come back on stdout. The backing index is single-writer; callers
// serialize Store and Delete globally (the ingest lock does this), while
// Query is safe to run in parallel.
package olaf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

var (
	// ErrToolMissing marks a missing or non-executable fingerprint binary.
	// Fatal at startup.
	ErrToolMissing = errors.New("olaf: fingerprint tool missing")

	// ErrIndexWrite marks a failed index mutation (store or delete).
	ErrIndexWrite = errors.New("olaf: index write failed")
)

// Match is one reference segment the tool aligned with the query audio.
type Match struct {
	// MatchCount is the number of fingerprint hashes that aligned.
	MatchCount int

	// QueryStart and QueryStop bound the matched span in the query clip.
	QueryStart float64
	QueryStop  float64

	// TrackID is the identifier the audio was stored under.
	TrackID string

	// RefID is the tool's internal numeric reference id.
	RefID int

	// RefStart and RefStop bound the matched span in the reference track.
	RefStart float64
	RefStop  float64
}

// Index runs the fingerprint tool against one index directory.
type Index struct {
	// Bin is the tool binary; a bare name is resolved through PATH.
	Bin string

	// DBDir is the index directory the tool runs in.
	DBDir string
}

// New returns an Index for bin operating on dbDir.
func New(bin, dbDir string) *Index {
	return &Index{Bin: bin, DBDir: dbDir}
}

// CheckBinary verifies the tool can be executed. Called once at startup.
func (x *Index) CheckBinary() error {
	if _, err := exec.LookPath(x.Bin); err != nil {
		return fmt.Errorf("%w: %s", ErrToolMissing, x.Bin)
	}
	return nil
}

// Store adds all fingerprint hashes of pcm16 to the index under trackID.
// Must run under the global write lock.
func (x *Index) Store(ctx context.Context, pcm16 []byte, trackID string) error {
	raw, err := writeTemp(pcm16)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	defer os.Remove(raw)

	out, stderr, err := x.run(ctx, "store", raw, trackID)
	if err != nil {
		return fmt.Errorf("%w: store %s: %s", ErrIndexWrite, trackID, firstOf(stderr, out, err.Error()))
	}
	return nil
}

// Query matches pcm16 against the index. A non-zero exit is treated as
// "no matches", not an error; searches degrade instead of failing.
func (x *Index) Query(ctx context.Context, pcm16 []byte) ([]Match, error) {
	raw, err := writeTemp(pcm16)
	if err != nil {
		return nil, fmt.Errorf("olaf: query temp file: %w", err)
	}
	defer os.Remove(raw)

	out, _, err := x.run(ctx, "query", raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	return ParseMatches(bytes.NewReader([]byte(out))), nil
}

// Delete removes all hashes stored under trackID. Must run under the
// global write lock.
func (x *Index) Delete(ctx context.Context, trackID string) error {
	out, stderr, err := x.run(ctx, "delete", trackID)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %s", ErrIndexWrite, trackID, firstOf(stderr, out, err.Error()))
	}
	return nil
}

// run executes one tool invocation inside the index directory.
func (x *Index) run(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, x.Bin, args...)
	cmd.Dir = x.DBDir
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// writeTemp persists PCM to a temporary .raw file the tool can read.
func writeTemp(pcm []byte) (string, error) {
	f, err := os.CreateTemp("", "olaf-*.raw")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(pcm); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func firstOf(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
