// Package dedup detects perceptual duplicates: re-encodes of already
// cataloged audio that a byte hash cannot catch.
//
// Fingerprints are raw chromaprints computed by the external fpcalc tool
// from the 16 kHz decode (converted to 16-bit PCM in-process, so ingestion
// never runs a third decode). Two fingerprints are compared by XOR bit
// error rate with a length-ratio penalty.
package dedup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/bits"
	"os/exec"
	"strconv"
	"strings"
)

// ErrFpcalcNotFound marks a missing or non-executable fpcalc binary.
var ErrFpcalcNotFound = errors.New("dedup: fpcalc not found")

// ErrNoFingerprint is returned when fpcalc produced no FINGERPRINT line.
var ErrNoFingerprint = errors.New("dedup: no fingerprint in fpcalc output")

// Chromaprint computes raw chromaprint strings via fpcalc.
type Chromaprint struct {
	// Bin is the fpcalc binary; a bare name is resolved through PATH.
	Bin string
}

// New returns a Chromaprint using bin.
func New(bin string) *Chromaprint {
	return &Chromaprint{Bin: bin}
}

// Fingerprint runs fpcalc over 16 kHz mono signed 16-bit PCM and returns
// the raw fingerprint: comma-separated 32-bit words.
func (c *Chromaprint) Fingerprint(ctx context.Context, pcm16s16 []byte, durationSec float64) (string, error) {
	args := []string{
		"-raw",
		"-rate", "16000",
		"-channels", "1",
		"-length", strconv.Itoa(int(durationSec) + 1),
		"-signed",
		"-",
	}
	cmd := exec.CommandContext(ctx, c.Bin, args...)
	cmd.Stdin = bytes.NewReader(pcm16s16)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFpcalcNotFound, c.Bin)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("dedup: fpcalc: %s", strings.TrimSpace(stderr.String()))
	}

	for _, line := range strings.Split(stdout.String(), "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "FINGERPRINT="); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrNoFingerprint
}

// Similarity scores two raw chromaprints in [0,1]. The score is the bit
// agreement rate over the common prefix scaled by the length ratio, so a
// clip that matches a prefix of a much longer track still scores low.
func Similarity(a, b string) float64 {
	wa := parseRaw(a)
	wb := parseRaw(b)
	n := min(len(wa), len(wb))
	if n == 0 {
		return 0
	}
	var bitErrors int
	for i := 0; i < n; i++ {
		bitErrors += bits.OnesCount32(wa[i] ^ wb[i])
	}
	agreement := 1 - float64(bitErrors)/float64(32*n)
	penalty := float64(n) / float64(max(len(wa), len(wb)))
	return agreement * penalty
}

// Candidate is one cataloged fingerprint to compare against.
type Candidate struct {
	TrackID     string
	Fingerprint string
}

// FindDuplicate returns the first candidate whose similarity to fp reaches
// threshold. Callers pre-filter candidates by duration (±10 %), so the
// scan stays small.
func FindDuplicate(candidates []Candidate, fp string, threshold float64) (string, bool) {
	for _, c := range candidates {
		if Similarity(c.Fingerprint, fp) >= threshold {
			return c.TrackID, true
		}
	}
	return "", false
}

// parseRaw decodes a comma-separated fingerprint into 32-bit words.
// Unparsable fields end the fingerprint early rather than failing.
func parseRaw(s string) []uint32 {
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	out := make([]uint32, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			break
		}
		out = append(out, uint32(v))
	}
	return out
}
