package olaf

import (
	"strings"
	"testing"
)

func TestParseMatches(t *testing.T) {
	out := `match count, q start, q stop, path, id, t start, t stop
42, 0.5, 4.2, track-one, 101, 10.5, 14.2
8, 0.0, 3.1, track-two, 207, 0.0, 3.1
`
	matches := ParseMatches(strings.NewReader(out))
	if len(matches) != 2 {
		t.Fatalf("len = %d, want 2", len(matches))
	}
	m := matches[0]
	if m.MatchCount != 42 {
		t.Errorf("MatchCount = %d", m.MatchCount)
	}
	if m.QueryStart != 0.5 || m.QueryStop != 4.2 {
		t.Errorf("query span = %v..%v", m.QueryStart, m.QueryStop)
	}
	if m.TrackID != "track-one" {
		t.Errorf("TrackID = %q", m.TrackID)
	}
	if m.RefID != 101 {
		t.Errorf("RefID = %d", m.RefID)
	}
	if m.RefStart != 10.5 || m.RefStop != 14.2 {
		t.Errorf("ref span = %v..%v", m.RefStart, m.RefStop)
	}
}

func TestParseMatchesSemicolon(t *testing.T) {
	out := "12; 1.0; 2.0; trk; 5; 3.0; 4.0\n"
	matches := ParseMatches(strings.NewReader(out))
	if len(matches) != 1 {
		t.Fatalf("len = %d, want 1", len(matches))
	}
	if matches[0].MatchCount != 12 || matches[0].TrackID != "trk" {
		t.Errorf("match = %+v", matches[0])
	}
}

func TestParseMatchesSkipsMalformed(t *testing.T) {
	out := strings.Join([]string{
		"match count, q start, q stop, path, id, t start, t stop", // header
		"",                          // blank
		"3, 1.0, 2.0",               // short row
		"9, one, 2.0, t, 1, 3, 4",   // bad float
		"7, 1.0, 2.0, t, x, 3, 4",   // bad ref id
		"15, 1.0, 2.0, ok, 3, 4, 5", // valid
	}, "\n")
	matches := ParseMatches(strings.NewReader(out))
	if len(matches) != 1 {
		t.Fatalf("len = %d, want 1 (got %+v)", len(matches), matches)
	}
	if matches[0].TrackID != "ok" {
		t.Errorf("TrackID = %q", matches[0].TrackID)
	}
}

func TestParseMatchesEmpty(t *testing.T) {
	if got := ParseMatches(strings.NewReader("")); len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}
