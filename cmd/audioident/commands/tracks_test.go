package commands

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MacPhobos/audio-ident-sub000/pkg/catalog"
)

func setupCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	t.Setenv("DATABASE_URL", "sqlite://"+path)

	cat, err := catalog.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	err = cat.Insert(context.Background(), &catalog.Track{
		ID:           "11111111-1111-1111-1111-111111111111",
		Title:        "Night Drive",
		Artist:       "The Commute",
		DurationSec:  61.5,
		SourceFormat: "mp3",
		SHA256:       strings.Repeat("ab", 32),
		SizeBytes:    2048,
	})
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTracksTable(t *testing.T) {
	setupCatalog(t)
	tracksJSON = false
	tracksPage = 1
	tracksSearch = ""

	stdout, err := runCmd(t, "tracks")
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	for _, want := range []string{"1 tracks", "Night Drive", "The Commute", "1m01s", "2.00 KB"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestTracksJSON(t *testing.T) {
	setupCatalog(t)
	tracksJSON = false
	tracksPage = 1
	tracksSearch = ""

	stdout, err := runCmd(t, "tracks", "--json")
	if err != nil {
		t.Fatalf("tracks --json: %v", err)
	}
	if !strings.Contains(stdout, `"total":1`) {
		t.Fatalf("expected total in JSON, got: %s", stdout)
	}
	if !strings.Contains(stdout, "Night Drive") {
		t.Fatalf("expected title in JSON, got: %s", stdout)
	}
}

func TestTracksSearchMiss(t *testing.T) {
	setupCatalog(t)
	tracksJSON = false
	tracksPage = 1
	tracksSearch = ""

	stdout, err := runCmd(t, "tracks", "--search", "polka")
	if err != nil {
		t.Fatalf("tracks --search: %v", err)
	}
	if !strings.Contains(stdout, "0 tracks") {
		t.Fatalf("expected empty page, got: %s", stdout)
	}
}
