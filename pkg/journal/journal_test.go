package journal_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MacPhobos/audio-ident-sub000/pkg/journal"
)

func newTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(journal.Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestBeginPendingComplete(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("fresh journal has %d pending entries", len(pending))
	}

	older := journal.Entry{
		TrackID:     "track-a",
		SHA256:      strings.Repeat("a", 64),
		StoragePath: "raw/aa/file.mp3",
		StartedAt:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	newer := journal.Entry{
		TrackID:     "track-b",
		SHA256:      strings.Repeat("b", 64),
		StoragePath: "raw/bb/file.mp3",
		StartedAt:   time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	// Insert newest first to verify Pending reorders by StartedAt.
	if err := j.Begin(ctx, newer); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := j.Begin(ctx, older); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	pending, err = j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending entries, want 2", len(pending))
	}
	if pending[0].TrackID != "track-a" || pending[1].TrackID != "track-b" {
		t.Fatalf("pending order = [%s, %s], want oldest first", pending[0].TrackID, pending[1].TrackID)
	}
	if pending[0].SHA256 != older.SHA256 || pending[0].StoragePath != older.StoragePath {
		t.Fatalf("entry fields lost: %+v", pending[0])
	}
	if !pending[0].StartedAt.Equal(older.StartedAt) {
		t.Fatalf("StartedAt = %v, want %v", pending[0].StartedAt, older.StartedAt)
	}

	if err := j.Complete(ctx, "track-a"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	pending, err = j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].TrackID != "track-b" {
		t.Fatalf("pending after complete = %v, want [track-b]", pending)
	}
}

func TestCompleteUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)
	if err := j.Complete(ctx, "never-begun"); err != nil {
		t.Fatalf("Complete unknown: %v", err)
	}
}

func TestBeginRequiresTrackID(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)
	if err := j.Begin(ctx, journal.Entry{SHA256: "abc"}); err == nil {
		t.Fatal("expected error for entry without track ID")
	}
}

func TestBeginAssignsStartedAt(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	if err := j.Begin(ctx, journal.Entry{TrackID: "track-a"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].StartedAt.IsZero() {
		t.Fatalf("StartedAt not assigned: %+v", pending)
	}
}

func TestPendingSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	j, err := journal.Open(journal.Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	e := journal.Entry{TrackID: "track-a", SHA256: strings.Repeat("a", 64)}
	if err := j.Begin(ctx, e); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j, err = journal.Open(journal.Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].TrackID != "track-a" {
		t.Fatalf("pending after reopen = %v, want [track-a]", pending)
	}
}

func TestDirRequired(t *testing.T) {
	_, err := journal.Open(journal.Options{})
	if err == nil {
		t.Fatal("expected error for empty Dir in on-disk mode")
	}
	if !strings.Contains(err.Error(), "Dir is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}
