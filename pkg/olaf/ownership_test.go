package olaf

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireAndReleaseOwnership(t *testing.T) {
	x := New("olaf_c", t.TempDir())

	if err := x.AcquireOwnership(); err != nil {
		t.Fatalf("AcquireOwnership: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(x.DBDir, pidFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file = %q, want own pid", data)
	}

	// Re-acquiring our own index is fine.
	if err := x.AcquireOwnership(); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}

	if err := x.ReleaseOwnership(); err != nil {
		t.Fatalf("ReleaseOwnership: %v", err)
	}
	if _, err := os.Stat(filepath.Join(x.DBDir, pidFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pid file still present after release")
	}
}

func TestAcquireOwnershipStalePID(t *testing.T) {
	x := New("olaf_c", t.TempDir())
	// Way beyond linux pid_max, so the probe always reports dead.
	stale := strconv.Itoa(1 << 30)
	if err := os.WriteFile(filepath.Join(x.DBDir, pidFile), []byte(stale), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := x.AcquireOwnership(); err != nil {
		t.Fatalf("AcquireOwnership over stale pid: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(x.DBDir, pidFile))
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file = %q, want replacement with own pid", data)
	}
}

func TestAcquireOwnershipLivePID(t *testing.T) {
	x := New("olaf_c", t.TempDir())
	// PID 1 is always alive.
	if err := os.WriteFile(filepath.Join(x.DBDir, pidFile), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := x.AcquireOwnership()
	if !errors.Is(err, ErrIndexOwned) {
		t.Fatalf("err = %v, want ErrIndexOwned", err)
	}
}

func TestReleaseOwnershipRespectsOtherOwner(t *testing.T) {
	x := New("olaf_c", t.TempDir())
	if err := os.WriteFile(filepath.Join(x.DBDir, pidFile), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := x.ReleaseOwnership(); err != nil {
		t.Fatalf("ReleaseOwnership: %v", err)
	}
	if _, err := os.Stat(filepath.Join(x.DBDir, pidFile)); err != nil {
		t.Errorf("foreign pid file should be left in place: %v", err)
	}
}
