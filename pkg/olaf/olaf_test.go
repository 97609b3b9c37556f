package olaf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// stubTool writes a shell script standing in for the fingerprint binary.
// It appends each invocation to an args log and answers queries with two
// CSV rows. The store path must point at a non-empty raw file.
func stubTool(t *testing.T) (x *Index, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	dbDir := filepath.Join(dir, "olaf_db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		t.Fatal(err)
	}
	argsFile = filepath.Join(dir, "args")
	bin := filepath.Join(dir, "olaf_c")
	script := `#!/bin/sh
echo "$@" >> ` + argsFile + `
case "$1" in
store)
  test -s "$2" || exit 9
  exit 0
  ;;
query)
  test -s "$2" || exit 9
  echo "match count, q start, q stop, path, id, t start, t stop"
  echo "42, 0.5, 4.2, track-one, 101, 10.5, 14.2"
  echo "8, 0.0, 3.1, track-two, 207, 0.0, 3.1"
  ;;
delete)
  exit 0
  ;;
esac
`
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return New(bin, dbDir), argsFile
}

func stubFailingTool(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "olaf_c")
	script := "#!/bin/sh\necho 'index corrupt' >&2\nexit 1\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return New(bin, dir)
}

func TestStore(t *testing.T) {
	x, argsFile := stubTool(t)
	pcm := make([]byte, 64000)

	if err := x.Store(context.Background(), pcm, "trk-1"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	args, _ := os.ReadFile(argsFile)
	line := strings.TrimSpace(string(args))
	if !strings.HasPrefix(line, "store ") || !strings.HasSuffix(line, " trk-1") {
		t.Errorf("args = %q", line)
	}
}

func TestStoreFailure(t *testing.T) {
	x := stubFailingTool(t)
	err := x.Store(context.Background(), make([]byte, 4), "trk-1")
	if !errors.Is(err, ErrIndexWrite) {
		t.Fatalf("err = %v, want ErrIndexWrite", err)
	}
	if !strings.Contains(err.Error(), "index corrupt") {
		t.Errorf("err %q should carry stderr", err)
	}
}

func TestQuery(t *testing.T) {
	x, _ := stubTool(t)
	matches, err := x.Query(context.Background(), make([]byte, 64000))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("len = %d, want 2", len(matches))
	}
	if matches[0].TrackID != "track-one" || matches[0].MatchCount != 42 {
		t.Errorf("match = %+v", matches[0])
	}
}

func TestQueryToolFailureIsEmpty(t *testing.T) {
	x := stubFailingTool(t)
	matches, err := x.Query(context.Background(), make([]byte, 4))
	if err != nil {
		t.Fatalf("Query: %v, want nil error on tool failure", err)
	}
	if len(matches) != 0 {
		t.Fatalf("len = %d, want 0", len(matches))
	}
}

func TestDelete(t *testing.T) {
	x, argsFile := stubTool(t)
	if err := x.Delete(context.Background(), "trk-9"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	args, _ := os.ReadFile(argsFile)
	if strings.TrimSpace(string(args)) != "delete trk-9" {
		t.Errorf("args = %q", strings.TrimSpace(string(args)))
	}
}

func TestDeleteFailure(t *testing.T) {
	x := stubFailingTool(t)
	if err := x.Delete(context.Background(), "trk-9"); !errors.Is(err, ErrIndexWrite) {
		t.Fatalf("err = %v, want ErrIndexWrite", err)
	}
}

func TestCheckBinary(t *testing.T) {
	x, _ := stubTool(t)
	if err := x.CheckBinary(); err != nil {
		t.Fatalf("CheckBinary: %v", err)
	}

	missing := New("no-such-olaf-binary-anywhere", t.TempDir())
	if err := missing.CheckBinary(); !errors.Is(err, ErrToolMissing) {
		t.Fatalf("err = %v, want ErrToolMissing", err)
	}
}

func TestTempFileCleanedUp(t *testing.T) {
	x, _ := stubTool(t)
	before := countTempRaw(t)
	if err := x.Store(context.Background(), make([]byte, 8), "trk"); err != nil {
		t.Fatal(err)
	}
	if _, err := x.Query(context.Background(), make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
	if after := countTempRaw(t); after > before {
		t.Errorf("temp raw files leaked: %d -> %d", before, after)
	}
}

func countTempRaw(t *testing.T) int {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(os.TempDir(), "olaf-*.raw"))
	if err != nil {
		t.Fatal(err)
	}
	return len(paths)
}
