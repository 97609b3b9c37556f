package rawstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local implements Blob on the local filesystem. All paths resolve inside
// the configured root; attempts to escape it are rejected.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// resolve turns a storage path into an absolute filesystem path inside the
// root.
func (l *Local) resolve(path string) (string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(path))
	if full != l.root && !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("rawstore: path %q escapes store root", path)
	}
	return full, nil
}

func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	return os.Create(full)
}

func (l *Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (l *Local) OpenRange(_ context.Context, path string, off, n int64) (io.ReadCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &sectionReader{r: io.LimitReader(f, n), c: f}, nil
}

func (l *Local) Size(_ context.Context, path string) (int64, error) {
	full, err := l.resolve(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (l *Local) Delete(_ context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// sectionReader couples a limited reader with the file it draws from so
// closing the section closes the file.
type sectionReader struct {
	r io.Reader
	c io.Closer
}

func (s *sectionReader) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *sectionReader) Close() error               { return s.c.Close() }

// Compile-time interface check.
var _ Blob = (*Local)(nil)
