package rawstore

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Store is the content-addressed archive on top of a Blob backend.
// Objects live at raw/<sha[:2]>/<sha>.<ext>, fanning out on the first hash
// byte to keep directories shallow.
type Store struct {
	blob Blob
}

// NewStore wraps blob with the content-addressed layout.
func NewStore(blob Blob) *Store {
	return &Store{blob: blob}
}

// PathFor returns the archive path for a SHA-256 hex digest and extension.
// The extension is normalized to lowercase without a leading dot; empty
// extensions archive as .bin.
func PathFor(sha256Hex, ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("raw/%s/%s.%s", sha256Hex[:2], sha256Hex, ext)
}

// WriteOnce archives data under its content address. If the object already
// exists it is left untouched and wrote is false; identical content always
// maps to the same path, so there is nothing to reconcile.
func (s *Store) WriteOnce(ctx context.Context, sha256Hex, ext string, data []byte) (path string, wrote bool, err error) {
	path = PathFor(sha256Hex, ext)
	ok, err := s.blob.Exists(ctx, path)
	if err != nil {
		return "", false, fmt.Errorf("rawstore: stat %s: %w", path, err)
	}
	if ok {
		return path, false, nil
	}
	w, err := s.blob.Write(ctx, path)
	if err != nil {
		return "", false, fmt.Errorf("rawstore: create %s: %w", path, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", false, fmt.Errorf("rawstore: write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", false, fmt.Errorf("rawstore: flush %s: %w", path, err)
	}
	return path, true, nil
}

// Open reads a previously archived object.
func (s *Store) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.blob.Open(ctx, path)
}

// OpenRange reads n bytes of an archived object starting at off.
func (s *Store) OpenRange(ctx context.Context, path string, off, n int64) (io.ReadCloser, error) {
	return s.blob.OpenRange(ctx, path, off, n)
}

// Size returns an archived object's length.
func (s *Store) Size(ctx context.Context, path string) (int64, error) {
	return s.blob.Size(ctx, path)
}

// Exists reports whether path is archived.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	return s.blob.Exists(ctx, path)
}

// Delete removes an archived object. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	return s.blob.Delete(ctx, path)
}
