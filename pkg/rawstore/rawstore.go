// Package rawstore archives the original uploaded audio files.
//
// Files are content-addressed: the object key is derived from the upload's
// SHA-256, so re-ingesting identical bytes never duplicates storage. The
// archive is the source of truth for re-indexing and for the byte-serving
// endpoint, which is why the backend interface carries range reads.
package rawstore

import (
	"context"
	"io"
)

// Blob is the backend interface for the raw archive.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use. Reads of missing
// objects return an error wrapping fs.ErrNotExist.
type Blob interface {
	// Write opens the named object for writing, truncating any previous
	// content. The caller must close the returned WriteCloser to flush.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Open opens the named object for reading from the start.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenRange opens n bytes starting at off. n must be positive and the
	// range must lie within the object.
	OpenRange(ctx context.Context, path string, off, n int64) (io.ReadCloser, error)

	// Size returns the object's length in bytes.
	Size(ctx context.Context, path string) (int64, error)

	// Delete removes the named object. Missing objects are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named object exists.
	Exists(ctx context.Context, path string) (bool, error)
}
