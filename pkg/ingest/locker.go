package ingest

import (
	"context"
	"errors"
)

// ErrBusy reports that another ingestion holds the pipeline lock.
var ErrBusy = errors.New("ingest: another ingestion is in progress")

// Locker serializes the whole pipeline. The fingerprint index is
// single-writer, so ingestions never overlap; HTTP callers fail fast
// with TryAcquire while the batch driver blocks with Acquire.
type Locker struct {
	ch chan struct{}
}

// NewLocker returns an unlocked Locker.
func NewLocker() *Locker {
	return &Locker{ch: make(chan struct{}, 1)}
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (l *Locker) TryAcquire() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks until the lock is free or ctx is done.
func (l *Locker) Acquire(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the lock. It must pair with a successful acquire.
func (l *Locker) Release() {
	<-l.ch
}
