// Package buffer provides a bounded sliding-window buffer.
package buffer

import "sync"

// Ring is a fixed-capacity sliding window. Adding past capacity
// overwrites the oldest element; it never blocks. Safe for concurrent
// use.
type Ring[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int64
}

// RingN creates a Ring holding at most size elements.
func RingN[T any](size int) *Ring[T] {
	return &Ring[T]{buf: make([]T, size)}
}

// Add appends one element, evicting the oldest when full.
func (r *Ring[T]) Add(t T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.tail%int64(len(r.buf))] = t
	r.tail++
	if r.tail-r.head > int64(len(r.buf)) {
		r.head++
	}
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.tail - r.head)
}

// Snapshot copies the buffered elements, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int(r.tail - r.head)
	out := make([]T, 0, n)
	for i := r.head; i < r.tail; i++ {
		out = append(out, r.buf[i%int64(len(r.buf))])
	}
	return out
}
