// Package ringbuf provides a small mutex-guarded bounded history ring used by
// analytics modules that keep per-module observation history (basis, funding
// arbitrage, regime memory, execution metrics, shock history).
package ringbuf

import "sync"

// Ring is a fixed-capacity append ring of T. When full, the oldest entry is
// overwritten. Safe for concurrent use.
type Ring[T any] struct {
	mu   sync.RWMutex
	buf  []T
	cap  int
	pos  int // next write position
	full bool
}

// New creates a ring with the given capacity (minimum 1).
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf: make([]T, capacity),
		cap: capacity,
	}
}

// Push appends a value, evicting the oldest when full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.pos] = v
	r.pos = (r.pos + 1) % r.cap
	if r.pos == 0 && !r.full {
		r.full = true
	}
}

// Values returns the entries oldest-first.
func (r *Ring[T]) Values() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.lenLocked()
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[r.index(i)])
	}
	return out
}

// Last returns the most recent n entries, oldest-first. n larger than the
// current length returns everything.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	length := r.lenLocked()
	if n > length {
		n = length
	}
	out := make([]T, 0, n)
	for i := length - n; i < length; i++ {
		out = append(out, r.buf[r.index(i)])
	}
	return out
}

// Newest returns the most recent entry, or the zero value and false when
// the ring is empty.
func (r *Ring[T]) Newest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	n := r.lenLocked()
	if n == 0 {
		return zero, false
	}
	return r.buf[r.index(n-1)], true
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return r.cap
}

func (r *Ring[T]) lenLocked() int {
	if r.full {
		return r.cap
	}
	return r.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (r *Ring[T]) index(logical int) int {
	if r.full {
		return (r.pos + logical) % r.cap
	}
	return logical
}
