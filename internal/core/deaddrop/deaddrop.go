// Package deaddrop provides a single-slot, overwrite-on-send mailbox for
// publishing the latest value from one goroutine to another.
package deaddrop

import "sync"

// DeadDrop holds at most one pending value. Send replaces any unread value;
// Recv takes and clears it. Neither call blocks on the other side.
// Use it only where freshness matters more than completeness.
type DeadDrop[T any] struct {
	mu    sync.Mutex
	value T
	full  bool
}

func New[T any]() *DeadDrop[T] {
	return &DeadDrop[T]{}
}

func (d *DeadDrop[T]) Send(v T) {
	d.mu.Lock()
	d.value = v
	d.full = true
	d.mu.Unlock()
}

// Recv returns the last sent value, or false if nothing arrived since the
// previous Recv.
func (d *DeadDrop[T]) Recv() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero T
	if !d.full {
		return zero, false
	}
	v := d.value
	d.value = zero
	d.full = false
	return v, true
}
