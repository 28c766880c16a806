// Package ring hands out fixed-size sample buffers in strict rotation.
//
// Slots are identified by a monotonically increasing sequence number; the
// slot index is the sequence modulo the ring length. A slot is owned by
// exactly one party between Acquire and Release, and slots are released in
// the order they were acquired.
package ring

import (
	"context"
	"fmt"
	"sync"
)

type Slot[T any] struct {
	Seq uint64
	Buf []T
}

type Ring[T any] struct {
	bufs [][]T
	free chan struct{}

	mu   sync.Mutex
	head uint64
	tail uint64
}

func New[T any](count, size int) *Ring[T] {
	if count < 1 || size < 1 {
		panic(fmt.Sprintf("ring: %d slots of %d", count, size))
	}
	r := &Ring[T]{
		bufs: make([][]T, count),
		free: make(chan struct{}, count),
	}
	for i := range r.bufs {
		r.bufs[i] = make([]T, size)
		r.free <- struct{}{}
	}
	return r
}

func (r *Ring[T]) Len() int { return len(r.bufs) }

// Acquire blocks until the next slot in rotation is free.
func (r *Ring[T]) Acquire(ctx context.Context) (Slot[T], error) {
	select {
	case <-r.free:
	case <-ctx.Done():
		return Slot[T]{}, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.head
	r.head++
	return Slot[T]{Seq: seq, Buf: r.bufs[seq%uint64(len(r.bufs))]}, nil
}

// TryAcquire returns false when every slot is in flight.
func (r *Ring[T]) TryAcquire() (Slot[T], bool) {
	select {
	case <-r.free:
	default:
		return Slot[T]{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.head
	r.head++
	return Slot[T]{Seq: seq, Buf: r.bufs[seq%uint64(len(r.bufs))]}, true
}

// Release returns the oldest acquired slot. Releasing out of order panics.
func (r *Ring[T]) Release(s Slot[T]) {
	r.mu.Lock()
	if s.Seq != r.tail || r.tail == r.head {
		r.mu.Unlock()
		panic(fmt.Sprintf("ring: release of slot %d, oldest in flight is %d of %d", s.Seq, r.tail, r.head))
	}
	r.tail++
	r.mu.Unlock()
	r.free <- struct{}{}
}

func (r *Ring[T]) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.head - r.tail)
}
