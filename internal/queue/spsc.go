// Package queue provides the single-producer single-consumer ring buffers
// forming the trade-engine seam.
package queue

import "sync/atomic"

type pad [64]byte

// SPSC is a fixed-capacity lock-free ring buffer. Exactly one goroutine may
// write and exactly one may read; under that contract FIFO order holds
// without locks. Indices grow monotonically; the slot is index mod capacity.
type SPSC[T any] struct {
	store    []T
	capacity uint64

	_     pad
	write atomic.Uint64
	_     pad
	read  atomic.Uint64
	_     pad
}

// NewSPSC builds a queue with the given capacity (minimum 1).
func NewSPSC[T any](capacity int) *SPSC[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &SPSC[T]{
		store:    make([]T, capacity),
		capacity: uint64(capacity),
	}
}

// NextToWrite returns the slot the producer may fill, or nil when full.
// The slot is not visible to the consumer until UpdateWriteIndex.
func (q *SPSC[T]) NextToWrite() *T {
	w := q.write.Load()
	if w-q.read.Load() >= q.capacity {
		return nil
	}
	return &q.store[w%q.capacity]
}

// UpdateWriteIndex publishes the slot returned by NextToWrite.
func (q *SPSC[T]) UpdateWriteIndex() {
	q.write.Add(1)
}

// NextToRead returns the oldest unread slot, or nil when empty. The slot
// stays owned by the consumer until UpdateReadIndex.
func (q *SPSC[T]) NextToRead() *T {
	r := q.read.Load()
	if r == q.write.Load() {
		return nil
	}
	return &q.store[r%q.capacity]
}

// UpdateReadIndex releases the slot returned by NextToRead.
func (q *SPSC[T]) UpdateReadIndex() {
	q.read.Add(1)
}

// Push writes v if space is available and reports whether it was enqueued.
func (q *SPSC[T]) Push(v T) bool {
	slot := q.NextToWrite()
	if slot == nil {
		return false
	}
	*slot = v
	q.UpdateWriteIndex()
	return true
}

// Pop reads the oldest entry if present.
func (q *SPSC[T]) Pop() (T, bool) {
	slot := q.NextToRead()
	if slot == nil {
		var zero T
		return zero, false
	}
	v := *slot
	q.UpdateReadIndex()
	return v, true
}

// Size reports the number of unread entries.
func (q *SPSC[T]) Size() int {
	return int(q.write.Load() - q.read.Load())
}

// Capacity reports the fixed capacity.
func (q *SPSC[T]) Capacity() int {
	return int(q.capacity)
}
