// File: core/concurrency/lock_free_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded MPMC queue using per-cell sequence numbers, based on the pattern
// by Dmitry Vyukov. Any goroutine may enqueue; the reactor goroutine drains.

package concurrency

import "sync/atomic"

const cacheLinePad = 64

type cell[T any] struct {
	sequence atomic.Uint64
	data     T
}

// LockFreeQueue is a bounded multi-producer/multi-consumer queue. Capacity
// is rounded up to a power of two. A full queue rejects the enqueue rather
// than blocking.
type LockFreeQueue[T any] struct {
	head atomic.Uint64
	_    [cacheLinePad]byte
	tail atomic.Uint64
	_    [cacheLinePad]byte
	mask uint64
	ring []cell[T]
}

// NewLockFreeQueue creates a queue holding at least capacity elements.
func NewLockFreeQueue[T any](capacity int) *LockFreeQueue[T] {
	size := 2
	for size < capacity {
		size <<= 1
	}
	q := &LockFreeQueue[T]{
		mask: uint64(size - 1),
		ring: make([]cell[T], size),
	}
	for i := range q.ring {
		q.ring[i].sequence.Store(uint64(i))
	}
	return q
}

// Enqueue appends val; returns false when the queue is full.
func (q *LockFreeQueue[T]) Enqueue(val T) bool {
	for {
		tail := q.tail.Load()
		c := &q.ring[tail&q.mask]
		seq := c.sequence.Load()
		switch diff := int64(seq) - int64(tail); {
		case diff == 0:
			if q.tail.CompareAndSwap(tail, tail+1) {
				c.data = val
				c.sequence.Store(tail + 1)
				return true
			}
		case diff < 0:
			return false // full
		}
		// tail moved under us, retry
	}
}

// Dequeue removes the oldest element; ok is false when the queue is empty.
func (q *LockFreeQueue[T]) Dequeue() (item T, ok bool) {
	for {
		head := q.head.Load()
		c := &q.ring[head&q.mask]
		seq := c.sequence.Load()
		switch diff := int64(seq) - int64(head+1); {
		case diff == 0:
			if q.head.CompareAndSwap(head, head+1) {
				item = c.data
				var zero T
				c.data = zero
				c.sequence.Store(head + q.mask + 1)
				return item, true
			}
		case diff < 0:
			return item, false // empty
		}
	}
}
