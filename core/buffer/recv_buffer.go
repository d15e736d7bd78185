// File: core/buffer/recv_buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Growable receive arena reused across reads. The reactor appends through
// Writable/Advance; the protocol layer consumes through Bytes/Consume with
// its own cursor. Capacity doubles on exhaustion and is never shrunk.

package buffer

// RecvBuffer is a byte arena with independent read and write cursors.
// It is owned by exactly one connection and mutated only by the reactor
// goroutine; consumers read the Bytes view and advance the read cursor.
type RecvBuffer struct {
	data []byte
	r    int // read cursor, r <= w
	w    int // write cursor (logical end of received data)
}

// NewRecvBuffer creates an arena with the given initial capacity.
func NewRecvBuffer(capacity int) *RecvBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RecvBuffer{data: make([]byte, capacity)}
}

// Writable returns a slice of at least min writable bytes at the logical
// end, growing the arena by capacity doubling when needed. The returned
// slice is valid until the next Writable call.
func (b *RecvBuffer) Writable(min int) []byte {
	for len(b.data)-b.w < min {
		grown := make([]byte, len(b.data)*2)
		copy(grown, b.data[:b.w])
		b.data = grown
	}
	return b.data[b.w:]
}

// Advance moves the logical end forward after n bytes were read into the
// slice returned by Writable.
func (b *RecvBuffer) Advance(n int) {
	b.w += n
	if b.w > len(b.data) {
		panic("buffer: advance past writable region")
	}
}

// Bytes returns the unconsumed region. The view is read-only and valid
// until the next Writable call grows the arena.
func (b *RecvBuffer) Bytes() []byte {
	return b.data[b.r:b.w]
}

// Consume advances the read cursor by n bytes, clamped to the unconsumed
// length. When the arena becomes empty both cursors rewind to the start so
// the region is reused instead of growing.
func (b *RecvBuffer) Consume(n int) {
	if n > b.w-b.r {
		n = b.w - b.r
	}
	b.r += n
	if b.r == b.w {
		b.r = 0
		b.w = 0
	}
}

// Len reports the number of unconsumed bytes.
func (b *RecvBuffer) Len() int {
	return b.w - b.r
}

// Cap reports the arena capacity.
func (b *RecvBuffer) Cap() int {
	return len(b.data)
}

// Release drops the arena storage. The buffer must not be used afterwards.
func (b *RecvBuffer) Release() {
	b.data = nil
	b.r = 0
	b.w = 0
}
