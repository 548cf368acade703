package ringbuf

import (
	"sync/atomic"
)

// Cursor is a position in a ring of fixed length that advances modulo that
// length.
type Cursor struct {
	n, pos int
}

func NewCursor(n int) Cursor {
	if n <= 0 {
		panic("ringbuf: cursor over empty ring")
	}
	return Cursor{n: n}
}

// Pos returns the current position.
func (c *Cursor) Pos() int {
	return c.pos
}

// Len returns the ring length.
func (c *Cursor) Len() int {
	return c.n
}

// Advance moves forward by one slot and returns the new position.
func (c *Cursor) Advance() int {
	c.pos = (c.pos + 1) % c.n
	return c.pos
}

// Peek returns the position k slots ahead without moving.
func (c *Cursor) Peek(k int) int {
	return (c.pos + k) % c.n
}

// Last reports whether the cursor sits on the final slot, the one that
// wraps back to zero.
func (c *Cursor) Last() bool {
	return c.pos == c.n-1
}

func (c *Cursor) Reset() {
	c.pos = 0
}

// RingBuf is a bounded single-producer single-consumer queue. One slot is
// kept empty to tell full from empty.
type RingBuf[V any] struct {
	ring []V

	read, write atomic.Int32
	drops       atomic.Int64
}

func NewRingBuf[V any](sz int) *RingBuf[V] {
	return &RingBuf[V]{
		ring: make([]V, sz),
	}
}

func (r *RingBuf[V]) next(v int32) int32 {
	return (v + 1) % int32(len(r.ring))
}

func (r *RingBuf[V]) Pop() (V, bool) {
	rv := r.read.Load()

	var zero V

	if rv == r.write.Load() {
		return zero, false
	}

	val := r.ring[rv]
	r.ring[rv] = zero
	r.read.Store(r.next(rv))

	return val, true
}

func (r *RingBuf[V]) Front() (V, bool) {
	rv := r.read.Load()

	if rv == r.write.Load() {
		var v V
		return v, false
	}

	return r.ring[rv], true
}

// Push appends v, or counts a drop and returns false when the ring is full.
func (r *RingBuf[V]) Push(v V) bool {
	if r.FullP() {
		r.drops.Add(1)
		return false
	}

	wv := r.write.Load()

	r.ring[wv] = v
	r.write.Store(r.next(wv))

	return true
}

func (r *RingBuf[V]) EmptyP() bool {
	return r.read.Load() == r.write.Load()
}

func (r *RingBuf[V]) FullP() bool {
	return r.read.Load() == r.next(r.write.Load())
}

func (r *RingBuf[V]) Readable() int {
	rv := r.read.Load()
	wv := r.write.Load()

	if rv > wv {
		return int(wv + int32(len(r.ring)) - rv)
	}

	return int(wv - rv)
}

// Drops returns how many pushes were refused because the ring was full.
func (r *RingBuf[V]) Drops() int64 {
	return r.drops.Load()
}
