// Package dring manages GEM receive and transmit descriptor rings.
//
// A ring is an array of 16-byte descriptors in DMA memory, each paired
// with a fixed-size packet buffer from the same arena. Descriptors are
// referenced by index; the last one carries the wrap flag so hardware
// returns to index 0.
package dring

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/lab47/gemnet/gem"
	"github.com/lab47/gemnet/pkg/dma"
	"github.com/lab47/gemnet/pkg/pmap"
	ringbuf "github.com/lab47/gemnet/pkg/ring_buf"
)

const (
	// Entries is the number of descriptors per ring.
	Entries = 8

	// DescSize is the size of one descriptor: four 32-bit words. Word 2
	// holds the upper address bits when 64-bit addressing is enabled.
	DescSize = 16

	// BufferSize is the size of the packet buffer behind each descriptor.
	BufferSize = 2048
)

type Kind int

const (
	Rx Kind = iota
	Tx
)

func (k Kind) String() string {
	if k == Rx {
		return "rx"
	}
	return "tx"
}

// Desc is a copy of a descriptor's words.
type Desc [4]uint32

// Addr returns the buffer address with the flag bits removed.
func (d Desc) Addr() uint64 {
	return uint64(d[0]&gem.Desc0AddrMask) | uint64(d[2])<<32
}

// Length returns the length field of word 1.
func (d Desc) Length() int {
	return int(gem.Desc1Len.Get(d[1]))
}

type Ring struct {
	kind    Kind
	arena   *dma.Arena
	descs   dma.Block
	bufs    []dma.Block
	bufSize int

	cur ringbuf.Cursor
}

// New allocates a ring of n descriptors and n buffers of bufSize bytes.
// Buffers are aligned to their size so that none crosses a page.
func New(a *dma.Arena, kind Kind, n, bufSize int) (*Ring, error) {
	descs, err := a.Alloc(n*DescSize, n*DescSize)
	if err != nil {
		return nil, err
	}

	r := &Ring{
		kind:    kind,
		arena:   a,
		descs:   descs,
		bufSize: bufSize,
		cur:     ringbuf.NewCursor(n),
	}

	for i := 0; i < n; i++ {
		b, err := a.Alloc(bufSize, bufSize)
		if err != nil {
			return nil, err
		}
		r.bufs = append(r.bufs, b)
	}

	return r, nil
}

func (r *Ring) Kind() Kind {
	return r.kind
}

func (r *Ring) Len() int {
	return len(r.bufs)
}

func (r *Ring) BufferSize() int {
	return r.bufSize
}

// Base returns the local address of descriptor 0.
func (r *Ring) Base() uintptr {
	return r.arena.Local(r.descs)
}

// Cursor is the next descriptor software expects to process.
func (r *Ring) Cursor() *ringbuf.Cursor {
	return &r.cur
}

func (r *Ring) word(i, w int) *uint32 {
	if i < 0 || i >= len(r.bufs) {
		panic(fmt.Sprintf("dring: %s descriptor %d out of range", r.kind, i))
	}
	b := r.arena.Bytes(r.descs)
	return (*uint32)(unsafe.Pointer(&b[i*DescSize+w*4]))
}

// Word reads word w of descriptor i. Descriptors are shared with hardware,
// so every access is a single 32-bit load or store in host byte order,
// which matches the little-endian descriptor format on supported hosts.
func (r *Ring) Word(i, w int) uint32 {
	return atomic.LoadUint32(r.word(i, w))
}

func (r *Ring) SetWord(i, w int, v uint32) {
	atomic.StoreUint32(r.word(i, w), v)
}

func (r *Ring) Desc(i int) Desc {
	return Desc{r.Word(i, 0), r.Word(i, 1), r.Word(i, 2), r.Word(i, 3)}
}

// Buffer returns the packet buffer of descriptor i.
func (r *Ring) Buffer(i int) []byte {
	return r.arena.Bytes(r.bufs[i])
}

// BufferLocal returns the local address of buffer i.
func (r *Ring) BufferLocal(i int) uintptr {
	return r.arena.Local(r.bufs[i])
}

// Last reports whether i is the descriptor that carries the wrap flag.
func (r *Ring) Last(i int) bool {
	return i == len(r.bufs)-1
}

// Init binds every descriptor to the physical address of its buffer and
// resets ownership: receive descriptors go to hardware, transmit
// descriptors stay with software. The wrap flag is written on the last
// descriptor every time, and cleared on all others.
func (r *Ring) Init(tr pmap.Translator) {
	for i := range r.bufs {
		phys := tr.PhysAddr(r.BufferLocal(i))
		if phys&^uint64(gem.Desc0AddrMask)&0xffffffff != 0 {
			panic(fmt.Sprintf("dring: buffer %#x is not word aligned", phys))
		}

		lo, hi := uint32(phys), uint32(phys>>32)

		switch r.kind {
		case Rx:
			if r.Last(i) {
				lo |= gem.Desc0RxWrap
			}
			r.SetWord(i, 1, 0)
			r.SetWord(i, 2, hi)
			r.SetWord(i, 3, 0)
			r.SetWord(i, 0, lo)
		case Tx:
			ctrl := uint32(gem.Desc1Used)
			if r.Last(i) {
				ctrl |= gem.Desc1TxWrap
			}
			r.SetWord(i, 0, lo)
			r.SetWord(i, 2, hi)
			r.SetWord(i, 3, 0)
			r.SetWord(i, 1, ctrl)
		}
	}

	r.cur.Reset()
}
