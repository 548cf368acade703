// Package dma provides fixed-capacity memory for descriptor rings and
// packet buffers. Memory is handed out as offset-based blocks and never
// freed individually; the whole arena lives as long as the device.
package dma

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Block is a region of an arena.
type Block struct {
	Off int
	Len int
}

type Arena struct {
	mem    []byte
	used   int
	mapped bool
}

// New returns an arena backed by the Go heap. Suitable when the
// translator does not depend on the memory being pinned.
func New(size int) *Arena {
	return &Arena{mem: make([]byte, size)}
}

// Map returns an arena backed by an anonymous, locked and pre-faulted
// mapping, suitable for pinning through pmap.Pagemap.
func Map(size int) (*Arena, error) {
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE|unix.MAP_LOCKED)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping %d byte dma arena", size)
	}

	return &Arena{mem: mem, mapped: true}, nil
}

// Alloc carves size bytes aligned to align (a power of two) out of the
// arena. Alignment is of the local address, not the offset.
func (a *Arena) Alloc(size, align int) (Block, error) {
	if align <= 0 || align&(align-1) != 0 {
		return Block{}, fmt.Errorf("bad alignment %d", align)
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.mem)))
	addr := (base + uintptr(a.used) + uintptr(align-1)) &^ uintptr(align-1)
	off := int(addr - base)

	if off+size > len(a.mem) {
		return Block{}, fmt.Errorf("dma arena exhausted: need %d bytes at %d, have %d", size, off, len(a.mem))
	}

	a.used = off + size

	return Block{Off: off, Len: size}, nil
}

// Bytes returns the memory of b.
func (a *Arena) Bytes(b Block) []byte {
	return a.mem[b.Off : b.Off+b.Len : b.Off+b.Len]
}

// Local returns the driver-local address of b.
func (a *Arena) Local(b Block) uintptr {
	return uintptr(unsafe.Pointer(&a.mem[b.Off]))
}

// Mem returns the whole arena, for pinning.
func (a *Arena) Mem() []byte {
	return a.mem
}

// Slice returns n bytes at local address addr if they lie inside the
// arena.
func (a *Arena) Slice(addr uintptr, n int) ([]byte, bool) {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.mem)))
	if addr < base || n < 0 || addr-base+uintptr(n) > uintptr(len(a.mem)) {
		return nil, false
	}

	off := int(addr - base)
	return a.mem[off : off+n], true
}

func (a *Arena) Close() error {
	if !a.mapped {
		return nil
	}

	a.mapped = false
	return unix.Munmap(a.mem)
}
