// Package pmap translates driver-local addresses into the physical
// addresses a DMA engine must be programmed with.
package pmap

// Translator maps a driver-local address to a physical address. It is only
// ever asked about memory the driver allocated itself, and does not fail
// for it.
type Translator interface {
	PhysAddr(local uintptr) uint64
}

// Reverser maps a physical address back to a driver-local address. Used by
// the simulated MAC to reach descriptor and buffer memory.
type Reverser interface {
	LocalAddr(phys uint64) (uintptr, bool)
}

// Identity is the translation for memory that is already physically
// addressed, such as a kernel with an identity map.
type Identity struct{}

func (Identity) PhysAddr(local uintptr) uint64 {
	return uint64(local)
}

func (Identity) LocalAddr(phys uint64) (uintptr, bool) {
	return uintptr(phys), true
}

// Offset is a linear translation: phys = local + Delta.
type Offset struct {
	Delta uint64
}

func (o Offset) PhysAddr(local uintptr) uint64 {
	return uint64(local) + o.Delta
}

func (o Offset) LocalAddr(phys uint64) (uintptr, bool) {
	if phys < o.Delta {
		return 0, false
	}
	return uintptr(phys - o.Delta), true
}
