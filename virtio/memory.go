package virtio

import "fmt"

// Region is one contiguous range of guest memory mapped into this process.
// User is the address the range has in the front-end's own address space,
// which is how ring addresses are given.
type Region struct {
	Guest uint64
	User  uint64
	Data  []byte
}

func (r *Region) contains(base, addr uint64, n uint32) bool {
	return addr >= base && addr-base+uint64(n) <= uint64(len(r.Data))
}

// MemoryTable maps guest addresses onto local memory.
type MemoryTable struct {
	Regions []Region
}

// Guest returns the n bytes at guest physical address addr.
func (m *MemoryTable) Guest(addr uint64, n uint32) ([]byte, error) {
	for i := range m.Regions {
		r := &m.Regions[i]
		if r.contains(r.Guest, addr, n) {
			off := addr - r.Guest
			return r.Data[off : off+uint64(n) : off+uint64(n)], nil
		}
	}

	return nil, fmt.Errorf("guest range %#x+%d is not mapped", addr, n)
}

// User returns the n bytes at front-end address addr.
func (m *MemoryTable) User(addr uint64, n uint32) ([]byte, error) {
	for i := range m.Regions {
		r := &m.Regions[i]
		if r.contains(r.User, addr, n) {
			off := addr - r.User
			return r.Data[off : off+uint64(n) : off+uint64(n)], nil
		}
	}

	return nil, fmt.Errorf("front-end range %#x+%d is not mapped", addr, n)
}
