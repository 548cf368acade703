package virtio

import "encoding/binary"

// Descriptor flags.
const (
	DescFNext     = 1 // continues via the next field
	DescFWrite    = 2 // device writes (otherwise device reads)
	DescFIndirect = 4 // buffer contains a list of descriptors
)

// Ring flags.
const (
	AvailFNoInterrupt = 1 // guest does not want interrupts
	UsedFNoNotify     = 1 // device does not want kicks
)

// MaxQueueSize is the largest queue size a guest may configure.
const MaxQueueSize = 32768

const descSize = 8 + 4 + (2 * 2)

// DescSize, AvailSize and UsedSize are the byte sizes of the three parts
// of a split ring of num entries.
func DescSize(num int) int {
	return num * descSize
}

func AvailSize(num int) int {
	return 4 + num*2 + 2
}

func UsedSize(num int) int {
	return 4 + num*8 + 2
}

// DescTable is a view of a descriptor table in guest memory.
type DescTable struct {
	data []byte
}

func NewDescTable(data []byte) DescTable {
	return DescTable{data: data}
}

func (d DescTable) nth(n uint16) []byte {
	return d.data[int(n)*descSize:]
}

func (d DescTable) Addr(n uint16) uint64 {
	return binary.LittleEndian.Uint64(d.nth(n))
}

func (d DescTable) Len(n uint16) uint32 {
	return binary.LittleEndian.Uint32(d.nth(n)[8:])
}

func (d DescTable) Flags(n uint16) uint16 {
	return binary.LittleEndian.Uint16(d.nth(n)[12:])
}

func (d DescTable) Next(n uint16) uint16 {
	return binary.LittleEndian.Uint16(d.nth(n)[14:])
}

// Set writes descriptor n. Used by tests and by drivers that build rings.
func (d DescTable) Set(n uint16, addr uint64, ln uint32, flags, next uint16) {
	b := d.nth(n)
	binary.LittleEndian.PutUint64(b, addr)
	binary.LittleEndian.PutUint32(b[8:], ln)
	binary.LittleEndian.PutUint16(b[12:], flags)
	binary.LittleEndian.PutUint16(b[14:], next)
}

// AvailRing is a view of the ring of chains available to the device.
type AvailRing struct {
	data []byte
}

func NewAvailRing(data []byte) AvailRing {
	return AvailRing{data: data}
}

func (a AvailRing) Flags() uint16 {
	return binary.LittleEndian.Uint16(a.data)
}

func (a AvailRing) Idx() uint16 {
	return binary.LittleEndian.Uint16(a.data[2:])
}

func (a AvailRing) SetIdx(v uint16) {
	binary.LittleEndian.PutUint16(a.data[2:], v)
}

func (a AvailRing) Ring(n uint16) uint16 {
	return binary.LittleEndian.Uint16(a.data[4+int(n)*2:])
}

func (a AvailRing) SetRing(n, v uint16) {
	binary.LittleEndian.PutUint16(a.data[4+int(n)*2:], v)
}

// UsedRing is a view of the ring of chains the device has returned.
type UsedRing struct {
	data []byte
}

func NewUsedRing(data []byte) UsedRing {
	return UsedRing{data: data}
}

func (u UsedRing) Flags() uint16 {
	return binary.LittleEndian.Uint16(u.data)
}

func (u UsedRing) SetFlags(f uint16) {
	binary.LittleEndian.PutUint16(u.data, f)
}

func (u UsedRing) Idx() uint16 {
	return binary.LittleEndian.Uint16(u.data[2:])
}

func (u UsedRing) SetIdx(idx uint16) {
	binary.LittleEndian.PutUint16(u.data[2:], idx)
}

func (u UsedRing) Ring(n uint16) (id, ln uint32) {
	ent := u.data[4+int(n)*8:]
	return binary.LittleEndian.Uint32(ent), binary.LittleEndian.Uint32(ent[4:])
}

func (u UsedRing) SetRing(n uint16, id, ln uint32) {
	ent := u.data[4+int(n)*8:]
	binary.LittleEndian.PutUint32(ent, id)
	binary.LittleEndian.PutUint32(ent[4:], ln)
}
