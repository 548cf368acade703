package virtio

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Virtq is a split virtqueue in guest memory.
type Virtq struct {
	mu sync.Mutex

	mem *MemoryTable
	num uint16

	desc  DescTable
	avail AvailRing
	used  UsedRing

	lastAvail uint16
	lastUsed  uint16
}

// NewVirtq returns a queue of num entries over already mapped rings. The
// used index continues from what the ring holds.
func NewVirtq(mem *MemoryTable, num uint16, desc DescTable, avail AvailRing, used UsedRing) (*Virtq, error) {
	if num == 0 || num > MaxQueueSize || num&(num-1) != 0 {
		return nil, fmt.Errorf("bad queue size %d", num)
	}

	return &Virtq{
		mem:      mem,
		num:      num,
		desc:     desc,
		avail:    avail,
		used:     used,
		lastUsed: used.Idx(),
	}, nil
}

func (v *Virtq) Num() uint16 {
	return v.num
}

// LastAvail is the avail index of the next chain the device will take.
func (v *Virtq) LastAvail() uint16 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.lastAvail
}

func (v *Virtq) SetLastAvail(idx uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.lastAvail = idx
}

// NeedsNotify reports whether the guest wants to be interrupted for used
// buffers.
func (v *Virtq) NeedsNotify() bool {
	return v.avail.Flags()&AvailFNoInterrupt == 0
}

// Pending returns how many chains are available and not yet taken.
func (v *Virtq) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return int(v.avail.Idx() - v.lastAvail)
}

// Pop takes the next available chain. A malformed chain is consumed and
// returned to the guest with nothing written, so it cannot stall the queue;
// the error says what was wrong with it.
func (v *Virtq) Pop() (*Chain, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.lastAvail == v.avail.Idx() {
		return nil, false, nil
	}

	head := v.avail.Ring(v.lastAvail % v.num)
	v.lastAvail++

	c, err := v.walk(head)
	if err != nil {
		v.putUsed(head, 0)
		return nil, false, err
	}

	return c, true, nil
}

func (v *Virtq) walk(head uint16) (*Chain, error) {
	c := &Chain{Head: head}

	idx := head
	for i := uint16(0); ; i++ {
		if i == v.num {
			return nil, fmt.Errorf("descriptor chain at %d loops", head)
		}

		if idx >= v.num {
			return nil, fmt.Errorf("descriptor index %d out of bounds (size %d)", idx, v.num)
		}

		flags := v.desc.Flags(idx)
		if flags&DescFIndirect != 0 {
			return nil, fmt.Errorf("indirect descriptor at %d not negotiated", idx)
		}

		data, err := v.mem.Guest(v.desc.Addr(idx), v.desc.Len(idx))
		if err != nil {
			return nil, errors.Wrapf(err, "mapping descriptor %d", idx)
		}

		c.Bufs = append(c.Bufs, Buffer{Data: data, Write: flags&DescFWrite != 0})

		if flags&DescFNext == 0 {
			return c, nil
		}

		idx = v.desc.Next(idx)
	}
}

func (v *Virtq) Push(c *Chain, written uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.putUsed(c.Head, written)

	return nil
}

func (v *Virtq) putUsed(head uint16, written uint32) {
	v.used.SetRing(v.lastUsed%v.num, uint32(head), written)
	v.lastUsed++
	v.used.SetIdx(v.lastUsed)
}
