package dring

import (
	"github.com/lab47/gemnet/gem"
	"github.com/lab47/gemnet/pkg/pmap"
)

// RxDone reports whether hardware has filled receive descriptor i and
// handed it back to software.
func (r *Ring) RxDone(i int) bool {
	return r.Word(i, 0)&gem.Desc0RxOwnership != 0
}

// RxWrap reports whether receive descriptor i carries the wrap flag.
func (r *Ring) RxWrap(i int) bool {
	return r.Word(i, 0)&gem.Desc0RxWrap != 0
}

// RxStatus returns the status word hardware wrote for descriptor i.
func (r *Ring) RxStatus(i int) uint32 {
	return r.Word(i, 1)
}

// RxRecycle hands receive descriptor i back to hardware, keeping its
// buffer address and wrap flag.
func (r *Ring) RxRecycle(i int) {
	r.SetWord(i, 1, 0)
	r.SetWord(i, 0, r.Word(i, 0)&^gem.Desc0RxOwnership)
}

// TxFree reports whether transmit descriptor i is owned by software.
func (r *Ring) TxFree(i int) bool {
	return r.Word(i, 1)&gem.Desc1Used != 0
}

// TxWrap reports whether transmit descriptor i carries the wrap flag.
func (r *Ring) TxWrap(i int) bool {
	return r.Word(i, 1)&gem.Desc1TxWrap != 0
}

// TxQueue hands transmit descriptor i to hardware with n bytes of its
// buffer as a complete frame. The control word is written last since it
// transfers ownership.
func (r *Ring) TxQueue(i, n int, tr pmap.Translator) {
	phys := tr.PhysAddr(r.BufferLocal(i))

	ctrl := gem.Desc1Len.Set(0, uint32(n)) | gem.Desc1TxLast
	if r.Last(i) {
		ctrl |= gem.Desc1TxWrap
	}

	r.SetWord(i, 0, uint32(phys))
	r.SetWord(i, 2, uint32(phys>>32))
	r.SetWord(i, 1, ctrl)
}
