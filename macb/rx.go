package macb

import (
	"github.com/lab47/gemnet/gem"
	"github.com/lab47/gemnet/virtio"
	"github.com/pkg/errors"
)

var zeroHdr [virtio.NetHdrSize]byte

// rxFrame looks at the completed descriptors starting at the cursor and
// returns how many make up the next frame and its length. ok is false
// while the frame is incomplete.
func (d *Driver) rxFrame() (descs, length int, ok bool) {
	cur := d.rx.Cursor()

	for k := 0; k < d.rx.Len(); k++ {
		i := cur.Peek(k)
		if !d.rx.RxDone(i) {
			return 0, 0, false
		}

		st := d.rx.RxStatus(i)
		if st&gem.Desc1RxEOF != 0 {
			return k + 1, int(gem.Desc1Len.Get(st)), true
		}
	}

	return 0, 0, false
}

// receive delivers completed frames into the guest's rx chains and hands
// their descriptors back to hardware. Frames stay in hardware buffers when
// the guest has no chains available.
func (d *Driver) receive() error {
	q, err := d.queue(RxQueue)
	if err != nil {
		return err
	}

	if st := d.regs.Read(gem.RxStatus); st&gem.RxStatusHResp != 0 {
		d.regs.Write(gem.RxStatus, gem.RxStatusHResp)
		return &HardwareError{Reg: gem.RxStatus, Status: st}
	}

	cur := d.rx.Cursor()

	var delivered int

	for d.rx.RxDone(cur.Pos()) {
		i := cur.Pos()

		if d.rx.RxStatus(i)&gem.Desc1RxSOF == 0 {
			d.log.Warn("dropping rx fragment without start of frame", "index", i)
			d.rx.RxRecycle(i)
			cur.Advance()
			continue
		}

		descs, length, ok := d.rxFrame()
		if !ok {
			break
		}

		c, ok, err := q.Pop()
		if err != nil {
			return errors.Wrapf(err, "reading rx queue")
		}

		if !ok {
			d.log.Trace("rx frame waiting for guest buffers", "index", i)
			break
		}

		written := c.CopyIn(0, zeroHdr[:])

		remain := length
		for k := 0; k < descs; k++ {
			j := cur.Pos()

			n := min(remain, d.rx.BufferSize())
			data := d.rx.Buffer(j)[:n]

			if k == 0 && d.log.IsTrace() {
				d.log.Trace("rx frame", "index", j, "len", length, "descs", descs, "frame", summarize(data))
			}

			written += c.CopyIn(written, data)
			remain -= n

			d.rx.RxRecycle(j)
			cur.Advance()
		}

		if written < virtio.NetHdrSize+length {
			d.log.Warn("rx frame truncated by guest buffer", "len", length, "room", c.Writable())
		}

		if err := q.Push(c, uint32(written)); err != nil {
			return errors.Wrapf(err, "returning rx chain")
		}

		delivered++
	}

	if delivered > 0 {
		d.regs.Write(gem.RxStatus, gem.RxStatusFrmRcvd|gem.RxStatusNoBuf)
	}

	return nil
}
