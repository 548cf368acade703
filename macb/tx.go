package macb

import (
	"github.com/lab47/gemnet/gem"
	"github.com/lab47/gemnet/virtio"
	"github.com/pkg/errors"
)

const txFaults = gem.TxStatusAHBErr | gem.TxStatusHResp

// transmit moves frames from the guest's tx queue into free tx descriptors
// and strobes TXSTART once if any were queued. It stops when the queue is
// empty or the next descriptor is still owned by hardware; the remaining
// chains are picked up on the next doorbell or transmit completion.
func (d *Driver) transmit() error {
	q, err := d.queue(TxQueue)
	if err != nil {
		return err
	}

	if st := d.regs.Read(gem.TxStatus); st&txFaults != 0 {
		d.regs.Write(gem.TxStatus, st&txFaults)
		return &HardwareError{Reg: gem.TxStatus, Status: st}
	}

	cur := d.tx.Cursor()

	var queued int

	defer func() {
		if queued > 0 {
			d.regs.Or(gem.NWCtrl, gem.NWCtrlTxStart)
		}
	}()

	for d.tx.TxFree(cur.Pos()) {
		c, ok, err := q.Pop()
		if err != nil {
			return errors.Wrapf(err, "reading tx queue")
		}

		if !ok {
			break
		}

		i := cur.Pos()
		buf := d.tx.Buffer(i)

		size := c.Readable() - virtio.NetHdrSize
		if size <= 0 || size > len(buf) {
			d.log.Warn("dropping tx frame with bad size", "size", size)
			if err := q.Push(c, 0); err != nil {
				return errors.Wrapf(err, "returning tx chain")
			}
			continue
		}

		n := c.CopyOut(buf[:size], virtio.NetHdrSize)

		d.tx.TxQueue(i, n, d.tr)

		if d.log.IsTrace() {
			d.log.Trace("tx frame queued", "index", i, "len", n, "frame", summarize(buf[:n]))
		}

		cur.Advance()
		queued++

		if err := q.Push(c, 0); err != nil {
			return errors.Wrapf(err, "returning tx chain")
		}
	}

	return nil
}
