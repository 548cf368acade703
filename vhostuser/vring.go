package vhostuser

import (
	"encoding/binary"
	"os"

	"github.com/lab47/gemnet/virtio"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// vring is the front-end's view of one virtqueue: what it configured, and
// the queue built from it once the ring is started.
type vring struct {
	num     uint16
	addr    vhostu_vring_addr
	hasAddr bool
	base    uint16

	kick    *os.File
	callFD  int
	enabled bool

	q *virtio.Virtq
}

func newVring() *vring {
	return &vring{callFD: -1}
}

var kickBuf = make([]byte, 8)

func init() {
	binary.NativeEndian.PutUint64(kickBuf, 1)
}

// signal notifies the guest through the call eventfd, unless the guest
// suppressed interrupts.
func (v *vring) signal() {
	if v.callFD < 0 || v.q == nil || !v.q.NeedsNotify() {
		return
	}

	unix.Write(v.callFD, kickBuf)
}

func (v *vring) closeFDs() {
	if v.kick != nil {
		v.kick.Close()
		v.kick = nil
	}

	if v.callFD >= 0 {
		unix.Close(v.callFD)
		v.callFD = -1
	}
}

// mapRing resolves the ring addresses in mem and returns a queue over them.
func (v *vring) mapRing(mem *virtio.MemoryTable) (*virtio.Virtq, error) {
	n := int(v.num)

	desc, err := mem.User(v.addr.Desc_user_addr, uint32(virtio.DescSize(n)))
	if err != nil {
		return nil, errors.Wrapf(err, "mapping descriptor table")
	}

	avail, err := mem.User(v.addr.Avail_user_addr, uint32(virtio.AvailSize(n)))
	if err != nil {
		return nil, errors.Wrapf(err, "mapping avail ring")
	}

	used, err := mem.User(v.addr.Used_user_addr, uint32(virtio.UsedSize(n)))
	if err != nil {
		return nil, errors.Wrapf(err, "mapping used ring")
	}

	q, err := virtio.NewVirtq(mem, v.num,
		virtio.NewDescTable(desc),
		virtio.NewAvailRing(avail),
		virtio.NewUsedRing(used),
	)
	if err != nil {
		return nil, err
	}

	q.SetLastAvail(v.base)

	return q, nil
}

// startRing attaches ring idx to the device once it has addresses, a kick
// eventfd and is enabled. Starting an already started ring is a no-op.
func (d *Device) startRing(idx int) error {
	v := d.vrings[idx]

	if v.q != nil || !v.hasAddr || v.kick == nil || !v.enabled {
		return nil
	}

	if d.mem == nil {
		return errors.Errorf("ring %d started before the memory table", idx)
	}

	q, err := v.mapRing(d.mem)
	if err != nil {
		return errors.Wrapf(err, "starting ring %d", idx)
	}

	v.q = q
	d.dev.SetQueue(idx, q)

	d.log.Info("vring started", "index", idx, "num", v.num, "base", v.base)

	return nil
}

// stopRing detaches ring idx and remembers where the guest's avail ring
// was consumed up to.
func (d *Device) stopRing(idx int) {
	v := d.vrings[idx]

	if v.q == nil {
		return
	}

	d.dev.SetQueue(idx, nil)

	v.base = v.q.LastAvail()
	v.q = nil

	d.log.Info("vring stopped", "index", idx, "base", v.base)
}

// watchKick rings the device doorbell each time the guest kicks a started
// queue. It exits when the kick eventfd is closed.
func (d *Device) watchKick(idx int, f *os.File) {
	buf := make([]byte, 8)

	for {
		_, err := f.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				d.log.Error("reading kick failed", "index", idx, "error", err)
			}
			return
		}

		d.log.Trace("kick was read", "index", idx)

		d.mu.Lock()

		if v := d.vrings[idx]; v.kick == f && v.q != nil {
			if err := d.dev.Doorbell(idx); err != nil {
				d.log.Error("error handling doorbell", "index", idx, "error", err)
			}

			v.signal()
		}

		d.mu.Unlock()
	}
}

// kickFile wraps an eventfd so reads park in the runtime poller and a
// Close unblocks them.
func kickFile(fd int) (*os.File, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "setting kick fd nonblocking")
	}

	return os.NewFile(uintptr(fd), "kick"), nil
}
