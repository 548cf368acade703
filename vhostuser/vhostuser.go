// Package vhostuser serves a virtio.Device to a vhost-user front-end, such
// as QEMU, over a unix socket.
package vhostuser

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/lab47/gemnet/virtio"
	"github.com/lab47/lsvd/logger"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Implementation based on snabb's vhost bits.

type Device struct {
	log  logger.Logger
	conn *net.UnixConn
	buf  []byte
	obuf []byte

	dev  virtio.Device
	poll time.Duration

	mu               sync.Mutex
	features         uint64
	protocolFeatures uint64
	mem              *virtio.MemoryTable
	vrings           []*vring
}

// NewDevice serves dev on conn. When poll is non-zero the device's
// interrupt state is checked at that interval and the guest notified.
func NewDevice(log logger.Logger, conn *net.UnixConn, dev virtio.Device, poll time.Duration) *Device {
	d := &Device{
		log:  log,
		conn: conn,
		buf:  make([]byte, headerSize+maxBodySize),
		obuf: make([]byte, unix.CmsgSpace(VHOST_USER_MEMORY_MAX_NREGIONS*4)),
		dev:  dev,
		poll: poll,
	}

	for i := 0; i < dev.QueueNumMax(); i++ {
		d.vrings = append(d.vrings, newVring())
	}

	return d
}

func (d *Device) Receive(msg *UserMsg) error {
	n, oobn, flags, _, err := d.conn.ReadMsgUnix(d.buf[:headerSize], d.obuf)
	if err != nil {
		return errors.Wrapf(err, "reading message header")
	}

	if flags&(unix.MSG_TRUNC|unix.MSG_CTRUNC) != 0 {
		return io.EOF
	}

	data := d.buf[:n]
	oob := d.obuf[:oobn]

	err = binary.Read(bytes.NewReader(data), binary.NativeEndian, &msg.UserMsgHeader)
	if err != nil {
		return err
	}

	msg.Fds = msg.Fds[:0]

	if oobn != 0 {
		cmsgs, err := unix.ParseSocketControlMessage(oob)
		if err != nil {
			return err
		}

		for i := range cmsgs {
			fds, err := unix.ParseUnixRights(&cmsgs[i])
			if err != nil {
				return err
			}

			msg.Fds = append(msg.Fds, fds...)
		}
	}

	if msg.Size > maxBodySize {
		return errors.Errorf("message body of %d bytes is too large", msg.Size)
	}

	if msg.Size > 0 {
		body := d.buf[:msg.Size]

		_, err = io.ReadFull(d.conn, body)
		if err != nil {
			return err
		}

		msg.Body = append(msg.Body, body...)
	}

	return nil
}

func (d *Device) send(msg *UserMsg, body []byte) error {
	msg.Flags = VHOST_USER_VERSION | VHOST_USER_REPLY_MASK
	msg.Size = uint32(len(body))

	buf := make([]byte, headerSize, headerSize+len(body))
	binary.NativeEndian.PutUint32(buf, msg.Request)
	binary.NativeEndian.PutUint32(buf[4:], msg.Flags)
	binary.NativeEndian.PutUint32(buf[8:], msg.Size)

	_, err := d.conn.Write(append(buf, body...))
	return err
}

func (d *Device) reply(msg *UserMsg, val uint64) error {
	return d.send(msg, binary.NativeEndian.AppendUint64(nil, val))
}

func (d *Device) replyState(msg *UserMsg, s *vhostu_vring_state) error {
	body := binary.NativeEndian.AppendUint32(nil, s.Index)
	return d.send(msg, binary.NativeEndian.AppendUint32(body, s.Num))
}

// Process serves messages until the front-end disconnects. The rings are
// stopped and guest memory unmapped before it returns.
func (d *Device) Process() error {
	done := make(chan struct{})
	defer d.shutdown(done)

	if d.poll > 0 {
		go d.pollInterrupts(done)
	}

	var msg UserMsg

	for {
		msg.Body = msg.Body[:0]

		err := d.Receive(&msg)
		if err != nil {
			return err
		}

		err = d.dispatch(&msg)

		for _, fd := range msg.Fds {
			unix.Close(fd)
		}

		if err != nil {
			return err
		}
	}
}

func (d *Device) shutdown(done chan struct{}) {
	close(done)

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, v := range d.vrings {
		d.stopRing(i)
		v.closeFDs()
	}

	d.freeMemTable()
}

// pollInterrupts asks the device for pending completions and notifies the
// guest on every started ring when there are some.
func (d *Device) pollInterrupts(done chan struct{}) {
	tick := time.NewTicker(d.poll)
	defer tick.Stop()

	for {
		select {
		case <-done:
			return
		case <-tick.C:
		}

		d.mu.Lock()

		if d.dev.Interrupt() {
			for _, v := range d.vrings {
				v.signal()
			}
		}

		d.mu.Unlock()
	}
}

func (d *Device) dispatch(msg *UserMsg) error {
	d.log.Trace("vhost message", "request", requestNames[msg.Request], "flags", msg.Flags, "size", msg.Size)

	d.mu.Lock()
	defer d.mu.Unlock()

	switch msg.Request {
	case VHOST_USER_NONE:
		return d.none(msg)
	case VHOST_USER_GET_FEATURES:
		return d.get_features(msg)
	case VHOST_USER_SET_FEATURES:
		return d.set_features(msg)
	case VHOST_USER_SET_OWNER:
		return d.set_owner(msg)
	case VHOST_USER_RESET_OWNER, VHOST_USER_RESET_DEVICE:
		return d.reset_device(msg)
	case VHOST_USER_SET_MEM_TABLE:
		return d.set_mem_table(msg)
	case VHOST_USER_SET_LOG_BASE, VHOST_USER_SET_LOG_FD, VHOST_USER_SET_VRING_ERR:
		// Not implemented in snabb
		return nil
	case VHOST_USER_SET_VRING_NUM:
		return d.set_vring_num(msg)
	case VHOST_USER_SET_VRING_ADDR:
		return d.set_vring_addr(msg)
	case VHOST_USER_SET_VRING_BASE:
		return d.set_vring_base(msg)
	case VHOST_USER_GET_VRING_BASE:
		return d.get_vring_base(msg)
	case VHOST_USER_SET_VRING_KICK:
		return d.set_vring_kick(msg)
	case VHOST_USER_SET_VRING_CALL:
		return d.set_vring_call(msg)
	case VHOST_USER_GET_PROTOCOL_FEATURES:
		return d.reply(msg, supported_protocol_features)
	case VHOST_USER_SET_PROTOCOL_FEATURES:
		return d.set_protocol_features(msg)
	case VHOST_USER_GET_QUEUE_NUM:
		return d.reply(msg, uint64(d.dev.QueueNumMax()))
	case VHOST_USER_SET_VRING_ENABLE:
		return d.set_vring_enable(msg)
	case VHOST_USER_GET_CONFIG:
		return d.get_config(msg)
	case VHOST_USER_SET_CONFIG:
		return d.set_config(msg)
	}

	d.log.Warn("unsupported vhost request", "request", msg.Request)

	return nil
}

func (d *Device) none(_ *UserMsg) error {
	// Empty in snabb
	d.log.Warn("got a none message from qemu")
	return nil
}

func (d *Device) supportedFeatures() uint64 {
	return d.dev.Features() | VHOST_USER_F_PROTOCOL_FEATURES
}

func (d *Device) get_features(msg *UserMsg) error {
	return d.reply(msg, d.supportedFeatures())
}

func (d *Device) set_features(msg *UserMsg) error {
	f, err := msg.u64()
	if err != nil {
		return err
	}

	if extra := f &^ d.supportedFeatures(); extra != 0 {
		d.log.Warn("front-end acked unoffered features", "features", extra)
	}

	d.log.Info("configuring features", "features", f)

	d.features = f

	return nil
}

func (d *Device) set_protocol_features(msg *UserMsg) error {
	f, err := msg.u64()
	if err != nil {
		return err
	}

	d.protocolFeatures = f & supported_protocol_features

	return nil
}

func (d *Device) set_owner(_ *UserMsg) error {
	return nil
}

// reset_device stops every ring and resets the device. The front-end
// renegotiates everything afterwards.
func (d *Device) reset_device(_ *UserMsg) error {
	for i, v := range d.vrings {
		d.stopRing(i)
		v.closeFDs()
		d.vrings[i] = newVring()
	}

	d.features = 0
	d.dev.Reset()

	d.log.Info("device reset")

	return nil
}

func (d *Device) freeMemTable() {
	if d.mem == nil {
		return
	}

	for _, r := range d.mem.Regions {
		unix.Munmap(r.Data)
	}

	d.mem = nil
}

func (d *Device) set_mem_table(msg *UserMsg) error {
	um, err := msg.Memory()
	if err != nil {
		return err
	}

	if len(msg.Fds) < len(um.Regions) {
		return errors.Errorf("memory table has %d regions but %d fds", len(um.Regions), len(msg.Fds))
	}

	mem := &virtio.MemoryTable{}

	for _, mr := range um.Regions {
		fd := msg.fd()

		d.log.Trace("configuring mem-table", "fd", fd,
			"guest", mr.Guest_phys_addr,
			"user/qemu", mr.Userspace_addr,
			"size", mr.Memory_size,
			"offset", mr.Mmap_offset,
		)

		data, err := unix.Mmap(fd, int64(mr.Mmap_offset), int(mr.Memory_size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		unix.Close(fd)

		if err != nil {
			for _, r := range mem.Regions {
				unix.Munmap(r.Data)
			}
			return errors.Wrapf(err, "mapping guest region %#x", mr.Guest_phys_addr)
		}

		mem.Regions = append(mem.Regions, virtio.Region{
			Guest: mr.Guest_phys_addr,
			User:  mr.Userspace_addr,
			Data:  data,
		})
	}

	// running rings point into the old mapping
	var running []int
	for i, v := range d.vrings {
		if v.q != nil {
			d.stopRing(i)
			running = append(running, i)
		}
	}

	d.freeMemTable()
	d.mem = mem

	for _, i := range running {
		if err := d.startRing(i); err != nil {
			return err
		}
	}

	return nil
}

func (d *Device) ring(idx uint32) (*vring, error) {
	if int(idx) >= len(d.vrings) {
		return nil, errors.Errorf("ring index %d out of range", idx)
	}

	return d.vrings[idx], nil
}

func (d *Device) set_vring_num(msg *UserMsg) error {
	s, err := msg.VRingState()
	if err != nil {
		return err
	}

	v, err := d.ring(s.Index)
	if err != nil {
		return err
	}

	if s.Num == 0 || s.Num > virtio.MaxQueueSize {
		return errors.Errorf("bad ring size %d", s.Num)
	}

	v.num = uint16(s.Num)

	return nil
}

func (d *Device) set_vring_addr(msg *UserMsg) error {
	addr, err := msg.VRingAddr()
	if err != nil {
		return err
	}

	v, err := d.ring(addr.Index)
	if err != nil {
		return err
	}

	v.addr = addr
	v.hasAddr = true

	d.log.Trace("vring address configured", "ring", addr.Index,
		"desc", addr.Desc_user_addr,
		"avail", addr.Avail_user_addr,
		"used", addr.Used_user_addr,
	)

	return d.startRing(int(addr.Index))
}

func (d *Device) set_vring_base(msg *UserMsg) error {
	state, err := msg.VRingState()
	if err != nil {
		return err
	}

	v, err := d.ring(state.Index)
	if err != nil {
		return err
	}

	v.base = uint16(state.Num)

	d.log.Trace("set vring avail", "ring", state.Index, "avail", state.Num)

	return nil
}

// get_vring_base stops the ring and reports the next avail index.
func (d *Device) get_vring_base(msg *UserMsg) error {
	state, err := msg.VRingState()
	if err != nil {
		return err
	}

	v, err := d.ring(state.Index)
	if err != nil {
		return err
	}

	d.stopRing(int(state.Index))
	v.closeFDs()

	state.Num = uint32(v.base)

	return d.replyState(msg, &state)
}

func (d *Device) set_vring_kick(msg *UserMsg) error {
	val, err := msg.u64()
	if err != nil {
		return err
	}

	idx := uint32(val & VHOST_USER_VRING_IDX_MASK)

	v, err := d.ring(idx)
	if err != nil {
		return err
	}

	if val&VHOST_USER_VRING_NOFD_MASK != 0 {
		return errors.Errorf("ring %d: polling without a kick fd is not supported", idx)
	}

	fd := msg.fd()
	if fd < 0 {
		return errors.Errorf("ring %d: kick message carried no fd", idx)
	}

	f, err := kickFile(fd)
	if err != nil {
		return err
	}

	d.stopRing(int(idx))

	if v.kick != nil {
		v.kick.Close()
	}

	v.kick = f

	// without protocol features a ring starts on its kick fd
	if d.features&VHOST_USER_F_PROTOCOL_FEATURES == 0 {
		v.enabled = true
	}

	go d.watchKick(int(idx), f)

	d.log.Trace("configured kickfd", "ring", idx, "fd", fd)

	return d.startRing(int(idx))
}

func (d *Device) set_vring_call(msg *UserMsg) error {
	val, err := msg.u64()
	if err != nil {
		return err
	}

	idx := uint32(val & VHOST_USER_VRING_IDX_MASK)

	v, err := d.ring(idx)
	if err != nil {
		return err
	}

	if v.callFD >= 0 {
		unix.Close(v.callFD)
		v.callFD = -1
	}

	if val&VHOST_USER_VRING_NOFD_MASK == 0 {
		v.callFD = msg.fd()
		d.log.Trace("configured callfd", "ring", idx, "fd", v.callFD)
	}

	return nil
}

func (d *Device) set_vring_enable(msg *UserMsg) error {
	state, err := msg.VRingState()
	if err != nil {
		return err
	}

	v, err := d.ring(state.Index)
	if err != nil {
		return err
	}

	v.enabled = state.Num != 0

	d.log.Info("vring enable", "index", state.Index, "enabled", v.enabled)

	if !v.enabled {
		d.stopRing(int(state.Index))
		return nil
	}

	return d.startRing(int(state.Index))
}

func (d *Device) get_config(msg *UserMsg) error {
	c, payload, err := msg.Config()
	if err != nil {
		return err
	}

	for i := range payload {
		payload[i] = d.dev.ReadConfig(int(c.Offset) + i)
	}

	body := binary.NativeEndian.AppendUint32(nil, c.Offset)
	body = binary.NativeEndian.AppendUint32(body, c.Size)
	body = binary.NativeEndian.AppendUint32(body, c.Flags)

	return d.send(msg, append(body, payload...))
}

func (d *Device) set_config(msg *UserMsg) error {
	c, payload, err := msg.Config()
	if err != nil {
		return err
	}

	for i, b := range payload {
		d.dev.WriteConfig(int(c.Offset)+i, b)
	}

	return nil
}
