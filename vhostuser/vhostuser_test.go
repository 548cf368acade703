package vhostuser

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lab47/gemnet/virtio"
	"github.com/lab47/lsvd/logger"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeDevice struct {
	mu     sync.Mutex
	config [12]byte
	queues [2]virtio.Queue
	resets int

	doorbells chan []byte
}

func newFakeDevice() *fakeDevice {
	f := &fakeDevice{doorbells: make(chan []byte, 4)}
	copy(f.config[:], []byte{0x02, 0, 0, 0, 0, 0x01})
	return f
}

var _ virtio.Device = (*fakeDevice)(nil)

func (f *fakeDevice) DeviceID() uint32 { return virtio.DeviceNet }
func (f *fakeDevice) Features() uint64 { return virtio.NetFMAC | virtio.NetFMTU }
func (f *fakeDevice) QueueNumMax() int { return 2 }
func (f *fakeDevice) Interrupt() bool  { return false }

func (f *fakeDevice) ReadConfig(off int) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if off < 0 || off >= len(f.config) {
		return 0
	}
	return f.config[off]
}

func (f *fakeDevice) WriteConfig(off int, v uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if off >= 0 && off < 6 {
		f.config[off] = v
	}
}

func (f *fakeDevice) SetQueue(idx int, q virtio.Queue) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queues[idx] = q
}

func (f *fakeDevice) queue(idx int) virtio.Queue {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.queues[idx]
}

func (f *fakeDevice) Doorbell(idx int) error {
	q := f.queue(idx)

	c, ok, err := q.Pop()
	if err != nil || !ok {
		return err
	}

	data := append([]byte(nil), c.Bufs[0].Data...)

	if err := q.Push(c, uint32(len(data))); err != nil {
		return err
	}

	f.doorbells <- data

	return nil
}

func (f *fakeDevice) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resets++
}

type frontEnd struct {
	t    *testing.T
	conn *net.UnixConn
	dev  *fakeDevice
	errc chan error
}

func unixConn(t *testing.T, fd int) *net.UnixConn {
	f := os.NewFile(uintptr(fd), "vhost-user")
	defer f.Close()

	c, err := net.FileConn(f)
	require.NoError(t, err)

	return c.(*net.UnixConn)
}

func newFrontEnd(t *testing.T) *frontEnd {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	fe := &frontEnd{
		t:    t,
		conn: unixConn(t, fds[0]),
		dev:  newFakeDevice(),
		errc: make(chan error, 1),
	}

	d := NewDevice(logger.New(logger.Trace), unixConn(t, fds[1]), fe.dev, 0)

	go func() {
		fe.errc <- d.Process()
	}()

	t.Cleanup(func() {
		fe.conn.Close()
	})

	return fe
}

func (fe *frontEnd) request(req uint32, body []byte, fds ...int) {
	hdr := binary.NativeEndian.AppendUint32(nil, req)
	hdr = binary.NativeEndian.AppendUint32(hdr, VHOST_USER_VERSION)
	hdr = binary.NativeEndian.AppendUint32(hdr, uint32(len(body)))

	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}

	_, _, err := fe.conn.WriteMsgUnix(append(hdr, body...), oob, nil)
	require.NoError(fe.t, err)
}

func (fe *frontEnd) response(req uint32) []byte {
	r := require.New(fe.t)

	hdr := make([]byte, headerSize)
	_, err := io.ReadFull(fe.conn, hdr)
	r.NoError(err)

	r.Equal(req, binary.NativeEndian.Uint32(hdr))
	r.Equal(uint32(5), binary.NativeEndian.Uint32(hdr[4:]))

	body := make([]byte, binary.NativeEndian.Uint32(hdr[8:]))
	_, err = io.ReadFull(fe.conn, body)
	r.NoError(err)

	return body
}

func (fe *frontEnd) call(req uint32, body []byte) []byte {
	fe.request(req, body)
	return fe.response(req)
}

func (fe *frontEnd) callU64(req uint32) uint64 {
	body := fe.call(req, nil)
	require.Len(fe.t, body, 8)
	return binary.NativeEndian.Uint64(body)
}

func u64(v uint64) []byte {
	return binary.NativeEndian.AppendUint64(nil, v)
}

func state(idx, num uint32) []byte {
	b := binary.NativeEndian.AppendUint32(nil, idx)
	return binary.NativeEndian.AppendUint32(b, num)
}

func config(off, size uint32, payload []byte) []byte {
	b := binary.NativeEndian.AppendUint32(nil, off)
	b = binary.NativeEndian.AppendUint32(b, size)
	b = binary.NativeEndian.AppendUint32(b, 0)
	return append(b, payload...)
}

func TestDevice(t *testing.T) {
	t.Run("negotiates features", func(t *testing.T) {
		r := require.New(t)

		fe := newFrontEnd(t)

		r.Equal(uint64(virtio.NetFMAC|virtio.NetFMTU|VHOST_USER_F_PROTOCOL_FEATURES),
			fe.callU64(VHOST_USER_GET_FEATURES))

		r.Equal(uint64(VHOST_USER_PROTOCOL_F_CONFIG|VHOST_USER_PROTOCOL_F_RESET_DEVICE),
			fe.callU64(VHOST_USER_GET_PROTOCOL_FEATURES))

		r.Equal(uint64(2), fe.callU64(VHOST_USER_GET_QUEUE_NUM))
	})

	t.Run("maps the config space", func(t *testing.T) {
		r := require.New(t)

		fe := newFrontEnd(t)

		body := fe.call(VHOST_USER_GET_CONFIG, config(0, 6, make([]byte, 6)))
		r.Len(body, configHeaderSize+6)
		r.Equal(uint32(6), binary.NativeEndian.Uint32(body[4:]))
		r.Equal([]byte{0x02, 0, 0, 0, 0, 0x01}, body[configHeaderSize:])

		fe.request(VHOST_USER_SET_CONFIG, config(5, 1, []byte{0xaa}))

		body = fe.call(VHOST_USER_GET_CONFIG, config(4, 2, make([]byte, 2)))
		r.Equal([]byte{0, 0xaa}, body[configHeaderSize:])
	})

	t.Run("resets the device", func(t *testing.T) {
		r := require.New(t)

		fe := newFrontEnd(t)

		fe.request(VHOST_USER_RESET_DEVICE, nil)
		fe.callU64(VHOST_USER_GET_QUEUE_NUM)

		fe.dev.mu.Lock()
		defer fe.dev.mu.Unlock()

		r.Equal(1, fe.dev.resets)
	})

	t.Run("stops on a bad ring index", func(t *testing.T) {
		r := require.New(t)

		fe := newFrontEnd(t)

		fe.request(VHOST_USER_SET_VRING_NUM, state(5, 8))

		select {
		case err := <-fe.errc:
			r.Error(err)
		case <-time.After(5 * time.Second):
			r.Fail("device kept processing")
		}
	})

	t.Run("returns when the front-end hangs up", func(t *testing.T) {
		r := require.New(t)

		fe := newFrontEnd(t)
		fe.conn.Close()

		select {
		case err := <-fe.errc:
			r.ErrorIs(err, io.EOF)
		case <-time.After(5 * time.Second):
			r.Fail("device kept processing")
		}
	})
}

func TestRing(t *testing.T) {
	const (
		memSize   = 64 * 1024
		guestBase = 0x1000_0000
		userBase  = 0x7f00_0000_0000

		descOff  = 0x0000
		availOff = 0x1000
		usedOff  = 0x2000
		bufOff   = 0x4000
	)

	r := require.New(t)

	fe := newFrontEnd(t)

	memfd, err := unix.MemfdCreate("guest", unix.MFD_CLOEXEC)
	r.NoError(err)
	defer unix.Close(memfd)

	r.NoError(unix.Ftruncate(memfd, memSize))

	mem, err := unix.Mmap(memfd, 0, memSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	r.NoError(err)
	defer unix.Munmap(mem)

	kick, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	r.NoError(err)
	defer unix.Close(kick)

	call, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	r.NoError(err)
	defer unix.Close(call)

	fe.request(VHOST_USER_SET_FEATURES, u64(virtio.NetFMAC|VHOST_USER_F_PROTOCOL_FEATURES))

	table := binary.NativeEndian.AppendUint32(nil, 1)
	table = binary.NativeEndian.AppendUint32(table, 0)
	table = binary.NativeEndian.AppendUint64(table, guestBase)
	table = binary.NativeEndian.AppendUint64(table, memSize)
	table = binary.NativeEndian.AppendUint64(table, userBase)
	table = binary.NativeEndian.AppendUint64(table, 0)
	fe.request(VHOST_USER_SET_MEM_TABLE, table, memfd)

	fe.request(VHOST_USER_SET_VRING_NUM, state(0, 8))
	fe.request(VHOST_USER_SET_VRING_BASE, state(0, 0))

	addr := state(0, 0)
	addr = binary.NativeEndian.AppendUint64(addr, userBase+descOff)
	addr = binary.NativeEndian.AppendUint64(addr, userBase+usedOff)
	addr = binary.NativeEndian.AppendUint64(addr, userBase+availOff)
	addr = binary.NativeEndian.AppendUint64(addr, 0)
	fe.request(VHOST_USER_SET_VRING_ADDR, addr)

	fe.request(VHOST_USER_SET_VRING_CALL, u64(0), call)
	fe.request(VHOST_USER_SET_VRING_KICK, u64(0), kick)
	fe.request(VHOST_USER_SET_VRING_ENABLE, state(0, 1))

	// round trip so everything above has been applied
	fe.callU64(VHOST_USER_GET_QUEUE_NUM)

	r.NotNil(fe.dev.queue(0))
	r.Nil(fe.dev.queue(1))

	payload := []byte("frame from guest")
	copy(mem[bufOff:], payload)

	virtio.NewDescTable(mem[descOff:]).Set(0, guestBase+bufOff, uint32(len(payload)), 0, 0)
	avail := virtio.NewAvailRing(mem[availOff:])
	avail.SetRing(0, 0)
	avail.SetIdx(1)

	_, err = unix.Write(kick, kickBuf)
	r.NoError(err)

	select {
	case data := <-fe.dev.doorbells:
		r.Equal(payload, data)
	case <-time.After(5 * time.Second):
		r.FailNow("doorbell was not rung")
	}

	used := virtio.NewUsedRing(mem[usedOff:])
	r.Equal(uint16(1), used.Idx())

	id, ln := used.Ring(0)
	r.Equal(uint32(0), id)
	r.Equal(uint32(len(payload)), ln)

	r.Eventually(func() bool {
		buf := make([]byte, 8)
		n, err := unix.Read(call, buf)
		return err == nil && n == 8
	}, 5*time.Second, 5*time.Millisecond)

	base := fe.call(VHOST_USER_GET_VRING_BASE, state(0, 0))
	r.Equal(state(0, 1), base)
	r.Nil(fe.dev.queue(0))
}
