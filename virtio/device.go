// Package virtio holds the guest-facing device contract and the split
// virtqueue machinery a transport uses to feed it.
package virtio

// DeviceID values.
const (
	DeviceNet = 1
)

// Device is what a transport drives on behalf of the guest. Every method
// returns without waiting on hardware; completions are observed through
// Interrupt.
type Device interface {
	DeviceID() uint32
	Features() uint64

	// QueueNumMax is the number of virtqueues the device uses.
	QueueNumMax() int

	// ReadConfig and WriteConfig access one byte of the device
	// configuration space. Offsets the device does not define read as zero
	// and ignore writes.
	ReadConfig(off int) uint8
	WriteConfig(off int, v uint8)

	// SetQueue attaches, or detaches with nil, the virtqueue at idx.
	SetQueue(idx int, q Queue)

	// Doorbell is called when the guest made buffers available on queue
	// idx.
	Doorbell(idx int) error

	// Interrupt reports whether the device has a pending condition the
	// guest must be notified of, and acknowledges it.
	Interrupt() bool

	Reset()
}

// Queue is the device's view of one virtqueue.
type Queue interface {
	// Pop returns the next chain the guest made available. ok is false
	// when there is none.
	Pop() (c *Chain, ok bool, err error)

	// Push returns c to the guest, reporting written bytes.
	Push(c *Chain, written uint32) error
}

// Buffer is one descriptor of a chain, already mapped into local memory.
type Buffer struct {
	Data  []byte
	Write bool // device writes, guest reads
}

// Chain is a descriptor chain taken from the available ring.
type Chain struct {
	Head uint16
	Bufs []Buffer
}

// Readable returns the total size of the device-readable buffers.
func (c *Chain) Readable() int {
	var n int
	for _, b := range c.Bufs {
		if !b.Write {
			n += len(b.Data)
		}
	}
	return n
}

// Writable returns the total size of the device-writable buffers.
func (c *Chain) Writable() int {
	var n int
	for _, b := range c.Bufs {
		if b.Write {
			n += len(b.Data)
		}
	}
	return n
}

// CopyOut copies the readable bytes of the chain, starting skip bytes in,
// into dst and returns how many were copied.
func (c *Chain) CopyOut(dst []byte, skip int) int {
	var n int

	for _, b := range c.Bufs {
		if b.Write {
			continue
		}

		data := b.Data
		if skip >= len(data) {
			skip -= len(data)
			continue
		}

		data = data[skip:]
		skip = 0

		n += copy(dst[n:], data)
		if n == len(dst) {
			break
		}
	}

	return n
}

// CopyIn copies src into the writable bytes of the chain, starting off
// bytes in, and returns how many were copied.
func (c *Chain) CopyIn(off int, src []byte) int {
	var n int

	for _, b := range c.Bufs {
		if !b.Write {
			continue
		}

		data := b.Data
		if off >= len(data) {
			off -= len(data)
			continue
		}

		data = data[off:]
		off = 0

		n += copy(data, src[n:])
		if n == len(src) {
			break
		}
	}

	return n
}
