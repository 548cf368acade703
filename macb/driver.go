// Package macb drives a Cadence GEM MAC on behalf of a virtio-net guest.
//
// The Driver implements virtio.Device. Configuration space, doorbells,
// interrupt queries and resets are turned into register programming
// through gem.Regs and descriptor ring updates through dring; every buffer
// address handed to the MAC is translated with a pmap.Translator first.
package macb

import (
	"sync"

	"github.com/lab47/gemnet/dring"
	"github.com/lab47/gemnet/gem"
	"github.com/lab47/gemnet/pkg/dma"
	"github.com/lab47/gemnet/pkg/pmap"
	"github.com/lab47/gemnet/virtio"
	"github.com/lab47/lsvd/logger"
	"github.com/pkg/errors"
)

const (
	DeviceID    = virtio.DeviceNet
	Features    = virtio.NetFMAC | virtio.NetFMTU
	QueueNumMax = 2

	// MTU is advertised in the config space. It matches the buffer size.
	MTU = dring.BufferSize

	RxQueue = 0
	TxQueue = 1
)

// Config space layout.
const (
	configMAC    = 0
	configMACEnd = configMAC + 6
	configMTU    = 10
)

// ArenaSize is the DMA memory New needs from its arena: both rings with
// their buffers, plus alignment slack.
const ArenaSize = 2 * (dring.Entries*dring.DescSize + (dring.Entries+2)*dring.BufferSize)

type Driver struct {
	log  logger.Logger
	regs *gem.Regs
	tr   pmap.Translator

	mu     sync.Mutex
	mac    gem.HardwareAddr
	rx, tx *dring.Ring
	queues [QueueNumMax]virtio.Queue

	stats Stats
}

var _ virtio.Device = (*Driver)(nil)

// New allocates both descriptor rings from a. The hardware is not touched
// until Reset.
func New(log logger.Logger, regs *gem.Regs, a *dma.Arena, tr pmap.Translator) (*Driver, error) {
	rx, err := dring.New(a, dring.Rx, dring.Entries, dring.BufferSize)
	if err != nil {
		return nil, errors.Wrapf(err, "allocating rx ring")
	}

	tx, err := dring.New(a, dring.Tx, dring.Entries, dring.BufferSize)
	if err != nil {
		return nil, errors.Wrapf(err, "allocating tx ring")
	}

	return &Driver{
		log:   log,
		regs:  regs,
		tr:    tr,
		rx:    rx,
		tx:    tx,
		stats: make(Stats),
	}, nil
}

func (d *Driver) DeviceID() uint32 {
	return DeviceID
}

func (d *Driver) Features() uint64 {
	return Features
}

func (d *Driver) QueueNumMax() int {
	return QueueNumMax
}

func (d *Driver) MAC() gem.HardwareAddr {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.mac
}

func (d *Driver) ReadConfig(off int) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case off >= configMAC && off < configMACEnd:
		return d.mac[off-configMAC]
	case off == configMTU:
		return uint8(MTU & 0xff)
	case off == configMTU+1:
		return uint8(MTU >> 8 & 0xff)
	default:
		return 0
	}
}

// WriteConfig updates a byte of the MAC address and reprograms the first
// specific address filter with it. Other offsets are read only.
func (d *Driver) WriteConfig(off int, v uint8) {
	if off < configMAC || off >= configMACEnd {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.mac[off-configMAC] = v
	d.regs.SetSpecificAddr(1, d.mac)

	d.log.Trace("mac address updated", "mac", d.mac.String())
}

// SetMAC replaces the whole MAC address, as a series of config writes
// would.
func (d *Driver) SetMAC(a gem.HardwareAddr) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mac = a
	d.regs.SetSpecificAddr(1, d.mac)

	d.log.Info("mac address set", "mac", d.mac.String())
}

func (d *Driver) SetQueue(idx int, q virtio.Queue) {
	if idx < 0 || idx >= QueueNumMax {
		d.log.Warn("ignoring unknown queue", "index", idx)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.queues[idx] = q
}

// Doorbell processes the buffers the guest made available on queue idx.
func (d *Driver) Doorbell(idx int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch idx {
	case RxQueue:
		return d.receive()
	case TxQueue:
		return d.transmit()
	default:
		return errors.Wrapf(ErrNotSupported, "doorbell on queue %d", idx)
	}
}

func (d *Driver) queue(idx int) (virtio.Queue, error) {
	q := d.queues[idx]
	if q == nil {
		return nil, errors.Wrapf(ErrQueueNotReady, "queue %d", idx)
	}

	return q, nil
}
