package macb

import (
	"bytes"
	"testing"

	"github.com/lab47/gemnet/gem"
	"github.com/lab47/gemnet/pkg/dma"
	"github.com/lab47/gemnet/pkg/pmap"
	"github.com/lab47/gemnet/virtio"
	"github.com/lab47/lsvd/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// testBank is plain register memory with the side effects the driver
// relies on: TXSTART self-clears, ISR and the statistics clear on read,
// and status registers are write-one-to-clear.
type testBank struct {
	gem.MemBank

	txStarts int
}

func (b *testBank) Read(r gem.Reg) uint32 {
	v := b.MemBank.Read(r)
	if r == gem.ISR || gem.IsStatistic(r) {
		b.MemBank.Write(r, 0)
	}
	return v
}

func (b *testBank) Write(r gem.Reg, v uint32) {
	switch r {
	case gem.NWCtrl:
		if v&gem.NWCtrlTxStart != 0 {
			b.txStarts++
			v &^= gem.NWCtrlTxStart
		}
	case gem.ISR, gem.TxStatus, gem.RxStatus:
		v = b.MemBank.Read(r) &^ v
	}
	b.MemBank.Write(r, v)
}

type usedEntry struct {
	head    uint16
	written uint32
}

type testQueue struct {
	chains []*virtio.Chain
	used   []usedEntry
}

func (q *testQueue) Pop() (*virtio.Chain, bool, error) {
	if len(q.chains) == 0 {
		return nil, false, nil
	}

	c := q.chains[0]
	q.chains = q.chains[1:]

	return c, true, nil
}

func (q *testQueue) Push(c *virtio.Chain, written uint32) error {
	q.used = append(q.used, usedEntry{head: c.Head, written: written})
	return nil
}

// txChain is a guest transmit chain: header and frame in separate buffers.
func txChain(head uint16, frame []byte) *virtio.Chain {
	return &virtio.Chain{
		Head: head,
		Bufs: []virtio.Buffer{
			{Data: make([]byte, virtio.NetHdrSize)},
			{Data: frame},
		},
	}
}

func rxChain(head uint16, n int) *virtio.Chain {
	return &virtio.Chain{
		Head: head,
		Bufs: []virtio.Buffer{{Data: make([]byte, n), Write: true}},
	}
}

func testFrame(n int) []byte {
	frame := make([]byte, n)
	copy(frame, []byte{
		0x02, 0x00, 0x00, 0x00, 0x00, 0x02, // dst
		0x02, 0x00, 0x00, 0x00, 0x00, 0x01, // src
		0x88, 0xb5, // local experimental ethertype
	})
	for i := 14; i < n; i++ {
		frame[i] = byte(i)
	}
	return frame
}

var testTranslator = pmap.Offset{Delta: 0x8_0000_0000}

func newTestDriver(t *testing.T) (*Driver, *testBank) {
	bank := &testBank{}

	d, err := New(logger.New(logger.Trace), gem.NewRegs(bank), dma.New(ArenaSize), testTranslator)
	require.NoError(t, err)

	return d, bank
}

// fill makes rx descriptor i look like hardware wrote data into it.
func (d *Driver) fill(i int, data []byte, status uint32) {
	copy(d.rx.Buffer(i), data)
	d.rx.SetWord(i, 1, status)
	d.rx.SetWord(i, 0, d.rx.Word(i, 0)|gem.Desc0RxOwnership)
}

func TestDevice(t *testing.T) {
	t.Run("advertises a two queue net device", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)

		r.Equal(uint32(1), d.DeviceID())
		r.Equal(uint64(1<<5|1<<3), d.Features())
		r.Equal(2, d.QueueNumMax())
	})

	t.Run("mac bytes read back what was written", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)

		for off := 0; off < 6; off++ {
			r.Zero(d.ReadConfig(off))

			for _, b := range []uint8{0x00, 0x5a, 0xff} {
				d.WriteConfig(off, b)
				r.Equal(b, d.ReadConfig(off), "offset %d", off)
			}
		}
	})

	t.Run("undefined offsets read zero", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)

		for off := 6; off < 64; off++ {
			d.WriteConfig(off, 0xee)
		}

		for _, off := range []int{-1, 6, 7, 8, 9, 12, 13, 100} {
			r.Zero(d.ReadConfig(off), "offset %d", off)
		}
	})

	t.Run("mtu is fixed", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)

		d.WriteConfig(10, 0x12)
		d.WriteConfig(11, 0x34)
		d.WriteConfig(0, 0xff)

		r.Equal(uint8(0x00), d.ReadConfig(10))
		r.Equal(uint8(0x08), d.ReadConfig(11))
	})

	t.Run("mac writes program the specific address filter", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)

		mac := []uint8{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
		for i, b := range mac {
			d.WriteConfig(i, b)
		}

		for i, b := range mac {
			r.Equal(b, d.ReadConfig(i))
		}

		r.Equal(uint32(0x00000002), bank.MemBank.Read(gem.SpAddr1Lo))
		r.Equal(uint32(0x00000100), bank.MemBank.Read(gem.SpAddr1Hi))
		r.Equal("02:00:00:00:00:01", d.MAC().String())
	})

	t.Run("setting the whole mac matches byte writes", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)

		d.SetMAC(gem.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01})

		r.Equal(uint8(0x02), d.ReadConfig(0))
		r.Equal(uint8(0x01), d.ReadConfig(5))
		r.Equal(uint32(0x00000002), bank.MemBank.Read(gem.SpAddr1Lo))
		r.Equal(uint32(0x00000100), bank.MemBank.Read(gem.SpAddr1Hi))
	})

	t.Run("doorbell on an unknown queue is not supported", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)

		err := d.Doorbell(2)
		r.Equal(ErrNotSupported, errors.Cause(err))

		err = d.Doorbell(TxQueue)
		r.Equal(ErrQueueNotReady, errors.Cause(err))
	})
}

func TestReset(t *testing.T) {
	t.Run("binds rx descriptors to their buffers", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)
		d.Reset()

		for i := 0; i < d.rx.Len(); i++ {
			desc := d.rx.Desc(i)

			r.Equal(testTranslator.PhysAddr(d.rx.BufferLocal(i)), desc.Addr())
			r.False(d.rx.RxDone(i))
			r.Equal(i == d.rx.Len()-1, d.rx.RxWrap(i), "descriptor %d", i)
		}
	})

	t.Run("enables only 64-bit addressing in the dma config", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		bank.MemBank.Write(gem.DMACfg, 0xffff)

		d.Reset()

		r.Equal(uint32(gem.DMACfgAddr64B), bank.MemBank.Read(gem.DMACfg))
	})

	t.Run("programs each ring's own base", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		rx := uint64(bank.MemBank.Read(gem.RxQBase)) | uint64(bank.MemBank.Read(gem.RBQPH))<<32
		tx := uint64(bank.MemBank.Read(gem.TxQBase)) | uint64(bank.MemBank.Read(gem.TBQPH))<<32

		r.Equal(testTranslator.PhysAddr(d.rx.Base()), rx)
		r.Equal(testTranslator.PhysAddr(d.tx.Base()), tx)
		r.NotEqual(rx, tx)
	})

	t.Run("leaves tx descriptors with software and enables the datapath", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		for i := 0; i < d.tx.Len(); i++ {
			r.True(d.tx.TxFree(i))
			r.Equal(i == d.tx.Len()-1, d.tx.TxWrap(i))
		}

		ctrl := bank.MemBank.Read(gem.NWCtrl)
		r.NotZero(ctrl & gem.NWCtrlRxEna)
		r.NotZero(ctrl & gem.NWCtrlTxEna)
		r.Zero(bank.txStarts)

		r.Equal(uint32(guestInterrupts), bank.MemBank.Read(gem.IER))
	})

	t.Run("rewinds the rings", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)
		d.Reset()

		q := &testQueue{chains: []*virtio.Chain{txChain(0, testFrame(64))}}
		d.SetQueue(TxQueue, q)
		r.NoError(d.Doorbell(TxQueue))
		r.Equal(1, d.tx.Cursor().Pos())

		d.Reset()

		r.Equal(0, d.tx.Cursor().Pos())
		r.True(d.tx.TxFree(0))
	})
}

func TestTransmit(t *testing.T) {
	t.Run("queues one frame and strobes once", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		frame := testFrame(64)
		q := &testQueue{chains: []*virtio.Chain{txChain(7, frame)}}
		d.SetQueue(TxQueue, q)

		r.NoError(d.Doorbell(TxQueue))

		desc := d.tx.Desc(0)
		r.Equal(testTranslator.PhysAddr(d.tx.BufferLocal(0)), desc.Addr())
		r.Equal(64, desc.Length())
		r.NotZero(desc[1] & gem.Desc1TxLast)
		r.Zero(desc[1] & gem.Desc1Used)
		r.Zero(desc[1] & gem.Desc1TxWrap)

		r.Equal(frame, d.tx.Buffer(0)[:64])
		r.Equal(1, bank.txStarts)
		r.Equal([]usedEntry{{head: 7}}, q.used)
	})

	t.Run("does not strobe without frames", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		d.SetQueue(TxQueue, &testQueue{})
		r.NoError(d.Doorbell(TxQueue))

		r.Zero(bank.txStarts)
		r.True(d.tx.TxFree(0))
	})

	t.Run("stops at descriptors hardware still owns", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		q := &testQueue{}
		for i := 0; i < 9; i++ {
			q.chains = append(q.chains, txChain(uint16(i), testFrame(60+i)))
		}
		d.SetQueue(TxQueue, q)

		r.NoError(d.Doorbell(TxQueue))
		r.Equal(1, bank.txStarts)
		r.Len(q.chains, 1)
		r.Len(q.used, 8)
		r.True(d.tx.TxWrap(7))
		r.False(d.tx.TxFree(7))

		// hardware sends the first frame
		d.tx.SetWord(0, 1, d.tx.Word(0, 1)|gem.Desc1Used)

		r.NoError(d.Doorbell(TxQueue))
		r.Equal(2, bank.txStarts)
		r.Empty(q.chains)
		r.Equal(68, d.tx.Desc(0).Length())
	})

	t.Run("drops frames that do not fit a buffer", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		q := &testQueue{chains: []*virtio.Chain{
			txChain(1, make([]byte, MTU+1)),
			{Head: 2, Bufs: []virtio.Buffer{{Data: make([]byte, 4)}}},
		}}
		d.SetQueue(TxQueue, q)

		r.NoError(d.Doorbell(TxQueue))

		r.Zero(bank.txStarts)
		r.Len(q.used, 2)
		r.True(d.tx.TxFree(0))
	})

	t.Run("reports hardware faults", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()
		d.SetQueue(TxQueue, &testQueue{chains: []*virtio.Chain{txChain(0, testFrame(64))}})

		bank.MemBank.Write(gem.TxStatus, gem.TxStatusHResp)

		err := d.Doorbell(TxQueue)
		r.Error(err)
		r.True(IsHardwareError(err))
		r.Zero(bank.MemBank.Read(gem.TxStatus))
		r.Zero(bank.txStarts)
	})
}

func TestReceive(t *testing.T) {
	t.Run("delivers a frame behind a zero header", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)
		d.Reset()

		frame := testFrame(60)
		d.fill(0, frame, uint32(len(frame))|gem.Desc1RxSOF|gem.Desc1RxEOF)

		c := rxChain(4, 1600)
		q := &testQueue{chains: []*virtio.Chain{c}}
		d.SetQueue(RxQueue, q)

		r.NoError(d.Doorbell(RxQueue))

		r.Equal([]usedEntry{{head: 4, written: uint32(virtio.NetHdrSize + len(frame))}}, q.used)

		data := c.Bufs[0].Data
		r.Equal(make([]byte, virtio.NetHdrSize), data[:virtio.NetHdrSize])
		r.Equal(frame, data[virtio.NetHdrSize:virtio.NetHdrSize+len(frame)])

		r.False(d.rx.RxDone(0))
		r.Equal(testTranslator.PhysAddr(d.rx.BufferLocal(0)), d.rx.Desc(0).Addr())
		r.Equal(1, d.rx.Cursor().Pos())
	})

	t.Run("reassembles frames spanning descriptors", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)
		d.Reset()

		frame := testFrame(3000)
		d.fill(0, frame[:2048], gem.Desc1RxSOF)
		d.fill(1, frame[2048:], uint32(len(frame))|gem.Desc1RxEOF)

		c := rxChain(0, 4096)
		q := &testQueue{chains: []*virtio.Chain{c}}
		d.SetQueue(RxQueue, q)

		r.NoError(d.Doorbell(RxQueue))

		r.Len(q.used, 1)
		r.Equal(uint32(virtio.NetHdrSize+3000), q.used[0].written)
		r.True(bytes.Equal(frame, c.Bufs[0].Data[virtio.NetHdrSize:virtio.NetHdrSize+3000]))
		r.False(d.rx.RxDone(0))
		r.False(d.rx.RxDone(1))
		r.Equal(2, d.rx.Cursor().Pos())
	})

	t.Run("waits for the end of a frame", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)
		d.Reset()

		d.fill(0, testFrame(2048), gem.Desc1RxSOF)

		q := &testQueue{chains: []*virtio.Chain{rxChain(0, 4096)}}
		d.SetQueue(RxQueue, q)

		r.NoError(d.Doorbell(RxQueue))

		r.Empty(q.used)
		r.True(d.rx.RxDone(0))
		r.Equal(0, d.rx.Cursor().Pos())
	})

	t.Run("keeps frames in hardware buffers until the guest supplies some", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		frame := testFrame(64)
		d.fill(0, frame, uint32(len(frame))|gem.Desc1RxSOF|gem.Desc1RxEOF)

		q := &testQueue{}
		d.SetQueue(RxQueue, q)

		r.NoError(d.Doorbell(RxQueue))
		r.True(d.rx.RxDone(0))

		q.chains = append(q.chains, rxChain(1, 2048))
		bank.MemBank.Write(gem.ISR, gem.IntRxCmpl)

		r.True(d.Interrupt())
		r.Len(q.used, 1)
		r.False(d.rx.RxDone(0))
	})

	t.Run("drops fragments without a start of frame", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)
		d.Reset()

		frame := testFrame(64)
		d.fill(0, frame, uint32(len(frame))|gem.Desc1RxEOF)
		d.fill(1, frame, uint32(len(frame))|gem.Desc1RxSOF|gem.Desc1RxEOF)

		q := &testQueue{chains: []*virtio.Chain{rxChain(9, 2048)}}
		d.SetQueue(RxQueue, q)

		r.NoError(d.Doorbell(RxQueue))

		r.Equal([]usedEntry{{head: 9, written: uint32(virtio.NetHdrSize + 64)}}, q.used)
		r.False(d.rx.RxDone(0))
		r.False(d.rx.RxDone(1))
	})

	t.Run("follows the wrap back to the first descriptor", func(t *testing.T) {
		r := require.New(t)

		d, _ := newTestDriver(t)
		d.Reset()

		q := &testQueue{}
		d.SetQueue(RxQueue, q)

		for i := 0; i < d.rx.Len()+1; i++ {
			idx := i % d.rx.Len()
			frame := testFrame(60 + i)
			d.fill(idx, frame, uint32(len(frame))|gem.Desc1RxSOF|gem.Desc1RxEOF)
			q.chains = append(q.chains, rxChain(uint16(i), 2048))

			r.NoError(d.Doorbell(RxQueue))
		}

		r.Len(q.used, d.rx.Len()+1)
		r.Equal(1, d.rx.Cursor().Pos())
		r.True(d.rx.RxWrap(d.rx.Len() - 1))
	})
}

func TestInterrupt(t *testing.T) {
	t.Run("reports and acknowledges completions", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		r.False(d.Interrupt())

		bank.MemBank.Write(gem.ISR, gem.IntTxCmpl)
		r.True(d.Interrupt())
		r.False(d.Interrupt())
	})

	t.Run("ignores masked causes", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		bank.MemBank.Write(gem.IMR, gem.IntRxCmpl)
		bank.MemBank.Write(gem.ISR, gem.IntRxCmpl)

		r.False(d.Interrupt())
	})

	t.Run("continues transmitting on completion", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		q := &testQueue{}
		for i := 0; i < 9; i++ {
			q.chains = append(q.chains, txChain(uint16(i), testFrame(64)))
		}
		d.SetQueue(TxQueue, q)

		r.NoError(d.Doorbell(TxQueue))
		r.Len(q.chains, 1)

		d.tx.SetWord(0, 1, d.tx.Word(0, 1)|gem.Desc1Used)
		bank.MemBank.Write(gem.ISR, gem.IntTxCmpl)

		r.True(d.Interrupt())
		r.Empty(q.chains)
		r.Equal(2, bank.txStarts)
	})

	t.Run("polls error counters on error causes", func(t *testing.T) {
		r := require.New(t)

		d, bank := newTestDriver(t)
		d.Reset()

		bank.MemBank.Write(gem.TxURunCnt, 1)
		bank.MemBank.Write(gem.TxStatus, gem.TxStatusURun)
		bank.MemBank.Write(gem.ISR, gem.IntTxURun)

		r.False(d.Interrupt())
		r.Zero(bank.MemBank.Read(gem.TxStatus))
		r.Equal(uint64(1), d.PollStats()["tx_underrun"])
	})
}

func TestPollStats(t *testing.T) {
	r := require.New(t)

	d, bank := newTestDriver(t)

	bank.MemBank.Write(gem.TxURunCnt, 3)
	bank.MemBank.Write(gem.Tx64Cnt, 2)
	bank.MemBank.Write(gem.OctTxLo, 5)
	bank.MemBank.Write(gem.OctTxLo+1, 1)

	stats := d.PollStats()
	r.Equal(uint64(3), stats["tx_underrun"])
	r.Equal(uint64(2), stats["tx_64"])
	r.Equal(uint64(1)<<32|5, stats["tx_octets"])

	bank.MemBank.Write(gem.Tx64Cnt, 1)

	stats = d.PollStats()
	r.Equal(uint64(3), stats["tx_underrun"])
	r.Equal(uint64(3), stats["tx_64"])
}

func TestSummarize(t *testing.T) {
	r := require.New(t)

	s := summarize(testFrame(64))
	r.Contains(s, "02:00:00:00:00:01 > 02:00:00:00:00:02")
	r.Contains(s, "Ethernet")

	r.Contains(summarize([]byte{1, 2, 3}), "malformed")
}
