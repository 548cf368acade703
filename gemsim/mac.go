// Package gemsim is a software model of a GEM MAC. It implements gem.Bank
// so a driver can be run against it in place of a mapped register window,
// reaching descriptor and buffer memory through the same physical
// addresses the driver programs.
package gemsim

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/davecgh/go-spew/spew"
	"github.com/lab47/gemnet/gem"
	"github.com/lab47/gemnet/pkg/pmap"
	"github.com/lab47/lsvd/logger"
)

// Memory gives the model access to driver memory by local address.
type Memory interface {
	Slice(addr uintptr, n int) ([]byte, bool)
}

// Link carries frames the model transmits.
type Link interface {
	Transmit(frame []byte) error
}

// maxWalk bounds a ring walk when the wrap flag is missing.
const maxWalk = 1024

// defaultRxBufSize is used when the DMA config leaves the buffer size at
// zero.
const defaultRxBufSize = 2048

type MAC struct {
	log logger.Logger
	mem Memory
	rev pmap.Reverser

	mu   sync.Mutex
	regs gem.MemBank
	phy  [32]uint16
	link Link

	txIdx, rxIdx int
}

var _ gem.Bank = (*MAC)(nil)

func New(log logger.Logger, mem Memory, rev pmap.Reverser) *MAC {
	m := &MAC{
		log: log,
		mem: mem,
		rev: rev,
	}

	m.reset()

	return m
}

// SetLink attaches the wire transmitted frames go to. Without one they
// are dropped after being counted.
func (m *MAC) SetLink(l Link) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.link = l
}

func (m *MAC) reset() {
	m.regs = gem.MemBank{}

	m.regs[gem.NWCfg] = 0x00080000
	m.regs[gem.NWStatus] = gem.NWStatusMDIO | gem.NWStatusIdle
	m.regs[gem.DMACfg] = 0x00020784
	m.regs[gem.IMR] = 0x07ffffff
	m.regs[gem.ModID] = gem.ModIDValue
	m.regs[gem.DesConf] = 0x02d00111
	m.regs[gem.DesConf5] = 0x002f2045
	m.regs[gem.DesConf6] = gem.DesConf6Addr64B

	m.phy = [32]uint16{}
	m.phy[gem.PhyRegControl] = 0x1140
	m.phy[gem.PhyRegStatus] = 0x7969 | gem.PhyStatusLink | gem.PhyStatusANegCmpl
	m.phy[gem.PhyRegPhyID1] = 0x0141
	m.phy[gem.PhyRegPhyID2] = 0x0cc2
	m.phy[gem.PhyRegANegAdv] = 0x01e1
	m.phy[gem.PhyRegLinkPAbil] = 0xcde1

	m.txIdx, m.rxIdx = 0, 0
}

func (m *MAC) Read(r gem.Reg) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.regs[r]

	if r == gem.ISR || gem.IsStatistic(r) {
		m.regs[r] = 0
	}

	return v
}

func (m *MAC) Write(r gem.Reg, v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case r == gem.NWCtrl:
		m.writeNWCtrl(v)
	case r == gem.IER:
		m.regs[gem.IMR] &^= v
	case r == gem.IDR:
		m.regs[gem.IMR] |= v
	case r == gem.ISR, r == gem.TxStatus, r == gem.RxStatus:
		m.regs[r] &^= v
	case r == gem.RxQBase, r == gem.RBQPH:
		m.regs[r] = v
		m.rxIdx = 0
	case r == gem.TxQBase, r == gem.TBQPH:
		m.regs[r] = v
		m.txIdx = 0
	case r == gem.PhyMntnc:
		m.writePhy(v)
	case r == gem.IMR, r == gem.ModID, r == gem.NWStatus, gem.IsStatistic(r):
		// read only
	case r >= gem.DesConf && r <= gem.DesConf7:
		// read only
	default:
		m.regs[r] = v
	}
}

func (m *MAC) writeNWCtrl(v uint32) {
	if v&gem.NWCtrlStatClr != 0 {
		for _, c := range gem.Counters {
			m.regs[c.Reg] = 0
			if c.Wide {
				m.regs[c.Reg+1] = 0
			}
		}
	}

	m.regs[gem.NWCtrl] = v &^ (gem.NWCtrlTxStart | gem.NWCtrlStatClr)

	if v&gem.NWCtrlTxEna == 0 {
		m.txIdx = 0
	}

	if v&gem.NWCtrlRxEna == 0 {
		m.rxIdx = 0
	}

	if v&gem.NWCtrlTxStart != 0 && v&gem.NWCtrlTxEna != 0 {
		m.transmit()
	}
}

func (m *MAC) raise(bits uint32) {
	m.regs[gem.ISR] |= bits
}

func (m *MAC) count(r gem.Reg, n uint32) {
	m.regs[r] += n
}

// countOctets adds n to the 64-bit counter whose low half is lo.
func (m *MAC) countOctets(lo gem.Reg, n int) {
	v := uint64(m.regs[lo]) | uint64(m.regs[lo+1])<<32
	v += uint64(n)
	m.regs[lo], m.regs[lo+1] = uint32(v), uint32(v>>32)
}

// sizeCounter returns the frame size bucket register for n bytes, counting
// from the 64 byte bucket at first.
func sizeCounter(first gem.Reg, n int) gem.Reg {
	switch {
	case n <= 64:
		return first
	case n <= 127:
		return first + 1
	case n <= 255:
		return first + 2
	case n <= 511:
		return first + 3
	case n <= 1023:
		return first + 4
	case n <= 1518:
		return first + 5
	default:
		return first + 6
	}
}

// Pending reports whether an unmasked interrupt is raised, as the
// interrupt line would.
func (m *MAC) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.regs[gem.ISR]&^m.regs[gem.IMR] != 0
}

// Dump renders the non-zero registers in register order.
func (m *MAC) Dump() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	type entry struct {
		Reg   string
		Value uint32
	}

	var out []entry
	for i, v := range m.regs {
		if v != 0 {
			out = append(out, entry{Reg: gem.Reg(i).String(), Value: v})
		}
	}

	return spew.Sdump(out)
}

// ringBase returns the physical base of a queue and its descriptor
// stride, which depends on 64-bit addressing.
func (m *MAC) ringBase(lo, hi gem.Reg) (base uint64, stride int) {
	base = uint64(m.regs[lo] & gem.Desc0AddrMask)
	if m.regs[gem.DMACfg]&gem.DMACfgAddr64B != 0 {
		return base | uint64(m.regs[hi])<<32, 16
	}
	return base, 8
}

// desc maps descriptor i of the ring at base.
func (m *MAC) desc(base uint64, stride, i int) (descriptor, bool) {
	b, ok := m.slice(base+uint64(i*stride), stride)
	if !ok {
		return descriptor{}, false
	}
	return descriptor{b: b, wide: stride == 16}, true
}

func (m *MAC) slice(phys uint64, n int) ([]byte, bool) {
	local, ok := m.rev.LocalAddr(phys)
	if !ok {
		return nil, false
	}
	return m.mem.Slice(local, n)
}

type descriptor struct {
	b    []byte
	wide bool
}

func (d descriptor) word(w int) *uint32 {
	return (*uint32)(unsafe.Pointer(&d.b[w*4]))
}

func (d descriptor) load(w int) uint32 {
	return atomic.LoadUint32(d.word(w))
}

func (d descriptor) store(w int, v uint32) {
	atomic.StoreUint32(d.word(w), v)
}

func (d descriptor) addr() uint64 {
	a := uint64(d.load(0) & gem.Desc0AddrMask)
	if d.wide {
		a |= uint64(d.load(2)) << 32
	}
	return a
}
