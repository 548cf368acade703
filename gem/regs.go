// Package gem describes the register layout of the Cadence Gigabit
// Ethernet MAC (GEM).
//
// Register values follow QEMU's hw/net/cadence_gem.c and the Linux macb
// driver. Every register is addressed by its 32-bit word index, i.e. the
// byte offset in the register window divided by four.
package gem

import "fmt"

// Reg is the word index of a GEM register.
type Reg uint32

// NumRegs is the size of the register window in 32-bit words.
const NumRegs = 0x800 / 4

// Offset returns the byte offset of r in the register window.
func (r Reg) Offset() uint32 {
	return uint32(r) * 4
}

func (r Reg) String() string {
	if name, ok := regNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reg(%#x)", r.Offset())
}

// Control, configuration and status.
const (
	NWCtrl      Reg = 0x000 / 4 // network control
	NWCfg       Reg = 0x004 / 4 // network config
	NWStatus    Reg = 0x008 / 4 // network status
	UserIO      Reg = 0x00c / 4 // user IO
	DMACfg      Reg = 0x010 / 4 // DMA control
	TxStatus    Reg = 0x014 / 4 // transmit status
	RxQBase     Reg = 0x018 / 4 // receive queue base address, low word
	TxQBase     Reg = 0x01c / 4 // transmit queue base address, low word
	RxStatus    Reg = 0x020 / 4 // receive status
	ISR         Reg = 0x024 / 4 // interrupt status
	IER         Reg = 0x028 / 4 // interrupt enable
	IDR         Reg = 0x02c / 4 // interrupt disable
	IMR         Reg = 0x030 / 4 // interrupt mask
	PhyMntnc    Reg = 0x034 / 4 // PHY maintenance
	RxPause     Reg = 0x038 / 4 // receive pause time
	TxPause     Reg = 0x03c / 4 // transmit pause time
	TxPartialSF Reg = 0x040 / 4 // transmit partial store and forward
	RxPartialSF Reg = 0x044 / 4 // receive partial store and forward
)

// Address filtering.
const (
	HashLo     Reg = 0x080 / 4
	HashHi     Reg = 0x084 / 4
	SpAddr1Lo  Reg = 0x088 / 4
	SpAddr1Hi  Reg = 0x08c / 4
	SpAddr2Lo  Reg = 0x090 / 4
	SpAddr2Hi  Reg = 0x094 / 4
	SpAddr3Lo  Reg = 0x098 / 4
	SpAddr3Hi  Reg = 0x09c / 4
	SpAddr4Lo  Reg = 0x0a0 / 4
	SpAddr4Hi  Reg = 0x0a4 / 4
	TIDMatch1  Reg = 0x0a8 / 4
	TIDMatch2  Reg = 0x0ac / 4
	TIDMatch3  Reg = 0x0b0 / 4
	TIDMatch4  Reg = 0x0b4 / 4
	WoLAN      Reg = 0x0b8 / 4
	IPGStretch Reg = 0x0bc / 4
	SVLAN      Reg = 0x0c0 / 4
	ModID      Reg = 0x0fc / 4
)

// NumSpecificAddrs is the number of specific address filter pairs.
const NumSpecificAddrs = 4

// SpecificAddr returns the low and high registers of specific address
// filter n, counting from 1.
func SpecificAddr(n int) (lo, hi Reg) {
	if n < 1 || n > NumSpecificAddrs {
		panic(fmt.Sprintf("gem: bad specific address %d", n))
	}
	lo = SpAddr1Lo + Reg(n-1)*2
	return lo, lo + 1
}

// Statistics counters. All counters clear on read.
const (
	OctTxLo        Reg = 0x100 / 4 // octets transmitted, low
	OctTxHi        Reg = 0x104 / 4 // octets transmitted, high
	TxCnt          Reg = 0x108 / 4 // error-free frames transmitted
	TxBCnt         Reg = 0x10c / 4 // error-free broadcast frames
	TxMCnt         Reg = 0x110 / 4 // error-free multicast frames
	TxPauseCnt     Reg = 0x114 / 4 // pause frames transmitted
	Tx64Cnt        Reg = 0x118 / 4
	Tx65Cnt        Reg = 0x11c / 4
	Tx128Cnt       Reg = 0x120 / 4
	Tx256Cnt       Reg = 0x124 / 4
	Tx512Cnt       Reg = 0x128 / 4
	Tx1024Cnt      Reg = 0x12c / 4
	Tx1519Cnt      Reg = 0x130 / 4
	TxURunCnt      Reg = 0x134 / 4 // transmit underrun
	SingleCollCnt  Reg = 0x138 / 4
	MultCollCnt    Reg = 0x13c / 4
	ExcessCollCnt  Reg = 0x140 / 4
	LateCollCnt    Reg = 0x144 / 4
	DeferTxCnt     Reg = 0x148 / 4
	CSenseCnt      Reg = 0x14c / 4 // carrier sense errors
	OctRxLo        Reg = 0x150 / 4 // octets received, low
	OctRxHi        Reg = 0x154 / 4 // octets received, high
	RxCnt          Reg = 0x158 / 4 // error-free frames received
	RxBroadCnt     Reg = 0x15c / 4
	RxMultiCnt     Reg = 0x160 / 4
	RxPauseCnt     Reg = 0x164 / 4
	Rx64Cnt        Reg = 0x168 / 4
	Rx65Cnt        Reg = 0x16c / 4
	Rx128Cnt       Reg = 0x170 / 4
	Rx256Cnt       Reg = 0x174 / 4
	Rx512Cnt       Reg = 0x178 / 4
	Rx1024Cnt      Reg = 0x17c / 4
	Rx1519Cnt      Reg = 0x180 / 4
	RxUnderCnt     Reg = 0x184 / 4 // undersize frames
	RxOverCnt      Reg = 0x188 / 4 // oversize frames
	RxJabCnt       Reg = 0x18c / 4 // jabbers
	RxFCSCnt       Reg = 0x190 / 4 // frame check sequence errors
	RxLenErrCnt    Reg = 0x194 / 4 // length field errors
	RxSymErrCnt    Reg = 0x198 / 4 // symbol errors
	RxAlignErrCnt  Reg = 0x19c / 4 // alignment errors
	RxRscErrCnt    Reg = 0x1a0 / 4 // receive resource errors
	RxORunCnt      Reg = 0x1a4 / 4 // receive overrun
	RxIPCSErrCnt   Reg = 0x1a8 / 4 // IP header checksum errors
	RxTCPCCnt      Reg = 0x1ac / 4 // TCP checksum errors
	RxUDPCCnt      Reg = 0x1b0 / 4 // UDP checksum errors
	firstStatistic     = OctTxLo
	lastStatistic      = RxUDPCCnt
)

// IEEE 1588 timer and PTP timestamps. The peer frame registers share the
// offsets of the event frame registers.
const (
	Timer1588S   Reg = 0x1d0 / 4
	Timer1588NS  Reg = 0x1d4 / 4
	Timer1588Adj Reg = 0x1d8 / 4
	Timer1588Inc Reg = 0x1dc / 4
	PTPETxS      Reg = 0x1e0 / 4
	PTPETxNS     Reg = 0x1e4 / 4
	PTPERxS      Reg = 0x1e8 / 4
	PTPERxNS     Reg = 0x1ec / 4
	PTPPTxS      Reg = 0x1e0 / 4
	PTPPTxNS     Reg = 0x1e4 / 4
	PTPPRxS      Reg = 0x1e8 / 4
	PTPPRxNS     Reg = 0x1ec / 4
)

// Design configuration (read-only capability) registers.
const (
	DesConf  Reg = 0x280 / 4
	DesConf2 Reg = 0x284 / 4
	DesConf3 Reg = 0x288 / 4
	DesConf4 Reg = 0x28c / 4
	DesConf5 Reg = 0x290 / 4
	DesConf6 Reg = 0x294 / 4
	DesConf7 Reg = 0x298 / 4
)

// Upper 32 bits of the queue base addresses when 64-bit addressing is
// enabled. Shared by all queues.
const (
	TBQPH Reg = 0x4c8 / 4
	RBQPH Reg = 0x4d4 / 4
)

// NumQueues is the number of hardware priority queues. Queue 0 uses the
// base registers above, queues 1 to 7 have their own banks.
const NumQueues = 8

const (
	intQ1Status  Reg = 0x400 / 4
	txQ1Ptr      Reg = 0x440 / 4
	rxQ1Ptr      Reg = 0x480 / 4
	intQ1Enable  Reg = 0x600 / 4
	intQ1Disable Reg = 0x620 / 4
	intQ1Mask    Reg = 0x640 / 4
)

func queueReg(base Reg, q int) Reg {
	if q < 1 || q >= NumQueues {
		panic(fmt.Sprintf("gem: bad priority queue %d", q))
	}
	return base + Reg(q-1)
}

// IntQStatus returns the interrupt status register of priority queue q.
func IntQStatus(q int) Reg { return queueReg(intQ1Status, q) }

// TxQPtr returns the transmit base address register of priority queue q.
func TxQPtr(q int) Reg { return queueReg(txQ1Ptr, q) }

// RxQPtr returns the receive base address register of priority queue q.
func RxQPtr(q int) Reg { return queueReg(rxQ1Ptr, q) }

// IntQEnable returns the interrupt enable register of priority queue q.
func IntQEnable(q int) Reg { return queueReg(intQ1Enable, q) }

// IntQDisable returns the interrupt disable register of priority queue q.
func IntQDisable(q int) Reg { return queueReg(intQ1Disable, q) }

// IntQMask returns the interrupt mask register of priority queue q.
func IntQMask(q int) Reg { return queueReg(intQ1Mask, q) }

// Screening filters.
const (
	screeningType1   Reg = 0x500 / 4
	screeningType2   Reg = 0x540 / 4
	type2Ethertype   Reg = 0x6e0 / 4
	type2CompareWord Reg = 0x700 / 4

	NumScreeningType1 = 16
	NumScreeningType2 = 16
	NumType2Ethertype = 8
	NumType2Compare   = 32
)

func tableReg(base Reg, n, max, stride int) Reg {
	if n < 0 || n >= max {
		panic(fmt.Sprintf("gem: bad table index %d for %s", n, base))
	}
	return base + Reg(n*stride)
}

// ScreeningType1 returns type 1 screening register n.
func ScreeningType1(n int) Reg { return tableReg(screeningType1, n, NumScreeningType1, 1) }

// ScreeningType2 returns type 2 screening register n.
func ScreeningType2(n int) Reg { return tableReg(screeningType2, n, NumScreeningType2, 1) }

// Type2Ethertype returns ethertype compare register n.
func Type2Ethertype(n int) Reg { return tableReg(type2Ethertype, n, NumType2Ethertype, 1) }

// Type2Compare returns word 0 of compare entry n. Word 1 follows it.
func Type2Compare(n int) Reg { return tableReg(type2CompareWord, n, NumType2Compare, 2) }

var regNames = map[Reg]string{
	NWCtrl:   "nwctrl",
	NWCfg:    "nwcfg",
	NWStatus: "nwstatus",
	DMACfg:   "dmacfg",
	TxStatus: "txstatus",
	RxQBase:  "rxqbase",
	TxQBase:  "txqbase",
	RxStatus: "rxstatus",
	ISR:      "isr",
	IER:      "ier",
	IDR:      "idr",
	IMR:      "imr",
	PhyMntnc: "phymntnc",
	TBQPH:    "tbqph",
	RBQPH:    "rbqph",
	DesConf6: "desconf6",
	ModID:    "modid",
}

func init() {
	for _, c := range Counters {
		regNames[c.Reg] = c.Name
	}
	for n := 1; n <= NumSpecificAddrs; n++ {
		lo, hi := SpecificAddr(n)
		regNames[lo] = fmt.Sprintf("spaddr%dlo", n)
		regNames[hi] = fmt.Sprintf("spaddr%dhi", n)
	}
}
