package gem

// Counter describes one statistics register.
type Counter struct {
	Reg  Reg
	Name string

	// Error counters report frames lost or damaged by the MAC.
	Error bool

	// Wide is set on the low half of a 64-bit counter; the high half is
	// the next register.
	Wide bool
}

// Counters lists the statistics bank in register order. The high halves of
// the octet counters are folded into their low entries.
var Counters = []Counter{
	{Reg: OctTxLo, Name: "tx_octets", Wide: true},
	{Reg: TxCnt, Name: "tx_frames"},
	{Reg: TxBCnt, Name: "tx_broadcast"},
	{Reg: TxMCnt, Name: "tx_multicast"},
	{Reg: TxPauseCnt, Name: "tx_pause"},
	{Reg: Tx64Cnt, Name: "tx_64"},
	{Reg: Tx65Cnt, Name: "tx_65_127"},
	{Reg: Tx128Cnt, Name: "tx_128_255"},
	{Reg: Tx256Cnt, Name: "tx_256_511"},
	{Reg: Tx512Cnt, Name: "tx_512_1023"},
	{Reg: Tx1024Cnt, Name: "tx_1024_1518"},
	{Reg: Tx1519Cnt, Name: "tx_1519_max"},
	{Reg: TxURunCnt, Name: "tx_underrun", Error: true},
	{Reg: SingleCollCnt, Name: "tx_single_collision"},
	{Reg: MultCollCnt, Name: "tx_multiple_collision"},
	{Reg: ExcessCollCnt, Name: "tx_excess_collision", Error: true},
	{Reg: LateCollCnt, Name: "tx_late_collision", Error: true},
	{Reg: DeferTxCnt, Name: "tx_deferred"},
	{Reg: CSenseCnt, Name: "tx_carrier_sense", Error: true},
	{Reg: OctRxLo, Name: "rx_octets", Wide: true},
	{Reg: RxCnt, Name: "rx_frames"},
	{Reg: RxBroadCnt, Name: "rx_broadcast"},
	{Reg: RxMultiCnt, Name: "rx_multicast"},
	{Reg: RxPauseCnt, Name: "rx_pause"},
	{Reg: Rx64Cnt, Name: "rx_64"},
	{Reg: Rx65Cnt, Name: "rx_65_127"},
	{Reg: Rx128Cnt, Name: "rx_128_255"},
	{Reg: Rx256Cnt, Name: "rx_256_511"},
	{Reg: Rx512Cnt, Name: "rx_512_1023"},
	{Reg: Rx1024Cnt, Name: "rx_1024_1518"},
	{Reg: Rx1519Cnt, Name: "rx_1519_max"},
	{Reg: RxUnderCnt, Name: "rx_undersize", Error: true},
	{Reg: RxOverCnt, Name: "rx_oversize", Error: true},
	{Reg: RxJabCnt, Name: "rx_jabber", Error: true},
	{Reg: RxFCSCnt, Name: "rx_fcs_error", Error: true},
	{Reg: RxLenErrCnt, Name: "rx_length_error", Error: true},
	{Reg: RxSymErrCnt, Name: "rx_symbol_error", Error: true},
	{Reg: RxAlignErrCnt, Name: "rx_alignment_error", Error: true},
	{Reg: RxRscErrCnt, Name: "rx_resource_error", Error: true},
	{Reg: RxORunCnt, Name: "rx_overrun", Error: true},
	{Reg: RxIPCSErrCnt, Name: "rx_ip_checksum_error", Error: true},
	{Reg: RxTCPCCnt, Name: "rx_tcp_checksum_error", Error: true},
	{Reg: RxUDPCCnt, Name: "rx_udp_checksum_error", Error: true},
}

// IsStatistic reports whether r lies in the statistics bank.
func IsStatistic(r Reg) bool {
	return r >= firstStatistic && r <= lastStatistic
}

// ReadCounter reads c, combining both halves of a wide counter. Reading
// clears the counter in hardware.
func (c Counter) ReadCounter(b Bank) uint64 {
	v := uint64(b.Read(c.Reg))
	if c.Wide {
		v |= uint64(b.Read(c.Reg+1)) << 32
	}
	return v
}
