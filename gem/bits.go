package gem

// NWCtrl bits.
const (
	NWCtrlLocalLoop = 1 << 1
	NWCtrlRxEna     = 1 << 2
	NWCtrlTxEna     = 1 << 3
	NWCtrlStatClr   = 1 << 5 // clear statistics
	NWCtrlTxStart   = 1 << 9 // self-clearing transmit strobe
)

// NWStatus bits.
const (
	NWStatusMDIO = 1 << 1
	NWStatusIdle = 1 << 2 // PHY management idle
)

// NWCfg bits.
const (
	NWCfgPromisc   = 1 << 4  // accept all frames
	NWCfgBcastRej  = 1 << 5  // reject broadcast frames
	NWCfgMcastHash = 1 << 6  // accept multicast on hash match
	NWCfgUcastHash = 1 << 7  // accept unicast on hash match
	NWCfgLErrDisc  = 1 << 16 // discard frames with length errors
	NWCfgStripFCS  = 1 << 17
)

// DMACfg bits.
const (
	DMACfgTxCsumOffl = 1 << 11
	DMACfgRxBDExt    = 1 << 28
	DMACfgTxBDExt    = 1 << 29
	DMACfgAddr64B    = 1 << 30

	// DMACfgRxBufSizeMul is the unit of the DMACfgRxBufSize field.
	DMACfgRxBufSizeMul = 64
)

// DesConf6 bits.
const DesConf6Addr64B = 1 << 23

// TxStatus bits. Write one to clear.
const (
	TxStatusUsed     = 1 << 0 // software owned descriptor encountered
	TxStatusCollison = 1 << 1
	TxStatusRetryLim = 1 << 2
	TxStatusGo       = 1 << 3
	TxStatusAHBErr   = 1 << 4 // frame corrupted by AHB error
	TxStatusTxCmpl   = 1 << 5
	TxStatusURun     = 1 << 6
	TxStatusHResp    = 1 << 8 // HRESP not OK
)

// RxStatus bits. Write one to clear.
const (
	RxStatusNoBuf   = 1 << 0 // buffer not available
	RxStatusFrmRcvd = 1 << 1
	RxStatusOverrun = 1 << 2
	RxStatusHResp   = 1 << 3
)

// Interrupt bits shared by ISR, IER, IDR and IMR.
const (
	IntMgmtDone = 1 << 0
	IntRxCmpl   = 1 << 1
	IntRxUsed   = 1 << 2
	IntTxUsed   = 1 << 3
	IntTxURun   = 1 << 4
	IntRetryLim = 1 << 5
	IntAHBErr   = 1 << 6
	IntTxCmpl   = 1 << 7
	IntLinkChg  = 1 << 9
	IntRxORun   = 1 << 10
	IntHResp    = 1 << 11

	// IntErrors are the bits reporting frame or DMA errors.
	IntErrors = IntTxURun | IntRetryLim | IntAHBErr | IntRxORun | IntHResp
)

// PhyMntnc operation codes, shifted into place.
const (
	PhyMntncOpW = 0x10000000
	PhyMntncOpR = 0x20000000
)

// ModIDValue is the module ID reported by the revision QEMU models.
const ModIDValue = 0x00020118

// Descriptor bits. Word 0 carries the buffer address, whose two low bits
// are reused as receive flags.
const (
	Desc0RxOwnership = 1 << 0 // set by hardware when it filled the buffer
	Desc0RxWrap      = 1 << 1
	Desc0AddrMask    = ^uint32(3)

	Desc1Length = 0x00001fff

	Desc1RxSOF           = 1 << 14
	Desc1RxEOF           = 1 << 15
	Desc1RxSARMatch      = 1 << 27
	Desc1RxUnicastHash   = 1 << 29
	Desc1RxMulticastHash = 1 << 30
	Desc1RxBroadcast     = 1 << 31

	Desc1TxLast = 1 << 15
	Desc1TxWrap = 1 << 30
	Desc1Used   = 1 << 31
)

// Marvell PHY registers of the PHY QEMU emulates.
const (
	BoardPhyAddress = 23

	PhyRegControl         = 0
	PhyRegStatus          = 1
	PhyRegPhyID1          = 2
	PhyRegPhyID2          = 3
	PhyRegANegAdv         = 4
	PhyRegLinkPAbil       = 5
	PhyRegANegExp         = 6
	PhyRegNextP           = 7
	PhyRegLinkPNextP      = 8
	PhyReg100BTCtrl       = 9
	PhyReg1000BTStat      = 10
	PhyRegExtStat         = 15
	PhyRegPhySpcfcCtl     = 16
	PhyRegPhySpcfcSt      = 17
	PhyRegIntEn           = 18
	PhyRegIntSt           = 19
	PhyRegExtPhySpcfcCtl  = 20
	PhyRegRxErr           = 21
	PhyRegEACD            = 22
	PhyRegLED             = 24
	PhyRegLEDOvrd         = 25
	PhyRegExtPhySpcfcCtl2 = 26
	PhyRegExtPhySpcfcSt   = 27
	PhyRegCableDiag       = 28

	PhyControlRst  = 0x8000
	PhyControlLoop = 0x4000
	PhyControlANeg = 0x1000

	PhyStatusLink     = 0x0004
	PhyStatusANegCmpl = 0x0020

	PhyIntStANegCmpl = 0x0800
	PhyIntStLinkC    = 0x0400
	PhyIntStEnergy   = 0x0010
)
