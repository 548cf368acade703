package gem

// Field is a multi-bit sub-field of a register.
type Field struct {
	Shift uint
	Width uint
}

// Mask returns the field's bits in register position.
func (f Field) Mask() uint32 {
	return uint32((uint64(1)<<f.Width)-1) << f.Shift
}

// Get extracts the field from v.
func (f Field) Get(v uint32) uint32 {
	return (v >> f.Shift) & uint32((uint64(1)<<f.Width)-1)
}

// Set returns v with the field replaced by x. Bits of x beyond the field
// width are dropped.
func (f Field) Set(v, x uint32) uint32 {
	return (v &^ f.Mask()) | ((x << f.Shift) & f.Mask())
}

// span builds a field from an inclusive bit range.
func span(hi, lo uint) Field {
	return Field{Shift: lo, Width: hi - lo + 1}
}

var (
	NWCfgBuffOffset = span(15, 14) // receive buffer offset
	NWCfgMDCClk     = span(20, 18)
	DMACfgRxBufSize = span(23, 16) // in units of DMACfgRxBufSizeMul

	PhyMntncData     = span(15, 0)
	PhyMntncMust10   = span(17, 16)
	PhyMntncReg      = span(22, 18)
	PhyMntncAddr     = span(27, 23)
	PhyMntncOp       = span(29, 28)
	PhyMntncClause22 = span(31, 30)

	ST1RQueue         = span(3, 0)
	ST1RDSTCMatch     = span(11, 4)
	ST1RUDPPortMatch  = span(27, 12)
	ST1RDSTCEnable    = span(28, 28)
	ST1RUDPPortEnable = span(29, 29)

	ST2RQueue          = span(3, 0)
	ST2REthertypeIndex = span(11, 9)
	ST2REthertypeEna   = span(12, 12)
	ST2RCompareA       = span(17, 13)
	ST2RCompareAEna    = span(18, 18)

	T2CW1OffsetValue   = span(6, 0)
	T2CW1CompareOffset = span(8, 7)

	Desc1RxSAR = span(26, 25) // which specific address matched
	Desc1Len   = span(12, 0)
)

// PhyMaintenance composes a clause 22 PHY maintenance word.
func PhyMaintenance(op uint32, phy, reg uint8, data uint16) uint32 {
	var v uint32
	v = PhyMntncClause22.Set(v, 1)
	v = PhyMntncOp.Set(v, op>>PhyMntncOp.Shift)
	v = PhyMntncAddr.Set(v, uint32(phy))
	v = PhyMntncReg.Set(v, uint32(reg))
	v = PhyMntncMust10.Set(v, 2)
	return PhyMntncData.Set(v, uint32(data))
}

// PhyData extracts the data half of a PHY maintenance word.
func PhyData(v uint32) uint16 {
	return uint16(PhyMntncData.Get(v))
}
