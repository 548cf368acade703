package gemsim

import (
	"github.com/lab47/gemnet/gem"
)

// writePhy runs a PHY maintenance operation against the modeled PHY. Only
// the board PHY address answers; reads from other addresses return all
// ones.
func (m *MAC) writePhy(v uint32) {
	addr := uint8(gem.PhyMntncAddr.Get(v))
	reg := uint8(gem.PhyMntncReg.Get(v))
	op := v & (gem.PhyMntncOpW | gem.PhyMntncOpR)

	switch op {
	case gem.PhyMntncOpR:
		data := uint16(0xffff)
		if addr == gem.BoardPhyAddress {
			data = m.phy[reg]
		}
		v = gem.PhyMntncData.Set(v, uint32(data))
	case gem.PhyMntncOpW:
		if addr == gem.BoardPhyAddress {
			m.writePhyReg(reg, gem.PhyData(v))
		}
	}

	m.regs[gem.PhyMntnc] = v
	m.raise(gem.IntMgmtDone)
}

func (m *MAC) writePhyReg(reg uint8, data uint16) {
	switch reg {
	case gem.PhyRegControl:
		data &^= gem.PhyControlRst // self-clearing
		if data&gem.PhyControlANeg != 0 {
			m.phy[gem.PhyRegStatus] |= gem.PhyStatusANegCmpl
			m.phy[gem.PhyRegIntSt] |= gem.PhyIntStANegCmpl
		}
		m.phy[reg] = data
	case gem.PhyRegStatus, gem.PhyRegPhyID1, gem.PhyRegPhyID2:
		// read only
	default:
		m.phy[reg] = data
	}
}
