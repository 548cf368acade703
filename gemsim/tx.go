package gemsim

import (
	"github.com/lab47/gemnet/gem"
	"github.com/mdlayher/ethernet"
)

// transmit sends frames from the tx ring, starting where the last
// transmission stopped, until it finds a descriptor software owns.
func (m *MAC) transmit() {
	base, stride := m.ringBase(gem.TxQBase, gem.TBQPH)

	m.regs[gem.TxStatus] |= gem.TxStatusGo
	defer func() {
		m.regs[gem.TxStatus] &^= gem.TxStatusGo
	}()

	for walked := 0; walked < maxWalk; {
		first, ok := m.desc(base, stride, m.txIdx)
		if !ok {
			m.fault(gem.TxStatus, gem.TxStatusHResp, gem.IntHResp)
			return
		}

		if first.load(1)&gem.Desc1Used != 0 {
			m.regs[gem.TxStatus] |= gem.TxStatusUsed
			m.raise(gem.IntTxUsed)
			return
		}

		var frame []byte

		for {
			d, ok := m.desc(base, stride, m.txIdx)
			if !ok {
				m.fault(gem.TxStatus, gem.TxStatusHResp, gem.IntHResp)
				return
			}

			ctrl := d.load(1)
			if ctrl&gem.Desc1Used != 0 {
				// ran into a software owned descriptor mid-frame
				m.regs[gem.TxStatus] |= gem.TxStatusURun
				m.count(gem.TxURunCnt, 1)
				m.raise(gem.IntTxURun)
				return
			}

			buf, ok := m.slice(d.addr(), int(gem.Desc1Len.Get(ctrl)))
			if !ok {
				m.fault(gem.TxStatus, gem.TxStatusAHBErr, gem.IntAHBErr)
				return
			}

			frame = append(frame, buf...)

			if ctrl&gem.Desc1TxWrap != 0 {
				m.txIdx = 0
			} else {
				m.txIdx++
			}
			walked++

			if ctrl&gem.Desc1TxLast != 0 {
				break
			}

			if walked >= maxWalk {
				m.fault(gem.TxStatus, gem.TxStatusAHBErr, gem.IntAHBErr)
				return
			}
		}

		first.store(1, first.load(1)|gem.Desc1Used)

		m.sent(frame)

		m.regs[gem.TxStatus] |= gem.TxStatusTxCmpl
		m.raise(gem.IntTxCmpl)
	}
}

func (m *MAC) fault(r gem.Reg, status, intr uint32) {
	m.log.Error("simulated dma fault", "reg", r.String(), "status", status)
	m.regs[r] |= status
	m.raise(intr)
}

func (m *MAC) sent(frame []byte) {
	m.count(gem.TxCnt, 1)
	m.count(sizeCounter(gem.Tx64Cnt, len(frame)), 1)
	m.countOctets(gem.OctTxLo, len(frame))

	var f ethernet.Frame
	if err := f.UnmarshalBinary(frame); err == nil {
		switch {
		case isBroadcast(f.Destination):
			m.count(gem.TxBCnt, 1)
		case f.Destination[0]&1 != 0:
			m.count(gem.TxMCnt, 1)
		}
	}

	if m.log.IsTrace() {
		m.log.Trace("simulated transmit", "len", len(frame), "index", m.txIdx)
	}

	if m.link == nil {
		return
	}

	if err := m.link.Transmit(frame); err != nil {
		m.log.Error("error transmitting frame", "error", err)
	}
}
