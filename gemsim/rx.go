package gemsim

import (
	"github.com/lab47/gemnet/gem"
)

// rxBufSize returns the receive buffer size the DMA config selects.
func (m *MAC) rxBufSize() int {
	n := int(gem.DMACfgRxBufSize.Get(m.regs[gem.DMACfg])) * gem.DMACfgRxBufSizeMul
	if n == 0 {
		return defaultRxBufSize
	}
	return n
}

// Receive passes frame through the address filter and writes it into the
// rx ring. It reports whether the frame was stored.
func (m *MAC) Receive(frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.regs[gem.NWCtrl]&gem.NWCtrlRxEna == 0 {
		return false
	}

	res, ok := m.filter(frame)
	if !ok {
		if m.log.IsTrace() {
			m.log.Trace("simulated receive filtered", "len", len(frame))
		}
		return false
	}

	base, stride := m.ringBase(gem.RxQBase, gem.RBQPH)
	bufSize := m.rxBufSize()
	need := (len(frame) + bufSize - 1) / bufSize

	// every descriptor the frame needs must be free before any is used
	descs := make([]descriptor, 0, need)
	idx := m.rxIdx
	for k := 0; k < need; k++ {
		d, ok := m.desc(base, stride, idx)
		if !ok {
			m.fault(gem.RxStatus, gem.RxStatusHResp, gem.IntHResp)
			return false
		}

		if d.load(0)&gem.Desc0RxOwnership != 0 {
			m.regs[gem.RxStatus] |= gem.RxStatusNoBuf
			m.count(gem.RxRscErrCnt, 1)
			m.raise(gem.IntRxUsed)
			return false
		}

		descs = append(descs, d)

		if d.load(0)&gem.Desc0RxWrap != 0 {
			idx = 0
		} else {
			idx++
		}
	}

	rest := frame
	for k, d := range descs {
		chunk := rest[:min(len(rest), bufSize)]
		rest = rest[len(chunk):]

		buf, ok := m.slice(d.addr(), len(chunk))
		if !ok {
			m.fault(gem.RxStatus, gem.RxStatusHResp, gem.IntHResp)
			return false
		}
		copy(buf, chunk)

		var status uint32
		if k == 0 {
			status |= gem.Desc1RxSOF
		}

		if k == len(descs)-1 {
			status |= gem.Desc1RxEOF
			status = gem.Desc1Len.Set(status, uint32(len(frame)))
			status |= res.status()
		}

		d.store(1, status)
		d.store(0, d.load(0)|gem.Desc0RxOwnership)
	}

	m.rxIdx = idx

	m.count(gem.RxCnt, 1)
	m.count(sizeCounter(gem.Rx64Cnt, len(frame)), 1)
	m.countOctets(gem.OctRxLo, len(frame))

	switch {
	case res.broadcast:
		m.count(gem.RxBroadCnt, 1)
	case res.multicast:
		m.count(gem.RxMultiCnt, 1)
	}

	m.regs[gem.RxStatus] |= gem.RxStatusFrmRcvd
	m.raise(gem.IntRxCmpl)

	if m.log.IsTrace() {
		m.log.Trace("simulated receive", "len", len(frame), "descs", need, "index", m.rxIdx)
	}

	return true
}
