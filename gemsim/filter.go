package gemsim

import (
	"bytes"
	"net"

	"github.com/lab47/gemnet/gem"
	"github.com/mdlayher/ethernet"
)

type filterResult struct {
	broadcast bool
	multicast bool
	hash      bool
	sar       int // specific address that matched, 0 for none
}

// status returns the descriptor word 1 bits reporting the match.
func (r filterResult) status() uint32 {
	var v uint32

	if r.broadcast {
		v |= gem.Desc1RxBroadcast
	}

	if r.sar != 0 {
		v |= gem.Desc1RxSARMatch
		v = gem.Desc1RxSAR.Set(v, uint32(r.sar-1))
	}

	if r.hash {
		if r.multicast {
			v |= gem.Desc1RxMulticastHash
		} else {
			v |= gem.Desc1RxUnicastHash
		}
	}

	return v
}

func isBroadcast(a net.HardwareAddr) bool {
	return bytes.Equal(a, ethernet.Broadcast)
}

// hashIndex folds a 48-bit destination into the 6-bit index of the hash
// filter: bit i of the index is the xor of every sixth address bit
// starting at i.
func hashIndex(a net.HardwareAddr) uint {
	var idx uint
	for bit := 0; bit < 48; bit++ {
		if a[bit/8]>>(bit%8)&1 != 0 {
			idx ^= 1 << (bit % 6)
		}
	}
	return idx
}

func (m *MAC) hashMatch(a net.HardwareAddr) bool {
	h := uint64(m.regs[gem.HashLo]) | uint64(m.regs[gem.HashHi])<<32
	return h>>hashIndex(a)&1 != 0
}

// filter applies the receive address filter to frame.
func (m *MAC) filter(frame []byte) (filterResult, bool) {
	var res filterResult

	var f ethernet.Frame
	if err := f.UnmarshalBinary(frame); err != nil {
		m.count(gem.RxUnderCnt, 1)
		return res, false
	}

	dst := f.Destination
	cfg := m.regs[gem.NWCfg]

	res.broadcast = isBroadcast(dst)
	res.multicast = !res.broadcast && dst[0]&1 != 0

	for n := 1; n <= gem.NumSpecificAddrs; n++ {
		lo, hi := gem.SpecificAddr(n)
		if m.regs[lo] == 0 && m.regs[hi] == 0 {
			continue
		}

		sa := gem.AddrFromSpecificWords(m.regs[lo], m.regs[hi])
		if bytes.Equal(sa[:], dst) {
			res.sar = n
			break
		}
	}

	switch {
	case res.broadcast:
		if cfg&gem.NWCfgBcastRej == 0 {
			return res, true
		}
	case res.multicast:
		if cfg&gem.NWCfgMcastHash != 0 && m.hashMatch(dst) {
			res.hash = true
			return res, true
		}
	default:
		if res.sar != 0 {
			return res, true
		}
		if cfg&gem.NWCfgUcastHash != 0 && m.hashMatch(dst) {
			res.hash = true
			return res, true
		}
	}

	return res, cfg&gem.NWCfgPromisc != 0
}
