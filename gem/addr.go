package gem

const hexDigit = "0123456789abcdef"

type HardwareAddr [6]byte

func (a HardwareAddr) String() string {
	buf := make([]byte, 0, (6*2)+5)
	for i, b := range a {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hexDigit[b>>4])
		buf = append(buf, hexDigit[b&0xF])
	}
	return string(buf)
}

// SpecificAddrWords encodes a as the low and high words of a specific
// address filter. Bytes are stored in transmission order starting at the
// least significant byte of the low word.
func (a HardwareAddr) SpecificAddrWords() (lo, hi uint32) {
	lo = uint32(a[0]) | uint32(a[1])<<8 | uint32(a[2])<<16 | uint32(a[3])<<24
	hi = uint32(a[4]) | uint32(a[5])<<8
	return lo, hi
}

// AddrFromSpecificWords is the inverse of SpecificAddrWords.
func AddrFromSpecificWords(lo, hi uint32) HardwareAddr {
	return HardwareAddr{
		byte(lo), byte(lo >> 8), byte(lo >> 16), byte(lo >> 24),
		byte(hi), byte(hi >> 8),
	}
}

// SetSpecificAddr programs a into specific address filter n. The low word
// goes first: hardware disables the filter on a low write and re-enables
// it when the high word is written.
func (r *Regs) SetSpecificAddr(n int, a HardwareAddr) {
	lo, hi := SpecificAddr(n)
	wlo, whi := a.SpecificAddrWords()
	r.Write64(lo, hi, uint64(wlo)|uint64(whi)<<32)
}
