package virtio

import "encoding/binary"

// NetHdr precedes every frame on a net device's queues when neither
// mergeable buffers nor version 1 are negotiated.
type NetHdr struct {
	Flags      uint8
	GSOType    uint8
	HdrLen     uint16
	GSOSize    uint16
	CsumStart  uint16
	CsumOffset uint16
}

const NetHdrSize = 10

// NetHdr flags and GSO types.
const (
	NetHdrFNeedsCsum = 1
	NetHdrFDataValid = 2

	NetHdrGSONone  = 0
	NetHdrGSOTCPv4 = 1
	NetHdrGSOUDP   = 3
	NetHdrGSOTCPv6 = 4
)

// Marshal writes h into b, which must hold NetHdrSize bytes.
func (h NetHdr) Marshal(b []byte) {
	_ = b[NetHdrSize-1]
	b[0] = h.Flags
	b[1] = h.GSOType
	binary.LittleEndian.PutUint16(b[2:], h.HdrLen)
	binary.LittleEndian.PutUint16(b[4:], h.GSOSize)
	binary.LittleEndian.PutUint16(b[6:], h.CsumStart)
	binary.LittleEndian.PutUint16(b[8:], h.CsumOffset)
}

func ParseNetHdr(b []byte) NetHdr {
	_ = b[NetHdrSize-1]
	return NetHdr{
		Flags:      b[0],
		GSOType:    b[1],
		HdrLen:     binary.LittleEndian.Uint16(b[2:]),
		GSOSize:    binary.LittleEndian.Uint16(b[4:]),
		CsumStart:  binary.LittleEndian.Uint16(b[6:]),
		CsumOffset: binary.LittleEndian.Uint16(b[8:]),
	}
}
