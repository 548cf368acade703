package macb

import (
	"fmt"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/ethernet"
)

// summarize renders a frame as "src > dst layer/layer/..." for trace logs.
func summarize(frame []byte) string {
	var f ethernet.Frame
	if err := f.UnmarshalBinary(frame); err != nil {
		return fmt.Sprintf("malformed (%s)", err)
	}

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)

	var names []string
	for _, l := range pkt.Layers() {
		names = append(names, l.LayerType().String())
	}

	return fmt.Sprintf("%s > %s %s", f.Source, f.Destination, strings.Join(names, "/"))
}
