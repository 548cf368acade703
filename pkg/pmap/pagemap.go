package pmap

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	pagemapPresent = 1 << 63
	pagemapPFNMask = (1 << 55) - 1
)

// Pagemap translates addresses of the current process through
// /proc/self/pagemap. Memory must be pinned before it is translated;
// reading PFNs requires CAP_SYS_ADMIN.
type Pagemap struct {
	path     string
	pageSize uintptr

	mu     sync.Mutex
	frames map[uintptr]uint64
}

func NewPagemap() *Pagemap {
	return &Pagemap{
		path:     "/proc/self/pagemap",
		pageSize: uintptr(unix.Getpagesize()),
		frames:   make(map[uintptr]uint64),
	}
}

// Pin locks buf into memory and resolves the physical frame of every page
// it spans.
func (p *Pagemap) Pin(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	err := unix.Mlock(buf)
	if err != nil {
		return errors.Wrapf(err, "locking %d bytes", len(buf))
	}

	f, err := os.Open(p.path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", p.path)
	}

	defer f.Close()

	start := localOf(buf) &^ (p.pageSize - 1)
	end := localOf(buf) + uintptr(len(buf))

	p.mu.Lock()
	defer p.mu.Unlock()

	var ent [8]byte

	for page := start; page < end; page += p.pageSize {
		_, err := f.ReadAt(ent[:], int64(page/p.pageSize)*8)
		if err != nil {
			return errors.Wrapf(err, "reading pagemap entry for %#x", page)
		}

		v := binary.NativeEndian.Uint64(ent[:])
		if v&pagemapPresent == 0 {
			return fmt.Errorf("page %#x not present", page)
		}

		pfn := v & pagemapPFNMask
		if pfn == 0 {
			return fmt.Errorf("page %#x has no visible frame number (missing CAP_SYS_ADMIN?)", page)
		}

		p.frames[page] = pfn * uint64(p.pageSize)
	}

	return nil
}

// PhysAddr translates an address inside pinned memory. Translating
// anything else is a programming error.
func (p *Pagemap) PhysAddr(local uintptr) uint64 {
	page := local &^ (p.pageSize - 1)

	p.mu.Lock()
	frame, ok := p.frames[page]
	p.mu.Unlock()

	if !ok {
		panic(fmt.Sprintf("pmap: address %#x was not pinned", local))
	}

	return frame + uint64(local-page)
}
