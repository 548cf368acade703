package gem

import (
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// MapBank is a register window mapped from a device file, such as a UIO
// node or /dev/mem.
type MapBank struct {
	data []byte
	regs *[NumRegs]uint32
}

// OpenMapBank maps the register window at offset of path.
func OpenMapBank(path string, offset int64) (*MapBank, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "opening register window %s", path)
	}

	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), offset, NumRegs*4, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping register window %s at %#x", path, offset)
	}

	return &MapBank{
		data: data,
		regs: (*[NumRegs]uint32)(unsafe.Pointer(&data[0])),
	}, nil
}

func (m *MapBank) Read(r Reg) uint32 {
	return atomic.LoadUint32(&m.regs[r])
}

func (m *MapBank) Write(r Reg, v uint32) {
	atomic.StoreUint32(&m.regs[r], v)
}

func (m *MapBank) Close() error {
	m.regs = nil
	return unix.Munmap(m.data)
}
