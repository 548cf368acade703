// Package tap opens Linux TAP interfaces for raw ethernet frame I/O.
package tap

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type Interface struct {
	f    *os.File
	name string
}

// Open attaches to the TAP interface name, creating it if needed. An
// empty name lets the kernel pick one. With persist the interface
// outlives the process.
func Open(name string, persist bool) (*Interface, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "opening /dev/net/tun")
	}

	name, err = setup(fd, name, persist)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "configuring tap %q", name)
	}

	return &Interface{
		f:    os.NewFile(uintptr(fd), "tap:"+name),
		name: name,
	}, nil
}

func setup(fd int, name string, persist bool) (string, error) {
	req, err := unix.NewIfreq(name)
	if err != nil {
		return "", err
	}

	req.SetUint16(unix.IFF_TAP | unix.IFF_NO_PI)

	err = unix.IoctlIfreq(fd, unix.TUNSETIFF, req)
	if err != nil {
		return "", err
	}

	if persist {
		err = unix.IoctlSetInt(fd, unix.TUNSETPERSIST, 1)
		if err != nil {
			return "", err
		}
	}

	return req.Name(), nil
}

func (i *Interface) Name() string {
	return i.name
}

// ReadFrame reads one frame into buf.
func (i *Interface) ReadFrame(buf []byte) (int, error) {
	return i.f.Read(buf)
}

// WriteFrame writes one frame.
func (i *Interface) WriteFrame(frame []byte) error {
	_, err := i.f.Write(frame)
	return err
}

func (i *Interface) Close() error {
	return i.f.Close()
}
