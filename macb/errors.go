package macb

import (
	"fmt"

	"github.com/lab47/gemnet/gem"
	"github.com/pkg/errors"
)

var (
	// ErrNotSupported is returned for operations the device does not
	// provide, such as a doorbell on a queue it does not have.
	ErrNotSupported = errors.New("operation not supported")

	// ErrQueueNotReady is returned for a doorbell on a queue the transport
	// has not attached yet.
	ErrQueueNotReady = errors.New("queue not ready")
)

// HardwareError is a fault the MAC reported in one of its status
// registers. The bits have been acknowledged by the time it is returned.
type HardwareError struct {
	Reg    gem.Reg
	Status uint32
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("gem hardware fault: %s=%#x", e.Reg, e.Status)
}

// IsHardwareError reports whether err was caused by a hardware fault.
func IsHardwareError(err error) bool {
	_, ok := errors.Cause(err).(*HardwareError)
	return ok
}
