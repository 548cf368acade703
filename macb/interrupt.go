package macb

import (
	"github.com/lab47/gemnet/gem"
	"github.com/pkg/errors"
)

// notifyInterrupts are the causes the guest is told about.
const notifyInterrupts = gem.IntTxCmpl | gem.IntRxCmpl | gem.IntTxUsed | gem.IntRxUsed

// Interrupt reads and acknowledges the MAC's interrupt status, services
// what it reports, and returns whether a guest-relevant cause was pending.
// Masked causes are ignored.
func (d *Driver) Interrupt() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	isr := d.regs.Read(gem.ISR)
	pending := isr &^ d.regs.Read(gem.IMR)

	if pending == 0 {
		return false
	}

	d.regs.Write(gem.ISR, pending)

	if d.log.IsTrace() {
		d.log.Trace("gem interrupt", "isr", isr, "pending", pending)
	}

	if pending&gem.IntErrors != 0 {
		d.serviceErrors(pending)
	}

	if pending&gem.IntRxCmpl != 0 {
		d.service(RxQueue, d.receive())
	}

	if pending&(gem.IntTxCmpl|gem.IntTxUsed) != 0 {
		d.regs.Write(gem.TxStatus, gem.TxStatusTxCmpl|gem.TxStatusUsed)
		d.service(TxQueue, d.transmit())
	}

	return pending&notifyInterrupts != 0
}

func (d *Driver) service(idx int, err error) {
	if err == nil || errors.Cause(err) == ErrQueueNotReady {
		return
	}

	d.log.Error("error servicing queue", "queue", idx, "error", err)
}

// serviceErrors acknowledges error status bits and logs the counters that
// moved.
func (d *Driver) serviceErrors(pending uint32) {
	if st := d.regs.Read(gem.TxStatus) & (txFaults | gem.TxStatusURun | gem.TxStatusRetryLim); st != 0 {
		d.regs.Write(gem.TxStatus, st)
		d.log.Error("tx error", "error", &HardwareError{Reg: gem.TxStatus, Status: st})
	}

	if st := d.regs.Read(gem.RxStatus) & (gem.RxStatusOverrun | gem.RxStatusHResp); st != 0 {
		d.regs.Write(gem.RxStatus, st)
		d.log.Error("rx error", "error", &HardwareError{Reg: gem.RxStatus, Status: st})
	}

	d.pollStats()
}
