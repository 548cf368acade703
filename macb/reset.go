package macb

import (
	"github.com/lab47/gemnet/gem"
)

// guestInterrupts are the interrupt causes the driver acts on.
const guestInterrupts = gem.IntTxCmpl | gem.IntRxCmpl | gem.IntTxUsed | gem.IntRxUsed | gem.IntErrors

// Reset reprograms the MAC from scratch: DMA configuration, both ring base
// registers, every descriptor, the address filter and the interrupt mask.
// Buffers and rings are reused.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.regs.AndNot(gem.NWCtrl, gem.NWCtrlRxEna|gem.NWCtrlTxEna)

	d.regs.Write(gem.DMACfg, 0)
	d.regs.Or(gem.DMACfg, gem.DMACfgAddr64B)

	if d.regs.Read(gem.DesConf6)&gem.DesConf6Addr64B == 0 {
		d.log.Warn("hardware does not advertise 64-bit addressing")
	}

	rxBase := d.tr.PhysAddr(d.rx.Base())
	txBase := d.tr.PhysAddr(d.tx.Base())

	d.regs.Write64(gem.RxQBase, gem.RBQPH, rxBase)
	d.regs.Write64(gem.TxQBase, gem.TBQPH, txBase)

	d.rx.Init(d.tr)
	d.tx.Init(d.tr)

	d.regs.SetSpecificAddr(1, d.mac)

	d.regs.Write(gem.IDR, ^uint32(0))
	d.regs.Read(gem.ISR)
	d.regs.Write(gem.ISR, ^uint32(0))
	d.regs.Write(gem.TxStatus, ^uint32(0))
	d.regs.Write(gem.RxStatus, ^uint32(0))
	d.regs.Write(gem.IER, guestInterrupts)

	d.regs.Or(gem.NWCtrl, gem.NWCtrlRxEna|gem.NWCtrlTxEna)

	d.log.Info("gem reset",
		"rx-base", rxBase,
		"tx-base", txBase,
		"mac", d.mac.String(),
	)
}
