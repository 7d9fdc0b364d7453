package mddi

import (
	"time"

	"github.com/mddilink/mddi/hw"
)

// submitAndWait writes v to reg and waits for sig. The signal is armed before
// the write so a fast controller can not raise it unseen. It never retries.
func (l *Link) submitAndWait(reg uint32, v uint32, sig hw.IntFlag, timeout time.Duration) bool {
	l.arm(sig)
	l.bus.Write(reg, v)
	return l.waitInterrupt(sig, timeout)
}

// command issues control commands back to back and waits until the controller
// has no more command packets pending.
func (l *Link) command(cmds ...uint32) bool {
	l.arm(hw.IntNoCmdPktsPend)
	for _, c := range cmds {
		l.bus.Write(hw.RegCmd, c)
	}
	return l.waitInterrupt(hw.IntNoCmdPktsPend, l.cfg.InterruptTimeout)
}

// submitList hands a descriptor at bus address addr to the primary list.
func (l *Link) submitList(addr uint32) bool {
	return l.submitAndWait(hw.RegPriPtr, addr, hw.IntPriLinkListDone, l.cfg.InterruptTimeout)
}
