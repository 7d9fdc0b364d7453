package mddi

import (
	"github.com/mddilink/mddi/hw"
)

// Suspend turns the panel and client off and resets the controller.
func (l *Link) Suspend() {
	l.l.Info("Suspending")
	if l.hooks.Enable != nil && l.client != nil {
		l.hooks.Enable(&l.panel, false)
	}
	if l.hooks.ClientPower != nil {
		l.hooks.ClientPower(false)
	}
	l.command(hw.CmdReset)
}

// Resume reprograms the controller, restarts framing from the start of the
// ring and wakes the link back up.
func (l *Link) Resume() {
	l.l.Info("Resuming")
	l.SetAutoHibernate(false)
	if l.hooks.ClientPower != nil {
		l.hooks.ClientPower(true)
	}

	l.intLock.Lock()
	l.revCursor = 0
	if l.pending != nil {
		l.completeRead(readFault, ReadFailed)
	}
	l.intLock.Unlock()

	l.initRegisters()

	l.intLock.Lock()
	l.bus.Write(hw.RegIntEn, uint32(l.intEnable))
	l.intLock.Unlock()

	l.command(hw.CmdLinkActive, hw.CmdSendRtd)
	if l.cfg.AutoHibernate {
		l.SetAutoHibernate(true)
	}

	if l.hooks.Enable != nil && l.client != nil {
		l.hooks.Enable(&l.panel, true)
	}
}
