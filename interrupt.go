package mddi

import (
	"time"

	"github.com/mddilink/mddi/hw"
	"github.com/sirupsen/logrus"
)

// arm forgets any delivered or latched occurrence of mask and enables it.
// Call it before issuing whatever is expected to raise mask.
func (l *Link) arm(mask hw.IntFlag) {
	l.intLock.Lock()
	l.gotInt &^= mask
	l.bus.Write(hw.RegInt, uint32(mask))
	l.intEnable |= mask
	l.bus.Write(hw.RegIntEn, uint32(l.intEnable))
	l.intLock.Unlock()
}

// wait blocks until one of mask has been delivered or timeout elapsed.
func (l *Link) wait(mask hw.IntFlag, timeout time.Duration) bool {
	return l.waitFor(func() bool { return l.gotInt&mask != 0 }, timeout)
}

// waitInterrupt is wait that logs a timeout along with the controller state.
func (l *Link) waitInterrupt(mask hw.IntFlag, timeout time.Duration) bool {
	if l.wait(mask, timeout) {
		return true
	}

	l.m.waitTimeouts.Inc(1)
	l.intLock.Lock()
	got := l.gotInt
	l.intLock.Unlock()
	l.l.WithFields(logrus.Fields{
		"waitingFor": mask,
		"int":        hw.IntFlag(l.bus.Read(hw.RegInt)),
		"stat":       hw.StatFlag(l.bus.Read(hw.RegStat)),
		"gotInt":     got,
	}).Error("Timeout waiting for interrupt")
	return false
}

// waitFor parks the caller until cond, evaluated under intLock, holds.
func (l *Link) waitFor(cond func() bool, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()

	for {
		l.intLock.Lock()
		if cond() {
			l.intLock.Unlock()
			return true
		}
		ch := l.wake
		l.intLock.Unlock()

		select {
		case <-ch:
		case <-t.C:
			l.intLock.Lock()
			ok := cond()
			l.intLock.Unlock()
			return ok
		}
	}
}

// wakeAll releases every parked waiter. Must hold intLock.
func (l *Link) wakeAll() {
	close(l.wake)
	l.wake = make(chan struct{})
}

// ServiceInterrupt handles one batch of controller interrupts. It is the only
// entry point of the interrupt domain and must not be called concurrently with
// itself.
func (l *Link) ServiceInterrupt() {
	l.intLock.Lock()
	defer l.intLock.Unlock()

	active := hw.IntFlag(l.bus.Read(hw.RegInt))
	if l.l.Logger.IsLevelEnabled(logrus.TraceLevel) {
		l.l.WithFields(logrus.Fields{
			"active": active,
			"enable": l.intEnable,
			"stat":   hw.StatFlag(l.bus.Read(hw.RegStat)),
		}).Trace("interrupt")
	}
	l.bus.Write(hw.RegInt, uint32(active))

	active &= l.intEnable
	l.gotInt |= active

	if active&hw.IntRevDataAvail != 0 {
		l.handleRevDataAvail()
	}

	if oneShot := active &^ hw.IntNeedClear; oneShot != 0 {
		l.intEnable &^= oneShot
	}

	if active&hw.IntLinkActive != 0 {
		l.intEnable &^= hw.IntLinkActive
		l.intEnable |= hw.IntInHibernation
	}

	if active&hw.IntInHibernation != 0 {
		l.intEnable &^= hw.IntInHibernation
		l.intEnable |= hw.IntLinkActive
	}

	l.bus.Write(hw.RegIntEn, uint32(l.intEnable))
	l.wakeAll()
}
