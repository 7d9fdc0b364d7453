package mddi

import (
	"fmt"
	"time"

	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/packet"
	"github.com/sirupsen/logrus"
)

// WriteRegister writes value to a client register. There is no reply to wait
// for, so a timeout is reported once and never retried here.
func (l *Link) WriteRegister(reg uint32, value uint32) error {
	l.writeLock.Lock()
	defer l.writeLock.Unlock()

	e := packet.NewRegisterWrite(l.writeSlotAddr(), reg, value)
	e.Encode(l.writeSlot)

	if !l.submitList(l.writeSlotAddr()) {
		l.m.writeTimeouts.Inc(1)
		l.l.WithFields(logrus.Fields{"reg": reg, "value": value}).Error("Register write timed out")
		return fmt.Errorf("%w: writing register %#x", ErrTimeout, reg)
	}
	return nil
}

// ReadRegister reads a client register. The read is retried with a link
// retrain in between; when every attempt fails ReadFailed is returned together
// with an error wrapping ErrReadTimeout or ErrLinkFault.
func (l *Link) ReadRegister(reg uint32) (uint32, error) {
	l.readLock.Lock()
	defer l.readLock.Unlock()

	e := packet.NewRegisterRead(reg)
	e.Encode(l.readSlot)

	last := readTimedOut
	result := ReadFailed
	ok := false
	for attempt := 1; attempt <= l.cfg.ReadAttempts; attempt++ {
		ri := &pendingRead{reg: reg, done: make(chan struct{})}
		l.intLock.Lock()
		l.pending = ri
		l.intLock.Unlock()

		l.submitList(l.readSlotAddr())
		l.command(hw.CmdPeriodicRevEncap | 1)

		var status readStatus
		status, result = l.awaitRead(ri)
		if status == readOK {
			ok = true
			break
		}

		last = status
		if status == readFault {
			l.m.readFaults.Inc(1)
		} else {
			l.m.readTimeouts.Inc(1)
		}
		l.m.readRetries.Inc(1)

		l.command(hw.CmdSendRtd, hw.CmdLinkActive)
		l.l.WithFields(logrus.Fields{
			"reg":        reg,
			"attempt":    attempt,
			"fault":      status == readFault,
			"int":        hw.IntFlag(l.bus.Read(hw.RegInt)),
			"stat":       hw.StatFlag(l.bus.Read(hw.RegStat)),
			"rtdVal":     l.bus.Read(hw.RegRtdVal),
			"currRevPtr": l.bus.Read(hw.RegCurrRevPtr),
		}).Info("Register read failed, sent round trip delay")
		result = ReadFailed
	}

	l.command(hw.CmdPeriodicRevEncap | 0)

	l.intLock.Lock()
	l.pending = nil
	l.intLock.Unlock()

	if ok {
		return result, nil
	}
	if last == readFault {
		return ReadFailed, fmt.Errorf("%w: reading register %#x", ErrLinkFault, reg)
	}
	return ReadFailed, fmt.Errorf("%w: reading register %#x", ErrReadTimeout, reg)
}

// awaitRead waits for ri to complete. On timeout the registration is withdrawn
// so a late reply finds nothing to complete.
func (l *Link) awaitRead(ri *pendingRead) (readStatus, uint32) {
	t := time.NewTimer(l.cfg.ReadReplyTimeout)
	defer t.Stop()

	select {
	case <-ri.done:
	case <-t.C:
	}

	l.intLock.Lock()
	defer l.intLock.Unlock()

	select {
	case <-ri.done:
		return ri.status, ri.result
	default:
	}

	if l.pending == ri {
		l.pending = nil
	}
	ri.status = readTimedOut
	ri.result = ReadFailed
	return ri.status, ri.result
}

// CheckStatus asks the client for its status. The link must be active. It
// fails with ErrLinkFault when the client counted crc errors and with
// ErrTimeout when no status arrived.
func (l *Link) CheckStatus() error {
	l.readLock.Lock()
	defer l.readLock.Unlock()

	l.command(hw.CmdPeriodicRevEncap | 1)
	defer l.command(hw.CmdPeriodicRevEncap | 0)

	for i, n := 0, l.cfg.StatusAttempts; i < n; i++ {
		l.intLock.Lock()
		l.haveStatus = false
		l.intLock.Unlock()

		l.command(hw.CmdGetClientStatus)
		if l.waitFor(func() bool { return l.haveStatus }, l.cfg.CapsTimeout) {
			st, _ := l.Status()
			if st.CRCErrorCount != 0 {
				l.l.WithField("crcErrors", st.CRCErrorCount).Info("Client reported crc errors")
				return fmt.Errorf("%w: client counted %d crc errors", ErrLinkFault, st.CRCErrorCount)
			}
			return nil
		}

		l.l.Info("Failed to get client status")
		l.command(hw.CmdSendRtd)
	}

	return fmt.Errorf("%w: no client status", ErrTimeout)
}
