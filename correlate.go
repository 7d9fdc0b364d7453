package mddi

import (
	"encoding/hex"

	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/packet"
	"github.com/sirupsen/logrus"
)

// dispatch routes one complete reverse frame. It returns false when the frame
// could not be understood and the ring was resynchronized. Must hold intLock.
func (l *Link) dispatch(frame []byte) bool {
	var h packet.RevHeader
	if err := h.Parse(frame); err != nil {
		l.badFrame(frame, err)
		return false
	}

	switch h.Type {
	case packet.TypeClientCaps:
		var caps packet.ClientCaps
		if err := caps.Parse(frame); err != nil {
			l.badFrame(frame, err)
			return false
		}
		l.caps = caps
		l.haveCaps = true
		l.wakeAll()

	case packet.TypeClientStatus:
		var st packet.ClientStatus
		if err := st.Parse(frame); err != nil {
			l.badFrame(frame, err)
			return false
		}
		l.status = st
		l.haveStatus = true
		l.wakeAll()

	case packet.TypeRegisterAccess:
		var ra packet.RegisterAccess
		if err := ra.Parse(frame); err != nil {
			l.badFrame(frame, err)
			return false
		}
		l.handleRegisterReply(&ra)

	default:
		l.badFrame(frame, nil)
		return false
	}

	return true
}

func (l *Link) handleRegisterReply(ra *packet.RegisterAccess) {
	f := logrus.Fields{"reg": ra.RegisterAddress, "value": ra.RegisterData}

	if l.pending == nil {
		l.l.WithFields(f).Info("Register reply without pending read")
		return
	}

	if l.pending.reg != ra.RegisterAddress {
		l.m.mismatches.Inc(1)
		f["expected"] = l.pending.reg
		l.l.WithFields(f).Info("Register reply for the wrong register")
		return
	}

	if !ra.HasData() {
		l.l.WithFields(f).Warn("Register reply without a data word")
		l.completeRead(readFault, ReadFailed)
		return
	}

	l.completeRead(readOK, ra.RegisterData)
}

// completeRead finishes the pending read. Must hold intLock with a read pending.
func (l *Link) completeRead(status readStatus, result uint32) {
	ri := l.pending
	l.pending = nil
	ri.status = status
	ri.result = result
	close(ri.done)
}

// badFrame logs an unusable frame and resynchronizes the ring.
func (l *Link) badFrame(frame []byte, err error) {
	l.m.framingFaults.Inc(1)
	var h packet.RevHeader
	h.Parse(frame)

	e := l.l.WithFields(logrus.Fields{
		"header":     h.String(),
		"currRevPtr": l.bus.Read(hw.RegCurrRevPtr),
	})
	if err != nil {
		e = e.WithError(err)
	}
	e.Infof("Unknown reverse packet\n%s", hex.Dump(frame))
	l.resync()
}
