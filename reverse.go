package mddi

import (
	"encoding/hex"

	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/packet"
	"github.com/sirupsen/logrus"
)

const poisonByte = 0xee

// handleRevDataAvail drains the reverse ring. Must hold intLock.
func (l *Link) handleRevDataAvail() {
	count := l.bus.Read(hw.RegRevPktCnt)
	crcErrs := l.bus.Read(hw.RegRevCrcErr)
	if count > 1 {
		l.l.WithField("count", count).Debug("Multiple reverse packets available")
	}

	if crcErrs != 0 {
		l.m.crcErrors.Inc(int64(crcErrs))
		if l.pending == nil {
			l.l.WithField("crcErrors", crcErrs).Info("Reverse crc error without pending read")
		} else {
			l.l.WithField("crcErrors", crcErrs).WithField("reg", l.pending.reg).Info("Reverse crc error, failing pending read")
			l.completeRead(readFault, ReadFailed)
		}
	}

	if count == 0 {
		return
	}

	if l.cfg.DumpRing {
		l.l.WithFields(logrus.Fields{
			"int":        hw.IntFlag(l.bus.Read(hw.RegInt)),
			"stat":       hw.StatFlag(l.bus.Read(hw.RegStat)),
			"currRevPtr": l.bus.Read(hw.RegCurrRevPtr),
		}).Infof("Reverse ring\n%s", hex.Dump(l.ring))
	}

	for i := uint32(0); i < count; i++ {
		if !l.demuxOne() {
			return
		}
	}
}

// demuxOne consumes the packet at the cursor. It returns false when the ring
// had to be resynchronized.
func (l *Link) demuxOne() bool {
	size := len(l.ring)
	prev := l.revCursor

	length := int(l.ring[l.revCursor])
	l.revCursor = (l.revCursor + 1) % size
	length |= int(l.ring[l.revCursor]) << 8
	l.revCursor = (l.revCursor + 1 + length) % size

	if length > size-2 || length < packet.MinLength {
		l.m.framingFaults.Inc(1)
		l.l.WithFields(logrus.Fields{
			"length":     length,
			"offset":     prev,
			"currRevPtr": l.bus.Read(hw.RegCurrRevPtr),
		}).Warn("Bad reverse packet length")
		l.resync()
		return false
	}

	n := length + 2
	end := (prev + n) % size
	var frame []byte
	if prev+n > size {
		rem := size - prev
		frame = l.scratch[:n]
		copy(frame, l.ring[prev:])
		copy(frame[rem:], l.ring[:n-rem])
	} else {
		frame = l.ring[prev : prev+n]
	}

	ok := l.dispatch(frame)
	l.m.revPackets.Inc(1)

	if l.cfg.PoisonConsumed {
		if prev+n > size {
			fill(l.ring[prev:], poisonByte)
			fill(l.ring[:end], poisonByte)
		} else {
			fill(l.ring[prev:prev+n], poisonByte)
		}
	}

	if !ok {
		return false
	}

	if prev < size/2 && l.revCursor >= size/2 {
		l.bus.Write(hw.RegRevPtr, l.revAddr())
	}
	return true
}

// resync discards whatever is in the ring and restarts framing at offset 0.
// Must hold intLock.
func (l *Link) resync() {
	l.l.Info("Resetting reverse pointer")
	l.revCursor = 0
	l.bus.Write(hw.RegRevPtr, l.revAddr())
	l.bus.Write(hw.RegRevPtr, l.revAddr())
	l.bus.Write(hw.RegCmd, hw.CmdForceNewRevPtr)
}

// initRevEncap poisons the ring and points the controller at it.
func (l *Link) initRevEncap() {
	l.intLock.Lock()
	fill(l.ring, poisonByte)
	l.revCursor = 0
	l.intLock.Unlock()

	l.bus.Write(hw.RegRevPtr, l.revAddr())
	l.command(hw.CmdForceNewRevPtr)
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
