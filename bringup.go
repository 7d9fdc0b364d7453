package mddi

import (
	"fmt"
	"time"

	"github.com/mddilink/mddi/hw"
	"github.com/sirupsen/logrus"
)

// AttachResult tells whether bring-up found a client on the link.
type AttachResult int

const (
	ClientAbsent AttachResult = iota
	ClientPresent
)

func (r AttachResult) String() string {
	switch r {
	case ClientPresent:
		return "present"
	case ClientAbsent:
		return "absent"
	}
	return "unknown"
}

// baseIntEnable is what a link listens to once the controller is up.
const baseIntEnable = hw.IntLinkActive | hw.IntInHibernation | hw.IntPriLinkListDone |
	hw.IntRevDataAvail | hw.IntRevOverflow | hw.IntRevOverwrite | hw.IntRtdFailure

// Attach powers the controller up and looks for a client. A missing client is
// not an error: the link is powered down and ClientAbsent returned. An error
// means the controller itself can not be used.
func (l *Link) Attach(p Publisher) (AttachResult, error) {
	l.publisher = p

	l.intLock.Lock()
	l.intEnable = 0
	l.haveCaps = false
	l.haveStatus = false
	l.bus.Write(hw.RegIntEn, 0)
	l.intLock.Unlock()

	if l.hooks.ClientPower != nil {
		l.hooks.ClientPower(true)
	}

	// Put the link in hibernation in case whatever ran before us did not.
	l.SetAutoHibernate(false)
	l.command(hw.CmdReset)
	l.initRegisters()

	if l.version < hw.MinCoreVersion {
		l.l.WithField("version", fmt.Sprintf("%#x", l.version)).Error("Unsupported controller version")
		return ClientAbsent, fmt.Errorf("%w: %#x", ErrUnsupportedVersion, l.version)
	}

	l.intLock.Lock()
	l.bus.Write(hw.RegInt, 0xffffffff)
	l.gotInt = 0
	l.intEnable = baseIntEnable
	l.bus.Write(hw.RegIntEn, uint32(l.intEnable))
	l.intLock.Unlock()

	l.command(hw.CmdLinkActive)

	if !l.bringUp() {
		l.m.absent.Inc(1)
		l.l.Info("No client found")
		l.bus.Write(hw.RegCmd, hw.CmdPowerdown)
		l.l.WithField("stat", hw.StatFlag(l.bus.Read(hw.RegStat))).Info("Powering down")
		time.Sleep(l.cfg.PowerdownSettle)
		l.l.WithField("stat", hw.StatFlag(l.bus.Read(hw.RegStat))).Info("Powered down")
		return ClientAbsent, nil
	}

	if l.cfg.AutoHibernate {
		l.SetAutoHibernate(true)
	}

	caps, _ := l.Capabilities()
	l.client = &Client{Name: caps.ClientName(), Link: l, Caps: caps}
	l.panel = Panel{
		Name:   "mddi_panel",
		Link:   l,
		Width:  caps.BitmapWidth,
		Height: caps.BitmapHeight,
	}

	if l.hooks.Enable != nil {
		l.hooks.Enable(&l.panel, true)
	}

	l.l.WithField("client", l.client.Name).Info("Publishing client")
	if p != nil {
		if err := p.PublishClient(l.client); err != nil {
			return ClientPresent, fmt.Errorf("publishing client %s: %w", l.client.Name, err)
		}
	}
	return ClientPresent, nil
}

// bringUp measures the round trip delay and asks for the client capabilities
// until they arrive or the attempts run out.
func (l *Link) bringUp() bool {
	for attempt := 1; attempt <= l.cfg.BringupAttempts; attempt++ {
		// Some clients only answer get-caps after a round trip delay
		// measurement, and the first measurement tends to fail.
		for i, n := 0, l.cfg.RtdAttempts; i < n; i++ {
			l.command(hw.CmdSendRtd)
			stat := hw.StatFlag(l.bus.Read(hw.RegStat))
			l.l.WithFields(logrus.Fields{
				"int":    hw.IntFlag(l.bus.Read(hw.RegInt)),
				"stat":   stat,
				"rtdVal": l.bus.Read(hw.RegRtdVal),
			}).Debug("Sent round trip delay")
			if stat&hw.StatRtdMeasFail == 0 {
				break
			}
			time.Sleep(l.cfg.RtdBackoff)
		}

		l.command(hw.CmdGetClientCap)
		if l.waitFor(func() bool { return l.haveCaps }, l.cfg.CapsTimeout) {
			return true
		}
		l.l.WithField("attempt", attempt).Info("Timeout waiting for client capabilities")
	}
	return false
}

// SetAutoHibernate puts the link into hibernation and then sets whether the
// controller may hibernate on its own after an idle subframe.
func (l *Link) SetAutoHibernate(on bool) {
	var arg uint32
	if on {
		arg = 1
	}
	l.submitAndWait(hw.RegCmd, hw.CmdPowerdown, hw.IntInHibernation, l.cfg.InterruptTimeout)
	l.command(hw.CmdHibernate | arg)
}

// initRegisters programs the controller after reset or resume.
func (l *Link) initRegisters() {
	w := l.bus.Write

	w(hw.RegVersion, 0x0001)
	w(hw.RegBps, hw.HostBytesPerSubframe)
	w(hw.RegSpm, 0x0003)
	w(hw.RegTA1Len, 0x0005)
	w(hw.RegTA2Len, hw.HostTA2Len)
	w(hw.RegDriveHi, 0x0096)
	w(hw.RegDriveLo, 0x0050)
	w(hw.RegDispWake, 0x003c)
	w(hw.RegRevRateDiv, hw.HostRevRateDiv)
	w(hw.RegRevSize, uint32(l.cfg.RevBufferSize))
	w(hw.RegRevEncapSz, uint32(l.cfg.MaxRevPacketSize))

	l.command(hw.CmdPeriodicRevEncap)

	if l.bus.Read(hw.RegPadCtl) == 0 {
		// The band gap needs 5us before the rest of the pad is enabled.
		w(hw.RegPadCtl, 0x8000)
		time.Sleep(5 * time.Microsecond)
	}
	w(hw.RegPadCtl, 0xa850f)

	l.version = uint16(l.bus.Read(hw.RegCoreVer) & 0xffff)

	// Counts must be even.
	w(hw.RegDriverStartCnt, 0x60006)

	l.SetAutoHibernate(false)
	l.command(hw.CmdDispIgnore)
	l.initRevEncap()
}
