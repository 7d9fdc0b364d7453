// Package sim is an in-process model of an MDDI host controller wired to a
// simulated client. It implements hw.Controller and is used by tests and by
// the sim hardware backend of the daemon.
package sim

import (
	"encoding/binary"
	"sync"

	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/packet"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMemAddr = 0x1000_0000
	DefaultMemSize = 0x1000

	DefaultCoreVersion = 0x0030
)

type Controller struct {
	mu sync.Mutex

	regs    map[uint32]uint32
	intRaw  hw.IntFlag
	intEn   hw.IntFlag
	stat    hw.StatFlag
	coreVer uint32

	revPtr      uint32
	revSize     int
	revWrite    int
	revPktCnt   uint32
	revCrcErr   uint32
	revPtrSets  int
	periodic    bool
	autoHib     bool
	hibernating bool

	peer *Peer
	mem  *hw.Memory
	cmds []uint32

	handler hw.Handler
	kick    chan struct{}
	l       *logrus.Logger
}

// New builds a controller with its own DMA region and a responsive peer.
func New(l *logrus.Logger) *Controller {
	return NewWithMemory(l, hw.NewMemory(DefaultMemAddr, make([]byte, DefaultMemSize)))
}

func NewWithMemory(l *logrus.Logger, mem *hw.Memory) *Controller {
	return &Controller{
		regs:        map[uint32]uint32{},
		coreVer:     DefaultCoreVersion,
		hibernating: true,
		stat:        hw.StatInHibernation,
		peer:        NewPeer(),
		mem:         mem,
		kick:        make(chan struct{}, 1),
		l:           l,
	}
}

func (c *Controller) Memory() *hw.Memory {
	return c.mem
}

func (c *Controller) SetHandler(h hw.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Run is the interrupt domain. It calls the handler for as long as an enabled
// interrupt is pending.
func (c *Controller) Run(done <-chan struct{}) error {
	for {
		select {
		case <-done:
			return nil
		case <-c.kick:
		}

		for {
			c.mu.Lock()
			pending := c.intRaw & c.intEn
			h := c.handler
			c.mu.Unlock()
			if pending == 0 || h == nil {
				break
			}
			h()
		}
	}
}

// Update runs f with exclusive access to the peer.
func (c *Controller) Update(f func(p *Peer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(c.peer)
}

// SetCoreVersion changes the value reported by CORE_VER.
func (c *Controller) SetCoreVersion(v uint32) {
	c.mu.Lock()
	c.coreVer = v
	c.mu.Unlock()
}

// Commands returns every value written to CMD so far.
func (c *Controller) Commands() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint32(nil), c.cmds...)
}

func (c *Controller) ClearCommands() {
	c.mu.Lock()
	c.cmds = nil
	c.mu.Unlock()
}

// RevPtrWrites is the number of times software announced the reverse buffer.
func (c *Controller) RevPtrWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revPtrSets
}

func (c *Controller) RtdCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer.rtdCount
}

func (c *Controller) ReadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer.readCount
}

// PeriodicRevEncap reports whether periodic reverse encapsulation is on.
func (c *Controller) PeriodicRevEncap() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.periodic
}

func (c *Controller) AutoHibernate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoHib
}

func (c *Controller) Hibernating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hibernating
}

// InjectReverse writes raw bytes into the reverse buffer at the hardware write
// position and reports them as one new packet.
func (c *Controller) InjectReverse(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emit(b)
}

// InjectCRCError reports a reverse CRC error without any packet.
func (c *Controller) InjectCRCError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revCrcErr++
	c.raise(hw.IntRevDataAvail)
}

// SetRevWrite moves the hardware write position within the reverse buffer.
func (c *Controller) SetRevWrite(off int) {
	c.mu.Lock()
	c.revWrite = off
	c.mu.Unlock()
}

func (c *Controller) Read(reg uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch reg {
	case hw.RegInt:
		return uint32(c.intRaw)
	case hw.RegIntEn:
		return uint32(c.intEn)
	case hw.RegStat:
		return uint32(c.stat)
	case hw.RegRevPktCnt:
		v := c.revPktCnt
		c.revPktCnt = 0
		return v
	case hw.RegRevCrcErr:
		v := c.revCrcErr
		c.revCrcErr = 0
		return v
	case hw.RegCoreVer:
		return c.coreVer
	case hw.RegRevPtr:
		return c.revPtr
	case hw.RegCurrRevPtr:
		return c.revPtr + uint32(c.revWrite)
	case hw.RegRtdVal:
		return 0x1c
	}
	return c.regs[reg]
}

func (c *Controller) Write(reg uint32, v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch reg {
	case hw.RegInt:
		c.intRaw &^= hw.IntFlag(v)
	case hw.RegIntEn:
		c.intEn = hw.IntFlag(v)
		c.raise(0)
	case hw.RegCmd:
		c.cmds = append(c.cmds, v)
		c.command(v)
	case hw.RegPriPtr:
		c.linkList(v)
	case hw.RegRevPtr:
		c.revPtr = v
		c.revPtrSets++
	case hw.RegRevSize:
		c.revSize = int(v)
	default:
		c.regs[reg] = v
	}
}

// raise latches f and wakes the interrupt domain if anything enabled is
// pending. Must hold c.mu.
func (c *Controller) raise(f hw.IntFlag) {
	c.intRaw |= f
	if c.intRaw&c.intEn == 0 {
		return
	}
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Controller) command(v uint32) {
	arg := v &^ hw.CmdMask
	switch v & hw.CmdMask {
	case hw.CmdPowerdown & hw.CmdMask:
		c.hibernating = true
		c.stat = (c.stat | hw.StatInHibernation) &^ hw.StatLinkActive
		c.raise(hw.IntInHibernation)

	case hw.CmdHibernate & hw.CmdMask:
		c.autoHib = arg&1 == 1

	case hw.CmdReset & hw.CmdMask:
		c.periodic = false
		c.revWrite = 0
		c.revPktCnt = 0
		c.revCrcErr = 0
		c.peer.pendingRead = nil

	case hw.CmdLinkActive & hw.CmdMask:
		if c.hibernating {
			c.hibernating = false
			c.stat = (c.stat | hw.StatLinkActive) &^ hw.StatInHibernation
			c.raise(hw.IntLinkActive)
		}

	case hw.CmdSendRtd & hw.CmdMask:
		c.peer.rtdCount++
		if c.peer.Absent || c.peer.RtdFailures > 0 {
			if c.peer.RtdFailures > 0 {
				c.peer.RtdFailures--
			}
			c.stat |= hw.StatRtdMeasFail
			c.raise(hw.IntRtdFailure)
		} else {
			c.stat &^= hw.StatRtdMeasFail
		}

	case hw.CmdSendRevEncap & hw.CmdMask:
		switch v {
		case hw.CmdGetClientCap:
			if !c.peer.Absent {
				c.emit(c.peer.Caps.Encode())
			}
		case hw.CmdGetClientStatus:
			if !c.peer.Absent && !c.peer.SilentStatus {
				c.emit(c.peer.Status.Encode())
			}
		}

	case hw.CmdPeriodicRevEncap & hw.CmdMask:
		c.periodic = arg&1 == 1
		if c.periodic {
			c.flushRead()
		}

	case hw.CmdForceNewRevPtr & hw.CmdMask:
		c.revWrite = 0
	}

	c.raise(hw.IntNoCmdPktsPend)
}

func (c *Controller) linkList(addr uint32) {
	b, err := c.mem.Slice(addr, packet.LLEntryLen)
	if err != nil {
		c.l.WithError(err).Error("sim: bad primary pointer")
		c.raise(hw.IntDmaFailure)
		return
	}

	var e packet.LLEntry
	if err := e.Parse(b); err != nil {
		c.l.WithError(err).Error("sim: bad link list entry")
		c.raise(hw.IntDmaFailure)
		return
	}

	if e.Reg.IsRead() {
		reg := e.Reg.RegisterAddress
		c.peer.pendingRead = &reg
		c.peer.readCount++
		if c.periodic {
			c.flushRead()
		}
	} else if !c.peer.Absent {
		// The data word is fetched through the entry's data pointer.
		data, err := c.mem.Slice(e.Data, 4)
		if err == nil {
			c.peer.Registers[e.Reg.RegisterAddress] = binary.LittleEndian.Uint32(data)
		}
	}

	c.raise(hw.IntPriLinkListDone)
}

// flushRead answers an outstanding register read through the reverse buffer.
func (c *Controller) flushRead() {
	p := c.peer
	if p.pendingRead == nil || p.Absent {
		return
	}
	reg := *p.pendingRead
	p.pendingRead = nil

	switch {
	case p.CRCErrors > 0:
		p.CRCErrors--
		c.revCrcErr++
		c.raise(hw.IntRevDataAvail)
	case p.DropReplies > 0:
		p.DropReplies--
	case p.WrongRegister > 0:
		p.WrongRegister--
		c.emit(packet.NewRegisterReply(reg+1, p.Registers[reg+1]))
	default:
		c.emit(packet.NewRegisterReply(reg, p.Registers[reg]))
	}
}

// emit writes b into the reverse buffer with wraparound. Must hold c.mu.
func (c *Controller) emit(b []byte) {
	size := c.revSize
	base := int(c.revPtr - c.mem.Addr)
	if size == 0 || base < 0 || base+size > len(c.mem.Buf) {
		c.l.WithField("revSize", size).Error("sim: reverse buffer not configured, dropping packet")
		return
	}

	ring := c.mem.Buf[base : base+size]
	for _, v := range b {
		ring[c.revWrite] = v
		c.revWrite = (c.revWrite + 1) % size
	}
	c.revPktCnt++
	c.raise(hw.IntRevDataAvail)
}
