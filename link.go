package mddi

import (
	"fmt"
	"sync"
	"time"

	"github.com/mddilink/mddi/config"
	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/packet"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRevBufferSize    = 128
	DefaultMaxRevPacketSize = 0x60

	// MinRevBufferSize is the smallest ring a client capabilities packet
	// fits in without wrapping onto itself.
	MinRevBufferSize = packet.ClientCapsLen + 2
)

// LinkConfig holds the tunables of a single controller.
type LinkConfig struct {
	Name  string
	Index int

	RevBufferSize    int
	MaxRevPacketSize int
	AutoHibernate    bool
	HasVsyncIrq      bool

	InterruptTimeout time.Duration
	ReadReplyTimeout time.Duration
	CapsTimeout      time.Duration
	PowerdownSettle  time.Duration

	ReadAttempts    int
	StatusAttempts  int
	BringupAttempts int
	RtdAttempts     int
	RtdBackoff      time.Duration

	// DumpRing logs the whole reverse ring on every reverse data interrupt.
	DumpRing bool
	// PoisonConsumed overwrites consumed ring bytes with 0xee.
	PoisonConsumed bool
}

func DefaultLinkConfig(name string, index int) LinkConfig {
	return LinkConfig{
		Name:             name,
		Index:            index,
		RevBufferSize:    DefaultRevBufferSize,
		MaxRevPacketSize: DefaultMaxRevPacketSize,
		AutoHibernate:    true,
		InterruptTimeout: 100 * time.Millisecond,
		ReadReplyTimeout: 100 * time.Millisecond,
		CapsTimeout:      10 * time.Millisecond,
		PowerdownSettle:  100 * time.Millisecond,
		ReadAttempts:     3,
		StatusAttempts:   3,
		BringupAttempts:  3,
		RtdAttempts:      4,
		RtdBackoff:       time.Millisecond,
	}
}

// NewLinkConfigFromConfig reads the link, timeouts, read, status, bringup and
// debug sections on top of the defaults.
func NewLinkConfigFromConfig(c *config.C, name string, index int) LinkConfig {
	d := DefaultLinkConfig(name, index)
	return LinkConfig{
		Name:             name,
		Index:            index,
		RevBufferSize:    c.GetInt("link.rev_buffer_size", d.RevBufferSize),
		MaxRevPacketSize: c.GetInt("link.max_rev_packet_size", d.MaxRevPacketSize),
		AutoHibernate:    c.GetBool("link.auto_hibernate", d.AutoHibernate),
		HasVsyncIrq:      c.GetBool("link.has_vsync_irq", d.HasVsyncIrq),
		InterruptTimeout: c.GetDuration("timeouts.interrupt", d.InterruptTimeout),
		ReadReplyTimeout: c.GetDuration("timeouts.read_reply", d.ReadReplyTimeout),
		CapsTimeout:      c.GetDuration("timeouts.caps", d.CapsTimeout),
		PowerdownSettle:  c.GetDuration("timeouts.powerdown_settle", d.PowerdownSettle),
		ReadAttempts:     c.GetInt("read.attempts", d.ReadAttempts),
		StatusAttempts:   c.GetInt("status.attempts", d.StatusAttempts),
		BringupAttempts:  c.GetInt("bringup.attempts", d.BringupAttempts),
		RtdAttempts:      c.GetInt("bringup.rtd_attempts", d.RtdAttempts),
		RtdBackoff:       c.GetDuration("bringup.rtd_backoff", d.RtdBackoff),
		DumpRing:         c.GetBool("debug.dump_ring", false),
		PoisonConsumed:   c.GetBool("debug.poison_consumed", false),
	}
}

func (lc *LinkConfig) validate() error {
	if lc.RevBufferSize < MinRevBufferSize || lc.RevBufferSize > 0xffff {
		return fmt.Errorf("link.rev_buffer_size %d is out of range, must be between %d and %d", lc.RevBufferSize, MinRevBufferSize, 0xffff)
	}
	if lc.MaxRevPacketSize <= 0 || lc.MaxRevPacketSize > lc.RevBufferSize {
		return fmt.Errorf("link.max_rev_packet_size %d must be within the reverse buffer", lc.MaxRevPacketSize)
	}
	if lc.ReadAttempts < 1 || lc.StatusAttempts < 1 || lc.BringupAttempts < 1 || lc.RtdAttempts < 1 {
		return fmt.Errorf("attempt counts must be at least 1")
	}
	return nil
}

type readStatus int

const (
	readPending readStatus = iota
	readOK
	readFault
	readTimedOut
)

// pendingRead is the single outstanding register read of a link.
type pendingRead struct {
	reg    uint32
	done   chan struct{}
	status readStatus
	result uint32
}

// Link is the engine of one host controller.
type Link struct {
	cfg LinkConfig
	bus hw.Bus
	mem *hw.Memory
	l   *logrus.Entry
	m   *linkMetrics

	// intLock guards everything below up to writeLock and is shared with the
	// interrupt domain.
	intLock    sync.Mutex
	intEnable  hw.IntFlag
	gotInt     hw.IntFlag
	wake       chan struct{}
	ring       []byte
	scratch    []byte
	revCursor  int
	pending    *pendingRead
	caps       packet.ClientCaps
	haveCaps   bool
	status     packet.ClientStatus
	haveStatus bool

	writeLock sync.Mutex
	readLock  sync.Mutex

	writeSlot []byte
	readSlot  []byte

	version   uint16
	hooks     PowerHooks
	publisher Publisher
	client    *Client
	panel     Panel
}

// NewLink lays out the reverse ring and both descriptor slots in mem and
// returns a link ready for Attach. The caller must route the controller's
// interrupts to ServiceInterrupt.
func NewLink(l *logrus.Logger, cfg LinkConfig, bus hw.Bus, mem *hw.Memory, hooks PowerHooks) (*Link, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	need := cfg.RevBufferSize + 2*packet.LLEntryLen
	if len(mem.Buf) < need {
		return nil, fmt.Errorf("dma region of %d bytes is too small, need %d", len(mem.Buf), need)
	}

	wo := cfg.RevBufferSize
	ro := wo + packet.LLEntryLen

	return &Link{
		cfg:       cfg,
		bus:       bus,
		mem:       mem,
		l:         l.WithField("link", cfg.Name),
		m:         newLinkMetrics(cfg.Name),
		wake:      make(chan struct{}),
		ring:      mem.Buf[:cfg.RevBufferSize],
		scratch:   make([]byte, cfg.RevBufferSize),
		writeSlot: mem.Buf[wo : wo+packet.LLEntryLen],
		readSlot:  mem.Buf[ro : ro+packet.LLEntryLen],
		hooks:     hooks,
	}, nil
}

func (l *Link) Name() string {
	return l.cfg.Name
}

func (l *Link) Index() int {
	return l.cfg.Index
}

// Version is the core version read from the controller at the last power-up.
func (l *Link) Version() uint16 {
	return l.version
}

func (l *Link) revAddr() uint32 {
	return l.mem.BusAddr(0)
}

func (l *Link) writeSlotAddr() uint32 {
	return l.mem.BusAddr(l.cfg.RevBufferSize)
}

func (l *Link) readSlotAddr() uint32 {
	return l.mem.BusAddr(l.cfg.RevBufferSize + packet.LLEntryLen)
}

// Capabilities returns the last capability snapshot, if any was received.
func (l *Link) Capabilities() (packet.ClientCaps, bool) {
	l.intLock.Lock()
	defer l.intLock.Unlock()
	return l.caps, l.haveCaps
}

// Status returns the last client status snapshot, if any was received.
func (l *Link) Status() (packet.ClientStatus, bool) {
	l.intLock.Lock()
	defer l.intLock.Unlock()
	return l.status, l.haveStatus
}

// Client is the published client, nil until Attach found one.
func (l *Link) Client() *Client {
	return l.client
}
