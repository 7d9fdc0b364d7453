package mddi

import (
	"testing"
	"time"

	"github.com/mddilink/mddi/config"
	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/packet"
	"github.com/mddilink/mddi/sim"
	"github.com/mddilink/mddi/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLinkConfig keeps every wait short enough for failure paths to be quick
// while still leaving the interrupt domain plenty of time on success paths.
func testLinkConfig(name string) LinkConfig {
	cfg := DefaultLinkConfig(name, 0)
	cfg.AutoHibernate = false
	cfg.InterruptTimeout = time.Second
	cfg.ReadReplyTimeout = 50 * time.Millisecond
	cfg.CapsTimeout = 50 * time.Millisecond
	cfg.PowerdownSettle = time.Millisecond
	cfg.RtdBackoff = 0
	return cfg
}

type testPublisher struct {
	clients []*Client
	panels  []*Panel
}

func (p *testPublisher) PublishClient(c *Client) error {
	p.clients = append(p.clients, c)
	return nil
}

func (p *testPublisher) PublishPanel(pn *Panel) error {
	p.panels = append(p.panels, pn)
	return nil
}

// newTestLink wires a link to a simulated controller whose interrupt domain
// runs until the test ends.
func newTestLink(t *testing.T, cfg LinkConfig, hooks PowerHooks) (*Link, *sim.Controller) {
	t.Helper()
	l := test.NewLogger()
	s := sim.New(l)

	link, err := NewLink(l, cfg, s, s.Memory(), hooks)
	require.NoError(t, err)
	s.SetHandler(link.ServiceInterrupt)

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		_ = s.Run(done)
		close(exited)
	}()
	t.Cleanup(func() {
		close(done)
		<-exited
	})

	return link, s
}

// attachedLink is newTestLink followed by a successful Attach.
func attachedLink(t *testing.T) (*Link, *sim.Controller, *testPublisher) {
	t.Helper()
	link, s := newTestLink(t, testLinkConfig(t.Name()), PowerHooks{})
	pub := &testPublisher{}
	res, err := link.Attach(pub)
	require.NoError(t, err)
	require.Equal(t, ClientPresent, res)
	return link, s, pub
}

// newSyncLink builds a link whose interrupts are serviced by the test calling
// ServiceInterrupt itself. The reverse ring of size bytes is already announced.
func newSyncLink(t *testing.T, size int) (*Link, *sim.Controller) {
	t.Helper()
	cfg := testLinkConfig(t.Name())
	cfg.RevBufferSize = size
	cfg.MaxRevPacketSize = size

	l := test.NewLogger()
	s := sim.New(l)
	link, err := NewLink(l, cfg, s, s.Memory(), PowerHooks{})
	require.NoError(t, err)

	s.Write(hw.RegRevSize, uint32(size))
	s.Write(hw.RegRevPtr, link.revAddr())
	link.intEnable = hw.IntRevDataAvail
	s.Write(hw.RegIntEn, uint32(link.intEnable))
	return link, s
}

func TestNewLink(t *testing.T) {
	l := test.NewLogger()
	s := sim.New(l)

	link, err := NewLink(l, testLinkConfig("ok"), s, s.Memory(), PowerHooks{})
	require.NoError(t, err)
	assert.Equal(t, "ok", link.Name())
	assert.Equal(t, s.Memory().Addr, link.revAddr())
	assert.Equal(t, s.Memory().Addr+DefaultRevBufferSize, link.writeSlotAddr())
	assert.Equal(t, s.Memory().Addr+DefaultRevBufferSize+64, link.readSlotAddr())
	assert.Nil(t, link.Client())
	_, ok := link.Capabilities()
	assert.False(t, ok)

	// Too little dma memory
	small := hw.NewMemory(0x1000, make([]byte, DefaultRevBufferSize))
	_, err = NewLink(l, testLinkConfig("small"), s, small, PowerHooks{})
	assert.Error(t, err)

	cfg := testLinkConfig("bad")
	cfg.MaxRevPacketSize = cfg.RevBufferSize + 1
	_, err = NewLink(l, cfg, s, s.Memory(), PowerHooks{})
	assert.Error(t, err)

	// Too small for a capabilities packet
	cfg = testLinkConfig("bad")
	cfg.RevBufferSize = packet.ClientCapsLen
	cfg.MaxRevPacketSize = cfg.RevBufferSize
	_, err = NewLink(l, cfg, s, s.Memory(), PowerHooks{})
	assert.Error(t, err)

	cfg = testLinkConfig("min")
	cfg.RevBufferSize = MinRevBufferSize
	cfg.MaxRevPacketSize = cfg.RevBufferSize
	_, err = NewLink(l, cfg, s, s.Memory(), PowerHooks{})
	assert.NoError(t, err)

	cfg = testLinkConfig("bad")
	cfg.ReadAttempts = 0
	_, err = NewLink(l, cfg, s, s.Memory(), PowerHooks{})
	assert.Error(t, err)
}

func TestNewLinkConfigFromConfig(t *testing.T) {
	c := config.NewC(test.NewLogger())
	require.NoError(t, c.LoadString(`
link:
  rev_buffer_size: 0x100
  auto_hibernate: false
  has_vsync_irq: true
timeouts:
  read_reply: 250ms
read:
  attempts: 5
debug:
  poison_consumed: true
`))

	lc := NewLinkConfigFromConfig(c, "mddi_pmdh", 0)
	assert.Equal(t, "mddi_pmdh", lc.Name)
	assert.Equal(t, 0x100, lc.RevBufferSize)
	assert.Equal(t, DefaultMaxRevPacketSize, lc.MaxRevPacketSize)
	assert.False(t, lc.AutoHibernate)
	assert.True(t, lc.HasVsyncIrq)
	assert.Equal(t, 250*time.Millisecond, lc.ReadReplyTimeout)
	assert.Equal(t, 100*time.Millisecond, lc.InterruptTimeout)
	assert.Equal(t, 5, lc.ReadAttempts)
	assert.Equal(t, 3, lc.StatusAttempts)
	assert.True(t, lc.PoisonConsumed)
	assert.False(t, lc.DumpRing)
	assert.NoError(t, lc.validate())
}
