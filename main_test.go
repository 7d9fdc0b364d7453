package mddi

import (
	"fmt"
	"testing"

	"github.com/mddilink/mddi/config"
	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/sim"
	"github.com/mddilink/mddi/test"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
controllers:
  - index: 0
    name: %s_a
  - index: 1
    name: %s_b
hardware:
  type: sim
  sim:
    rtd_failures: 1
    registers:
      "0x10": 5
timeouts:
  caps: 50ms
  read_reply: 50ms
  powerdown_settle: 1ms
link:
  auto_hibernate: false
`

func loadTestConfig(t *testing.T, raw string) *config.C {
	t.Helper()
	c := config.NewC(test.NewLogger())
	require.NoError(t, c.LoadString(raw))
	return c
}

func TestMddiMain_ConfigTest(t *testing.T) {
	c := loadTestConfig(t, fmt.Sprintf(testConfig, t.Name(), t.Name()))
	opened := 0
	open := func(l *logrus.Logger, cc ControllerConfig) (hw.Controller, error) {
		opened++
		return sim.New(l), nil
	}

	ctl, err := Main(c, true, "1.0.0", test.NewLogger(), open)
	require.NoError(t, err)
	assert.Zero(t, opened)
	assert.Empty(t, ctl.Host().Indexes())
}

func TestMddiMain_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "hardware", raw: "hardware:\n  type: nope\n"},
		{name: "log level", raw: "logging:\n  level: loud\n"},
		{name: "log format", raw: "logging:\n  format: xml\n"},
		{name: "controller index", raw: "controllers:\n  - name: a\n"},
		{name: "duplicate index", raw: "controllers:\n  - index: 1\n  - index: 1\n"},
		{name: "link", raw: "link:\n  rev_buffer_size: 2\n"},
		{name: "link too small for caps", raw: "link:\n  rev_buffer_size: 64\n  max_rev_packet_size: 64\n"},
		{name: "stats", raw: "stats:\n  type: carrier-pigeon\n  interval: 1s\n"},
		{name: "sshd", raw: "sshd:\n  enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := loadTestConfig(t, tt.raw)
			_, err := Main(c, true, "", test.NewLogger(), nil)
			assert.Error(t, err)
		})
	}
}

func TestMddiMain_OpenError(t *testing.T) {
	c := loadTestConfig(t, "controllers:\n  - index: 0\n")
	open := func(*logrus.Logger, ControllerConfig) (hw.Controller, error) {
		return nil, assert.AnError
	}

	_, err := Main(c, false, "", test.NewLogger(), open)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMddiMain_ClosesControllersOnError(t *testing.T) {
	raw := fmt.Sprintf(testConfig, t.Name(), t.Name()) + "stats:\n  type: carrier-pigeon\n  interval: 1s\n"
	c := loadTestConfig(t, raw)

	var opened []*closingController
	open := func(l *logrus.Logger, cc ControllerConfig) (hw.Controller, error) {
		ctrl := &closingController{Controller: sim.New(l)}
		opened = append(opened, ctrl)
		return ctrl, nil
	}

	_, err := Main(c, false, "", test.NewLogger(), open)
	require.Error(t, err)
	require.Len(t, opened, 2)
	for _, ctrl := range opened {
		assert.Equal(t, 1, ctrl.closed)
	}
}

func TestMddiMain_ClosesControllerOnLinkError(t *testing.T) {
	c := loadTestConfig(t, "controllers:\n  - index: 0\n")
	var ctrl *closingController
	open := func(l *logrus.Logger, cc ControllerConfig) (hw.Controller, error) {
		// No dma memory behind the controller so the link can not be built
		ctrl = &closingController{Controller: sim.NewWithMemory(l, hw.NewMemory(0x1000, nil))}
		return ctrl, nil
	}

	_, err := Main(c, false, "", test.NewLogger(), open)
	require.Error(t, err)
	require.NotNil(t, ctrl)
	assert.Equal(t, 1, ctrl.closed)
}

func TestControllersFromConfig(t *testing.T) {
	c := loadTestConfig(t, "logging:\n  level: info\n")
	ccs, err := controllersFromConfig(c)
	require.NoError(t, err)
	assert.Equal(t, defaultControllers, ccs)

	c = loadTestConfig(t, `
controllers:
  - index: 3
    base: 0xaa600000
    irq: 16
    uio: uio2
  - index: 1
    name: ext
`)
	ccs, err = controllersFromConfig(c)
	require.NoError(t, err)
	assert.Equal(t, []ControllerConfig{
		{Index: 3, Name: "mddi3", Base: 0xaa600000, IRQ: 16, UIO: "uio2"},
		{Index: 1, Name: "ext"},
	}, ccs)
}

func TestNewSimController(t *testing.T) {
	c := loadTestConfig(t, `
hardware:
  sim:
    core_version: 0x21
    absent: true
    rtd_failures: 2
    drop_replies: 1
    width: 640
    height: 0x1e0
    registers:
      "0x10": 0x5
      "16": 7
      "nope": 1
      "0x20": bad
`)
	s := newSimController(test.NewLogger(), c, ControllerConfig{Name: "a"})
	assert.Equal(t, uint32(0x21), s.Read(hw.RegCoreVer))

	s.Update(func(p *sim.Peer) {
		assert.True(t, p.Absent)
		assert.Equal(t, 2, p.RtdFailures)
		assert.Equal(t, 1, p.DropReplies)
		assert.Equal(t, uint16(640), p.Caps.BitmapWidth)
		assert.Equal(t, uint16(480), p.Caps.BitmapHeight)
		assert.Equal(t, uint16(0xd263), p.Caps.MfrName)
		// "16" and "0x10" are the same register, either may win
		assert.Len(t, p.Registers, 1)
		assert.Contains(t, []uint32{5, 7}, p.Registers[0x10])
	})
}

func TestBackendFromConfig_UIO(t *testing.T) {
	c := loadTestConfig(t, "hardware:\n  type: uio\n")
	open, err := backendFromConfig(c)
	require.NoError(t, err)

	_, err = open(test.NewLogger(), ControllerConfig{Name: "a"})
	assert.Error(t, err)
}
