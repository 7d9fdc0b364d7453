package mddi

import (
	"testing"

	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuspendResume(t *testing.T) {
	rec := &hookRecorder{}
	link, s := newTestLink(t, testLinkConfig(t.Name()), rec.hooks())
	_, err := link.Attach(nil)
	require.NoError(t, err)
	s.Update(func(p *sim.Peer) { p.Registers[0x8] = 0x88 })

	s.ClearCommands()
	link.Suspend()
	assert.Equal(t, []bool{true, false}, rec.enable)
	assert.Equal(t, []bool{true, false}, rec.clientPower)
	assert.Equal(t, []uint32{hw.CmdReset}, s.Commands())

	ptrs := s.RevPtrWrites()
	link.Resume()
	assert.Equal(t, []bool{true, false, true}, rec.enable)
	assert.Equal(t, []bool{true, false, true}, rec.clientPower)
	assert.Greater(t, s.RevPtrWrites(), ptrs)
	assert.Equal(t, 0, link.revCursor)
	assert.Contains(t, s.Commands(), hw.CmdSendRtd)
	assert.False(t, s.Hibernating())

	v, err := link.ReadRegister(0x8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x88), v)
}

func TestResume_FaultsPendingRead(t *testing.T) {
	link, _, _ := attachedLink(t)
	ri := link.expectRead(0x10)

	link.Resume()

	assert.Equal(t, readFault, ri.status)
	assert.Equal(t, ReadFailed, ri.result)
	assert.Nil(t, link.pending)
}

func TestSuspend_NoClient(t *testing.T) {
	rec := &hookRecorder{}
	link, s := newTestLink(t, testLinkConfig(t.Name()), rec.hooks())
	s.Update(func(p *sim.Peer) { p.Absent = true })
	res, err := link.Attach(nil)
	require.NoError(t, err)
	require.Equal(t, ClientAbsent, res)

	link.Suspend()
	assert.Empty(t, rec.enable)
	assert.Equal(t, []bool{true, false}, rec.clientPower)
}
