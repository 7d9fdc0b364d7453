package mddi

import (
	"sync"
	"testing"

	"github.com/mddilink/mddi/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_WriteThenRead(t *testing.T) {
	link, s, _ := attachedLink(t)

	require.NoError(t, link.WriteRegister(0x10, 0x1234))
	s.Update(func(p *sim.Peer) {
		assert.Equal(t, uint32(0x1234), p.Registers[0x10])
	})

	v, err := link.ReadRegister(0x10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), v)
	assert.False(t, s.PeriodicRevEncap())
	assert.Nil(t, link.pending)
}

func TestRegister_ReadAllOnes(t *testing.T) {
	link, s, _ := attachedLink(t)
	s.Update(func(p *sim.Peer) { p.Registers[0x40] = 0xffffffff })

	v, err := link.ReadRegister(0x40)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xffffffff), v)
}

func TestRegister_ReadRetries(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *sim.Peer)
		retries int64
	}{
		{name: "first", setup: func(*sim.Peer) {}, retries: 0},
		{name: "dropped once", setup: func(p *sim.Peer) { p.DropReplies = 1 }, retries: 1},
		{name: "dropped twice", setup: func(p *sim.Peer) { p.DropReplies = 2 }, retries: 2},
		{name: "crc then ok", setup: func(p *sim.Peer) { p.CRCErrors = 1 }, retries: 1},
		{name: "wrong register", setup: func(p *sim.Peer) { p.WrongRegister = 1 }, retries: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, s, _ := attachedLink(t)
			s.Update(func(p *sim.Peer) {
				p.Registers[0x30] = 0xc0ffee
				tt.setup(p)
			})
			retries := link.m.readRetries.Count()
			rtd := s.RtdCount()
			reads := s.ReadCount()

			v, err := link.ReadRegister(0x30)
			require.NoError(t, err)
			assert.Equal(t, uint32(0xc0ffee), v)
			assert.Equal(t, tt.retries, link.m.readRetries.Count()-retries)
			assert.Equal(t, int(tt.retries), s.RtdCount()-rtd)
			assert.Equal(t, int(tt.retries)+1, s.ReadCount()-reads)
		})
	}
}

func TestRegister_ReadMismatchCounted(t *testing.T) {
	link, s, _ := attachedLink(t)
	s.Update(func(p *sim.Peer) { p.WrongRegister = 1 })
	mismatches := link.m.mismatches.Count()

	_, err := link.ReadRegister(0x30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), link.m.mismatches.Count()-mismatches)
}

func TestRegister_ReadTimeout(t *testing.T) {
	link, s, _ := attachedLink(t)
	s.Update(func(p *sim.Peer) { p.DropReplies = 3 })
	rtd := s.RtdCount()
	reads := s.ReadCount()
	timeouts := link.m.readTimeouts.Count()

	v, err := link.ReadRegister(0x30)
	assert.Equal(t, ReadFailed, v)
	assert.ErrorIs(t, err, ErrReadTimeout)
	assert.NotErrorIs(t, err, ErrLinkFault)

	// One retrain per failed attempt, the last one included
	assert.Equal(t, 3, s.RtdCount()-rtd)
	assert.Equal(t, 3, s.ReadCount()-reads)
	assert.Equal(t, int64(3), link.m.readTimeouts.Count()-timeouts)
	assert.Nil(t, link.pending)
	assert.False(t, s.PeriodicRevEncap())

	// The link is still usable
	s.Update(func(p *sim.Peer) { p.Registers[0x30] = 1 })
	v, err = link.ReadRegister(0x30)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestRegister_ReadLinkFault(t *testing.T) {
	link, s, _ := attachedLink(t)
	s.Update(func(p *sim.Peer) { p.CRCErrors = 3 })
	faults := link.m.readFaults.Count()

	v, err := link.ReadRegister(0x30)
	assert.Equal(t, ReadFailed, v)
	assert.ErrorIs(t, err, ErrLinkFault)
	assert.NotErrorIs(t, err, ErrReadTimeout)
	assert.Equal(t, int64(3), link.m.readFaults.Count()-faults)
	assert.Nil(t, link.pending)
}

func TestRegister_ConcurrentReads(t *testing.T) {
	link, s, _ := attachedLink(t)
	s.Update(func(p *sim.Peer) {
		for i := uint32(0); i < 8; i++ {
			p.Registers[0x100+i*4] = i + 1
		}
	})

	var wg sync.WaitGroup
	results := make([]uint32, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = link.ReadRegister(0x100 + uint32(i)*4)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, uint32(i+1), results[i])
	}
}

func TestCheckStatus(t *testing.T) {
	link, s, _ := attachedLink(t)

	s.Update(func(p *sim.Peer) { p.Status.ReverseLinkRequest = 4 })
	require.NoError(t, link.CheckStatus())
	st, ok := link.Status()
	require.True(t, ok)
	assert.Equal(t, uint16(4), st.ReverseLinkRequest)
	assert.False(t, s.PeriodicRevEncap())

	s.Update(func(p *sim.Peer) { p.Status.CRCErrorCount = 2 })
	assert.ErrorIs(t, link.CheckStatus(), ErrLinkFault)

	s.Update(func(p *sim.Peer) { p.SilentStatus = true })
	rtd := s.RtdCount()
	assert.ErrorIs(t, link.CheckStatus(), ErrTimeout)
	assert.Equal(t, 3, s.RtdCount()-rtd)
	_, ok = link.Status()
	assert.False(t, ok)
}
