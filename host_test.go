package mddi

import (
	"testing"

	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/sim"
	"github.com/mddilink/mddi/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHost(t *testing.T) {
	l := test.NewLogger()
	h := NewHost()

	add := func(idx int) (*Link, *sim.Controller) {
		s := sim.New(l)
		cfg := testLinkConfig(t.Name())
		cfg.Index = idx
		link, err := NewLink(l, cfg, s, s.Memory(), PowerHooks{})
		require.NoError(t, err)
		require.NoError(t, h.Add(link, s))
		return link, s
	}

	l2, s2 := add(2)
	l0, _ := add(0)

	assert.Equal(t, []int{0, 2}, h.Indexes())

	got, err := h.Link(2)
	require.NoError(t, err)
	assert.Same(t, l2, got)

	got, err = h.Link(0)
	require.NoError(t, err)
	assert.Same(t, l0, got)

	ctrl, err := h.Controller(2)
	require.NoError(t, err)
	assert.Same(t, s2, ctrl)

	_, err = h.Link(1)
	assert.ErrorIs(t, err, ErrUnknownController)
	_, err = h.Controller(1)
	assert.ErrorIs(t, err, ErrUnknownController)

	// Duplicate index
	s := sim.New(l)
	cfg := testLinkConfig(t.Name())
	cfg.Index = 2
	dup, err := NewLink(l, cfg, s, s.Memory(), PowerHooks{})
	require.NoError(t, err)
	assert.Error(t, h.Add(dup, s))
	assert.Equal(t, []int{0, 2}, h.Indexes())
}

// closingController is a simulated controller that owns something to release,
// like a mapped uio device does.
type closingController struct {
	*sim.Controller
	closed int
	err    error
}

func (c *closingController) Close() error {
	c.closed++
	return c.err
}

func TestHost_Close(t *testing.T) {
	l := test.NewLogger()
	h := NewHost()

	add := func(idx int, ctrl hw.Controller) {
		cfg := testLinkConfig(t.Name())
		cfg.Index = idx
		link, err := NewLink(l, cfg, ctrl, ctrl.Memory(), PowerHooks{})
		require.NoError(t, err)
		require.NoError(t, h.Add(link, ctrl))
	}

	good := &closingController{Controller: sim.New(l)}
	bad := &closingController{Controller: sim.New(l), err: assert.AnError}
	add(0, good)
	add(1, sim.New(l))
	add(2, bad)

	err := h.Close()
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorContains(t, err, "controller 2")
	assert.Equal(t, 1, good.closed)
	assert.Equal(t, 1, bad.closed)

	assert.NoError(t, NewHost().Close())
}
