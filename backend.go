package mddi

import (
	"fmt"
	"strconv"

	"github.com/mddilink/mddi/config"
	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/hw/uio"
	"github.com/mddilink/mddi/sim"
	"github.com/sirupsen/logrus"
)

// ControllerConfig is one entry of the controllers list.
type ControllerConfig struct {
	Index int
	Name  string
	Base  uint32
	IRQ   int
	// UIO is the userspace I/O device the uio backend opens, e.g. "uio0".
	UIO string
}

var defaultControllers = []ControllerConfig{
	{Index: 0, Name: "mddi_pmdh", Base: 0xaa600000, IRQ: 16},
	{Index: 1, Name: "mddi_emdh", Base: 0xaa700000, IRQ: 17},
}

func controllersFromConfig(c *config.C) ([]ControllerConfig, error) {
	raw := c.GetMapSlice("controllers")
	if len(raw) == 0 {
		return defaultControllers, nil
	}

	seen := map[int]bool{}
	ccs := make([]ControllerConfig, 0, len(raw))
	for i, m := range raw {
		sub := c.Sub(m)

		if !sub.IsSet("index") {
			return nil, fmt.Errorf("controllers[%d]: index is required", i)
		}
		cc := ControllerConfig{
			Index: sub.GetInt("index", 0),
			Base:  sub.GetUint32("base", 0),
			IRQ:   sub.GetInt("irq", 0),
			UIO:   sub.GetString("uio", ""),
		}
		cc.Name = sub.GetString("name", fmt.Sprintf("mddi%d", cc.Index))

		if seen[cc.Index] {
			return nil, fmt.Errorf("controllers[%d]: duplicate index %d", i, cc.Index)
		}
		seen[cc.Index] = true
		ccs = append(ccs, cc)
	}
	return ccs, nil
}

// OpenFunc opens the hardware behind one controller.
type OpenFunc func(l *logrus.Logger, cc ControllerConfig) (hw.Controller, error)

// backendFromConfig picks the hardware backend named by hardware.type.
func backendFromConfig(c *config.C) (OpenFunc, error) {
	switch t := c.GetString("hardware.type", "sim"); t {
	case "sim":
		return func(l *logrus.Logger, cc ControllerConfig) (hw.Controller, error) {
			return newSimController(l, c, cc), nil
		}, nil
	case "uio":
		return func(l *logrus.Logger, cc ControllerConfig) (hw.Controller, error) {
			if cc.UIO == "" {
				return nil, fmt.Errorf("controller %s has no uio device", cc.Name)
			}
			d, err := uio.Open(l, cc.UIO)
			if err != nil {
				return nil, err
			}
			return d, nil
		}, nil
	default:
		return nil, fmt.Errorf("hardware.type was not understood: %s", t)
	}
}

// newSimController builds a simulated controller whose peer follows the
// hardware.sim section.
func newSimController(l *logrus.Logger, c *config.C, cc ControllerConfig) *sim.Controller {
	s := sim.New(l)
	if v := c.GetInt("hardware.sim.core_version", 0); v != 0 {
		s.SetCoreVersion(uint32(v))
	}

	s.Update(func(p *sim.Peer) {
		p.Absent = c.GetBool("hardware.sim.absent", false)
		p.RtdFailures = c.GetInt("hardware.sim.rtd_failures", 0)
		p.DropReplies = c.GetInt("hardware.sim.drop_replies", 0)
		p.Caps.MfrName = uint16(c.GetInt("hardware.sim.mfr_name", int(p.Caps.MfrName)))
		p.Caps.ProductCode = uint16(c.GetInt("hardware.sim.product_code", int(p.Caps.ProductCode)))
		p.Caps.BitmapWidth = uint16(c.GetInt("hardware.sim.width", int(p.Caps.BitmapWidth)))
		p.Caps.BitmapHeight = uint16(c.GetInt("hardware.sim.height", int(p.Caps.BitmapHeight)))

		for k, v := range c.GetMap("hardware.sim.registers", nil) {
			reg, err := strconv.ParseUint(k, 0, 32)
			if err != nil {
				l.WithField("reg", k).Warn("Ignoring simulated register with a bad address")
				continue
			}
			val, err := strconv.ParseUint(fmt.Sprint(v), 0, 32)
			if err != nil {
				l.WithField("reg", k).Warn("Ignoring simulated register with a bad value")
				continue
			}
			p.Registers[uint32(reg)] = uint32(val)
		}
	})

	l.WithField("controller", cc.Name).Info("Using simulated controller")
	return s
}
