package mddi

import (
	"github.com/mddilink/mddi/packet"
)

// PowerHooks are the board callbacks around a link. Any of them may be nil.
type PowerHooks struct {
	// ClientPower switches the supply of the client device.
	ClientPower func(on bool)
	// Enable is called once a client is published and around suspend.
	Enable func(p *Panel, on bool)
	// PanelPower is the default panel power control.
	PanelPower func(p *Panel, on bool)
}

// Publisher receives the devices a link discovers.
type Publisher interface {
	PublishClient(c *Client) error
	PublishPanel(p *Panel) error
}

// Client is the device published once a peer answered bring-up. Its name is
// what client drivers bind to.
type Client struct {
	Name string
	Link *Link
	Caps packet.ClientCaps
}

// PanelOps is implemented by the client driver that owns the display.
type PanelOps struct {
	Enable    func(p *Panel) error
	Disable   func(p *Panel) error
	WaitVsync func(p *Panel)
	Power     func(p *Panel, on bool)
}

// Panel describes the display behind a client.
type Panel struct {
	Name   string
	Link   *Link
	Width  uint16
	Height uint16
	Ops    *PanelOps
}

// AddPanel registers the single panel of a link and publishes it. Without a
// vsync interrupt the panel can not wait for vsync, and a panel without its
// own power control falls back to the board hook.
func (l *Link) AddPanel(ops *PanelOps) error {
	l.l.WithField("client", l.clientName()).Info("Adding panel")
	if ops == nil {
		return ErrNoPanelOps
	}
	if l.client == nil {
		return ErrNoClient
	}
	if l.panel.Ops != nil {
		return ErrPanelRegistered
	}

	if !l.cfg.HasVsyncIrq {
		ops.WaitVsync = nil
	}
	if ops.Power == nil {
		ops.Power = l.powerPanel
	}
	l.panel.Ops = ops

	l.l.WithField("panel", l.panel.Name).Info("Publishing panel")
	if l.publisher == nil {
		return nil
	}
	return l.publisher.PublishPanel(&l.panel)
}

// Panel is the panel of the link. Ops is nil until AddPanel was called.
func (l *Link) Panel() *Panel {
	return &l.panel
}

func (l *Link) powerPanel(p *Panel, on bool) {
	if l.hooks.PanelPower != nil {
		l.hooks.PanelPower(p, on)
	}
}

func (l *Link) clientName() string {
	if l.client == nil {
		return ""
	}
	return l.client.Name
}
