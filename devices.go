package mddi

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// deviceRegistry is the Publisher used by the daemon. It keeps what was
// published so it can be listed and logged.
type deviceRegistry struct {
	sync.Mutex
	l       *logrus.Logger
	clients map[string]*Client
	panels  map[string]*Panel
}

func newDeviceRegistry(l *logrus.Logger) *deviceRegistry {
	return &deviceRegistry{
		l:       l,
		clients: map[string]*Client{},
		panels:  map[string]*Panel{},
	}
}

func (r *deviceRegistry) PublishClient(c *Client) error {
	r.Lock()
	defer r.Unlock()
	r.clients[c.Link.Name()+"/"+c.Name] = c
	r.l.WithFields(logrus.Fields{
		"controller": c.Link.Name(),
		"client":     c.Name,
		"width":      c.Caps.BitmapWidth,
		"height":     c.Caps.BitmapHeight,
	}).Info("Client published")
	return nil
}

func (r *deviceRegistry) PublishPanel(p *Panel) error {
	r.Lock()
	defer r.Unlock()
	r.panels[p.Link.Name()+"/"+p.Name] = p
	r.l.WithFields(logrus.Fields{
		"controller": p.Link.Name(),
		"panel":      p.Name,
	}).Info("Panel published")
	return nil
}

func (r *deviceRegistry) listClients() []*Client {
	r.Lock()
	defer r.Unlock()
	keys := maps.Keys(r.clients)
	slices.Sort(keys)

	out := make([]*Client, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.clients[k])
	}
	return out
}

func (r *deviceRegistry) listPanels() []*Panel {
	r.Lock()
	defer r.Unlock()
	keys := maps.Keys(r.panels)
	slices.Sort(keys)

	out := make([]*Panel, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.panels[k])
	}
	return out
}
