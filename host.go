package mddi

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mddilink/mddi/hw"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Host owns every controller of the system, keyed by controller index.
type Host struct {
	sync.RWMutex
	links map[int]*Link
	ctrls map[int]hw.Controller
}

func NewHost() *Host {
	return &Host{
		links: map[int]*Link{},
		ctrls: map[int]hw.Controller{},
	}
}

// Add registers a link and its controller and routes the controller's
// interrupts to the link.
func (h *Host) Add(link *Link, ctrl hw.Controller) error {
	h.Lock()
	defer h.Unlock()

	idx := link.Index()
	if _, ok := h.links[idx]; ok {
		return fmt.Errorf("controller %d is already registered", idx)
	}

	ctrl.SetHandler(link.ServiceInterrupt)
	h.links[idx] = link
	h.ctrls[idx] = ctrl
	return nil
}

// Link returns the link of controller idx.
func (h *Host) Link(idx int) (*Link, error) {
	h.RLock()
	defer h.RUnlock()

	l, ok := h.links[idx]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownController, idx)
	}
	return l, nil
}

func (h *Host) Controller(idx int) (hw.Controller, error) {
	h.RLock()
	defer h.RUnlock()

	c, ok := h.ctrls[idx]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownController, idx)
	}
	return c, nil
}

// Indexes lists the registered controller indexes in ascending order.
func (h *Host) Indexes() []int {
	h.RLock()
	keys := maps.Keys(h.links)
	h.RUnlock()

	slices.Sort(keys)
	return keys
}

// Close releases every controller that holds operating system resources, such
// as a mapped uio device. Controllers are closed in index order.
func (h *Host) Close() error {
	h.RLock()
	defer h.RUnlock()

	keys := maps.Keys(h.ctrls)
	slices.Sort(keys)

	var errs []error
	for _, idx := range keys {
		if err := closeController(h.ctrls[idx]); err != nil {
			errs = append(errs, fmt.Errorf("controller %d: %w", idx, err))
		}
	}
	return errors.Join(errs...)
}

func closeController(ctrl hw.Controller) error {
	if c, ok := ctrl.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
