// Package hw describes the register interface of an MDDI host controller and
// the backends that can drive one.
package hw

import (
	"errors"
	"fmt"
)

// Bus is a 32-bit register window of one host controller.
type Bus interface {
	Read(reg uint32) uint32
	Write(reg uint32, v uint32)
}

// Handler is invoked from the interrupt domain each time the controller
// raises its interrupt line. It must not block.
type Handler func()

// Controller is a Bus that can also deliver interrupts.
type Controller interface {
	Bus

	// SetHandler installs the interrupt handler. Must be called before Run.
	SetHandler(h Handler)

	// Run delivers interrupts to the handler until done is closed.
	Run(done <-chan struct{}) error

	// Memory returns the DMA region shared with the controller.
	Memory() *Memory
}

var ErrOutOfRange = errors.New("address outside of dma region")

// Memory is a physically contiguous, pre-allocated DMA region. Buf[0] lives at
// bus address Addr.
type Memory struct {
	Addr uint32
	Buf  []byte
}

// NewMemory wraps buf as a DMA region starting at bus address addr.
func NewMemory(addr uint32, buf []byte) *Memory {
	return &Memory{Addr: addr, Buf: buf}
}

// Slice returns n bytes starting at bus address addr.
func (m *Memory) Slice(addr uint32, n int) ([]byte, error) {
	if addr < m.Addr {
		return nil, fmt.Errorf("%w: %#x", ErrOutOfRange, addr)
	}
	off := uint64(addr - m.Addr)
	if off+uint64(n) > uint64(len(m.Buf)) {
		return nil, fmt.Errorf("%w: %#x+%d", ErrOutOfRange, addr, n)
	}
	return m.Buf[off : off+uint64(n)], nil
}

// BusAddr returns the bus address of byte offset off.
func (m *Memory) BusAddr(off int) uint32 {
	return m.Addr + uint32(off)
}
