//go:build linux

// Package uio drives a host controller exposed through the Linux userspace I/O
// framework. Map 0 of the device is the register window, map 1 the DMA region
// reserved for the reverse ring and descriptor slots.
package uio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/mddilink/mddi/hw"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const pollInterval = 100 // milliseconds

type Device struct {
	name    string
	fd      int
	regs    []byte
	dma     []byte
	mem     *hw.Memory
	handler hw.Handler
	l       *logrus.Logger
}

// Open maps the register and dma windows of /dev/<name>, e.g. "uio0".
func Open(l *logrus.Logger, name string) (*Device, error) {
	path := filepath.Join("/dev", name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	d := &Device{name: name, fd: fd, l: l}
	d.regs, err = d.mapRegion(0)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.dma, err = d.mapRegion(1)
	if err != nil {
		d.Close()
		return nil, err
	}

	addr, err := d.mapAttr(1, "addr")
	if err != nil {
		d.Close()
		return nil, err
	}
	d.mem = hw.NewMemory(uint32(addr), d.dma)

	return d, nil
}

func (d *Device) mapAttr(index int, attr string) (uint64, error) {
	p := fmt.Sprintf("/sys/class/uio/%s/maps/map%d/%s", d.name, index, attr)
	b, err := os.ReadFile(p)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", p, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", p, err)
	}
	return v, nil
}

func (d *Device) mapRegion(index int) ([]byte, error) {
	size, err := d.mapAttr(index, "size")
	if err != nil {
		return nil, err
	}

	// uio selects the map through the page-scaled mmap offset
	b, err := unix.Mmap(d.fd, int64(index*os.Getpagesize()), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap of %s map%d: %w", d.name, index, err)
	}
	return b, nil
}

func (d *Device) reg(off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&d.regs[off]))
}

func (d *Device) Read(reg uint32) uint32 {
	return atomic.LoadUint32(d.reg(reg))
}

func (d *Device) Write(reg uint32, v uint32) {
	atomic.StoreUint32(d.reg(reg), v)
}

func (d *Device) Memory() *hw.Memory {
	return d.mem
}

func (d *Device) SetHandler(h hw.Handler) {
	d.handler = h
}

// Run blocks on the uio file descriptor and calls the handler once per
// interrupt, re-enabling the line afterwards.
func (d *Device) Run(done <-chan struct{}) error {
	if d.handler == nil {
		return fmt.Errorf("%s: no interrupt handler installed", d.name)
	}

	buf := make([]byte, 4)
	binary.NativeEndian.PutUint32(buf, 1)
	if _, err := unix.Write(d.fd, buf); err != nil {
		return fmt.Errorf("%s: enabling interrupt: %w", d.name, err)
	}

	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for {
		select {
		case <-done:
			return nil
		default:
		}

		n, err := unix.Poll(fds, pollInterval)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: poll: %w", d.name, err)
		}
		if n == 0 {
			continue
		}

		if _, err := unix.Read(d.fd, buf); err != nil {
			return fmt.Errorf("%s: reading interrupt count: %w", d.name, err)
		}
		if d.l.IsLevelEnabled(logrus.TraceLevel) {
			d.l.WithField("device", d.name).WithField("count", binary.NativeEndian.Uint32(buf)).Trace("Interrupt")
		}

		d.handler()

		binary.NativeEndian.PutUint32(buf, 1)
		if _, err := unix.Write(d.fd, buf); err != nil {
			return fmt.Errorf("%s: re-enabling interrupt: %w", d.name, err)
		}
	}
}

func (d *Device) Close() error {
	if d.regs != nil {
		unix.Munmap(d.regs)
		d.regs = nil
	}
	if d.dma != nil {
		unix.Munmap(d.dma)
		d.dma = nil
	}
	if d.fd >= 0 {
		err := unix.Close(d.fd)
		d.fd = -1
		return err
	}
	return nil
}
