//go:build !linux

package uio

import (
	"errors"

	"github.com/mddilink/mddi/hw"
	"github.com/sirupsen/logrus"
)

type Device struct{}

func Open(_ *logrus.Logger, _ string) (*Device, error) {
	return nil, errors.New("uio devices are only supported on linux")
}

func (d *Device) Read(uint32) uint32 { return 0 }
func (d *Device) Write(uint32, uint32) {}
func (d *Device) Memory() *hw.Memory { return nil }
func (d *Device) SetHandler(hw.Handler) {}
func (d *Device) Run(<-chan struct{}) error { return errors.New("not supported") }
func (d *Device) Close() error { return nil }
