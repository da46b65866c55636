// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpioioctl

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/rvdbg/swdbridge/swd"
)

// SWDPins wraps two chardev GPIOLines as a swd.Pins implementation: clk
// drives SWCLK, data drives/samples SWDIO.
type SWDPins struct {
	clk  gpio.PinIO
	data gpio.PinIO
}

// NewSWDPins builds a swd.Pins backend from two lines, typically obtained
// via GPIOChip.ByName for the board's SWCLK/SWDIO headers.
func NewSWDPins(clk, data gpio.PinIO) *SWDPins {
	return &SWDPins{clk: clk, data: data}
}

// SetClock implements swd.Pins.
func (s *SWDPins) SetClock(l gpio.Level) error {
	return s.clk.Out(l)
}

// DriveData implements swd.Pins.
func (s *SWDPins) DriveData(l gpio.Level) error {
	return s.data.Out(l)
}

// TristateData implements swd.Pins.
func (s *SWDPins) TristateData() error {
	return s.data.In(gpio.PullUp, gpio.NoEdge)
}

// ReadData implements swd.Pins.
func (s *SWDPins) ReadData() gpio.Level {
	return s.data.Read()
}

// SetSpeed implements swd.Pins. The chardev ioctl path has no clock
// divisor of its own; package swd's Bus paces clockPulse() in software.
func (s *SWDPins) SetSpeed(physic.Frequency) error {
	return nil
}

var _ swd.Pins = &SWDPins{}
