// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftdi

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/rvdbg/swdbridge/swd"
)

// SWDPins wraps two DBus GPIOs of an FT232R (synchronous bitbang) or an
// FT232H (MPSSE GPIO commands) as a swd.Pins implementation: clk drives SWCLK, data drives/samples SWDIO. Any
// two gpio.PinIO returned by a Dev's Header() work, but in practice these
// are f.D0/f.D1 on the bitbang-capable devices this package exposes.
type SWDPins struct {
	clk  gpio.PinIO
	data gpio.PinIO
}

// NewSWDPins builds a swd.Pins backend from two DBus pins. clk must support
// Out; data must support both In and Out.
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

// SetSpeed implements swd.Pins. The FTDI synchronous bitbang engine's
// per-bit latency is dominated by USB round trips rather than any
// configurable divisor, so this is a no-op; package swd's Bus still paces
// clockPulse() calls to the requested frequency.
func (s *SWDPins) SetSpeed(physic.Frequency) error {
	return nil
}

var _ swd.Pins = &SWDPins{}
