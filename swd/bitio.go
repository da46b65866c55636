// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package swd implements the physical bit I/O driver and packet framing
// for ARM Serial Wire Debug (component A and component B of the design).
// It is deliberately independent of any particular transport: callers
// supply a Pins implementation (an FTDI MPSSE channel, a Linux GPIO
// chardev line pair, a sysfs GPIO pair, or a test fake) and this package
// drives it bit-exactly per the ARM SWD protocol.
package swd

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Pins is the two-wire bus a Link drives: SWCLK (output only) and SWDIO
// (bidirectional, tri-statable). It is intentionally narrow so that any
// backend able to toggle two lines fast enough can implement it; see
// package ftdi, gpioioctl and sysfs for concrete implementations.
type Pins interface {
	// SetClock drives SWCLK to the given level.
	SetClock(l gpio.Level) error
	// DriveData configures SWDIO as an output and drives it to l.
	DriveData(l gpio.Level) error
	// TristateData configures SWDIO as a (pulled) input.
	TristateData() error
	// ReadData samples the current SWDIO level. Valid only after
	// TristateData.
	ReadData() gpio.Level
	// SetSpeed configures the approximate SWCLK frequency. Protocol
	// correctness never depends on the exact value, only on staying at or
	// below the target's maximum SWCLK, per spec.md §9.
	SetSpeed(f physic.Frequency) error
}

// defaultSpeed is the nominal bit-bang clock used when a caller doesn't
// request a specific one; it matches the ~5MHz figure in spec.md §4.A.
const defaultSpeed = 5 * physic.MegaHertz

// Bus is the bit I/O driver (component A): it shifts bits out on SWDIO,
// samples bits in from SWDIO, and emits clock-only turnaround cycles, all
// synchronized to SWCLK. Bus never reorders or buffers bits across calls;
// each primitive leaves SWCLK low on return, per spec.md §4.A.
type Bus struct {
	pins      Pins
	halfCycle time.Duration
}

// NewBus wraps pins with the half-cycle delay implied by speed. A zero
// speed selects defaultSpeed.
func NewBus(pins Pins, speed physic.Frequency) *Bus {
	if speed == 0 {
		speed = defaultSpeed
	}
	_ = pins.SetSpeed(speed)
	// physic.Frequency counts micro-hertz, so scale by Hertz first.
	period := time.Duration(int64(physic.Hertz) * int64(time.Second) / int64(speed))
	return &Bus{pins: pins, halfCycle: period / 2}
}

func (b *Bus) delay() {
	if b.halfCycle > 0 {
		time.Sleep(b.halfCycle)
	}
}

func (b *Bus) clockPulse() {
	_ = b.pins.SetClock(gpio.High)
	b.delay()
	_ = b.pins.SetClock(gpio.Low)
	b.delay()
}

// PutBits drives SWDIO as output and shifts out the low n bits of v,
// LSB-first, one per SWCLK cycle.
func (b *Bus) PutBits(v uint64, n int) {
	for i := 0; i < n; i++ {
		bit := (v >> uint(i)) & 1
		_ = b.pins.DriveData(boolLevel(bit != 0))
		b.clockPulse()
	}
}

// GetBits tri-states SWDIO and samples n bits, LSB-first, one per SWCLK
// cycle, returning them packed into the low n bits of the result.
func (b *Bus) GetBits(n int) uint64 {
	_ = b.pins.TristateData()
	var v uint64
	for i := 0; i < n; i++ {
		// Sample before the rising edge: the target drives SWDIO on its
		// falling edge, so the value is stable across our whole low phase.
		if b.pins.ReadData() == gpio.High {
			v |= 1 << uint(i)
		}
		b.clockPulse()
	}
	return v
}

// HiZClocks issues n SWCLK cycles with SWDIO tri-stated; used for
// turnarounds and the dead bits surrounding TARGETSEL.
func (b *Bus) HiZClocks(n int) {
	_ = b.pins.TristateData()
	for i := 0; i < n; i++ {
		b.clockPulse()
	}
}

func boolLevel(v bool) gpio.Level {
	if v {
		return gpio.High
	}
	return gpio.Low
}
