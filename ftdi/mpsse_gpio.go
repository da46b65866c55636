// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// gpioMPSSE is the pin type behind FT232H.D0-D7/C0-C7: SWDPins (swd.go)
// drives two of these directly as SWCLK/SWDIO bit-bang lines, switching
// In()/Out() per bit the way a JTAG/SWD link turns its data line around.

package ftdi

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// gpiosMPSSE is a slice of 8 GPIO pins driven via MPSSE.
//
// This permits keeping a cache.
type gpiosMPSSE struct {
	// Immutable.
	h    *handle
	cbus bool // false if D bus
	pins [8]gpioMPSSE

	// Cache of values
	direction byte
	value     byte
}

func (g *gpiosMPSSE) init(name string) {
	s := "D"
	if g.cbus {
		s = "C"
	}
	// Configure pulls; pull ups are 75kΩ.
	// http://www.ftdichip.com/Support/Documents/AppNotes/AN_184%20FTDI%20Device%20Input%20Output%20Pin%20States.pdf
	// has a good table.
	// D0, D2 and D4 go in high impedance before going into pull up.
	// The actual pull is configurable per chip in the FTDI EEPROM; this
	// bridge never reads it back, so it assumes every pin ships at its
	// documented factory default.
	for i := range g.pins {
		g.pins[i].a = g
		g.pins[i].n = name + "." + s + strconv.Itoa(i)
		g.pins[i].num = i
		g.pins[i].dp = gpio.PullUp
	}
	if g.cbus {
		// Factory-default EEPROM value for C7.
		g.pins[7].dp = gpio.PullDown
	}
}

func (g *gpiosMPSSE) in(n int) error {
	if g.h == nil {
		return errors.New("d2xx: device not open")
	}
	g.direction = g.direction & ^(1 << uint(n))
	if g.cbus {
		return g.h.MPSSECBus(g.direction, g.value)
	}
	return g.h.MPSSEDBus(g.direction, g.value)
}

func (g *gpiosMPSSE) read() (byte, error) {
	if g.h == nil {
		return 0, errors.New("d2xx: device not open")
	}
	var err error
	if g.cbus {
		g.value, err = g.h.MPSSECBusRead()
	} else {
		g.value, err = g.h.MPSSEDBusRead()
	}
	return g.value, err
}

func (g *gpiosMPSSE) out(n int, l gpio.Level) error {
	if g.h == nil {
		return errors.New("d2xx: device not open")
	}
	g.direction = g.direction | (1 << uint(n))
	if l {
		g.value |= 1 << uint(n)
	} else {
		g.value &^= 1 << uint(n)
	}
	if g.cbus {
		return g.h.MPSSECBus(g.direction, g.value)
	}
	return g.h.MPSSEDBus(g.direction, g.value)
}

//

// gpioMPSSE is a GPIO pin on a FTDI device driven via MPSSE.
//
// gpioMPSSE implements gpio.PinIO.
//
// It is immutable and stateless.
type gpioMPSSE struct {
	a   *gpiosMPSSE
	n   string
	num int
	dp  gpio.Pull
}

// String implements pin.Pin.
func (g *gpioMPSSE) String() string {
	return g.n
}

// Name implements pin.Pin.
func (g *gpioMPSSE) Name() string {
	return g.n
}

// Number implements pin.Pin.
func (g *gpioMPSSE) Number() int {
	return g.num
}

// Function implements pin.Pin.
func (g *gpioMPSSE) Function() string {
	s := "Out/"
	m := byte(1 << uint(g.num))
	if g.a.direction&m == 0 {
		s = "In/"
		_, _ = g.a.read()
	}
	return s + gpio.Level(g.a.value&m != 0).String()
}

// Halt implements gpio.PinIO.
func (g *gpioMPSSE) Halt() error {
	return nil
}

// In implements gpio.PinIn.
func (g *gpioMPSSE) In(pull gpio.Pull, e gpio.Edge) error {
	if e != gpio.NoEdge {
		// We could support it on D5.
		return errors.New("d2xx: edge triggering is not supported")
	}
	if pull != g.dp && pull != gpio.PullNoChange {
		// The GPIO-only command set this bridge uses can't reconfigure a
		// pin's pull; it's fixed by EEPROM at In()'s default.
		return fmt.Errorf("d2xx: pull %s is not supported; try %s", pull, g.dp)
	}
	return g.a.in(g.num)
}

// Read implements gpio.PinIn.
func (g *gpioMPSSE) Read() gpio.Level {
	v, _ := g.a.read()
	return gpio.Level(v&(1<<uint(g.num)) != 0)
}

// WaitForEdge implements gpio.PinIn.
func (g *gpioMPSSE) WaitForEdge(t time.Duration) bool {
	return false
}

// DefaultPull implements gpio.PinIn.
func (g *gpioMPSSE) DefaultPull() gpio.Pull {
	return g.dp
}

// Pull implements gpio.PinIn. The resistor is 75kΩ.
func (g *gpioMPSSE) Pull() gpio.Pull {
	// See In() for the challenges.
	return g.dp
}

// Out implements gpio.PinOut.
func (g *gpioMPSSE) Out(l gpio.Level) error {
	return g.a.out(g.num, l)
}

// PWM implements gpio.PinOut.
func (g *gpioMPSSE) PWM(d gpio.Duty, f physic.Frequency) error {
	return errors.New("d2xx: not implemented")
}

var _ gpio.PinIO = &gpioMPSSE{}
