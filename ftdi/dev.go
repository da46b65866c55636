// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftdi

import (
	"context"
	"strconv"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Info is the information gathered about the connected FTDI device.
//
// The data is gathered from the USB descriptor.
type Info struct {
	// Opened is true if the device was successfully opened.
	Opened bool
	// Type is the FTDI device type.
	//
	// The value can be "FT232H", "FT232R", etc.
	//
	// An empty string means the type is unknown.
	Type string
	// VenID is the vendor ID from the USB descriptor information. It is expected
	// to be 0x0403 (FTDI).
	VenID uint16
	// DevID is the product ID from the USB descriptor information. It is
	// expected to be one of 0x6001, 0x6006, 0x6010, 0x6014.
	DevID uint16
}

// Dev represents one FTDI device.
//
// There can be multiple FTDI devices connected to a host.
//
// The GPIO header is the only thing this package exposes; cast into the
// concrete type (FT232H or FT232R) to drive a pair of its pins as SWD.
type Dev interface {
	// conn.Resource
	String() string
	Halt() error

	// Info returns information about an opened device.
	Info(i *Info)

	// Header returns the GPIO pins exposed on the chip.
	Header() []gpio.PinIO

	// SetSpeed sets the base clock for all I/O transactions.
	//
	// The device defaults to its fastest speed.
	SetSpeed(f physic.Frequency) error
}

// broken represents a device that couldn't be opened correctly.
//
// It returns an error message to help the user diagnose issues.
type broken struct {
	index int
	err   error
	name  string
}

func (b *broken) String() string {
	return b.name
}

func (b *broken) Halt() error {
	return nil
}

func (b *broken) Info(i *Info) {
	i.Opened = false
}

func (b *broken) Header() []gpio.PinIO {
	return nil
}

func (b *broken) SetSpeed(f physic.Frequency) error {
	return b.err
}

// generic represents a generic FTDI device.
//
// It is used for the models that this package doesn't fully support yet.
type generic struct {
	// Immutable after initialization.
	index int
	h     *handle
	name  string
}

func (f *generic) String() string {
	return f.name
}

// Halt implements conn.Resource.
//
// This halts all operations going through this device.
func (f *generic) Halt() error {
	return f.h.Reset()
}

// Info returns information about an opened device.
func (f *generic) Info(i *Info) {
	i.Opened = true
	i.Type = f.h.t.String()
	i.VenID = f.h.venID
	i.DevID = f.h.devID
}

// Header returns the GPIO pins exposed on the chip.
func (f *generic) Header() []gpio.PinIO {
	return nil
}

func (f *generic) SetSpeed(freq physic.Frequency) error {
	// TODO(maruel): Doc says the actual speed is 16x, confirm.
	return f.h.SetBaudRate(freq)
}

//

func newFT232H(g generic) (*FT232H, error) {
	f := &FT232H{
		generic: g,
		cbus:    gpiosMPSSE{h: g.h, cbus: true},
		dbus:    gpiosMPSSE{h: g.h},
		c8:      invalidPin{num: 16, n: g.name + ".C8"}, // , dp: gpio.PullUp
		c9:      invalidPin{num: 17, n: g.name + ".C9"}, // , dp: gpio.PullUp
	}
	f.cbus.init(f.name)
	f.dbus.init(f.name)

	for i := range f.dbus.pins {
		f.hdr[i] = &f.dbus.pins[i]
	}
	for i := range f.cbus.pins {
		f.hdr[i+8] = &f.cbus.pins[i]
	}
	// TODO(maruel): C8 and C9 can be used when their mux in the EEPROM is set to
	// ft232hCBusIOMode.
	f.hdr[16] = &f.c8
	f.hdr[17] = &f.c9
	f.D0 = f.hdr[0]
	f.D1 = &f.dbus.pins[1]
	f.D2 = f.hdr[2]
	f.D3 = f.hdr[3]
	f.D4 = f.hdr[4]
	f.D5 = f.hdr[5]
	f.D6 = f.hdr[6]
	f.D7 = f.hdr[7]
	f.C0 = f.hdr[8]
	f.C1 = f.hdr[9]
	f.C2 = f.hdr[10]
	f.C3 = f.hdr[11]
	f.C4 = f.hdr[12]
	f.C5 = f.hdr[13]
	f.C6 = f.hdr[14]
	f.C7 = f.hdr[15]
	f.C8 = f.hdr[16]
	f.C9 = f.hdr[17]

	// This function forces all pins as inputs.
	if err := f.h.InitMPSSE(); err != nil {
		return nil, err
	}
	return f, nil
}

// FT232H represents a FT232H device.
//
// It implements Dev.
//
// The FT232H has 1024 bytes output buffer and 1024 bytes input buffer. It
// supports 512 bytes USB packets.
//
// D0~D7 and C0~C7 are driven via the MPSSE GPIO-set/read commands, which
// gives every pin synchronized, glitch-free output and readback without
// needing the serial shift engine. This package only drives two of them
// (clock and data) as an SWD bit-bang port; see SWDPins.
//
// Each group of pins D0~D7 and C0~C7 can be changed at once in one pass via
// DBus() or CBus().
//
// This enables usage as an 8 bit parallel port.
//
// Pins C8 and C9 can only be used in 'slow' mode via EEPROM and are currently
// not implemented.
//
// # Datasheet
//
// http://www.ftdichip.com/Support/Documents/DataSheets/ICs/DS_FT232H.pdf
type FT232H struct {
	generic

	D0 gpio.PinIO // Clock output
	D1 gpio.PinIO // Data out
	D2 gpio.PinIO // Data in
	D3 gpio.PinIO // Chip select
	D4 gpio.PinIO
	D5 gpio.PinIO
	D6 gpio.PinIO
	D7 gpio.PinIO
	C0 gpio.PinIO
	C1 gpio.PinIO
	C2 gpio.PinIO
	C3 gpio.PinIO
	C4 gpio.PinIO
	C5 gpio.PinIO
	C6 gpio.PinIO
	C7 gpio.PinIO
	C8 gpio.PinIO // Not implemented
	C9 gpio.PinIO // Not implemented

	hdr  [18]gpio.PinIO
	cbus gpiosMPSSE
	dbus gpiosMPSSE
	c8   invalidPin // gpio.PullUp
	c9   invalidPin // gpio.PullUp
}

// Header returns the GPIO pins exposed on the chip.
func (f *FT232H) Header() []gpio.PinIO {
	out := make([]gpio.PinIO, len(f.hdr))
	copy(out, f.hdr[:])
	return out
}

func (f *FT232H) SetSpeed(freq physic.Frequency) error {
	// TODO(maruel): When using MPSEE, use the MPSEE command. If using sync
	// bit-bang, use SetBaudRate().

	// TODO(maruel): Doc says the actual speed is 16x, confirm.
	return f.h.SetBaudRate(freq)
}

// CBus sets the values of C0 to C7 in the specified direction and value.
//
// 0 direction means input, 1 means output.
func (f *FT232H) CBus(direction, value byte) error {
	return f.h.MPSSECBus(direction, value)
}

// DBus sets the values of D0 to d7 in the specified direction and value.
//
// 0 direction means input, 1 means output.
//
// This function must be used to set Clock idle level.
func (f *FT232H) DBus(direction, value byte) error {
	return f.h.MPSSEDBus(direction, value)
}

// CBusRead reads the values of C0 to C7.
func (f *FT232H) CBusRead() (byte, error) {
	return f.h.MPSSECBusRead()
}

// DBusRead reads the values of D0 to D7.
func (f *FT232H) DBusRead() (byte, error) {
	return f.h.MPSSEDBusRead()
}

//

func newFT232R(g generic) (*FT232R, error) {
	f := &FT232R{
		generic: g,
		dbus:    [...]dbusPinSync{{num: 0}, {num: 1}, {num: 2}, {num: 3}, {num: 4}, {num: 5}, {num: 6}, {num: 7}},
		cbus:    [...]cbusPin{{num: 8, p: gpio.PullUp}, {num: 9, p: gpio.PullUp}, {num: 10, p: gpio.PullUp}, {num: 11, p: gpio.Float}},
	}
	// Use the UART names, as this is how all FT232R boards are marked.
	dnames := [...]string{"TX", "RX", "RTS", "CTS", "DTR", "DSR", "DCD", "RI"}
	for i := range f.dbus {
		f.dbus[i].n = f.name + "." + dnames[i]
		f.dbus[i].bus = f
		f.hdr[i] = &f.dbus[i]
	}
	for i := range f.cbus {
		f.cbus[i].n = f.name + ".C" + strconv.Itoa(i)
		f.cbus[i].bus = f
		f.hdr[i+8] = &f.cbus[i]
	}
	f.D0 = f.hdr[0]
	f.D1 = f.hdr[1]
	f.D2 = f.hdr[2]
	f.D3 = f.hdr[3]
	f.D4 = f.hdr[4]
	f.D5 = f.hdr[5]
	f.D6 = f.hdr[6]
	f.D7 = f.hdr[7]
	f.TX = f.hdr[0]
	f.RX = f.hdr[1]
	f.RTS = f.hdr[2]
	f.CTS = f.hdr[3]
	f.DTR = f.hdr[4]
	f.DSR = f.hdr[5]
	f.DCD = f.hdr[6]
	f.RI = f.hdr[7]
	f.C0 = f.hdr[8]
	f.C1 = f.hdr[9]
	f.C2 = f.hdr[10]
	f.C3 = f.hdr[11]

	if err := f.h.InitNonMPSSE(); err != nil {
		return nil, err
	}

	// Default to 3MHz.
	if err := f.h.SetBaudRate(3 * physic.MegaHertz); err != nil {
		return nil, err
	}

	// Set all CBus pins as input.
	if err := f.h.SetBitMode(0, bitModeCbusBitbang); err != nil {
		return nil, err
	}
	// And read their value.
	// TODO(maruel): Sadly this is impossible to know which pin is input or
	// output, but we could try to guess, as the call above may generate noise on
	// the line which could interfere with the device connected.
	var err error
	if f.cbusnibble, err = f.h.GetBitMode(); err != nil {
		return nil, err
	}
	// Set all DBus as asynchronous bitbang, everything as input.
	if err := f.h.SetBitMode(0, bitModeAsyncBitbang); err != nil {
		return nil, err
	}
	// And read their value.
	var b [1]byte
	if _, err := f.h.ReadAll(context.Background(), b[:]); err != nil {
		return nil, err
	}
	f.dvalue = b[0]
	return f, nil
}

// FT232R represents a FT232RL/FT232RQ device.
//
// It implements Dev.
//
// Not all pins may be physically connected on the header!
//
// Adafruit's version only has the following pins connected: RX, TX, RTS and
// CTS.
//
// SparkFun's version exports all pins *except* (inexplicably) the CBus ones.
//
// The FT232R has 128 bytes output buffer and 256 bytes input buffer.
//
// Pin C4 can only be used in 'slow' mode via EEPROM and is currently not
// implemented.
//
// # Datasheet
//
// http://www.ftdichip.com/Support/Documents/DataSheets/ICs/DS_FT232R.pdf
type FT232R struct {
	generic

	// Pin and their alias to the Dn pins for user convenience. Each pair points
	// to the exact same pin.
	D0, TX  gpio.PinIO // Transmit
	D1, RX  gpio.PinIO // Receive
	D2, RTS gpio.PinIO // Request To Send Control Output / Handshake signal
	D3, CTS gpio.PinIO // Clear to Send Control input / Handshake signal
	D4, DTR gpio.PinIO // Data Terminal Ready Control Output / Handshake signal
	D5, DSR gpio.PinIO // Data Set Ready Control Input / Handshake signal
	D6, DCD gpio.PinIO // Data Carrier Detect Control input
	D7, RI  gpio.PinIO // Ring Indicator Control Input. When remote wake up is enabled in the internal EEPROM taking RI# low can be used to resume the PC USB host controller from suspend.

	// The CBus pins are slower to use, but can drive an high load, like a LED.
	C0 gpio.PinIO
	C1 gpio.PinIO
	C2 gpio.PinIO
	C3 gpio.PinIO

	dbus [8]dbusPinSync
	cbus [4]cbusPin
	hdr  [12]gpio.PinIO

	// Mutable.
	mu         sync.Mutex
	dmask      uint8 // 0 input, 1 output
	dvalue     uint8
	cbusnibble uint8 // upper nibble is I/O control, lower nibble is values.
}

// Header returns the GPIO pins exposed on the chip.
func (f *FT232R) Header() []gpio.PinIO {
	out := make([]gpio.PinIO, len(f.hdr))
	copy(out, f.hdr[:])
	return out
}

// dbusSyncGPIOFunc implements dbusSync. It returns the function of a GPIO
// pin.
func (f *FT232R) dbusSyncGPIOFunc(n int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	mask := uint8(1 << uint(n))
	if f.dmask&mask != 0 {
		return "Out/" + gpio.Level(f.dvalue&mask != 0).String()
	}
	return "In/" + f.dbusSyncReadLocked(n).String()
}

// dbusSyncGPIOIn implements dbusSync.
func (f *FT232R) dbusSyncGPIOIn(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mask := uint8(1 << uint(n))
	if f.dmask&mask == 0 {
		// Already input.
		return nil
	}
	v := f.dmask &^ mask
	if err := f.h.SetBitMode(v, bitModeAsyncBitbang); err != nil {
		return err
	}
	f.dmask = v
	return nil
}

// dbusSyncGPIORead implements dbusSync.
func (f *FT232R) dbusSyncGPIORead(n int) gpio.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dbusSyncReadLocked(n)
}

func (f *FT232R) dbusSyncReadLocked(n int) gpio.Level {
	// In synchronous mode, to read we must write first to for a sample.
	b := [1]byte{f.dvalue}
	if _, err := f.h.Write(b[:]); err != nil {
		return gpio.Low
	}
	mask := uint8(1 << uint(n))
	if _, err := f.h.ReadAll(context.Background(), b[:]); err != nil {
		return gpio.Low
	}
	f.dvalue = b[0]
	return f.dvalue&mask != 0
}

// dbusSyncGPIOOut implements dbusSync.
func (f *FT232R) dbusSyncGPIOOut(n int, l gpio.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mask := uint8(1 << uint(n))
	if f.dmask&mask == 0 {
		// Was input.
		v := f.dmask | mask
		if err := f.h.SetBitMode(v, bitModeAsyncBitbang); err != nil {
			return err
		}
		f.dmask = v
	}
	return f.dbusSyncGPIOOutLocked(n, l)
}

func (f *FT232R) dbusSyncGPIOOutLocked(n int, l gpio.Level) error {
	mask := uint8(1 << uint(n))
	v := f.dvalue &^ mask
	if l {
		v |= mask
	}
	b := [1]byte{v}
	if _, err := f.h.Write(b[:]); err != nil {
		return err
	}
	f.dvalue = v
	// In synchronous mode, we must read after writing to flush the buffer.
	if _, err := f.h.ReadAll(context.Background(), b[:]); err != nil {
		return err
	}
	return nil
}

// cBusGPIOFunc implements cBusGPIO.
func (f *FT232R) cBusGPIOFunc(n int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmask := uint8(0x10 << uint(n))
	vmask := uint8(1 << uint(n))
	if f.cbusnibble&fmask != 0 {
		return "Out/" + gpio.Level(f.cbusnibble&vmask != 0).String()
	}
	return "In/" + f.cBusReadLocked(n).String()
}

// cBusGPIOIn implements cBusGPIO.
func (f *FT232R) cBusGPIOIn(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmask := uint8(0x10 << uint(n))
	if f.cbusnibble&fmask == 0 {
		// Already input.
		return nil
	}
	v := f.cbusnibble &^ fmask
	if err := f.h.SetBitMode(v, bitModeCbusBitbang); err != nil {
		return err
	}
	f.cbusnibble = v
	return nil
}

// cBusGPIORead implements cBusGPIO.
func (f *FT232R) cBusGPIORead(n int) gpio.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cBusReadLocked(n)
}

func (f *FT232R) cBusReadLocked(n int) gpio.Level {
	v, err := f.h.GetBitMode()
	if err != nil {
		return gpio.Low
	}
	f.cbusnibble = v
	vmask := uint8(1 << uint(n))
	return f.cbusnibble&vmask != 0
}

// cBusGPIOOut implements cBusGPIO.
func (f *FT232R) cBusGPIOOut(n int, l gpio.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmask := uint8(0x10 << uint(n))
	vmask := uint8(1 << uint(n))
	v := f.cbusnibble | fmask
	if l {
		v |= vmask
	} else {
		v &^= vmask
	}
	if f.cbusnibble == v {
		// Was already in the right mode.
		return nil
	}
	if err := f.h.SetBitMode(v, bitModeCbusBitbang); err != nil {
		return err
	}
	f.cbusnibble = v
	return nil
}

//

var _ conn.Resource = Dev(nil)
