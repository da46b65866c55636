// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// MPSSE is Multi-Protocol Synchronous Serial Engine
//
// MPSSE basics:
// http://www.ftdichip.com/Support/Documents/AppNotes/AN_135_MPSSE_Basics.pdf
//
// MPSSE and MCU emulation modes:
// http://www.ftdichip.com/Support/Documents/AppNotes/AN_108_Command_Processor_for_MPSSE_and_MCU_Host_Bus_Emulation_Modes.pdf
//
// Only the GPIO half of the command set is used here: the bridge drives
// SWCLK/SWDIO by bit-banging the C/D bus GPIOs rather than using the
// MPSSE engine's TDI/TDO/TMS serial shift commands, so the command bytes
// for those (and for the I²C/SPI/CPU-emulation command families) aren't
// implemented.

package ftdi

import (
	"context"
	"fmt"
	"time"
)

const (
	// GPIO operation.
	//
	// - Operates on 8 GPIOs at a time, e.g. C0~C7 or D0~D7.
	// - Direction 1 means output, 0 means input.
	//
	// <op>, <value>, <direction>
	gpioSetD byte = 0x80
	gpioSetC byte = 0x82
	// <op>, returns <value>
	gpioReadD byte = 0x81
	gpioReadC byte = 0x83

	// Internal loopback.
	//
	// Connects TDI and TDO together.
	internalLoopbackDisable byte = 0x85

	// Clock.
	//
	// The TCK/SK has a 50% duty cycle.
	//
	// The inactive clock state can be set via the gpioSetD command and control
	// bit 0.
	//
	// By default, the base clock is 6MHz via a 5x divisor. On
	// FT232H/FT2232H/FT4232H, the 5x divisor can be disabled.
	clock30MHz byte = 0x8A
	// Uses normal 2 phases data clocking.
	clock2Phase byte = 0x8D
	// Disables adaptive clocking.
	clockNormal byte = 0x97

	// Buffer operations.
	//
	// Flush the buffer back to the host.
	flush byte = 0x87
)

// InitMPSSE sets the device into MPSSE mode.
//
// This requires a f232h, ft2232, ft2232h or a ft4232h.
//
// The device is opened with Init first; InitMPSSE then switches it to MPSSE
// mode, calling Init again itself when the MPSSE controller does not verify.
func (h *handle) InitMPSSE() error {
	// http://www.ftdichip.com/Support/Documents/AppNotes/AN_255_USB%20to%20I2C%20Example%20using%20the%20FT232H%20and%20FT201X%20devices.pdf
	// Pre-state:
	// - Write EEPROM i.IsFifo = true so the device DBus is started in tristate.

	// Try to verify the MPSSE controller without initializing it first. This is
	// the 'happy path', which enables reusing the device is its current state
	// without affecting current GPIO state.
	if h.mpsseVerify() != nil {
		// Do a full reset. Just trying to set the MPSSE controller will
		// likely not work. That's a layering violation (since the retry with reset
		// is done in driver.go) but we've survived worse things...
		//
		// TODO(maruel): This is not helping in practice, this need to be fine
		// tuned.
		if err := h.Reset(); err != nil {
			return err
		}
		if err := h.Init(); err != nil {
			return err
		}
		// That does the magic thing.
		if err := h.SetBitMode(0, bitModeMpsse); err != nil {
			return err
		}
		if err := h.mpsseVerify(); err != nil {
			return err
		}
	}

	// Initialize MPSSE to a known state.
	// Reset the clock since it is impossible to read back the current clock rate.
	// Reset all the GPIOs are inputs since it is impossible to read back the
	// state of each GPIO (if they are input or output).
	cmd := []byte{
		clock30MHz, clockNormal, clock2Phase, internalLoopbackDisable,
		gpioSetC, 0x00, 0x00,
		gpioSetD, 0x00, 0x00,
	}
	if _, err := h.Write(cmd); err != nil {
		return err
	}
	// Success!!
	return nil
}

// mpsseVerify sends an invalid MPSSE command and verifies the returned value
// is incorrect.
//
// In practice this takes around 2ms.
func (h *handle) mpsseVerify() error {
	var b [2]byte
	for _, v := range []byte{0xAA, 0xAB} {
		// Write a bad command and ensure it returned correctly.
		// Unlike what the application note proposes, include a flush op right
		// after. Without the flush, the device will only flush after the delay
		// specified to SetLatencyTimer. The flush removes this unneeded wait,
		// which enables increasing the delay specified to SetLatencyTimer.
		b[0] = v
		b[1] = flush
		if _, err := h.Write(b[:]); err != nil {
			return fmt.Errorf("ftdi: MPSSE verification failed: %w", err)
		}
		p, e := h.h.GetQueueStatus()
		if e != 0 {
			return toErr("Read/GetQueueStatus", e)
		}
		if p != 2 {
			return fmt.Errorf("ftdi: MPSSE verification failed: expected 2 bytes reply, got %d bytes", p)
		}
		ctx, cancel := context200ms()
		defer cancel()
		if _, err := h.ReadAll(ctx, b[:]); err != nil {
			return fmt.Errorf("ftdi: MPSSE verification failed: %w", err)
		}
		// 0xFA means invalid command, 0xAA is the command echoed back.
		if b[0] != 0xFA || b[1] != v {
			return fmt.Errorf("ftdi: MPSSE verification failed test for byte %#x: %#x", v, b)
		}
	}
	return nil
}

//

// MPSSECBus operates on 8 GPIOs at a time C0~C7.
//
// Direction 1 means output, 0 means input.
func (h *handle) MPSSECBus(mask, value byte) error {
	b := [...]byte{gpioSetC, value, mask}
	_, err := h.Write(b[:])
	return err
}

// MPSSEDBus operates on 8 GPIOs at a time D0~D7.
//
// Direction 1 means output, 0 means input.
func (h *handle) MPSSEDBus(mask, value byte) error {
	b := [...]byte{gpioSetD, value, mask}
	_, err := h.Write(b[:])
	return err
}

// MPSSECBusRead reads all the CBus pins C0~C7.
func (h *handle) MPSSECBusRead() (byte, error) {
	b := [...]byte{gpioReadC, flush}
	if _, err := h.Write(b[:]); err != nil {
		return 0, err
	}
	ctx, cancel := context200ms()
	defer cancel()
	if _, err := h.ReadAll(ctx, b[:1]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// MPSSEDBusRead reads all the DBus pins D0~D7.
func (h *handle) MPSSEDBusRead() (byte, error) {
	b := [...]byte{gpioReadD, flush}
	if _, err := h.Write(b[:]); err != nil {
		return 0, err
	}
	ctx, cancel := context200ms()
	defer cancel()
	if _, err := h.ReadAll(ctx, b[:1]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func context200ms() (context.Context, func()) {
	return context.WithTimeout(context.Background(), 200*time.Millisecond)
}
