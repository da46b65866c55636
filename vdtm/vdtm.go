// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vdtm

import "periph.io/x/conn/v3/gpio"

// Instruction register values recognised by the DTM. Anything else
// collapses to 1-bit BYPASS, per the RISC-V debug spec and spec.md §4.E.
const (
	irBypass uint8 = 0x00
	irIDCODE uint8 = 0x01
	irDTMCS  uint8 = 0x10
	irDMI    uint8 = 0x11
)

const (
	// wIR is the fixed width of the instruction register.
	wIR = 5
	// abits is the DMI address width (the RISC-V debug spec calls this
	// "abits"); fixed at 8 for this DTM.
	abits = 8
	// wDMI is the width of the DMI data register: abits + 32 (data) + 2 (op).
	wDMI = abits + 32 + 2

	dtmcsVersion = 1
)

// DMIWriteFunc is invoked once per UPDATE-DR with op==2 (write), with the
// address and data fields decoded from the DMI shift register.
type DMIWriteFunc func(addr uint8, data uint32)

// DMIReadFunc is invoked once per UPDATE-DR with op==1 (read). Its return
// value is latched into dmi_rdata for the following CAPTURE-DR.
type DMIReadFunc func(addr uint8) uint32

// VDTM is a bit-accurate emulation of a RISC-V JTAG DTM (debug spec
// v0.13.2). It is driven one TCK edge at a time through the Set*/Get
// methods (component F, the "pin interface") and never blocks.
//
// A VDTM is not safe for concurrent use; the caller must serialize all
// calls, exactly as a real TAP controller is driven by a single clock.
type VDTM struct {
	idcode uint32

	ir      uint8
	shifter uint64
	state   TapState

	dmiRData uint32

	tck, tms, tdi gpio.Level
	tdo           gpio.Level

	onWrite DMIWriteFunc
	onRead  DMIReadFunc
}

// New creates a VDTM that reports idcode on IDCODE capture and TAP reset.
// idcode is fixed for the life of the instance, per spec.md §3.
func New(idcode uint32) *VDTM {
	return &VDTM{
		idcode: idcode,
		ir:     irIDCODE,
		state:  StateReset,
	}
}

// BindDMI attaches the upcalls invoked when a DMI UPDATE-DR is shifted
// in. Either may be left nil (the default), in which case the
// corresponding DMI op is silently dropped, per spec.md §6.
func (v *VDTM) BindDMI(onRead DMIReadFunc, onWrite DMIWriteFunc) {
	v.onRead = onRead
	v.onWrite = onWrite
}

// State returns the current TAP controller state.
func (v *VDTM) State() TapState { return v.state }

// IR returns the current instruction register contents.
func (v *VDTM) IR() uint8 { return v.ir }

// SetTMS stores the TMS line level. It takes effect on the next rising
// edge of TCK.
func (v *VDTM) SetTMS(level gpio.Level) { v.tms = level }

// SetTDI stores the TDI line level. It takes effect on the next rising
// edge of TCK.
func (v *VDTM) SetTDI(level gpio.Level) { v.tdi = level }

// GetTDO returns the latched TDO line level.
func (v *VDTM) GetTDO() gpio.Level { return v.tdo }

// SetTCK is the TCK edge detector (component F). On a rising edge it runs
// one TAP cycle (state action, then the FSM transition); on a falling
// edge it refreshes TDO from the state reached by the most recent rising
// edge. Both edges' work happens synchronously and return before SetTCK
// returns — the DMI transaction triggered by a DMI UPDATE-DR is therefore
// complete by the time the TCK cycle that caused it returns.
func (v *VDTM) SetTCK(level gpio.Level) {
	rising := v.tck == gpio.Low && level == gpio.High
	falling := v.tck == gpio.High && level == gpio.Low
	if rising {
		v.tick()
	}
	if falling {
		v.refreshTDO()
	}
	v.tck = level
}

// dmiLen returns the DR width selected by ir, per spec.md §3.
func dmiLen(ir uint8) int {
	switch ir {
	case irIDCODE, irDTMCS:
		return 32
	case irDMI:
		return wDMI
	default:
		return 1
	}
}

func boolLevel(b bool) gpio.Level {
	if b {
		return gpio.High
	}
	return gpio.Low
}

// tick runs the state-specific action for the current state (using the
// levels latched by the most recent SetTMS/SetTDI), then advances the TAP
// FSM on TMS.
func (v *VDTM) tick() {
	tdiBit := v.tdi == gpio.High
	tmsBit := v.tms == gpio.High

	switch v.state {
	case StateReset:
		v.ir = irIDCODE
	case StateCaptureIR:
		v.shifter = uint64(v.ir)
	case StateShiftIR:
		v.shifter = (v.shifter >> 1)
		if tdiBit {
			v.shifter |= 1 << (wIR - 1)
		}
	case StateUpdateIR:
		v.ir = uint8(v.shifter) & 0x1F
	case StateCaptureDR:
		v.captureDR()
	case StateShiftDR:
		n := dmiLen(v.ir)
		v.shifter >>= 1
		if tdiBit {
			v.shifter |= 1 << (n - 1)
		}
	case StateUpdateDR:
		v.updateDR()
	}

	v.state = stepTAP(v.state, tmsBit)
	// Entering Test-Logic-Reset clobbers IR, not only dwelling in it.
	if v.state == StateReset {
		v.ir = irIDCODE
	}
}

// captureDR loads the shifter for S_CAPTURE_DR, per spec.md §4.E.
func (v *VDTM) captureDR() {
	switch v.ir {
	case irBypass:
		v.shifter = 0
	case irIDCODE:
		v.shifter = uint64(v.idcode)
	case irDTMCS:
		v.shifter = dtmcsVersion | (abits << 4)
	case irDMI:
		v.shifter = uint64(v.dmiRData) << 2
	default:
		// BYPASS-equivalent: leave shifter untouched.
	}
}

// updateDR dispatches on ir for S_UPDATE_DR, per spec.md §4.E.
func (v *VDTM) updateDR() {
	switch v.ir {
	case irDTMCS:
		// DTMCS writes (dmireset/dmihardreset) are not honoured; see spec.md §9.
	case irDMI:
		op := uint8(v.shifter & 0x3)
		data := uint32((v.shifter >> 2) & 0xFFFFFFFF)
		addr := uint8((v.shifter >> 34) & ((1 << abits) - 1))
		switch op {
		case 1: // read
			if v.onRead != nil {
				v.dmiRData = v.onRead(addr)
			}
		case 2: // write
			if v.onWrite != nil {
				v.onWrite(addr, data)
			}
		}
	}
}

// refreshTDO implements the TDO update policy of spec.md §4.F: TDO is
// refreshed on the falling edge of TCK from the state reached by the most
// recent rising edge.
func (v *VDTM) refreshTDO() {
	switch v.state {
	case StateShiftDR, StateShiftIR:
		v.tdo = boolLevel(v.shifter&1 != 0)
	default:
		v.tdo = gpio.Low
	}
}
