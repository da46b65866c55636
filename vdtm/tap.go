// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package vdtm emulates a RISC-V JTAG Debug Transport Module (DTM) as
// specified by the RISC-V External Debug Support document, v0.13.2.
//
// It is bit-accurate: it consumes TCK/TMS/TDI line-level edges one at a
// time, exactly as a real TAP controller would see them, and produces
// TDO edges. DMI register accesses decoded out of the DR shifter are
// reported through two upcalls rather than being resolved locally; the
// resolution against a real Debug Module happens in package dmi.
package vdtm

// TapState is one of the sixteen states of the IEEE 1149.1 TAP controller.
type TapState uint8

const (
	StateReset TapState = iota
	StateRunTestIdle
	StateSelectDR
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIR
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR
)

func (s TapState) String() string {
	switch s {
	case StateReset:
		return "Test-Logic-Reset"
	case StateRunTestIdle:
		return "Run-Test/Idle"
	case StateSelectDR:
		return "Select-DR-Scan"
	case StateCaptureDR:
		return "Capture-DR"
	case StateShiftDR:
		return "Shift-DR"
	case StateExit1DR:
		return "Exit1-DR"
	case StatePauseDR:
		return "Pause-DR"
	case StateExit2DR:
		return "Exit2-DR"
	case StateUpdateDR:
		return "Update-DR"
	case StateSelectIR:
		return "Select-IR-Scan"
	case StateCaptureIR:
		return "Capture-IR"
	case StateShiftIR:
		return "Shift-IR"
	case StateExit1IR:
		return "Exit1-IR"
	case StatePauseIR:
		return "Pause-IR"
	case StateExit2IR:
		return "Exit2-IR"
	case StateUpdateIR:
		return "Update-IR"
	default:
		return "invalid"
	}
}

// tapTransition is the IEEE 1149.1 TAP state transition table. Index 0 is
// the TMS=0 successor, index 1 is the TMS=1 successor. Any state that isn't
// a key of this table (there are none, all sixteen are covered) would fall
// through to StateReset in stepTAP.
var tapTransition = [16][2]TapState{
	StateReset:        {StateRunTestIdle, StateReset},
	StateRunTestIdle:  {StateRunTestIdle, StateSelectDR},
	StateSelectDR:     {StateCaptureDR, StateSelectIR},
	StateCaptureDR:    {StateShiftDR, StateExit1DR},
	StateShiftDR:      {StateShiftDR, StateExit1DR},
	StateExit1DR:      {StatePauseDR, StateUpdateDR},
	StatePauseDR:      {StatePauseDR, StateExit2DR},
	StateExit2DR:      {StateShiftDR, StateUpdateDR},
	StateUpdateDR:     {StateRunTestIdle, StateSelectDR},
	StateSelectIR:     {StateCaptureIR, StateReset},
	StateCaptureIR:    {StateShiftIR, StateExit1IR},
	StateShiftIR:      {StateShiftIR, StateExit1IR},
	StateExit1IR:      {StatePauseIR, StateUpdateIR},
	StatePauseIR:      {StatePauseIR, StateExit2IR},
	StateExit2IR:      {StateShiftIR, StateUpdateIR},
	StateUpdateIR:     {StateRunTestIdle, StateSelectDR},
}

// stepTAP returns the state reached from cur on the given TMS value.
func stepTAP(cur TapState, tms bool) TapState {
	if int(cur) >= len(tapTransition) {
		return StateReset
	}
	idx := 0
	if tms {
		idx = 1
	}
	return tapTransition[cur][idx]
}
