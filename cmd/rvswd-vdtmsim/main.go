// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command rvswd-vdtmsim drives an in-process vdtm.VDTM through a fixed
// JTAG bit sequence and reports every DMI upcall it triggers. It exists
// to exercise the VDTM's TAP FSM and register semantics (spec.md §8
// scenarios 1 and 2: an IDCODE scan and a DMI write) without any physical
// JTAG transport attached.
package main

import (
	"flag"
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio"

	"github.com/rvdbg/swdbridge/vdtm"
)

func main() {
	idcode := flag.Uint64("idcode", 0xdeadbeef, "IDCODE the simulated VDTM reports")
	dmiAddr := flag.Uint64("dmi-addr", 0x10, "DMI address to write")
	dmiData := flag.Uint64("dmi-data", 0x1, "DMI data to write")
	flag.Parse()

	v := vdtm.New(uint32(*idcode))
	v.BindDMI(
		func(addr uint8) uint32 {
			log.Printf("dmi_read(%#x)", addr)
			return 0
		},
		func(addr uint8, data uint32) {
			log.Printf("dmi_write(%#x, %#x)", addr, data)
		},
	)

	drive(v, scanIDCODE(v, uint32(*idcode)))
	drive(v, writeDMI(v, uint8(*dmiAddr), uint32(*dmiData)))
}

// clockOnce drives one full TCK cycle and returns the sampled TDO bit, the
// same shape an external bit-bang transport would use against the VDTM's
// pin interface (component F).
func clockOnce(v *vdtm.VDTM, tms, tdi bool) bool {
	set := func(b bool) gpio.Level {
		if b {
			return gpio.High
		}
		return gpio.Low
	}
	v.SetTMS(set(tms))
	v.SetTDI(set(tdi))
	v.SetTCK(gpio.High)
	v.SetTCK(gpio.Low)
	return v.GetTDO() == gpio.High
}

// step is one (tms, tdi) pair of a pre-scripted bit sequence.
type step struct {
	tms, tdi bool
}

func drive(v *vdtm.VDTM, steps []step) {
	for _, s := range steps {
		clockOnce(v, s.tms, s.tdi)
	}
}

func resetSteps() []step {
	s := make([]step, 5)
	for i := range s {
		s[i] = step{tms: true}
	}
	return s
}

func scanIDCODE(v *vdtm.VDTM, want uint32) []step {
	var s []step
	s = append(s, resetSteps()...)
	s = append(s, step{}, step{tms: true}, step{}, step{}) // -> Shift-DR
	for i := 0; i < 32; i++ {
		s = append(s, step{tms: i == 31})
	}
	fmt.Printf("expecting IDCODE %#08x on TDO\n", want)
	return append(s, step{tms: true}, step{}) // Exit1-DR -> Update-DR -> Run-Test/Idle
}

func writeDMI(v *vdtm.VDTM, addr uint8, data uint32) []step {
	var s []step
	s = append(s, resetSteps()...)
	// Reset -> RunTestIdle -> SelectDR -> SelectIR -> CaptureIR -> ShiftIR
	s = append(s, step{}, step{tms: true}, step{tms: true}, step{}, step{})
	const irDMI = 0x11
	for i := 0; i < 5; i++ {
		s = append(s, step{tms: i == 4, tdi: irDMI&(1<<uint(i)) != 0})
	}
	s = append(s, step{tms: true}, step{}) // Exit1-IR -> Update-IR -> Run-Test/Idle
	s = append(s, step{}, step{tms: true}, step{}, step{})
	const wDMI = 8 + 32 + 2 // abits + data + op, matching package vdtm's DMI register width
	payload := (uint64(addr) << 34) | (uint64(data) << 2) | 2
	for i := 0; i < wDMI; i++ {
		s = append(s, step{tms: i == wDMI-1, tdi: payload&(1<<uint(i)) != 0})
	}
	return append(s, step{tms: true}, step{}) // Exit1-DR -> Update-DR -> Run-Test/Idle
}
