// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

// Ack is the 3-bit SWD acknowledge code (spec.md §4.B). This core only
// recognises AckOK; any other value is returned to the caller as the Ack
// status (with a nil error), with no WAIT/FAULT retry built into the
// packet layer itself —
// see package dmi for the opt-in retry policy.
type Ack uint8

const (
	AckOK           Ack = 0b001
	AckWait         Ack = 0b010
	AckFault        Ack = 0b100
	AckDisconnected Ack = 0b111
)

func (a Ack) String() string {
	switch a {
	case AckOK:
		return "OK"
	case AckWait:
		return "WAIT"
	case AckFault:
		return "FAULT"
	case AckDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// APnDP selects between the SW-DP's own registers and the currently
// selected AP's registers.
type APnDP bool

const (
	DP APnDP = false
	AP APnDP = true
)

// evenParity returns the even parity bit of the low n bits of v.
func evenParity(v uint32, n int) uint8 {
	var p uint8
	for i := 0; i < n; i++ {
		p ^= uint8(v>>uint(i)) & 1
	}
	return p
}

// header builds the 8-bit SWD request header (spec.md §4.B): start bit,
// APnDP, RnW, A[3:2], parity of (APnDP,RnW,A2,A3), stop bit, park bit.
func header(apndp APnDP, read bool, addr uint8) uint8 {
	a2 := (addr >> 2) & 1
	a3 := (addr >> 3) & 1
	apndpBit := uint8(0)
	if apndp {
		apndpBit = 1
	}
	rnwBit := uint8(0)
	if read {
		rnwBit = 1
	}
	parity := apndpBit ^ rnwBit ^ a2 ^ a3

	var h uint8
	h |= 1 << 0 // start
	h |= apndpBit << 1
	h |= rnwBit << 2
	h |= a2 << 3
	h |= a3 << 4
	h |= parity << 5
	// bit 6 (stop) = 0, bit 7 (park) = 1
	h |= 1 << 7
	return h
}

// RegLink is the narrow interface package dmi drives: single DP/AP
// register transactions plus the two bring-up sequences. *Link
// implements it directly; tests may substitute a register-level fake
// instead of emulating the raw wire protocol.
type RegLink interface {
	ReadReg(apndp APnDP, addr uint8) (uint32, Ack, error)
	WriteReg(apndp APnDP, addr uint8, data uint32) (Ack, error)
	TargetSel(target uint32)
	WakeUp()
}

// Link drives SWD request/response transactions over a Bus (component B).
// It has no notion of DP/AP register semantics; package dmi builds those
// on top.
type Link struct {
	bus *Bus
}

// NewLink wraps a Bus with the SWD packet layer.
func NewLink(bus *Bus) *Link {
	return &Link{bus: bus}
}

// ReadReg performs an SWD read transaction (spec.md §4.B): header, 1
// turnaround, 3-bit ACK, 32-bit data (discarding the trailing parity bit
// without checking it, consistent with ORUNDETECT mode), 1 turnaround.
func (l *Link) ReadReg(apndp APnDP, addr uint8) (uint32, Ack, error) {
	l.bus.PutBits(uint64(header(apndp, true, addr)), 8)
	l.bus.HiZClocks(1)
	ack := Ack(l.bus.GetBits(3))
	if ack != AckOK {
		l.bus.HiZClocks(1)
		return 0, ack, nil
	}
	data := uint32(l.bus.GetBits(32))
	_ = l.bus.GetBits(1) // parity, discarded per spec.md §9
	l.bus.HiZClocks(1)
	return data, ack, nil
}

// WriteReg performs an SWD write transaction (spec.md §4.B): header, 1
// turnaround, 3-bit ACK, 1 turnaround, 32-bit data, even-parity bit.
func (l *Link) WriteReg(apndp APnDP, addr uint8, data uint32) (Ack, error) {
	l.bus.PutBits(uint64(header(apndp, false, addr)), 8)
	l.bus.HiZClocks(1)
	ack := Ack(l.bus.GetBits(3))
	l.bus.HiZClocks(1)
	if ack != AckOK {
		return ack, nil
	}
	l.bus.PutBits(uint64(data), 32)
	l.bus.PutBits(uint64(evenParity(data, 32)), 1)
	return ack, nil
}

// TargetSel issues the SWD multi-drop TARGETSEL sequence: a DP write to
// address 0b11 for which the DP never drives an ACK (5 hi-Z clocks stand
// in for it), followed by the 32-bit target selector and its parity bit.
func (l *Link) TargetSel(target uint32) {
	l.bus.PutBits(uint64(header(DP, false, 0b1100)), 8)
	l.bus.HiZClocks(5)
	l.bus.PutBits(uint64(target), 32)
	l.bus.PutBits(uint64(evenParity(target, 32)), 1)
}

// linkDownUpPreamble is the literal byte sequence from spec.md §6: a line
// reset, the SWD-to-Dormant selection sequence, 8 resync bits, the
// Dormant-to-SWD LFSR wakeup, a select sequence, and a trailing line
// reset — clocked out LSB-first per byte, minus the last 4 bits, for 276
// bits total. spec.md §4.C's own field-by-field accounting agrees
// (56+16+8+128+4+8+4+50+2 = 276); the "52 bytes, 412 bits" figure that
// appears elsewhere in the spec prose doesn't match either the field sum
// or this array and is not used here.
var linkDownUpPreamble = [...]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xBC, 0xE3, 0xFF,
	0x92, 0xF3, 0x09, 0x62, 0x95, 0x2D, 0x85, 0x86, 0xE9, 0xAF,
	0xDD, 0xE3, 0xA2, 0x0E, 0xBC, 0x19, 0xA0, 0x01, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0x03,
}

const linkDownUpBits = len(linkDownUpPreamble)*8 - 4

// WakeUp clocks out the fixed link-down-up sequence that takes the DP
// from an unknown state (possibly JTAG) through Dormant and back up as
// an SWD-DP, per spec.md §4.C step 2 and §6.
func (l *Link) WakeUp() {
	bits := linkDownUpBits
	for _, b := range linkDownUpPreamble {
		n := 8
		if bits < 8 {
			n = bits
		}
		l.bus.PutBits(uint64(b), n)
		bits -= n
		if bits <= 0 {
			break
		}
	}
}
