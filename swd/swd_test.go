// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

import (
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// fakeTarget is a wire-level SWD target double: it records every bit the
// Bus drives via DriveData, and answers every ReadData call from a
// pre-loaded queue (consumed only during tri-stated/GetBits phases,
// exactly as a real DP would only drive SWDIO during ACK/data/turnaround
// windows).
type fakeTarget struct {
	driven    []bool
	respQueue []bool
	respIdx   int
}

func (f *fakeTarget) SetClock(gpio.Level) error { return nil }

func (f *fakeTarget) DriveData(l gpio.Level) error {
	f.driven = append(f.driven, l == gpio.High)
	return nil
}

func (f *fakeTarget) TristateData() error { return nil }

func (f *fakeTarget) ReadData() gpio.Level {
	if f.respIdx >= len(f.respQueue) {
		return gpio.Low
	}
	b := f.respQueue[f.respIdx]
	f.respIdx++
	if b {
		return gpio.High
	}
	return gpio.Low
}

func (f *fakeTarget) SetSpeed(physic.Frequency) error { return nil }

func bitsLSB(v uint64, n int) []bool {
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = v&(1<<uint(i)) != 0
	}
	return bits
}

func valueFromBits(bits []bool) uint64 {
	var v uint64
	for i, b := range bits {
		if b {
			v |= 1 << uint(i)
		}
	}
	return v
}

func TestHeaderByteParity(t *testing.T) {
	// spec.md §8 scenario 5: a DP read at address 0 (the canonical DPIDR
	// read that opens every SWD session) carries parity=1 and header=0xA5.
	h := header(DP, true, 0x0)
	if h != 0xA5 {
		t.Fatalf("header = %#02x, want 0xA5", h)
	}
}

func TestHeaderParityIsEvenParityOfFields(t *testing.T) {
	for _, tc := range []struct {
		apndp APnDP
		read  bool
		addr  uint8
	}{
		{DP, false, 0x0}, {DP, true, 0x4}, {AP, false, 0x8}, {AP, true, 0xC},
	} {
		h := header(tc.apndp, tc.read, tc.addr)
		apndpBit := uint8(0)
		if tc.apndp {
			apndpBit = 1
		}
		rnwBit := uint8(0)
		if tc.read {
			rnwBit = 1
		}
		a2 := (tc.addr >> 2) & 1
		a3 := (tc.addr >> 3) & 1
		want := apndpBit ^ rnwBit ^ a2 ^ a3
		got := (h >> 5) & 1
		if got != want {
			t.Fatalf("parity bit = %d, want %d for %+v", got, want, tc)
		}
	}
}

func TestReadRegFramesTransaction(t *testing.T) {
	target := &fakeTarget{}
	want := uint32(0xCAFEBABE)
	ack := bitsLSB(uint64(AckOK), 3)
	data := bitsLSB(uint64(want), 32)
	parity := bitsLSB(uint64(evenParity(want, 32)), 1)
	target.respQueue = append(append(ack, data...), parity...)

	bus := NewBus(target, 50*physic.MegaHertz)
	link := NewLink(bus)

	got, ack2, err := link.ReadReg(AP, 0x4)
	if err != nil {
		t.Fatalf("ReadReg error: %v", err)
	}
	if ack2 != AckOK {
		t.Fatalf("ack = %v, want OK", ack2)
	}
	if got != want {
		t.Fatalf("data = %#08x, want %#08x", got, want)
	}
	if len(target.driven) < 8 {
		t.Fatalf("expected at least 8 header bits driven, got %d", len(target.driven))
	}
	if valueFromBits(target.driven[:8]) != uint64(header(AP, true, 0x4)) {
		t.Fatalf("header bits driven = %#02x, want %#02x", valueFromBits(target.driven[:8]), header(AP, true, 0x4))
	}
}

func TestWriteRegFramesTransaction(t *testing.T) {
	target := &fakeTarget{respQueue: bitsLSB(uint64(AckOK), 3)}
	bus := NewBus(target, 50*physic.MegaHertz)
	link := NewLink(bus)

	data := uint32(0x00000010)
	ack, err := link.WriteReg(AP, 0x4, data)
	if err != nil {
		t.Fatalf("WriteReg error: %v", err)
	}
	if ack != AckOK {
		t.Fatalf("ack = %v, want OK", ack)
	}
	if len(target.driven) != 8+32+1 {
		t.Fatalf("driven %d bits, want %d", len(target.driven), 8+32+1)
	}
	gotHeader := valueFromBits(target.driven[:8])
	if gotHeader != uint64(header(AP, false, 0x4)) {
		t.Fatalf("header = %#02x, want %#02x", gotHeader, header(AP, false, 0x4))
	}
	gotData := uint32(valueFromBits(target.driven[8:40]))
	if gotData != data {
		t.Fatalf("data driven = %#08x, want %#08x", gotData, data)
	}
	gotParity := target.driven[40]
	wantParity := evenParity(data, 32) != 0
	if gotParity != wantParity {
		t.Fatalf("parity bit = %v, want %v", gotParity, wantParity)
	}
}

func TestNonOKAckSkipsDataPhase(t *testing.T) {
	target := &fakeTarget{respQueue: bitsLSB(uint64(AckWait), 3)}
	bus := NewBus(target, 50*physic.MegaHertz)
	link := NewLink(bus)

	_, ack, err := link.ReadReg(DP, 0x0)
	if err != nil {
		t.Fatalf("ReadReg error: %v", err)
	}
	if ack != AckWait {
		t.Fatalf("ack = %v, want WAIT", ack)
	}
}
