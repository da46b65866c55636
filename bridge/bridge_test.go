// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bridge

import (
	"errors"
	"testing"

	"github.com/rvdbg/swdbridge/dmi"
	"github.com/rvdbg/swdbridge/swd"
	"github.com/rvdbg/swdbridge/vdtm"
)

// regLinkStub is a minimal swd.RegLink that lets dmi.Link.Connect succeed
// immediately (reporting a well-formed Mem-AP IDR) and routes DMI
// TAR/DRW writes into an in-memory byte-addressed map, so bridge tests
// exercise real upcall plumbing without any bit-level I/O. DP RDBUF always
// answers with the Mem-AP IDR, so a DMI read through this stub does not
// return the map's contents.
type regLinkStub struct {
	tar uint32
	mem map[uint32]uint32
}

func newRegLinkStub() *regLinkStub {
	return &regLinkStub{mem: map[uint32]uint32{}}
}

func (r *regLinkStub) WakeUp()             {}
func (r *regLinkStub) TargetSel(uint32)    {}

func (r *regLinkStub) ReadReg(apndp swd.APnDP, addr uint8) (uint32, swd.Ack, error) {
	if apndp == swd.DP {
		switch addr {
		case 0x4: // CTRL/STAT: power-up already acknowledged
			return (1 << 31) | (1 << 29), swd.AckOK, nil
		case 0xC: // RDBUF: always answers with the Mem-AP IDR
			return 0x04770002, swd.AckOK, nil // a well-formed Mem-AP IDR
		}
	}
	if addr == 0xC { // AP DRW, posted read of the last TAR'd DMI address
		return r.mem[r.tar], swd.AckOK, nil
	}
	return 0, swd.AckOK, nil
}

func (r *regLinkStub) WriteReg(apndp swd.APnDP, addr uint8, data uint32) (swd.Ack, error) {
	if apndp != swd.DP {
		switch addr {
		case 0x4: // AP TAR
			r.tar = data
		case 0xC: // AP DRW
			r.mem[r.tar] = data
		}
	}
	return swd.AckOK, nil
}

func TestBridgeRoutesWriteUpcall(t *testing.T) {
	stub := newRegLinkStub()
	link := dmi.NewWithLink(stub, dmi.Config{})
	if err := link.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	v := vdtm.New(0)
	b := New(v, link)
	if b.VDTM != v || b.DMI != link {
		t.Fatalf("New() didn't wire the given VDTM/Link")
	}

	// Drive the upcall directly: vdtm's own tests already prove the TAP
	// FSM decodes DMI ops correctly, so bridge only needs to prove it
	// forwards into dmi without dropping errors silently in a way that
	// panics or blocks.
	b.onWrite(0x10, 0x1)
	if got := stub.mem[0x10<<2]; got != 0x1 {
		t.Fatalf("DRW at byte address %#x = %#x, want 0x1", 0x10<<2, got)
	}
}

// faultingDPRead makes every DP register read fail, so dmi.Link.Connect
// never gets past its first step.
type faultingDPRead struct {
	*regLinkStub
}

func (f *faultingDPRead) ReadReg(apndp swd.APnDP, addr uint8) (uint32, swd.Ack, error) {
	if apndp == swd.DP {
		return 0, swd.AckFault, nil
	}
	return f.regLinkStub.ReadReg(apndp, addr)
}

func TestBridgeConnectWrapsError(t *testing.T) {
	stub := &faultingDPRead{regLinkStub: newRegLinkStub()}
	link := dmi.NewWithLink(stub, dmi.Config{})
	v := vdtm.New(0)
	b := New(v, link)

	err := b.Connect()
	if err == nil {
		t.Fatalf("Connect() error = nil, want failure")
	}
	if !errors.Is(err, dmi.ErrLinkFault) {
		t.Fatalf("Connect() error = %v, want it to wrap dmi.ErrLinkFault", err)
	}
}
