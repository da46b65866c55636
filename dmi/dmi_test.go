// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dmi

import (
	"testing"

	"github.com/rvdbg/swdbridge/swd"
)

// fakeRegLink is a register-level SWD target double (spec.md §8 scenario
// 6): it answers ReadReg/WriteReg by address rather than emulating the bit
// stream, so Connect and the DMI accessors can be exercised without a
// wire-level fake.
type fakeRegLink struct {
	wakeUps    int
	targetSels []uint32

	dpRegs    map[uint8]uint32
	selectVal uint32

	ctrlPolls     int // number of CTRL/STAT reads so far, for the PWRUPACK-on-Nth-poll scenario
	pwrupAckAfter int

	lastAPIDR uint32

	// onAPWrite, when set, is invoked for every AP register write (used to
	// count TAR writes). forceAPWriteAck, when non-zero, is returned for
	// every AP write instead of AckOK (used to exercise retry behaviour).
	onAPWrite       func(addr uint8, data uint32)
	forceAPWriteAck swd.Ack
}

func newFakeRegLink() *fakeRegLink {
	return &fakeRegLink{dpRegs: map[uint8]uint32{}}
}

func (f *fakeRegLink) WakeUp()                    { f.wakeUps++ }
func (f *fakeRegLink) TargetSel(target uint32)     { f.targetSels = append(f.targetSels, target) }

func (f *fakeRegLink) ReadReg(apndp swd.APnDP, addr uint8) (uint32, swd.Ack, error) {
	if apndp == swd.DP {
		switch addr {
		case dpCTRL:
			f.ctrlPolls++
			if f.ctrlPolls >= f.pwrupAckAfter {
				return ctrlPwrUpAck, swd.AckOK, nil
			}
			return 0, swd.AckOK, nil
		case dpRDBUF:
			return f.lastAPIDR, swd.AckOK, nil
		case dpIDR:
			return 0x0BA01477, swd.AckOK, nil
		}
		return f.dpRegs[addr], swd.AckOK, nil
	}
	// AP read: only apIDR is exercised by Connect.
	if addr == apIDR {
		f.lastAPIDR = 0x04770002
	}
	return 0, swd.AckOK, nil
}

func (f *fakeRegLink) WriteReg(apndp swd.APnDP, addr uint8, data uint32) (swd.Ack, error) {
	if apndp == swd.DP {
		if addr == dpSELECT {
			f.selectVal = data
		}
		f.dpRegs[addr] = data
		return swd.AckOK, nil
	}
	if f.onAPWrite != nil {
		f.onAPWrite(addr, data)
	}
	if f.forceAPWriteAck != 0 {
		return f.forceAPWriteAck, nil
	}
	return swd.AckOK, nil
}

func connectedFake() *fakeRegLink {
	f := newFakeRegLink()
	f.pwrupAckAfter = 2 // PWRUPACK asserts on the second poll, per scenario 6
	return f
}

func TestConnectHappyPath(t *testing.T) {
	f := connectedFake()
	l := NewWithLink(f, Config{APSel: 0})

	if err := l.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if f.wakeUps != 1 {
		t.Fatalf("WakeUp called %d times, want 1", f.wakeUps)
	}
	if f.ctrlPolls < 2 {
		t.Fatalf("CTRL/STAT polled %d times, want at least 2", f.ctrlPolls)
	}
	if f.selectVal != apBankCSW {
		t.Fatalf("final SELECT = %#08x, want CSW bank %#08x", f.selectVal, apBankCSW)
	}
}

func TestConnectEmitsTargetSelOnlyWhenConfigured(t *testing.T) {
	f := connectedFake()
	l := NewWithLink(f, Config{})
	if err := l.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if len(f.targetSels) != 0 {
		t.Fatalf("TargetSel called with zero config, want no calls")
	}

	f2 := connectedFake()
	l2 := NewWithLink(f2, Config{TargetSel: 0x1234567})
	if err := l2.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if len(f2.targetSels) != 1 || f2.targetSels[0] != 0x1234567 {
		t.Fatalf("targetSels = %v, want [0x1234567]", f2.targetSels)
	}
}

func TestConnectPowerUpTimeout(t *testing.T) {
	f := newFakeRegLink()
	f.pwrupAckAfter = pwrupPollLimit + 1 // never acks within the poll budget
	l := NewWithLink(f, Config{})
	err := l.Connect()
	if err != ErrPowerUpTimeout {
		t.Fatalf("Connect() error = %v, want ErrPowerUpTimeout", err)
	}
}

// faultingLink ACKs everything OK except one targeted step, letting tests
// exercise Connect's link-fault and wrong-AP paths without a full fake.
type faultingLink struct {
	*fakeRegLink
	failReadDP  map[uint8]swd.Ack
	failWriteDP map[uint8]swd.Ack
	wrongAPIDR  bool
}

func (f *faultingLink) ReadReg(apndp swd.APnDP, addr uint8) (uint32, swd.Ack, error) {
	if apndp == swd.DP {
		if ack, ok := f.failReadDP[addr]; ok {
			return 0, ack, nil
		}
		if addr == dpRDBUF && f.wrongAPIDR {
			return 0x12345678, swd.AckOK, nil
		}
	}
	return f.fakeRegLink.ReadReg(apndp, addr)
}

func (f *faultingLink) WriteReg(apndp swd.APnDP, addr uint8, data uint32) (swd.Ack, error) {
	if apndp == swd.DP {
		if ack, ok := f.failWriteDP[addr]; ok {
			return ack, nil
		}
	}
	return f.fakeRegLink.WriteReg(apndp, addr, data)
}

func TestConnectLinkFaultOnDPIDR(t *testing.T) {
	base := connectedFake()
	f := &faultingLink{fakeRegLink: base, failReadDP: map[uint8]swd.Ack{dpIDR: swd.AckFault}}
	l := NewWithLink(f, Config{})
	err := l.Connect()
	if err == nil {
		t.Fatalf("Connect() error = nil, want link fault")
	}
}

func TestConnectWrongAP(t *testing.T) {
	base := connectedFake()
	f := &faultingLink{fakeRegLink: base, wrongAPIDR: true}
	l := NewWithLink(f, Config{})
	err := l.Connect()
	if err == nil {
		t.Fatalf("Connect() error = nil, want ErrWrongAP")
	}
}

func TestTARCacheSuppressesRedundantWrite(t *testing.T) {
	f := connectedFake()
	l := NewWithLink(f, Config{})
	if err := l.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	tarWrites := 0
	f.onAPWrite = func(addr uint8, data uint32) {
		if addr == apTAR {
			tarWrites++
		}
	}

	if err := l.WriteDMI(0x10, 1); err != nil {
		t.Fatalf("WriteDMI error: %v", err)
	}
	if err := l.WriteDMI(0x10, 2); err != nil {
		t.Fatalf("WriteDMI error: %v", err)
	}
	if tarWrites != 1 {
		t.Fatalf("TAR written %d times for the same address, want 1", tarWrites)
	}

	if err := l.WriteDMI(0x11, 3); err != nil {
		t.Fatalf("WriteDMI error: %v", err)
	}
	if tarWrites != 2 {
		t.Fatalf("TAR written %d times after address change, want 2", tarWrites)
	}
}

func TestRetryPolicyGivesUpAfterMaxAttempts(t *testing.T) {
	f := connectedFake()
	l := NewWithLink(f, Config{Retry: RetryPolicy{MaxAttempts: 2}})
	if err := l.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	f.forceAPWriteAck = swd.AckWait
	attempts := 0
	f.onAPWrite = func(addr uint8, data uint32) {
		if addr == apTAR {
			attempts++
		}
	}
	err := l.WriteDMI(0x10, 1)
	if err == nil {
		t.Fatalf("WriteDMI error = nil, want failure after exhausting retries")
	}
	if attempts != 3 { // 1 initial + 2 retries
		t.Fatalf("TAR write attempted %d times, want 3", attempts)
	}
}

func TestZeroRetryFailsImmediately(t *testing.T) {
	f := connectedFake()
	l := NewWithLink(f, Config{Retry: ZeroRetry})
	if err := l.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	f.forceAPWriteAck = swd.AckWait
	attempts := 0
	f.onAPWrite = func(addr uint8, data uint32) {
		if addr == apTAR {
			attempts++
		}
	}
	if err := l.WriteDMI(0x10, 1); err == nil {
		t.Fatalf("WriteDMI error = nil, want immediate failure")
	}
	if attempts != 1 {
		t.Fatalf("TAR write attempted %d times, want 1", attempts)
	}
}
