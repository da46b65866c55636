// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dmi implements the SWD-backed Debug Module Interface
// (component C): link bring-up over ARM SWD, Mem-AP identification, and
// the DMI read/write operations a VDTM's upcalls resolve into. It sits
// on top of package swd's packet layer and drives a target RISC-V Debug
// Module through a Mem-AP/APB-AP behind an SW-DP.
package dmi

import (
	"errors"
	"fmt"

	"github.com/rvdbg/swdbridge/swd"
)

// DP register addresses (bank-independent ones; SELECT's low nibble
// picks the DP bank, bits [7:4] the AP bank and bits [31:24] the AP
// index, per ADIv5).
const (
	dpIDR    = 0x0 // read: DPIDR
	dpABORT  = 0x0 // write: ABORT
	dpCTRL   = 0x4 // CTRL/STAT, DP bank 0
	dpSELECT = 0x8
	dpRDBUF  = 0xC
)

// AP register addresses within whatever bank SELECT currently points at.
const (
	apCSW = 0x0
	apTAR = 0x4
	apDRW = 0xC
	apIDR = 0xC // only valid when SELECT's AP bank is apBankIDR
)

const (
	apBankCSW = 0x0 << 4
	apBankIDR = 0xF << 4
)

const (
	abortClearAll   = 0x1E
	ctrlPwrUpReq    = (1 << 30) | (1 << 28) // CSYSPWRUPREQ | CDBGPWRUPREQ
	ctrlPwrUpAck    = (1 << 31) | (1 << 29) // CSYSPWRUPACK | CDBGPWRUPACK
	ctrlOrundetect  = 1 << 0
	pwrupPollLimit  = 10000
	memAPClassMask  = 0x1E00F
	memAPClassValue = 0x10002 // class 8 (Mem-AP), APB2/APB3
)

var (
	// ErrLinkFault is returned when an SWD transaction ACKs with anything
	// other than OK during connect bring-up, or during a steady-state DMI
	// access once the retry policy is exhausted.
	ErrLinkFault = errors.New("dmi: SWD link fault")
	// ErrPowerUpTimeout is returned when the power-up poll exceeds
	// pwrupPollLimit iterations.
	ErrPowerUpTimeout = errors.New("dmi: power-up acknowledge timeout")
	// ErrWrongAP is returned when the identified AP isn't an APB Mem-AP.
	ErrWrongAP = errors.New("dmi: AP is not an APB Mem-AP")
)

// RetryPolicy controls how steady-state DMI accesses (after connect has
// already succeeded) respond to a non-OK ACK. The default ZeroRetry
// policy matches spec.md's documented limitation: no WAIT/FAULT retry.
// Supplying a bounded policy is a deliberate, documented opt-in — see
// DESIGN.md's resolution of the corresponding Open Question.
type RetryPolicy struct {
	// MaxAttempts bounds the number of times a WAIT'd transaction is
	// retried before giving up. Zero means "do not retry" (spec default).
	MaxAttempts int
}

// ZeroRetry is the spec-accurate default: no retry on WAIT or FAULT.
var ZeroRetry = RetryPolicy{MaxAttempts: 0}

// Config carries the construction-time values for a Link, per spec.md §6.
type Config struct {
	// TargetSel, if non-zero, is emitted during connect to select a
	// specific target in a multi-drop SWD topology.
	TargetSel uint32
	// APSel is the Mem-AP index, 0-255.
	APSel uint8
	// Retry is the steady-state DMI access retry policy. The zero value
	// is ZeroRetry.
	Retry RetryPolicy
}

// Link is an SWD-backed DMI host (component C). It owns the Mem-AP TAR
// cache described in spec.md §3. The AP SELECT bank is not cached: Connect
// leaves it on the CSW bank and no later access writes SELECT.
type Link struct {
	link swd.RegLink
	cfg  Config

	tarCache      uint32
	tarCacheValid bool
}

// New creates a Link driving bus through the SWD packet layer.
func New(bus *swd.Bus, cfg Config) *Link {
	return NewWithLink(swd.NewLink(bus), cfg)
}

// NewWithLink creates a Link against an arbitrary swd.RegLink, bypassing
// the bit-level Bus entirely. Production callers want New; this exists so
// tests can drive Connect and the DMI accessors against a register-level
// fake instead of emulating the raw SWD wire protocol.
func NewWithLink(link swd.RegLink, cfg Config) *Link {
	return &Link{link: link, cfg: cfg}
}

// linkFault wraps the failing register name into ErrLinkFault.
func linkFault(step string, ack swd.Ack) error {
	return fmt.Errorf("%w: %s ack=%s", ErrLinkFault, step, ack)
}

// Connect runs the bring-up protocol of spec.md §4.C: line reset and
// dormant/SWD wakeup, optional TARGETSEL, DPIDR read, ABORT clear,
// CTRL/STAT power-up request and poll, Mem-AP identification, and
// finally leaving SELECT pointed at the Mem-AP's CSW bank. It is
// idempotent — safe to call again from scratch after a failure.
func (c *Link) Connect() error {
	c.tarCacheValid = false

	c.link.WakeUp()
	if c.cfg.TargetSel != 0 {
		c.link.TargetSel(c.cfg.TargetSel)
	}

	if _, ack, err := c.link.ReadReg(swd.DP, dpIDR); err != nil {
		return err
	} else if ack != swd.AckOK {
		return linkFault("DPIDR read", ack)
	}

	if ack, err := c.link.WriteReg(swd.DP, dpABORT, abortClearAll); err != nil {
		return err
	} else if ack != swd.AckOK {
		return linkFault("ABORT write", ack)
	}

	if ack, err := c.link.WriteReg(swd.DP, dpSELECT, 0); err != nil {
		return err
	} else if ack != swd.AckOK {
		return linkFault("SELECT write (bank 0)", ack)
	}

	if ack, err := c.link.WriteReg(swd.DP, dpCTRL, ctrlPwrUpReq|ctrlOrundetect); err != nil {
		return err
	} else if ack != swd.AckOK {
		return linkFault("CTRL/STAT write", ack)
	}

	acked := false
	for i := 0; i < pwrupPollLimit; i++ {
		v, ack, err := c.link.ReadReg(swd.DP, dpCTRL)
		if err != nil {
			return err
		}
		if ack != swd.AckOK {
			return linkFault("CTRL/STAT poll", ack)
		}
		if v&ctrlPwrUpAck == ctrlPwrUpAck {
			acked = true
			break
		}
	}
	if !acked {
		return ErrPowerUpTimeout
	}

	if ack, err := c.link.WriteReg(swd.DP, dpSELECT, apBankIDR|uint32(c.cfg.APSel)<<24); err != nil {
		return err
	} else if ack != swd.AckOK {
		return linkFault("SELECT write (AP IDR bank)", ack)
	}
	if _, ack, err := c.link.ReadReg(swd.AP, apIDR); err != nil {
		return err
	} else if ack != swd.AckOK {
		return linkFault("AP IDR read", ack)
	}
	idr, ack, err := c.link.ReadReg(swd.DP, dpRDBUF)
	if err != nil {
		return err
	} else if ack != swd.AckOK {
		return linkFault("RDBUF read", ack)
	}
	if idr&memAPClassMask != memAPClassValue {
		return fmt.Errorf("%w: IDR=%#08x", ErrWrongAP, idr)
	}

	if ack, err := c.link.WriteReg(swd.DP, dpSELECT, apBankCSW|uint32(c.cfg.APSel)<<24); err != nil {
		return err
	} else if ack != swd.AckOK {
		return linkFault("SELECT write (AP CSW bank)", ack)
	}
	return nil
}

// ensureTAR writes the Mem-AP TAR register only if it isn't already
// known to hold byteAddr, implementing the TAR cache of spec.md §4.C.
func (c *Link) ensureTAR(byteAddr uint32) error {
	if c.tarCacheValid && c.tarCache == byteAddr {
		return nil
	}
	if err := c.writeWithRetry(swd.AP, apTAR, byteAddr); err != nil {
		return err
	}
	c.tarCache = byteAddr
	c.tarCacheValid = true
	return nil
}

// ReadDMI performs a DMI register read (spec.md §4.C): ensure TAR, issue
// a posted AP DRW read, then read DP RDBUF for the actual result.
func (c *Link) ReadDMI(addr uint8) (uint32, error) {
	byteAddr := uint32(addr) << 2
	if err := c.ensureTAR(byteAddr); err != nil {
		return 0, err
	}
	if _, err := c.readWithRetry(swd.AP, apDRW); err != nil {
		return 0, err
	}
	return c.readWithRetry(swd.DP, dpRDBUF)
}

// WriteDMI performs a DMI register write (spec.md §4.C): ensure TAR,
// then write the Mem-AP DRW register.
func (c *Link) WriteDMI(addr uint8, data uint32) error {
	byteAddr := uint32(addr) << 2
	if err := c.ensureTAR(byteAddr); err != nil {
		return err
	}
	return c.writeWithRetry(swd.AP, apDRW, data)
}

// readWithRetry and writeWithRetry apply c.cfg.Retry around a single SWD
// register access. With the default ZeroRetry policy a non-OK ACK is a
// hard error, exactly as spec.md §7/§9 describe; a caller that opts into
// a bounded retry gets a SELECT-preserving ABORT-on-FAULT recovery
// attempt between tries (see DESIGN.md).
func (c *Link) readWithRetry(apndp swd.APnDP, addr uint8) (uint32, error) {
	attempts := c.cfg.Retry.MaxAttempts + 1
	var lastAck swd.Ack
	for i := 0; i < attempts; i++ {
		v, ack, err := c.link.ReadReg(apndp, addr)
		if err != nil {
			return 0, err
		}
		if ack == swd.AckOK {
			return v, nil
		}
		lastAck = ack
		if ack == swd.AckFault {
			_, _ = c.link.WriteReg(swd.DP, dpABORT, abortClearAll)
		}
	}
	return 0, linkFault("DMI read", lastAck)
}

func (c *Link) writeWithRetry(apndp swd.APnDP, addr uint8, data uint32) error {
	attempts := c.cfg.Retry.MaxAttempts + 1
	var lastAck swd.Ack
	for i := 0; i < attempts; i++ {
		ack, err := c.link.WriteReg(apndp, addr, data)
		if err != nil {
			return err
		}
		if ack == swd.AckOK {
			return nil
		}
		lastAck = ack
		if ack == swd.AckFault {
			_, _ = c.link.WriteReg(swd.DP, dpABORT, abortClearAll)
		}
	}
	return linkFault("DMI write", lastAck)
}
