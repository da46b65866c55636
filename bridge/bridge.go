// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bridge wires a vdtm.VDTM's DMI upcalls to a dmi.Link, completing
// the path spec.md §1 describes: an external JTAG debugger drives the
// VDTM's pin interface, the VDTM decodes DMI ops and calls back into this
// package, and this package carries them over SWD to the target's Debug
// Module.
package bridge

import (
	"fmt"

	"github.com/rvdbg/swdbridge/dmi"
	"github.com/rvdbg/swdbridge/vdtm"
)

// Bridge couples a VDTM front-end to an SWD-DMI back-end.
type Bridge struct {
	VDTM *vdtm.VDTM
	DMI  *dmi.Link
}

// New creates a Bridge and binds the VDTM's DMI upcalls to dmi's ReadDMI
// and WriteDMI. A read or write error is logged (gated behind logf, see
// debug.go) rather than propagated, since the VDTM pin interface has no
// channel to report a failure back to the JTAG side. A failed read returns
// 0, which the VDTM latches as dmi_rdata for the next DMI Capture-DR.
func New(v *vdtm.VDTM, d *dmi.Link) *Bridge {
	b := &Bridge{VDTM: v, DMI: d}
	v.BindDMI(b.onRead, b.onWrite)
	return b
}

func (b *Bridge) onRead(addr uint8) uint32 {
	v, err := b.DMI.ReadDMI(addr)
	if err != nil {
		logf("bridge: dmi_read(%#x): %v", addr, err)
		return 0
	}
	return v
}

func (b *Bridge) onWrite(addr uint8, data uint32) {
	if err := b.DMI.WriteDMI(addr, data); err != nil {
		logf("bridge: dmi_write(%#x, %#x): %v", addr, data, err)
	}
}

// Connect establishes the underlying SWD link before any VDTM-driven DMI
// traffic can succeed.
func (b *Bridge) Connect() error {
	if err := b.DMI.Connect(); err != nil {
		return fmt.Errorf("bridge: connect: %w", err)
	}
	return nil
}
