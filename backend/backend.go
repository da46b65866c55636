// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package backend registers the physical transports this bridge can drive
// SWD over: an FTDI MPSSE/bitbang adapter, a Linux GPIO chardev
// line pair, or sysfs GPIOs. It plays the role the teacher library's own
// host package plays for its driver set: importing it for side effects
// guarantees every transport below has registered itself with
// periph.io/x/conn/v3/driver/driverreg, after which gpioreg.ByName can look
// pins up by the names callers pass on the command line.
package backend

import (
	"periph.io/x/conn/v3/driver/driverreg"

	// Register every transport this bridge knows how to drive. A board
	// without FTDI hardware, say, simply finds nothing under that name;
	// registration failure for a missing bus is not fatal.
	_ "github.com/rvdbg/swdbridge/ftdi"
	_ "github.com/rvdbg/swdbridge/gpioioctl"
	_ "github.com/rvdbg/swdbridge/sysfs"
)

// Init calls driverreg.Init() and returns it as-is.
//
// The only difference is that by calling backend.Init(), you are guaranteed
// to have all the transport drivers implemented in this library implicitly
// loaded and registered.
func Init() (*driverreg.State, error) {
	return driverreg.Init()
}
