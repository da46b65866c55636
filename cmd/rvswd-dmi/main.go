// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command rvswd-dmi connects to a target over SWD and peeks or pokes a
// single DMI register, using whichever two-wire backend is selected on
// the command line.
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"

	"github.com/rvdbg/swdbridge/backend"
	"github.com/rvdbg/swdbridge/dmi"
	"github.com/rvdbg/swdbridge/ftdi"
	"github.com/rvdbg/swdbridge/gpioioctl"
	"github.com/rvdbg/swdbridge/swd"
	"github.com/rvdbg/swdbridge/sysfs"
)

func main() {
	backendName := flag.String("backend", "ftdi", "two-wire backend: ftdi, gpioioctl or sysfs")
	clkName := flag.String("clk", "", "SWCLK pin name (gpioioctl/sysfs backends only)")
	dataName := flag.String("data", "", "SWDIO pin name (gpioioctl/sysfs backends only)")
	speed := flag.Int("speed-khz", 5000, "approximate SWCLK frequency, in kHz")
	apSel := flag.Int("ap", 0, "Mem-AP index")
	write := flag.Bool("write", false, "write instead of read")
	addrFlag := flag.String("addr", "0x11", "DMI register address")
	dataFlag := flag.String("value", "0x0", "value to write (with -write)")
	flag.Parse()

	if _, err := backend.Init(); err != nil {
		log.Fatalf("rvswd-dmi: %v", err)
	}

	pins, err := openPins(*backendName, *clkName, *dataName)
	if err != nil {
		log.Fatalf("rvswd-dmi: %v", err)
	}

	bus := swd.NewBus(pins, physic.Frequency(*speed)*physic.KiloHertz)
	link := dmi.New(bus, dmi.Config{APSel: uint8(*apSel)})
	if err := link.Connect(); err != nil {
		log.Fatalf("rvswd-dmi: connect: %v", err)
	}

	addr, err := strconv.ParseUint(*addrFlag, 0, 8)
	if err != nil {
		log.Fatalf("rvswd-dmi: bad -addr: %v", err)
	}

	if *write {
		data, err := strconv.ParseUint(*dataFlag, 0, 32)
		if err != nil {
			log.Fatalf("rvswd-dmi: bad -value: %v", err)
		}
		if err := link.WriteDMI(uint8(addr), uint32(data)); err != nil {
			log.Fatalf("rvswd-dmi: write: %v", err)
		}
		return
	}

	v, err := link.ReadDMI(uint8(addr))
	if err != nil {
		log.Fatalf("rvswd-dmi: read: %v", err)
	}
	fmt.Printf("%#08x\n", v)
}

// openPins resolves the requested backend into a swd.Pins. The ftdi
// backend grabs the first connected device's first two header pins; the
// others require -clk/-data pin names since a GPIO chip exposes dozens of
// interchangeable lines.
func openPins(backendName, clkName, dataName string) (swd.Pins, error) {
	switch backendName {
	case "ftdi":
		devs := ftdi.All()
		if len(devs) == 0 {
			return nil, fmt.Errorf("no FTDI device found")
		}
		hdr := devs[0].Header()
		if len(hdr) < 2 {
			return nil, fmt.Errorf("FTDI device exposes too few pins")
		}
		return ftdi.NewSWDPins(hdr[0], hdr[1]), nil
	case "gpioioctl":
		clk, data, err := lookupPins(clkName, dataName)
		if err != nil {
			return nil, err
		}
		return gpioioctl.NewSWDPins(clk, data), nil
	case "sysfs":
		clk, data, err := lookupPins(clkName, dataName)
		if err != nil {
			return nil, err
		}
		return sysfs.NewSWDPins(clk, data), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", backendName)
	}
}

// lookupPins resolves -clk/-data pin names via gpioreg, the way any
// periph.io-backed CLI looks up a board's header pins by name.
func lookupPins(clkName, dataName string) (clk, data gpio.PinIO, err error) {
	if clkName == "" || dataName == "" {
		return nil, nil, fmt.Errorf("-clk and -data are required for this backend")
	}
	c := gpioreg.ByName(clkName)
	if c == nil {
		return nil, nil, fmt.Errorf("no such pin: %s", clkName)
	}
	d := gpioreg.ByName(dataName)
	if d == nil {
		return nil, nil, fmt.Errorf("no such pin: %s", dataName)
	}
	return c, d, nil
}
