// ARM PL011 UART driver (QEMU virt machine)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pl011 drives the PL011 UART QEMU's virt machine exposes at a
// fixed address, implementing hal.Serial. There is no PL011 driver
// anywhere in the reference corpus; this is built directly against the
// well-known PL011 register layout, in the same internal/reg MMIO idiom
// soc/qemu/gic uses.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm64` as
// supported by the TamaGo framework for bare metal Go.
package pl011

import (
	"github.com/kirakira-dev/kikios/hal"
	"github.com/kirakira-dev/kikios/internal/reg"
)

// Base is the PL011 instance's fixed MMIO base on the QEMU virt machine.
const Base = 0x09000000

const (
	uartDR   = 0x000
	uartFR   = 0x018
	uartIBRD = 0x024
	uartFBRD = 0x028
	uartLCRH = 0x02c
	uartCR   = 0x030
	uartIMSC = 0x038
	uartICR  = 0x044

	frTXFF = 5
	frRXFE = 4

	lcrhFEN   = 4
	lcrhWLEN8 = 3 << 5

	crUARTEN = 0
	crTXE    = 8
	crRXE    = 9
)

// UART drives one PL011 instance. It implements hal.Serial.
type UART struct {
	base uintptr
}

// New returns the UART at base.
func New(base uintptr) *UART {
	return &UART{base: base}
}

// Init disables the UART, programs an 115200 8N1 configuration assuming
// the QEMU virt machine's fixed 24 MHz UARTCLK, enables the FIFOs, masks
// every interrupt (this driver is polled, not interrupt-driven), and
// re-enables the UART for TX and RX.
func (u *UART) Init() {
	reg.Write(u.base+uartCR, 0)

	// Baud rate divisor = UARTCLK / (16 * baud); QEMU's virt machine
	// wires a fixed 24 MHz clock to this PL011 instance.
	const uartClk = 24000000
	const baud = 115200

	divTimes64 := (uint64(uartClk) * 4) / baud
	ibrd := uint32(divTimes64 / 64)
	fbrd := uint32(divTimes64 % 64)

	reg.Write(u.base+uartIBRD, ibrd)
	reg.Write(u.base+uartFBRD, fbrd)
	reg.Write(u.base+uartLCRH, lcrhWLEN8|1<<lcrhFEN)
	reg.Write(u.base+uartIMSC, 0)
	reg.Write(u.base+uartICR, 0x7ff)

	reg.Set(u.base+uartCR, crUARTEN)
	reg.Set(u.base+uartCR, crTXE)
	reg.Set(u.base+uartCR, crRXE)
}

// Putc blocks until the transmit FIFO has room, then writes c.
func (u *UART) Putc(c byte) {
	for reg.Get(u.base+uartFR, frTXFF, 1) != 0 {
	}

	reg.Write(u.base+uartDR, uint32(c))
}

// Getc returns the next received byte, or hal.NoData if the receive FIFO
// is empty.
func (u *UART) Getc() int {
	if reg.Get(u.base+uartFR, frRXFE, 1) != 0 {
		return hal.NoData
	}

	return int(reg.Read(u.base+uartDR) & 0xff)
}
