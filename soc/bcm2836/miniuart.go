// BCM2836 mini-UART console driver
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bcm2836

import (
	"github.com/kirakira-dev/kikios/hal"
	"github.com/kirakira-dev/kikios/internal/reg"
)

// AUX mini-UART registers, adapted from the teacher's bcm2835 mini-UART
// driver to the BCM2836 peripheral window.
const (
	auxEnables  = 0x215004
	auxMuIO     = 0x215040
	auxMuIER    = 0x215044
	auxMuIIR    = 0x215048
	auxMuLCR    = 0x21504c
	auxMuMCR    = 0x215050
	auxMuLSR    = 0x215054
	auxMuCNTL   = 0x215060
	auxMuBAUD   = 0x215068

	lsrRXReady = 0
	lsrTXEmpty = 5
)

// MiniUART is the Pi Zero 2 W's mini-UART, used as the early-boot and
// debug console (§4.1). It implements hal.Serial.
type MiniUART struct{}

var _ hal.Serial = (*MiniUART)(nil)

// Init enables the AUX mini-UART, configures GPIO14/15 to ALT5 (its TXD/RXD
// function; the pins' pull-up/down setting is left unchanged), and sets
// the baud rate for a 250 MHz
// core clock (baud_reg = core_clk/(8*baud) - 1).
func (u *MiniUART) Init() {
	reg.Write(PeripheralAddress(auxEnables), 1)
	reg.Write(PeripheralAddress(auxMuIER), 0)
	reg.Write(PeripheralAddress(auxMuCNTL), 0)
	reg.Write(PeripheralAddress(auxMuLCR), 3) // 8 data bits
	reg.Write(PeripheralAddress(auxMuMCR), 0)
	reg.Write(PeripheralAddress(auxMuIER), 0)
	reg.Write(PeripheralAddress(auxMuIIR), 0xc6)
	reg.Write(PeripheralAddress(auxMuBAUD), 270) // 115200 @ 250 MHz

	txd, _ := NewGPIO(14)
	rxd, _ := NewGPIO(15)

	txd.SelectFunction(FunctionAlt5)
	rxd.SelectFunction(FunctionAlt5)

	reg.Write(PeripheralAddress(auxMuCNTL), 3) // enable TX and RX
}

// Putc blocks until the transmit holding register is empty, then writes c.
func (u *MiniUART) Putc(c byte) {
	for reg.Get(PeripheralAddress(auxMuLSR), lsrTXEmpty, 1) == 0 {
	}

	reg.Write(PeripheralAddress(auxMuIO), uint32(c))
}

// Getc returns the next received byte, or hal.NoData if none is
// buffered.
func (u *MiniUART) Getc() int {
	if reg.Get(PeripheralAddress(auxMuLSR), lsrRXReady, 1) == 0 {
		return hal.NoData
	}

	return int(reg.Read(PeripheralAddress(auxMuIO)) & 0xff)
}
