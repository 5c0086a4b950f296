// BCM2836 GPIO support
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bcm2836

import (
	"fmt"

	"github.com/kirakira-dev/kikios/internal/reg"
)

const (
	gpfsel0   = 0x200000
	gpset0    = 0x20001c
	gpclr0    = 0x200028
	gplev0    = 0x200034
	gppud     = 0x200094
	gppudclk0 = 0x200098
)

// Function represents a GPIO pin's selected mode.
type Function uint32

const (
	FunctionInput Function = 0
	FunctionOutput Function = 1
	FunctionAlt0 Function = 4
	FunctionAlt1 Function = 5
	FunctionAlt2 Function = 6
	FunctionAlt3 Function = 7
	FunctionAlt4 Function = 3
	FunctionAlt5 Function = 2
)

// GPIO represents a single GPIO line.
type GPIO struct {
	num int
}

// NewGPIO returns the GPIO line identified by num (0..53).
func NewGPIO(num int) (*GPIO, error) {
	if num < 0 || num > 53 {
		return nil, fmt.Errorf("bcm2836: invalid GPIO number %d", num)
	}

	return &GPIO{num: num}, nil
}

// SelectFunction programs the pin's alternate function.
func (g *GPIO) SelectFunction(fn Function) {
	addr := PeripheralAddress(gpfsel0 + 4*uint32(g.num/10))
	shift := uint(g.num%10) * 3
	reg.SetN(addr, int(shift), 0x7, uint32(fn))
}

// PullUp enables the pin's internal pull-up resistor, per the two-cycle
// GPPUD/GPPUDCLK sequence documented for the BCM283x GPIO block.
func (g *GPIO) PullUp() {
	bank := uint32(g.num / 32)
	bit := uint32(g.num % 32)

	reg.Write(PeripheralAddress(gppud), 0x2)
	busyWait(150)
	reg.Write(PeripheralAddress(gppudclk0+4*bank), 1<<bit)
	busyWait(150)
	reg.Write(PeripheralAddress(gppud), 0)
	reg.Write(PeripheralAddress(gppudclk0+4*bank), 0)
}

// High drives the pin high.
func (g *GPIO) High() {
	addr := PeripheralAddress(gpset0 + 4*uint32(g.num/32))
	reg.Write(addr, 1<<uint(g.num%32))
}

// Low drives the pin low.
func (g *GPIO) Low() {
	addr := PeripheralAddress(gpclr0 + 4*uint32(g.num/32))
	reg.Write(addr, 1<<uint(g.num%32))
}

// Value reads the pin level.
func (g *GPIO) Value() bool {
	addr := PeripheralAddress(gplev0 + 4*uint32(g.num/32))
	return reg.Get(addr, g.num%32, 1) != 0
}

func busyWait(cycles int) {
	for i := 0; i < cycles; i++ {
	}
}
