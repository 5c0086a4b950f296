// ARM GIC-400 interrupt controller driver (QEMU virt machine)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package gic drives the GIC-400 (ARM Generic Interrupt Controller v2)
// instance exposed by the QEMU virt machine at its fixed distributor and
// CPU interface addresses, implementing hal.Interrupt.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm64` as
// supported by the TamaGo framework for bare metal Go.
package gic

import (
	"github.com/kirakira-dev/kikios/internal/reg"
)

const (
	// DistBase and CPUBase are fixed on the QEMU virt machine.
	DistBase = 0x08000000
	CPUBase  = 0x08010000

	gicdCTLR    = 0x000
	gicdTYPER   = 0x004
	gicdIGROUPR = 0x080
	gicdISENABLER = 0x100
	gicdICENABLER = 0x180
	gicdICPENDR = 0x280
	gicdICFGR   = 0xc00

	gicdTYPERItLinesNum = 0

	gicdCTLREnableGrp0 = 0

	giccCTLR = 0x0000
	gicsCTLREnableGrp0 = 0
	gicsCTLRFIQEn      = 3

	gicsPMR = 0x0004
	gicsIAR = 0x000c
	gicsEOIR = 0x0010
	gicsIARID = 0

	// SpuriousID is the IAR value read back when no interrupt is
	// pending.
	SpuriousID = 1023

	// NumIRQs is the linear IRQ namespace this driver supports, enough
	// for the QEMU virt machine's SPI range plus the PPI block.
	NumIRQs = 96

	// TimerIRQ is the EL1 physical timer PPI number (§4.2): it bypasses
	// the handler table and is serviced directly by the caller.
	TimerIRQ = 30
)

// GIC drives a GIC-400 instance. It implements hal.Interrupt.
type GIC struct {
	handlers [NumIRQs]func()
}

// Init resets the distributor and CPU interface to the state described in
// §4.2: every enable bit cleared, every interrupt pending-cleared, every
// interrupt's IGROUPR bit set (group 1), every SPI level-sensitive,
// priority mask wide open. SPI target registers are not written.
func (g *GIC) Init() {
	itLines := reg.Get(DistBase+gicdTYPER, gicdTYPERItLinesNum, 0x1f) + 1

	for n := uint32(0); n < itLines; n++ {
		reg.Write(DistBase+gicdICENABLER+4*n, 0xffffffff)
		reg.Write(DistBase+gicdICPENDR+4*n, 0xffffffff)
		reg.Write(DistBase+gicdIGROUPR+4*n, 0xffffffff)
	}

	// Level-sensitive, N-N model for every SPI (PPIs/SGIs below IRQ 32
	// keep their fixed configuration).
	for n := uint32(2); n < itLines*2; n++ {
		reg.Write(DistBase+gicdICFGR+4*n, 0)
	}

	reg.Write(CPUBase+gicsPMR, 0xff)
	reg.Set(CPUBase+giccCTLR, gicsCTLREnableGrp0)
	reg.Set(DistBase+gicdCTLR, gicdCTLREnableGrp0)
}

// EnableAll is a no-op on the GIC-400: per-IRQ enable state was already
// established by Init/Enable; there is no single "enable everything" gate
// distinct from the distributor enable asserted by Init.
func (g *GIC) EnableAll() {}

// DisableAll masks every SPI/PPI at the distributor without touching the
// distributor's own enable bit.
func (g *GIC) DisableAll() {
	itLines := reg.Get(DistBase+gicdTYPER, gicdTYPERItLinesNum, 0x1f) + 1

	for n := uint32(0); n < itLines; n++ {
		reg.Write(DistBase+gicdICENABLER+4*n, 0xffffffff)
	}
}

// Enable unmasks irq at the distributor.
func (g *GIC) Enable(irq int) {
	n := uint32(irq / 32)
	i := irq % 32

	reg.Write(DistBase+gicdISENABLER+4*n, 1<<uint(i))
}

// Disable masks irq at the distributor.
func (g *GIC) Disable(irq int) {
	n := uint32(irq / 32)
	i := irq % 32

	reg.Write(DistBase+gicdICENABLER+4*n, 1<<uint(i))
}

// RegisterHandler installs fn as the handler for irq. The timer IRQ
// (TimerIRQ) is never dispatched through this table — see Dispatch.
func (g *GIC) RegisterHandler(irq int, fn func()) {
	if irq < 0 || irq >= NumIRQs {
		return
	}

	g.handlers[irq] = fn
}

// Dispatch reads IAR, treats SpuriousID as "nothing pending", invokes the
// registered handler (for TimerIRQ no handler is called; the caller
// services the timer after Dispatch returns its id — see board wiring),
// then acknowledges via EOIR with the exact value read from IAR.
func (g *GIC) Dispatch() int {
	id := int(reg.Get(CPUBase+gicsIAR, gicsIARID, 0x3ff))

	if id >= SpuriousID {
		return -1
	}

	if id != TimerIRQ {
		if h := g.handlers[id]; h != nil {
			h()
		}
	}

	reg.Write(CPUBase+gicsEOIR, uint32(id))

	return id
}
