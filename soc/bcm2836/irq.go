// BCM2836 two-tier interrupt controller
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bcm2836

import (
	"github.com/kirakira-dev/kikios/internal/reg"
)

const (
	localBase = 0x40000000

	localControl        = localBase + 0x00
	localPrescaler       = localBase + 0x08
	localGPUIntRouting   = localBase + 0x0c
	localTimerIRQCntl0   = localBase + 0x40
	localIRQSrcCore0     = localBase + 0x60

	// core0_irq_src bits (§4.2): the non-secure physical timer is the
	// one this repository drives every tick.
	coreSrcCNTPNSIRQ = 1 << 1
	coreSrcGPU       = 1 << 8

	legacyBase = 0xB200

	legacyBasicPending = legacyBase + 0x00
	legacyPending1     = legacyBase + 0x04
	legacyPending2     = legacyBase + 0x08
	legacyEnable1      = legacyBase + 0x10
	legacyEnable2      = legacyBase + 0x14
	legacyEnableBasic  = legacyBase + 0x18
	legacyDisable1     = legacyBase + 0x1c
	legacyDisable2     = legacyBase + 0x20

	// LocalTimerIRQ is the unified IRQ number the core-local non-secure
	// physical timer is assigned (core-local range, 0..7).
	LocalTimerIRQ = 1

	// NumIRQs spans core-local 0..7, bank1 +8 (32 lines) and bank2 +40
	// (32 lines).
	NumIRQs = 72
)

var bank1Shortcut = [5]int{7, 9, 10, 18, 19}
var bank2Shortcut = [6]int{21, 22, 23, 24, 25, 30}

// Controller drives the BCM2836 two-tier interrupt hierarchy: the
// per-core ARM local block (timer, mailboxes) and the legacy VideoCore
// peripheral controller, folded into one linear IRQ namespace.
type Controller struct {
	handlers [NumIRQs]func()
}

// Init configures the local timer to run at the 19.2 MHz crystal rate
// (prescale 1:1, per §4.2), routes GPU (peripheral) interrupts to core 0,
// enables the non-secure physical timer line, and masks every legacy VC
// source.
func (c *Controller) Init() {
	reg.Write(localPrescaler, 0x80000000) // 2^31 => 1:1 at 19.2 MHz
	reg.Write(localGPUIntRouting, 0)       // GPU IRQ -> core 0
	reg.Write(localTimerIRQCntl0, coreSrcCNTPNSIRQ)

	reg.Write(legacyDisable1, 0xffffffff)
	reg.Write(legacyDisable2, 0xffffffff)
	reg.Write(legacyEnableBasic, 0)
}

// EnableAll is a no-op: per-IRQ masking is managed by Enable/Disable; there
// is no controller-wide gate distinct from Init's per-source setup.
func (c *Controller) EnableAll() {}

// DisableAll masks every legacy VC source; the core-local timer line is
// left under Init's control since it drives scheduling.
func (c *Controller) DisableAll() {
	reg.Write(legacyDisable1, 0xffffffff)
	reg.Write(legacyDisable2, 0xffffffff)
}

// Enable unmasks irq, translating the unified numbering back to a bank1,
// bank2 or core-local source.
func (c *Controller) Enable(irq int) {
	switch {
	case irq < 8:
		// core-local sources are enabled individually by Init; nothing
		// additional is required here.
	case irq < 40:
		reg.Write(legacyEnable1, 1<<uint(irq-8))
	default:
		reg.Write(legacyEnable2, 1<<uint(irq-40))
	}
}

// Disable masks irq.
func (c *Controller) Disable(irq int) {
	switch {
	case irq < 8:
	case irq < 40:
		reg.Write(legacyDisable1, 1<<uint(irq-8))
	default:
		reg.Write(legacyDisable2, 1<<uint(irq-40))
	}
}

// RegisterHandler installs fn for the unified IRQ number irq.
func (c *Controller) RegisterHandler(irq int, fn func()) {
	if irq < 0 || irq >= NumIRQs {
		return
	}

	c.handlers[irq] = fn
}

func (c *Controller) run(irq int) {
	if h := c.handlers[irq]; h != nil {
		h()
	}
}

// Dispatch services every interrupt pending at the moment of the call,
// following §4.2's exact shortcut-then-full-bank order, and returns the
// last unified IRQ number serviced (or -1 if none were pending).
func (c *Controller) Dispatch() int {
	src := reg.Read(localIRQSrcCore0)

	if src&coreSrcCNTPNSIRQ != 0 {
		c.run(LocalTimerIRQ)
		return LocalTimerIRQ
	}

	if src&coreSrcGPU == 0 {
		return -1
	}

	basic := reg.Read(legacyBasicPending)
	last := -1

	for i, gpuIRQ := range bank1Shortcut {
		if basic&(1<<uint(10+i)) != 0 {
			last = 8 + gpuIRQ
			c.run(last)
		}
	}

	for i, gpuIRQ := range bank2Shortcut {
		if basic&(1<<uint(15+i)) != 0 {
			last = 40 + gpuIRQ
			c.run(last)
		}
	}

	if basic&(1<<8) != 0 {
		pending1 := reg.Read(legacyPending1)

		for _, s := range bank1Shortcut {
			pending1 &^= 1 << uint(s)
		}

		for bit := 0; bit < 32; bit++ {
			if pending1&(1<<uint(bit)) != 0 {
				last = 8 + bit
				c.run(last)
			}
		}
	}

	if basic&(1<<9) != 0 {
		pending2 := reg.Read(legacyPending2)

		for _, s := range bank2Shortcut {
			pending2 &^= 1 << uint(s)
		}

		for bit := 0; bit < 32; bit++ {
			if pending2&(1<<uint(bit)) != 0 {
				last = 40 + bit
				c.run(last)
			}
		}
	}

	return last
}
