// ARM64 processor support
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arm64

// implemented in assembly (irq.s), which is not included in this tree
func irq_enable()
func irq_disable()
func wfi()

// EnableInterrupts unmasks IRQ interrupts (clears PSTATE.I, `daifclr #2`).
func (cpu *CPU) EnableInterrupts() {
	irq_enable()
}

// DisableInterrupts masks IRQ interrupts (sets PSTATE.I, `daifset #2`).
// Per §5, handlers run with IRQs masked and must never leave them masked
// on return; callers pair this with a deferred EnableInterrupts.
func (cpu *CPU) DisableInterrupts() {
	irq_disable()
}

// WaitInterrupt suspends execution until an interrupt is received. This
// is the only platform-independent suspension point besides sleep (§5).
func (cpu *CPU) WaitInterrupt() {
	wfi()
}
