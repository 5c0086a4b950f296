// hal.Timer adapter over the ARM generic timer (§4.3)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arm64

// Clock implements hal.Timer over the generic timer's physical
// countdown register. Both board packages share this: only the IRQ
// controller wiring that routes TIMER_IRQ to Tick differs between QEMU's
// GIC-400 and the Pi's core-local timer line.
type Clock struct {
	CPU *CPU

	ticks    uint64
	periodMs uint32
}

// Init reads the timer's base frequency and arms the first tick at
// intervalMs.
func (c *Clock) Init(intervalMs uint32) {
	c.CPU.InitGenericTimers()
	c.SetInterval(intervalMs)
}

// GetTicks returns the number of ticks serviced so far.
func (c *Clock) GetTicks() uint64 { return c.ticks }

// SetInterval re-arms the countdown register for a new tick period.
func (c *Clock) SetInterval(intervalMs uint32) {
	c.periodMs = intervalMs
	c.CPU.SetAlarm(c.CPU.TicksForPeriod(intervalMs))
}

// Tick is called from the board's timer IRQ handler, after the hardware
// countdown register has already been reloaded (§4.3 step 2 happens
// first, in the handler itself, so the tick condition is always cleared
// before this can be re-entered).
func (c *Clock) Tick() {
	c.ticks++
}
