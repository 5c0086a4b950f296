// ARM64 generic timer support
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arm64

import (
	"math"
)

// nanoseconds
const refFreq int64 = 1e9

// Physical timer IRQ (PPI 30), shared by the QEMU GIC-400 and the Pi's
// ARM local timer — both platforms wire it to the same tick handler (§3,
// §4.3).
const TIMER_IRQ = 30

// implemented in assembly (timer.s), which is not included in this tree
func read_cntfrq() uint32
func read_cntpct() uint64
func write_cntptval(val uint32, enable bool)
func write_cntkctl(val uint32)

const cntkctlPL0PCTEN = 0

// InitGenericTimers reads the timer's base frequency (CNTFRQ_EL0) and
// derives the nanosecond multiplier used by GetTime/SetAlarm.
func (cpu *CPU) InitGenericTimers() {
	write_cntkctl(1 << cntkctlPL0PCTEN)
	cpu.TimerMultiplier = float64(refFreq) / float64(read_cntfrq())
}

// Counter returns the CPU Counter-timer Physical Count (CNTPCT_EL0).
func (cpu *CPU) Counter() uint64 {
	return read_cntpct()
}

// Frequency returns the timer's base frequency in Hz (CNTFRQ_EL0).
func (cpu *CPU) Frequency() uint32 {
	return read_cntfrq()
}

// GetTime returns the system time in nanoseconds.
func (cpu *CPU) GetTime() int64 {
	return int64(float64(cpu.Counter())*cpu.TimerMultiplier) + cpu.TimerOffset
}

// SetTime adjusts the system time to the argument nanoseconds value.
func (cpu *CPU) SetTime(ns int64) {
	if cpu.TimerMultiplier == 0 {
		return
	}

	cpu.TimerOffset = ns - int64(float64(read_cntpct())*cpu.TimerMultiplier)
}

// TicksForPeriod returns the CNTP_TVAL_EL0 reload value for a tick period
// of periodMs milliseconds, as used by the per-platform timer tick
// handlers (§4.3 step 2: "Reload the per-core countdown register with
// (cntfrq_el0 × period_ms) / 1000").
func (cpu *CPU) TicksForPeriod(periodMs uint32) uint32 {
	freq := uint64(read_cntfrq())
	ticks := (freq * uint64(periodMs)) / 1000

	if ticks > math.MaxUint32 {
		ticks = math.MaxUint32
	}

	return uint32(ticks)
}

// SetAlarm reloads the physical timer countdown register, re-arming the
// next tick interrupt. Passing 0 disables the timer.
func (cpu *CPU) SetAlarm(ticks uint32) {
	if ticks == 0 {
		write_cntptval(0, false)
		return
	}

	write_cntptval(ticks, true)
}
