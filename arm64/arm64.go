// ARM64 processor support
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package arm64 provides the architecture-specific primitives shared by
// every KikiOS platform: cache maintenance, the generic timer, exception
// vector plumbing and IRQ masking.
//
// KikiOS runs entirely with the MMU off, in a single flat physical address
// space identity-mapped by the boot shim; this package implements no page
// table support, per this repository's non-goal on virtual memory /
// MMU-based address space isolation.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm64` as
// supported by the TamaGo framework for bare metal Go.
package arm64

import (
	"runtime"
)

// CPU represents the single ARM64 core KikiOS runs on. KikiOS is
// explicitly single-core; there is exactly one CPU instance per boot.
type CPU struct {
	// Timer multiplier, nanoseconds per CNTPCT tick.
	TimerMultiplier float64
	// Timer offset in nanoseconds, for SetTime.
	TimerOffset int64

	// cache line size in bytes, read from CTR_EL0.DminLine at Init time.
	cacheLine int
}

// implemented in assembly (arm64.s), which is not included in this tree
func exit(int32)
func read_ctr_el0() uint64

const ctrDminLinePos = 16

// CurrentEL returns the processor's current exception level. KikiOS never
// drops to EL0: userspace processes run at the kernel's own privilege
// level, consistent with the non-goal on MMU-based address space
// isolation.
func CurrentEL() int {
	return int(read_el()&0b1100) >> 2
}

// Init performs the lower level initialization of the CPU instance: it
// installs the runtime exit hook, reads the cache line size and installs
// the exception vector table.
func (cpu *CPU) Init() {
	runtime.Exit = exit

	cpu.cacheLine = 4 << ((read_ctr_el0() >> ctrDminLinePos) & 0xf)
	cpu.initVectorTable()
}

// CacheLineSize returns the data cache line size in bytes, as required by
// every cache maintenance call in this repository — it is always derived
// from CTR_EL0.DminLine, never hard-coded to 64.
func (cpu *CPU) CacheLineSize() int {
	if cpu.cacheLine == 0 {
		cpu.cacheLine = 4 << ((read_ctr_el0() >> ctrDminLinePos) & 0xf)
	}

	return cpu.cacheLine
}
