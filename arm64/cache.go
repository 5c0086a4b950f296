// ARM64 cache maintenance
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arm64

// implemented in assembly (cache.s), which is not included in this tree
func cache_enable()
func cache_disable()
func dc_cvac(addr uintptr)
func dc_civac(addr uintptr)
func dsb()

// EnableCache activates the ARM instruction and data caches.
func (cpu *CPU) EnableCache() {
	cache_enable()
}

// DisableCache disables the ARM instruction and data caches.
func (cpu *CPU) DisableCache() {
	cache_disable()
}

// DSB issues a data synchronization barrier to the system domain. Every
// device register access in this repository is preceded and followed by
// one, per §5 of the design.
func DSB() {
	dsb()
}

// walk invokes op once per cache line covering [addr, addr+size). size
// need not be cache-line aligned; the final partial line is still
// covered.
func (cpu *CPU) walk(addr uintptr, size int, op func(uintptr)) {
	line := cpu.CacheLineSize()

	if line <= 0 {
		line = 64
	}

	start := addr &^ uintptr(line-1)
	end := addr + uintptr(size)

	for a := start; a < end; a += uintptr(line) {
		op(a)
	}
}

// Clean writes back dirty cache lines covering [addr, addr+size) to RAM
// without invalidating them (`dc cvac`). Used before outbound DMA so the
// controller observes bytes the CPU has written.
func (cpu *CPU) Clean(addr uintptr, size int) {
	cpu.walk(addr, size, dc_cvac)
	dsb()
}

// CleanInvalidate writes back and invalidates cache lines covering
// [addr, addr+size) (`dc civac`), forcing a subsequent CPU read to fetch
// fresh data from RAM. Used before reading a buffer a DMA-capable
// controller has written.
func (cpu *CPU) CleanInvalidate(addr uintptr, size int) {
	cpu.walk(addr, size, dc_civac)
	dsb()
}
