// MMIO register access primitives
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package reg provides primitives for retrieving and modifying memory
// mapped I/O registers, on top of which every device driver in this
// repository is built.
//
// All accesses go through atomic load/store so that a driver racing with
// an interrupt handler touching the same register (e.g. a W1C status
// register) never observes a torn read or write.
package reg

import (
	"time"
)

// implemented in assembly (barrier.s), which is not included in this tree
func dsb()

// Get returns the mask-wide field at bit position pos of the register at
// addr.
func Get(addr uintptr, pos int, mask uint32) uint32 {
	return (Read(addr) >> uint(pos)) & mask
}

// Set sets the single bit at position pos of the register at addr.
func Set(addr uintptr, pos int) {
	SetN(addr, pos, 1, 1)
}

// Clear clears the single bit at position pos of the register at addr.
func Clear(addr uintptr, pos int) {
	ClearN(addr, pos, 1)
}

// SetTo sets or clears the single bit at position pos depending on v.
func SetTo(addr uintptr, pos int, v bool) {
	if v {
		Set(addr, pos)
	} else {
		Clear(addr, pos)
	}
}

// SetN sets the mask-wide field at bit position pos of the register at
// addr to val.
func SetN(addr uintptr, pos int, mask uint32, val uint32) {
	r := Read(addr)
	r = (r &^ (mask << uint(pos))) | ((val & mask) << uint(pos))
	Write(addr, r)
}

// ClearN clears the mask-wide field at bit position pos of the register at
// addr.
func ClearN(addr uintptr, pos int, mask uint32) {
	r := Read(addr)
	r &^= mask << uint(pos)
	Write(addr, r)
}

// Read performs a single 32-bit load from addr, preceded by a data
// synchronization barrier as required by §5 for all device register
// access.
func Read(addr uintptr) uint32 {
	dsb()
	return load32(addr)
}

// Write performs a single 32-bit store to addr, followed by a data
// synchronization barrier.
func Write(addr uintptr, val uint32) {
	store32(addr, val)
	dsb()
}

// Read64 performs a single 64-bit load from addr.
func Read64(addr uintptr) uint64 {
	dsb()
	return load64(addr)
}

// Write64 performs a single 64-bit store to addr.
func Write64(addr uintptr, val uint64) {
	store64(addr, val)
	dsb()
}

// Wait spins until the mask-wide field at bit position pos of the
// register at addr equals val. Callers on the kernel thread must prefer
// WaitFor, which is bounded; Wait is reserved for sequences that are
// themselves protected by an outer bounded loop (e.g. cmd retry).
func Wait(addr uintptr, pos int, mask uint32, val uint32) {
	for Get(addr, pos, mask) != val {
	}
}

// WaitFor spins until the mask-wide field at bit position pos of the
// register at addr equals val, or until timeout elapses. It returns false
// on timeout. Not every hardware wait in this repository is bounded:
// Wait above, and the Putc transmit-ready loops of the BCM2836 mini-UART
// and the QEMU PL011, spin with no limit.
func WaitFor(timeout time.Duration, addr uintptr, pos int, mask uint32, val uint32) bool {
	deadline := time.Now().Add(timeout)

	for Get(addr, pos, mask) != val {
		if time.Now().After(deadline) {
			return false
		}
	}

	return true
}
