// ARM64 exception handling
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arm64

import "fmt"

const (
	vecTableJump   = 0xe59ff018 // ldr pc, [pc, #24]
	excStackOffset = 0x8000     // 32 kB
	excStackSize   = 0x4000     // 16 kB
)

// implemented in assembly (exception.s), which is not included in this tree
func set_vbar()
func read_el() uint64

//go:nosplit
func (cpu *CPU) initVectorTable() {
	set_vbar()
}

// Frame is the register frame saved by the exception vector stub before
// calling into Go. It mirrors the layout the assembly stub pushes: x0..x30,
// the saved stack/frame/link registers and the saved program status.
type Frame struct {
	X    [31]uint64
	SP   uint64
	FP   uint64 // x29
	LR   uint64 // x30
	ELR  uint64
	SPSR uint64
}

// Kind classifies an ESR_EL1.EC exception class (bits 31:26 of ESR).
type Kind int

const (
	Unknown Kind = iota
	SVC
	InstAbortLowerEL
	InstAbortSameEL
	DataAbortLowerEL
	DataAbortSameEL
	PCAlignment
	SPAlignment
	FPException
	SErrorKind
	BreakPoint
)

func (k Kind) String() string {
	switch k {
	case SVC:
		return "Supervisor Call"
	case InstAbortLowerEL, InstAbortSameEL:
		return "Instruction Abort"
	case DataAbortLowerEL, DataAbortSameEL:
		return "Data Abort"
	case PCAlignment:
		return "PC Alignment Fault"
	case SPAlignment:
		return "SP Alignment Fault"
	case FPException:
		return "Floating Point Exception"
	case SErrorKind:
		return "SError"
	case BreakPoint:
		return "Breakpoint"
	default:
		return "Unknown Exception"
	}
}

// EC extracts the exception class (bits 31:26) from ESR_EL1.
func EC(esr uint64) uint64 {
	return (esr >> 26) & 0x3f
}

// DecodeEC classifies the exception class field of ESR_EL1 into a Kind,
// per §4.13.
func DecodeEC(esr uint64) Kind {
	switch EC(esr) {
	case 0x15:
		return SVC
	case 0x20:
		return InstAbortLowerEL
	case 0x21:
		return InstAbortSameEL
	case 0x22:
		return PCAlignment
	case 0x24:
		return DataAbortLowerEL
	case 0x25:
		return DataAbortSameEL
	case 0x26:
		return SPAlignment
	case 0x2c:
		return FPException
	case 0x3c:
		return BreakPoint
	default:
		return Unknown
	}
}

// FaultStatus classifies the DFSC/IFSC field (ISS bits 5:0) of a data or
// instruction abort into a human-readable class, per §4.13.
func FaultStatus(esr uint64) string {
	switch iss := esr & 0x3f; {
	case iss >= 0b000100 && iss <= 0b000111:
		return "Translation Fault"
	case iss >= 0b001001 && iss <= 0b001011:
		return "Access Flag Fault"
	case iss >= 0b001101 && iss <= 0b001111:
		return "Permission Fault"
	case iss >= 0b010000 && iss <= 0b010111:
		return "Synchronous External Abort"
	case iss == 0b100001:
		return "Alignment Fault"
	default:
		return fmt.Sprintf("Fault Status %#02x", iss)
	}
}

// IsWrite reports whether a data abort's ISS.WnR bit (bit 6) indicates a
// write access.
func IsWrite(esr uint64) bool {
	return (esr>>6)&1 == 1
}

// Info describes a trapped exception, passed from the assembly vector
// stub to the registered handler.
type Info struct {
	Kind  Kind
	ESR   uint64
	ELR   uint64
	FAR   uint64
	Frame *Frame
}

// SyncHandler is invoked by the synchronous exception vector. The kernel
// overrides it at boot with the WSOD/backtrace renderer (§4.13); the
// default merely reports the kind and hangs.
var SyncHandler = func(info Info) {
	print("EL1 ", info.Kind.String(), " exception, ELR=", info.ELR, "\n")

	for {
		wfi()
	}
}

// SErrorHandler and FIQHandler share the sync handler's rendering path
// with a simpler info block, per §4.13; the kernel assigns the same
// renderer to all three.
var SErrorHandler = SyncHandler
var FIQHandler = SyncHandler

// IRQHandler is invoked by the IRQ exception vector — the one a GIC-400
// or BCM2836 controller's interrupt line actually routes through on
// both platforms. Board wiring overrides this at boot with a closure
// that calls the platform's hal.Interrupt.Dispatch and, for the timer
// IRQ, re-arms the countdown register and drives the kernel tick (§4.3).
// The default is a no-op so a stray IRQ before board init can't call a
// nil handler.
var IRQHandler = func() {}

// syncException is called by the assembly vector stub on every
// synchronous exception.
//
//go:nosplit
func syncException(esr, elr, far uint64, frame *Frame) {
	SyncHandler(Info{Kind: DecodeEC(esr), ESR: esr, ELR: elr, FAR: far, Frame: frame})
}

//go:nosplit
func serrorException(esr, elr, far uint64, frame *Frame) {
	SErrorHandler(Info{Kind: SErrorKind, ESR: esr, ELR: elr, FAR: far, Frame: frame})
}

//go:nosplit
func fiqException(esr, elr, far uint64, frame *Frame) {
	FIQHandler(Info{Kind: DecodeEC(esr), ESR: esr, ELR: elr, FAR: far, Frame: frame})
}

// irqException is called by the assembly vector stub on every IRQ
// exception; unlike the other three, it carries no fault info worth
// decoding, it's simply a door bell into whatever interrupt controller
// driver is wired in.
//
//go:nosplit
func irqException() {
	IRQHandler()
}

// Backtrace walks a frame-pointer chain, up to maxDepth entries, starting
// at fp. inRAM reports whether a candidate frame pointer lies within a
// known RAM range; the walk stops as soon as it doesn't, or when fp is
// not 8-byte aligned, per §4.13.
func Backtrace(fp uint64, maxDepth int, inRAM func(uint64) bool) []uint64 {
	addrs := make([]uint64, 0, maxDepth)

	for i := 0; i < maxDepth; i++ {
		if fp == 0 || fp%8 != 0 || !inRAM(fp) {
			break
		}

		// [fp] holds the saved frame pointer, [fp+8] the saved link
		// register (return address), per the AAPCS64 frame layout.
		savedFP := loadU64(uintptr(fp))
		savedLR := loadU64(uintptr(fp + 8))

		if savedLR == 0 {
			break
		}

		addrs = append(addrs, savedLR)
		fp = savedFP
	}

	return addrs
}
