// QEMU virt machine platform wiring
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package qemu assembles the hal.Platform for the QEMU virt (aarch64)
// machine: GIC-400 interrupts, PL011 serial, ramfb display, virtio-blk
// storage and virtio-input keyboard/mouse. It follows the teacher's
// board/<name> entrypoint idiom — a package-level block of peripheral
// instances plus a //go:linkname'd Init hooked into the runtime's
// hardware-init callback — generalized to build one hal.Platform value
// instead of a flat set of globals, since every subsystem above this
// package (console, kernel, fs/fat32) is written against hal, not
// against board/qemu directly.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm64`
// as supported by the TamaGo framework for bare metal Go.
package qemu

import (
	_ "unsafe"

	"github.com/kirakira-dev/kikios/arm64"
	"github.com/kirakira-dev/kikios/hal"
	"github.com/kirakira-dev/kikios/input/virtio"
	"github.com/kirakira-dev/kikios/kernel"
	"github.com/kirakira-dev/kikios/soc/qemu/gic"
	"github.com/kirakira-dev/kikios/soc/qemu/pl011"
	"github.com/kirakira-dev/kikios/soc/qemu/ramfb"
	"github.com/kirakira-dev/kikios/storage/virtioblk"
)

// Display geometry and tick cadence, per §4.3/§4.11.
const (
	FBWidth  = 1024
	FBHeight = 768

	TickIntervalMs = 10
)

// Peripheral instances.
var (
	CPU = &arm64.CPU{}

	GIC   = &gic.GIC{}
	UART0 = pl011.New(pl011.Base)
	Clock = &arm64.Clock{CPU: CPU}
	FB    = &ramfb.Framebuffer{}
	Block = &virtioblk.Device{}
	DMA   = memcpyDMA{}
	Power = arm64.Power{CPU: CPU}
)

// VirtioInput is the bound virtio-input keyboard/tablet pair (§4.12),
// populated by Init once the virtio-mmio slots have been scanned.
var VirtioInput *virtio.Input

// Platform is the assembled HAL the kernel is handed at boot.
var Platform hal.Platform

//go:linkname nanotime1 runtime.nanotime1
func nanotime1() int64 {
	return CPU.GetTime()
}

// Init runs the lower level platform bring-up triggered early in
// runtime setup (post World start), mirroring the teacher's
// runtime.hwinit hook.
//
//go:linkname Init runtime.hwinit
func Init() {
	CPU.Init()
	GIC.Init()
	UART0.Init()

	VirtioInput = virtio.NewInput(virtio.ScanAll(), FBWidth, FBHeight)

	// A missing virtio-blk device is not fatal at this point: fs/fat32
	// surfaces Mount's own error to whatever userspace or kernel code
	// tries to use the filesystem, rather than board init refusing to
	// boot a machine with no disk attached.
	if err := Block.Init(); err != nil {
		kernel.Logf(kernel.Warn, "qemu", err.Error())
	}

	Platform = hal.Platform{
		Serial:      UART0,
		Framebuffer: FB,
		Interrupt:   GIC,
		Timer:       Clock,
		Block:       Block,
		Input:       VirtioInput,
		DMA:         DMA,
		Power:       Power,
	}

	// virtio-input is pulled on demand by hal.Input.KeyboardGetc /
	// MouseGetState (§4.12), not ISR-pushed, so no per-device GIC
	// handler is registered for it here.

	arm64.IRQHandler = serviceIRQ
}

// serviceIRQ is installed as arm64.IRQHandler: it first runs the GIC's
// table-driven dispatch (IAR read, handler for any non-timer source,
// EOI), and when the acknowledged id is the timer PPI it then reloads the
// timer countdown register before driving the clock and kernel tick
// (§4.3 step 2).
func serviceIRQ() {
	id := GIC.Dispatch()

	if id == gic.TimerIRQ {
		Clock.SetInterval(TickIntervalMs)
		Clock.Tick()

		if Ticker != nil {
			Ticker.Tick()
		}
	}
}

// Ticker is assigned by the kernel boot sequence once the scheduler and
// heap exist; serviceIRQ is a no-op on the tick side until then, so early
// timer interrupts during Init don't dereference a nil Ticker.
var Ticker interface{ Tick() }
