// Hardware Abstraction Layer contract
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hal defines the platform-independent contract every KikiOS
// board package (board/qemu, board/pi) implements. The kernel, the
// console, the filesystem and the userspace kapi dispatch table are all
// written against these interfaces, never against a concrete board —
// board selection is a Go build-time concern (one package per target),
// exactly like the teacher's board/<name> layout.
//
// All operations here must be safe to call with global interrupts
// masked, since several are invoked from interrupt context (the timer
// tick and the USB ISR).
package hal

import "time"

// NoData is the sentinel Serial.Getc and Input.KeyboardGetc return to mean
// "no data yet" — distinct from any error, so callers can poll silently.
const NoData = -1

// Serial is the early-boot and debug console UART.
type Serial interface {
	Init()
	Putc(c byte)
	// Getc returns the next received byte, or NoData if none is
	// available.
	Getc() int
}

// FramebufferInfo describes the linear pixel buffer a Framebuffer.Init
// call returns.
type FramebufferInfo struct {
	Base   uintptr
	Width  int
	Height int
	// Pitch is the number of bytes per scanline, which may exceed
	// Width*4 when the hardware pads rows.
	Pitch int
}

// Framebuffer is the linear 32-bit (0x00RRGGBB) pixel surface console
// (C11) draws into.
type Framebuffer interface {
	Init(width, height int) (FramebufferInfo, error)
	// SetScrollOffset programs a new Y origin into the virtual
	// framebuffer. It returns false on platforms (or configurations)
	// where hardware virtual-scroll is unavailable.
	SetScrollOffset(y int) bool
	// VirtualHeight returns the height, in pixels, of the virtual
	// framebuffer backing the visible one. Equal to Height when
	// hardware scroll is unavailable.
	VirtualHeight() int
}

// IRQHandler is a registered interrupt service routine. It runs with
// global interrupts masked and must not block or allocate.
type IRQHandler func()

// Interrupt is the platform's interrupt controller, abstracted behind a
// linear IRQ namespace of at least 72 entries (§4.1); translation to the
// underlying GIC-400 or BCM2836 numbering is the concrete implementation's
// job.
type Interrupt interface {
	Init()
	EnableAll()
	DisableAll()
	Enable(irq int)
	Disable(irq int)
	RegisterHandler(irq int, fn IRQHandler)
	// Dispatch services one pending interrupt, invoking its registered
	// handler, and returns the IRQ number serviced (or -1 if none was
	// pending / the IRQ was spurious).
	Dispatch() int
}

// Timer is the platform tick source shared by preemptive scheduling,
// cursor blink, and (on Pi) the USB watchdog.
type Timer interface {
	Init(intervalMs uint32)
	GetTicks() uint64
	SetInterval(intervalMs uint32)
}

// Block is a 512-byte-sector block device.
type Block interface {
	Init() error
	Read(sector uint64, buf []byte, count int) error
	Write(sector uint64, buf []byte, count int) error
}

// Input is the platform's keyboard and mouse source.
type Input interface {
	KeyboardInit()
	// KeyboardGetc returns the next queued key code, or NoData if
	// none is queued. Codes ≥ 0x100 denote non-ASCII special keys
	// (§4.12).
	KeyboardGetc() int
	MouseInit()
	MouseGetState() (x, y int, buttons uint8)
	MouseSetPos(x, y int)
}

// DMA abstracts a platform's bulk-copy engine; QEMU implementations fall
// back to CPU memcpy (§4.1).
type DMA interface {
	Init()
	Available() bool
	Copy(dst, src uintptr, length int)
	Copy2D(dst uintptr, dstPitch int, src uintptr, srcPitch int, width, height int)
	Fill(dst uintptr, val uint32, length int)
}

// Power exposes the two primitives every platform needs outside of the
// kernel timer: waiting for an interrupt, and a free-running microsecond
// counter usable before the kernel timer exists.
type Power interface {
	WFI()
	GetTimeUs() uint32
}

// Platform bundles every HAL surface a board package implements. The
// kernel holds exactly one Platform instance, selected at build time.
type Platform struct {
	Serial      Serial
	Framebuffer Framebuffer
	Interrupt   Interrupt
	Timer       Timer
	Block       Block
	Input       Input
	DMA         DMA
	Power       Power
}

// SleepTicks busy-waits (via WFI) until the timer's tick counter has
// advanced by d/tickPeriod ticks (rounded down). The first of those ticks
// may already be partly elapsed, so the actual wait can fall short of d by
// up to one tick period. This is the sleep_ms() suspension point described
// in §5: a kernel thread may only suspend at wfi(), at sleep_ms(), or by
// explicit yield.
func SleepTicks(t Timer, p Power, d time.Duration, tickPeriod time.Duration) {
	if tickPeriod <= 0 {
		return
	}

	ticks := uint64(d / tickPeriod)
	target := t.GetTicks() + ticks

	for t.GetTicks() < target {
		p.WFI()
	}
}
