// BCM2836 SoC support (Raspberry Pi Zero 2 W)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package bcm2836 implements the Raspberry Pi Zero 2 W platform drivers:
// the two-tier interrupt controller, the VideoCore mailbox, GPIO, the
// system timer and the mailbox-backed framebuffer.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm64` as
// supported by the TamaGo framework for bare metal Go.
package bcm2836

// PeripheralBase is the legacy VideoCore peripheral window's ARM-side bus
// address on the BCM2836 (Pi Zero 2 W, 32-bit legacy addressing).
const PeripheralBase = 0x3F000000

// PeripheralAddress returns the ARM-side MMIO address for a peripheral
// register offset within PeripheralBase.
func PeripheralAddress(offset uint32) uintptr {
	return uintptr(PeripheralBase + offset)
}

// BusAddress converts an ARM physical address into the VideoCore bus
// address mailbox calls expect (RAM is aliased at 0xC0000000 for the
// non-cached VC view).
func BusAddress(addr uint32) uint32 {
	return addr | 0xC0000000
}
