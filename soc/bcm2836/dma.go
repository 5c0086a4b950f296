// BCM2836 DMA controller driver (channel 0, framebuffer)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bcm2836

import (
	"time"
	"unsafe"

	"github.com/kirakira-dev/kikios/internal/reg"
)

// DMA channel register block (§4.1: "channel 0 is reserved for the
// framebuffer"). There is no BCM283x DMA controller driver anywhere in
// the reference corpus; this is built from the well-known DMA
// controller register layout, in the same internal/reg MMIO idiom the
// SDHCI and interrupt controller drivers use.
const (
	dmaBase = 0x007000

	dmaChannelStride = 0x100

	regDMACS      = 0x00
	regDMAConblkAD = 0x04
	regDMADebug   = 0x20

	csActive = 1 << 0
	csEnd    = 1 << 1
	csReset  = 1 << 31

	tiDestInc  = 1 << 4
	tiSrcInc   = 1 << 8
	ti2DMode   = 1 << 1
	tiWaitResp = 1 << 3
)

// controlBlock mirrors the BCM283x DMA control block layout: transfer
// info, source, destination, transfer length (byte count, or
// length|stride<<16 in 2D mode), 2D stride, next control block address,
// and two reserved words.
type controlBlock struct {
	ti       uint32
	srcAD    uint32
	destAD   uint32
	txfrLen  uint32
	stride   uint32
	nextCB   uint32
	reserved [2]uint32
}

// DMA drives BCM283x DMA channel 0, implementing hal.DMA for the Pi
// platform. QEMU has no equivalent controller and falls back to CPU
// memcpy instead (§4.1).
type DMA struct {
	cb *controlBlock
}

func (d *DMA) reg(off uint32) uintptr {
	return PeripheralAddress(dmaBase + off)
}

// Init allocates the single reusable control block this driver submits
// every transfer through.
func (d *DMA) Init() {
	d.cb = &controlBlock{}
	reg.Write(d.reg(regDMACS), csReset)
}

// Available always reports true on the Pi: channel 0 is dedicated and
// always present.
func (d *DMA) Available() bool { return true }

func (d *DMA) submit(cb *controlBlock) {
	reg.Write(d.reg(regDMAConblkAD), uint32(uintptr(unsafe.Pointer(cb))))
	reg.Write(d.reg(regDMACS), csActive)

	deadline := time.Now().Add(5 * time.Second)
	for reg.Get(d.reg(regDMACS), 1, 1) == 0 { // poll CS.END
		if time.Now().After(deadline) {
			return
		}
	}

	reg.Write(d.reg(regDMACS), csEnd)
}

// Copy performs a flat memory-to-memory DMA transfer.
func (d *DMA) Copy(dst, src uintptr, length int) {
	*d.cb = controlBlock{
		ti:      tiSrcInc | tiDestInc,
		srcAD:   uint32(src),
		destAD:  uint32(dst),
		txfrLen: uint32(length),
	}

	d.submit(d.cb)
}

// Copy2D performs a 2-D rectangle DMA transfer (console.go's scratch
// buffer flush): width bytes per row, height rows, independent source
// and destination pitches.
func (d *DMA) Copy2D(dst uintptr, dstPitch int, src uintptr, srcPitch int, width, height int) {
	*d.cb = controlBlock{
		ti:      tiSrcInc | tiDestInc | ti2DMode,
		srcAD:   uint32(src),
		destAD:  uint32(dst),
		txfrLen: uint32(width) | uint32(height-1)<<16,
		stride:  uint32(srcPitch-width)<<16 | uint32(dstPitch-width),
	}

	d.submit(d.cb)
}

// Fill performs a constant-word fill by treating val as a single-word
// "source" that DMA reads repeatedly (source address held fixed).
func (d *DMA) Fill(dst uintptr, val uint32, length int) {
	src := val

	*d.cb = controlBlock{
		ti:      tiDestInc,
		srcAD:   uint32(uintptr(unsafe.Pointer(&src))),
		destAD:  uint32(dst),
		txfrLen: uint32(length),
	}

	d.submit(d.cb)
}
