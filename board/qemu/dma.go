// hal.DMA CPU-memcpy fallback for QEMU virt
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package qemu

import "unsafe"

// memcpyDMA implements hal.DMA over plain CPU copies: the virt machine
// exposes no bulk-copy engine KikiOS drives directly, so every caller
// (console.Console among them) gets a working, if not accelerated, DMA
// surface (§4.1: "QEMU implementations fall back to CPU memcpy").
type memcpyDMA struct{}

func (memcpyDMA) Init() {}

// Available reports false, so callers that check it (console's row
// flush, in particular) know not to expect overlap with other work.
func (memcpyDMA) Available() bool { return false }

func (memcpyDMA) Copy(dst, src uintptr, length int) {
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), length)
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), length)
	copy(d, s)
}

func (memcpyDMA) Copy2D(dst uintptr, dstPitch int, src uintptr, srcPitch int, width, height int) {
	for row := 0; row < height; row++ {
		d := unsafe.Slice((*byte)(unsafe.Pointer(dst+uintptr(row*dstPitch))), width)
		s := unsafe.Slice((*byte)(unsafe.Pointer(src+uintptr(row*srcPitch))), width)
		copy(d, s)
	}
}

func (memcpyDMA) Fill(dst uintptr, val uint32, length int) {
	words := unsafe.Slice((*uint32)(unsafe.Pointer(dst)), length/4)
	for i := range words {
		words[i] = val
	}
}
