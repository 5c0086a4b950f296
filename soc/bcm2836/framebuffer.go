// BCM2836 mailbox-backed framebuffer
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bcm2836

import (
	"encoding/binary"
	"fmt"

	"github.com/kirakira-dev/kikios/hal"
)

// Framebuffer drives the linear pixel buffer the VideoCore allocates on
// request, implementing hal.Framebuffer. The Pi Zero 2 W has no hardware
// scroll offset register reachable without re-issuing SetVirtualOffset
// through the mailbox, so scroll support is reported unavailable whenever
// the virtual framebuffer is no taller than the visible one.
type Framebuffer struct {
	info          hal.FramebufferInfo
	virtualHeight int
}

// Init requests a width x height, 32bpp framebuffer twice as tall as
// requested (so console.go's hardware-scroll path has a virtual region to
// scroll within), per §4.11.
func (f *Framebuffer) Init(width, height int) (hal.FramebufferInfo, error) {
	virtualHeight := height * 2

	widthBuf := make([]byte, 8)
	binary.LittleEndian.PutUint32(widthBuf[0:], uint32(width))
	binary.LittleEndian.PutUint32(widthBuf[4:], uint32(height))

	virtBuf := make([]byte, 8)
	binary.LittleEndian.PutUint32(virtBuf[0:], uint32(width))
	binary.LittleEndian.PutUint32(virtBuf[4:], uint32(virtualHeight))

	depthBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(depthBuf[0:], 32)

	allocBuf := make([]byte, 8)
	binary.LittleEndian.PutUint32(allocBuf[0:], 16)

	msg := &Message{
		Tags: []Tag{
			{ID: TagSetPhysicalWH, Buffer: widthBuf},
			{ID: TagSetVirtualWH, Buffer: virtBuf},
			{ID: TagSetDepth, Buffer: depthBuf},
			{ID: TagAllocBuffer, Buffer: allocBuf},
		},
	}

	if err := Call(ChPropertyTagsToVC, msg); err != nil {
		return hal.FramebufferInfo{}, err
	}

	alloc := msg.Tag(TagAllocBuffer)
	if alloc == nil || len(alloc.Buffer) < 8 {
		return hal.FramebufferInfo{}, fmt.Errorf("bcm2836: no framebuffer allocated")
	}

	base := binary.LittleEndian.Uint32(alloc.Buffer[0:]) &^ 0xC0000000

	pitchMsg := &Message{Tags: []Tag{{ID: TagGetPitch, Buffer: make([]byte, 4)}}}
	if err := Call(ChPropertyTagsToVC, pitchMsg); err != nil {
		return hal.FramebufferInfo{}, err
	}

	pitchTag := pitchMsg.Tag(TagGetPitch)
	pitch := width * 4

	if pitchTag != nil && len(pitchTag.Buffer) >= 4 {
		pitch = int(binary.LittleEndian.Uint32(pitchTag.Buffer[0:]))
	}

	f.info = hal.FramebufferInfo{
		Base:   uintptr(base),
		Width:  width,
		Height: height,
		Pitch:  pitch,
	}

	f.virtualHeight = virtualHeight

	return f.info, nil
}

// SetScrollOffset requests a new virtual-framebuffer Y origin through the
// mailbox. Returns false (caller falls back to software scroll) if the
// call fails.
func (f *Framebuffer) SetScrollOffset(y int) bool {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], 0)
	binary.LittleEndian.PutUint32(buf[4:], uint32(y))

	msg := &Message{Tags: []Tag{{ID: TagSetVirtualOff, Buffer: buf}}}

	return Call(ChPropertyTagsToVC, msg) == nil
}

// VirtualHeight returns the allocated virtual framebuffer's height.
func (f *Framebuffer) VirtualHeight() int {
	return f.virtualHeight
}
