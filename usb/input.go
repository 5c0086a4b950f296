// hal.Input adapter over the bound USB HID pollers (C8)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import "github.com/kirakira-dev/kikios/hal"

// Input implements hal.Input over the first bound keyboard and mouse
// HID pollers (§4.7's "first keyboard, first mouse" policy), mirroring
// input/virtio.Input's shape so board wiring treats either board
// identically from the kapi's point of view.
type Input struct {
	Keyboard *Keyboard
	Mouse    *Mouse

	pending []int
}

func (in *Input) KeyboardInit() {}

// KeyboardGetc drains previously polled keys before pulling fresh ones,
// so the ISR-driven report collection and this pull-model getc don't
// drop input between calls.
func (in *Input) KeyboardGetc() int {
	if len(in.pending) == 0 && in.Keyboard != nil {
		in.pending = in.Keyboard.Poll()
	}

	if len(in.pending) == 0 {
		return hal.NoData
	}

	c := in.pending[0]
	in.pending = in.pending[1:]

	return c
}

func (in *Input) MouseInit() {}

func (in *Input) MouseGetState() (x, y int, buttons uint8) {
	if in.Mouse == nil {
		return 0, 0, 0
	}

	in.Mouse.Poll()

	return in.Mouse.X, in.Mouse.Y, in.Mouse.Buttons
}

func (in *Input) MouseSetPos(x, y int) {
	if in.Mouse == nil {
		return
	}

	in.Mouse.X = x
	in.Mouse.Y = y
}

var _ hal.Input = (*Input)(nil)
