// hal.Input adapter over the scanned virtio-input devices (C12)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import "github.com/kirakira-dev/kikios/hal"

// Input implements hal.Input over whichever virtio-input devices were
// found during ScanAll: the first keyboard and the first tablet bind,
// matching the "first keyboard, first mouse" policy §4.7 applies to
// USB HID.
type Input struct {
	keyboard *Keyboard
	tablet   *Tablet

	pending []int
}

// NewInput binds the first keyboard and tablet among devices.
func NewInput(devices []*Device, fbWidth, fbHeight int) *Input {
	in := &Input{}

	for _, d := range devices {
		switch d.Name {
		case NameKeyboard:
			if in.keyboard == nil {
				in.keyboard = &Keyboard{Device: d}
			}
		case NameTablet:
			if in.tablet == nil {
				in.tablet = &Tablet{Device: d, FBWidth: fbWidth, FBHeight: fbHeight}
			}
		}
	}

	return in
}

func (in *Input) KeyboardInit() {}

// KeyboardGetc drains any previously polled keys before pulling fresh
// ones off the queue, so keys left over when one Poll decodes several
// are returned by later calls instead of being dropped.
func (in *Input) KeyboardGetc() int {
	if len(in.pending) == 0 && in.keyboard != nil {
		in.pending = in.keyboard.Poll()
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
	if in.tablet == nil {
		return 0, 0, 0
	}

	in.tablet.Poll()

	return in.tablet.X, in.tablet.Y, in.tablet.Buttons
}

func (in *Input) MouseSetPos(x, y int) {
	if in.tablet == nil {
		return
	}

	in.tablet.X = x
	in.tablet.Y = y
}
