// VirtIO tablet (absolute pointer) decoding (C12)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

// Linux evdev event types/codes the QEMU virtio tablet emits.
const (
	evAbs = 0x03

	codeAbsX = 0x00
	codeAbsY = 0x01

	codeBtnLeft   = 0x110
	codeBtnRight  = 0x111
	codeBtnMiddle = 0x112
)

// rawRange is the tablet's raw absolute coordinate range, §4.12.
const rawRange = 32767

// Button bitmask bits mirrored from BTN_LEFT/RIGHT/MIDDLE.
const (
	BtnLeft = 1 << iota
	BtnRight
	BtnMiddle
)

// Tablet decodes virtio-input ABS_X/ABS_Y/BTN_* events into framebuffer
// coordinates and a button bitmask.
type Tablet struct {
	Device *Device

	FBWidth  int
	FBHeight int

	X, Y     int
	Buttons  uint8
}

// Poll drains the device's event queue, scaling raw 0..32767 absolute
// coordinates to the framebuffer's dimensions and mirroring button
// state into Buttons (§4.12).
func (t *Tablet) Poll() {
	for _, ev := range t.Device.Q.Poll() {
		switch ev.Type {
		case evAbs:
			switch ev.Code {
			case codeAbsX:
				t.X = scale(int(ev.Value), t.FBWidth)
			case codeAbsY:
				t.Y = scale(int(ev.Value), t.FBHeight)
			}
		case evKey:
			pressed := ev.Value != 0

			var bit uint8
			switch ev.Code {
			case codeBtnLeft:
				bit = BtnLeft
			case codeBtnRight:
				bit = BtnRight
			case codeBtnMiddle:
				bit = BtnMiddle
			default:
				continue
			}

			if pressed {
				t.Buttons |= bit
			} else {
				t.Buttons &^= bit
			}
		}
	}
}

func scale(raw, dim int) int {
	if dim <= 0 {
		return 0
	}

	v := raw * dim / rawRange
	if v < 0 {
		v = 0
	}
	if v >= dim {
		v = dim - 1
	}

	return v
}
