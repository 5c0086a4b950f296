// VirtIO keyboard scancode translation (C12)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

// Linux evdev event types/codes virtio-input forwards verbatim.
const (
	evKey = 0x01

	codeLeftShift  = 42
	codeRightShift = 54
	codeLeftCtrl   = 29
	codeRightCtrl  = 97

	codeUp    = 103
	codeDown  = 108
	codeLeft  = 105
	codeRight = 106
	codeHome  = 102
	codeEnd   = 107
	codeDel   = 111
	codePgUp  = 104
	codePgDn  = 109
)

// Special-key codes, ≥ 0x100 per §4.12 / hal.Input.KeyboardGetc.
const (
	KeyUp = 0x100 + iota
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyDelete
	KeyPageUp
	KeyPageDown
)

var specialKeys = map[uint16]int{
	codeUp:    KeyUp,
	codeDown:  KeyDown,
	codeLeft:  KeyLeft,
	codeRight: KeyRight,
	codeHome:  KeyHome,
	codeEnd:   KeyEnd,
	codeDel:   KeyDelete,
	codePgUp:  KeyPageUp,
	codePgDn:  KeyPageDown,
}

// normalTable and shiftTable translate evdev keycodes 1..127 to ASCII
// for an unshifted / shifted US keyboard. Index 0 and unmapped entries
// are 0 (no ASCII equivalent).
var normalTable = [128]byte{
	16: 'q', 17: 'w', 18: 'e', 19: 'r', 20: 't', 21: 'y', 22: 'u', 23: 'i', 24: 'o', 25: 'p',
	30: 'a', 31: 's', 32: 'd', 33: 'f', 34: 'g', 35: 'h', 36: 'j', 37: 'k', 38: 'l',
	44: 'z', 45: 'x', 46: 'c', 47: 'v', 48: 'b', 49: 'n', 50: 'm',
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5', 7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	57: ' ', 28: '\r', 14: '\b', 15: '\t',
	12: '-', 13: '=', 26: '[', 27: ']', 39: ';', 40: '\'', 41: '`', 43: '\\', 51: ',', 52: '.', 53: '/',
}

var shiftTable = [128]byte{
	16: 'Q', 17: 'W', 18: 'E', 19: 'R', 20: 'T', 21: 'Y', 22: 'U', 23: 'I', 24: 'O', 25: 'P',
	30: 'A', 31: 'S', 32: 'D', 33: 'F', 34: 'G', 35: 'H', 36: 'J', 37: 'K', 38: 'L',
	44: 'Z', 45: 'X', 46: 'C', 47: 'V', 48: 'B', 49: 'N', 50: 'M',
	2: '!', 3: '@', 4: '#', 5: '$', 6: '%', 7: '^', 8: '&', 9: '*', 10: '(', 11: ')',
	57: ' ', 28: '\r', 14: '\b', 15: '\t',
	12: '_', 13: '+', 26: '{', 27: '}', 39: ':', 40: '"', 41: '~', 43: '|', 51: '<', 52: '>', 53: '?',
}

// Keyboard decodes virtio-input keyboard events into the ASCII/special
// key codes hal.Input.KeyboardGetc returns.
type Keyboard struct {
	Device *Device

	shift bool
	ctrl  bool
}

// Poll drains the device's event queue and returns every key press
// decoded this call (key releases are consumed but produce no output,
// matching a simple getc-style keyboard).
func (k *Keyboard) Poll() []int {
	var out []int

	for _, ev := range k.Device.Q.Poll() {
		if ev.Type != evKey {
			continue
		}

		pressed := ev.Value != 0

		switch ev.Code {
		case codeLeftShift, codeRightShift:
			k.shift = pressed
			continue
		case codeLeftCtrl, codeRightCtrl:
			k.ctrl = pressed
			continue
		}

		if !pressed {
			continue
		}

		if special, ok := specialKeys[ev.Code]; ok {
			out = append(out, special)
			continue
		}

		if int(ev.Code) >= len(normalTable) {
			continue
		}

		c := normalTable[ev.Code]
		if k.shift {
			c = shiftTable[ev.Code]
		}

		if c == 0 {
			continue
		}

		if k.ctrl && c >= 'a' && c <= 'z' {
			out = append(out, int(c-'a'+1))
			continue
		}

		if k.ctrl && c >= 'A' && c <= 'Z' {
			out = append(out, int(c-'A'+1))
			continue
		}

		out = append(out, int(c))
	}

	return out
}
