// USB boot-protocol keyboard report decoding (C8)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

// Special-key codes, ≥ 0x100 per §4.12 / hal.Input.KeyboardGetc. Kept
// numerically identical to input/virtio's table so a kapi caller sees
// one key-code vocabulary regardless of which board it runs on.
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

const (
	modLeftCtrl  = 1 << 0
	modLeftShift = 1 << 1
	modRightCtrl  = 1 << 4
	modRightShift = 1 << 5
)

var specialKeys = map[byte]int{
	0x52: KeyUp,
	0x51: KeyDown,
	0x50: KeyLeft,
	0x4f: KeyRight,
	0x4a: KeyHome,
	0x4d: KeyEnd,
	0x4c: KeyDelete,
	0x4b: KeyPageUp,
	0x4e: KeyPageDown,
}

// normalTable and shiftTable translate USB HID boot-keyboard usage IDs
// to ASCII for an unshifted / shifted US keyboard.
var normalTable = [0x39]byte{
	0x04: 'a', 0x05: 'b', 0x06: 'c', 0x07: 'd', 0x08: 'e', 0x09: 'f', 0x0a: 'g', 0x0b: 'h',
	0x0c: 'i', 0x0d: 'j', 0x0e: 'k', 0x0f: 'l', 0x10: 'm', 0x11: 'n', 0x12: 'o', 0x13: 'p',
	0x14: 'q', 0x15: 'r', 0x16: 's', 0x17: 't', 0x18: 'u', 0x19: 'v', 0x1a: 'w', 0x1b: 'x',
	0x1c: 'y', 0x1d: 'z',
	0x1e: '1', 0x1f: '2', 0x20: '3', 0x21: '4', 0x22: '5', 0x23: '6', 0x24: '7', 0x25: '8', 0x26: '9', 0x27: '0',
	0x28: '\r', 0x2a: '\b', 0x2b: '\t', 0x2c: ' ',
	0x2d: '-', 0x2e: '=', 0x2f: '[', 0x30: ']', 0x31: '\\',
	0x33: ';', 0x34: '\'', 0x35: '`', 0x36: ',', 0x37: '.', 0x38: '/',
}

var shiftTable = [0x39]byte{
	0x04: 'A', 0x05: 'B', 0x06: 'C', 0x07: 'D', 0x08: 'E', 0x09: 'F', 0x0a: 'G', 0x0b: 'H',
	0x0c: 'I', 0x0d: 'J', 0x0e: 'K', 0x0f: 'L', 0x10: 'M', 0x11: 'N', 0x12: 'O', 0x13: 'P',
	0x14: 'Q', 0x15: 'R', 0x16: 'S', 0x17: 'T', 0x18: 'U', 0x19: 'V', 0x1a: 'W', 0x1b: 'X',
	0x1c: 'Y', 0x1d: 'Z',
	0x1e: '!', 0x1f: '@', 0x20: '#', 0x21: '$', 0x22: '%', 0x23: '^', 0x24: '&', 0x25: '*', 0x26: '(', 0x27: ')',
	0x28: '\r', 0x2a: '\b', 0x2b: '\t', 0x2c: ' ',
	0x2d: '_', 0x2e: '+', 0x2f: '{', 0x30: '}', 0x31: '|',
	0x33: ':', 0x34: '"', 0x35: '~', 0x36: '<', 0x37: '>', 0x38: '?',
}

// Keyboard decodes the boot-protocol HID reports a Poller collects into
// the ASCII/special key codes hal.Input.KeyboardGetc returns. The boot
// report is a snapshot of currently-held keys, not a press/release
// event stream, so Poll diffs each report against the previous one and
// emits only newly-pressed keys — matching the getc-style keyboard
// contract the virtio-input decoder also implements.
type Keyboard struct {
	Poller *Poller

	prev [6]byte
}

func held(report [6]byte, code byte) bool {
	for _, c := range report {
		if c == code {
			return true
		}
	}

	return false
}

// Poll drains every report queued since the last call and returns the
// newly-pressed key codes across all of them, in order.
func (k *Keyboard) Poll() []int {
	var out []int

	for {
		report, ok := k.Poller.Ring.Pop()
		if !ok {
			break
		}

		mod := report[0]
		var keys [6]byte
		copy(keys[:], report[2:8])

		shift := mod&(modLeftShift|modRightShift) != 0
		ctrl := mod&(modLeftCtrl|modRightCtrl) != 0

		for _, code := range keys {
			if code == 0 || held(k.prev, code) {
				continue
			}

			if special, ok := specialKeys[code]; ok {
				out = append(out, special)
				continue
			}

			if int(code) >= len(normalTable) {
				continue
			}

			c := normalTable[code]
			if shift {
				c = shiftTable[code]
			}

			if c == 0 {
				continue
			}

			if ctrl && c >= 'a' && c <= 'z' {
				out = append(out, int(c-'a'+1))
				continue
			}

			if ctrl && c >= 'A' && c <= 'Z' {
				out = append(out, int(c-'A'+1))
				continue
			}

			out = append(out, int(c))
		}

		k.prev = keys
	}

	return out
}
