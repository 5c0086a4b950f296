// USB boot-protocol mouse report decoding (C8)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

// Mouse decodes boot-protocol mouse reports (button bitmask, then
// signed 8-bit X/Y deltas) into an accumulated, screen-clamped cursor
// position — unlike virtio's tablet device, USB boot mice report
// relative motion, so position is integrated here rather than read
// directly off the wire.
type Mouse struct {
	Poller *Poller

	FBWidth, FBHeight int

	X, Y    int
	Buttons uint8
}

// Poll drains every queued report and updates the accumulated position
// and button state from the most recent one.
func (m *Mouse) Poll() {
	for {
		report, ok := m.Poller.Ring.Pop()
		if !ok {
			break
		}

		m.Buttons = report[0] & 0x07

		m.X = clamp(m.X+int(int8(report[1])), 0, m.FBWidth-1)
		m.Y = clamp(m.Y+int(int8(report[2])), 0, m.FBHeight-1)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
