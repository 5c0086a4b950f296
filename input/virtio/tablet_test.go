// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import "testing"

func TestTabletScalesAbsoluteCoordinates(t *testing.T) {
	q := NewEventQueue()
	q.MakeAllAvailable()

	tab := &Tablet{Device: &Device{Q: q}, FBWidth: 800, FBHeight: 600}

	pushUsed(q, 0, Event{Type: evAbs, Code: codeAbsX, Value: rawRange / 2})
	pushUsed(q, 1, Event{Type: evAbs, Code: codeAbsY, Value: rawRange})

	tab.Poll()

	if tab.X != 400 {
		t.Errorf("expected X≈400, got %d", tab.X)
	}

	if tab.Y != 599 {
		t.Errorf("expected Y clamped to 599, got %d", tab.Y)
	}
}

func TestTabletButtonBitmask(t *testing.T) {
	q := NewEventQueue()
	q.MakeAllAvailable()

	tab := &Tablet{Device: &Device{Q: q}, FBWidth: 800, FBHeight: 600}

	pushUsed(q, 0, Event{Type: evKey, Code: codeBtnLeft, Value: 1})
	tab.Poll()

	if tab.Buttons&BtnLeft == 0 {
		t.Fatalf("expected BtnLeft set, got %#x", tab.Buttons)
	}

	pushUsed(q, 1, Event{Type: evKey, Code: codeBtnLeft, Value: 0})
	tab.Poll()

	if tab.Buttons&BtnLeft != 0 {
		t.Fatalf("expected BtnLeft cleared, got %#x", tab.Buttons)
	}
}
