// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import "testing"

func newTestKeyboard() (*Keyboard, *EventQueue) {
	q := NewEventQueue()
	q.MakeAllAvailable()

	return &Keyboard{Device: &Device{Q: q}}, q
}

func TestKeyboardLowercaseLetter(t *testing.T) {
	k, q := newTestKeyboard()

	pushUsed(q, 0, Event{Type: evKey, Code: 30, Value: 1}) // 'a' down

	out := k.Poll()
	if len(out) != 1 || out[0] != 'a' {
		t.Fatalf("expected 'a', got %v", out)
	}
}

func TestKeyboardShiftUppercases(t *testing.T) {
	k, q := newTestKeyboard()

	pushUsed(q, 0, Event{Type: evKey, Code: codeLeftShift, Value: 1})
	pushUsed(q, 1, Event{Type: evKey, Code: 30, Value: 1}) // 'a' -> 'A'

	out := k.Poll()
	if len(out) != 1 || out[0] != 'A' {
		t.Fatalf("expected 'A', got %v", out)
	}
}

func TestKeyboardCtrlMapsToControlCode(t *testing.T) {
	k, q := newTestKeyboard()

	pushUsed(q, 0, Event{Type: evKey, Code: codeLeftCtrl, Value: 1})
	pushUsed(q, 1, Event{Type: evKey, Code: 30, Value: 1}) // Ctrl+A -> 1

	out := k.Poll()
	if len(out) != 1 || out[0] != 1 {
		t.Fatalf("expected control code 1, got %v", out)
	}
}

func TestKeyboardSpecialKey(t *testing.T) {
	k, q := newTestKeyboard()

	pushUsed(q, 0, Event{Type: evKey, Code: codeUp, Value: 1})

	out := k.Poll()
	if len(out) != 1 || out[0] != KeyUp {
		t.Fatalf("expected KeyUp, got %v", out)
	}
}

func TestKeyboardIgnoresKeyRelease(t *testing.T) {
	k, q := newTestKeyboard()

	pushUsed(q, 0, Event{Type: evKey, Code: 30, Value: 0})

	if out := k.Poll(); len(out) != 0 {
		t.Fatalf("expected no output for a release, got %v", out)
	}
}
