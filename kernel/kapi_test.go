// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"testing"

	"github.com/kirakira-dev/kikios/hal"
)

type fakeInput struct {
	queue []int
}

func (f *fakeInput) KeyboardInit() {}

func (f *fakeInput) KeyboardGetc() int {
	if len(f.queue) == 0 {
		return hal.NoData
	}

	c := f.queue[0]
	f.queue = f.queue[1:]

	return c
}

func (f *fakeInput) MouseInit() {}
func (f *fakeInput) MouseGetState() (int, int, uint8) { return 0, 0, 0 }
func (f *fakeInput) MouseSetPos(x, y int)             {}

func TestHasKeyThenGetKeyReturnsSameKey(t *testing.T) {
	in := &fakeInput{queue: []int{'a'}}
	k := KAPI{Input: in}

	if !k.HasKey() {
		t.Fatalf("expected HasKey to report a pending key")
	}

	if got := k.GetKey(); got != 'a' {
		t.Fatalf("expected GetKey to return 'a', got %d", got)
	}

	if k.HasKey() {
		t.Fatalf("expected no pending key after GetKey drained the queue")
	}
}

func TestGetKeyWithoutHasKeyStillWorks(t *testing.T) {
	in := &fakeInput{queue: []int{'z'}}
	k := KAPI{Input: in}

	if got := k.GetKey(); got != 'z' {
		t.Fatalf("expected GetKey to return 'z', got %d", got)
	}
}
