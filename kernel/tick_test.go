// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import "testing"

func TestTickSchedulesEvery20Ticks(t *testing.T) {
	var s Scheduler
	a := s.Spawn(Process{Name: "a"})
	s.Spawn(Process{Name: "b"})
	s.procs[a].State = StateRunning
	s.current = a

	scheduled := 0
	tk := Ticker{Scheduler: &s}

	for i := 0; i < scheduleTickInterval-1; i++ {
		tk.Tick()
	}

	if s.current != a {
		t.Fatalf("scheduled before the 20th tick")
	}

	tk.Tick()
	scheduled++

	if s.current == a {
		t.Fatalf("expected schedule on the 20th tick")
	}

	_ = scheduled
}

func TestTickTogglesLEDEvery50Ticks(t *testing.T) {
	toggled := 0
	tk := Ticker{ToggleLED: func() { toggled++ }}

	for i := 0; i < ledTickInterval; i++ {
		tk.Tick()
	}

	if toggled != 1 {
		t.Fatalf("expected 1 LED toggle after %d ticks, got %d", ledTickInterval, toggled)
	}
}

func TestTickRunsWatchdogEveryTick(t *testing.T) {
	calls := 0
	tk := Ticker{USBWatchdog: func() { calls++ }}

	tk.Tick()
	tk.Tick()
	tk.Tick()

	if calls != 3 {
		t.Fatalf("expected watchdog called every tick, got %d calls", calls)
	}
}
