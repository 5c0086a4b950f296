// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import "testing"

func TestSpawnAssignsFreeSlot(t *testing.T) {
	var s Scheduler

	idx := s.Spawn(Process{Name: "init"})
	if idx != 0 {
		t.Fatalf("expected slot 0, got %d", idx)
	}

	if s.procs[idx].State != StateReady {
		t.Fatalf("expected StateReady, got %v", s.procs[idx].State)
	}
}

func TestScheduleFromIRQRoundRobin(t *testing.T) {
	var s Scheduler

	a := s.Spawn(Process{Name: "a"})
	b := s.Spawn(Process{Name: "b"})

	s.procs[a].State = StateRunning
	s.current = a

	s.ScheduleFromIRQ()

	if s.current != b {
		t.Fatalf("expected to schedule process %d, got %d", b, s.current)
	}

	if s.procs[a].State != StateReady {
		t.Fatalf("expected previous process to return to StateReady")
	}
}

func TestScheduleFromIRQSkipsNonReady(t *testing.T) {
	var s Scheduler

	a := s.Spawn(Process{Name: "a"})
	s.Spawn(Process{Name: "b"})
	s.procs[1].State = StateBlocked

	s.procs[a].State = StateRunning
	s.current = a

	s.ScheduleFromIRQ()

	if s.current != a {
		t.Fatalf("expected to stay on sole ready process %d, got %d", a, s.current)
	}
}

func TestExitFreesSlot(t *testing.T) {
	var s Scheduler

	idx := s.Spawn(Process{Name: "a"})
	s.Exit(idx)

	if s.procs[idx].State != StateFree {
		t.Fatalf("expected StateFree after Exit, got %v", s.procs[idx].State)
	}
}

func TestInLoadWindow(t *testing.T) {
	p := Process{LoadBase: 0x1000, LoadSize: 0x100, State: StateReady}

	if !p.InLoadWindow(0x1050) {
		t.Fatalf("expected 0x1050 to be in load window")
	}

	if p.InLoadWindow(0x2000) {
		t.Fatalf("expected 0x2000 to be outside load window")
	}
}
