// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/kirakira-dev/kikios/arm64"
)

func TestSerialBannerIncludesFaultKindAndRegisters(t *testing.T) {
	r := &Reporter{
		InRAM: func(fp uint64) bool { return false },
	}

	info := arm64.Info{
		Kind:  arm64.DataAbortSameEL,
		ESR:   0x96000044, // DFSC 0x04 level-0 translation fault, WnR set
		ELR:   0x40001000,
		FAR:   0x50002000,
		Frame: &arm64.Frame{SP: 1, FP: 2, LR: 3},
	}

	lines := strings.Join(r.SerialBanner(info), "\n")

	if !strings.Contains(lines, "Data Abort") {
		t.Fatalf("expected fault kind in banner, got:\n%s", lines)
	}

	if !strings.Contains(lines, "process: kernel") {
		t.Fatalf("expected default process name 'kernel', got:\n%s", lines)
	}

	if !strings.Contains(lines, "write=true") {
		t.Fatalf("expected write access decoded from ESR, got:\n%s", lines)
	}
}

func TestAnnotateDistinguishesProcessFromKernel(t *testing.T) {
	var s Scheduler

	idx := s.Spawn(Process{Name: "vim", LoadBase: 0x1000, LoadSize: 0x1000})
	s.procs[idx].State = StateRunning
	s.current = idx

	r := &Reporter{Scheduler: &s}

	if got := r.annotate(0x1500); !strings.Contains(got, "vim") {
		t.Fatalf("expected process annotation, got %q", got)
	}

	if got := r.annotate(0x9000); !strings.Contains(got, "kernel") {
		t.Fatalf("expected kernel annotation for address outside load window, got %q", got)
	}
}

// frameChain lays out n AAPCS64-style frames back to back in a real
// backing array: frame i's [fp] holds the address of frame i+1, [fp+8]
// holds a distinct return address, so Backtrace can walk real memory
// instead of dereferencing an arbitrary address.
func frameChain(n int) (fp uint64, words []uint64) {
	words = make([]uint64, n*2)

	base := uint64(uintptr(unsafe.Pointer(&words[0])))

	for i := 0; i < n; i++ {
		next := base + uint64(i+1)*16
		if i == n-1 {
			next = 0
		}

		words[i*2] = next
		words[i*2+1] = 0x40000000 + uint64(i)*4 // return address
	}

	return base, words
}

func TestWSODLinesTruncatesBacktrace(t *testing.T) {
	fp, words := frameChain(10)
	_ = words

	r := &Reporter{
		InRAM: func(addr uint64) bool { return true },
	}

	info := arm64.Info{Frame: &arm64.Frame{FP: fp}}

	lines := r.WSODLines(info)

	backtraceLines := 0
	for _, l := range lines {
		if strings.Contains(l, "kernel +") {
			backtraceLines++
		}
	}

	if backtraceLines != wsodBacktraceDepth {
		t.Fatalf("expected exactly %d backtrace lines, got %d", wsodBacktraceDepth, backtraceLines)
	}
}
