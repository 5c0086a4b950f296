// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arm64

import (
	"testing"
	"unsafe"
)

func TestDecodeEC(t *testing.T) {
	cases := []struct {
		esr  uint64
		want Kind
	}{
		{0x15 << 26, SVC},
		{0x24 << 26, DataAbortLowerEL},
		{0x25 << 26, DataAbortSameEL},
		{0x26 << 26, SPAlignment},
		{0x3c << 26, BreakPoint},
		{0x3f << 26, Unknown},
	}

	for _, c := range cases {
		if got := DecodeEC(c.esr); got != c.want {
			t.Errorf("DecodeEC(%#x) = %v, want %v", c.esr, got, c.want)
		}
	}
}

func TestFaultStatus(t *testing.T) {
	if got := FaultStatus(0b000101); got != "Translation Fault" {
		t.Errorf("got %q", got)
	}

	if got := FaultStatus(0b001101); got != "Permission Fault" {
		t.Errorf("got %q", got)
	}

	if got := FaultStatus(0b100001); got != "Alignment Fault" {
		t.Errorf("got %q", got)
	}
}

func TestIsWrite(t *testing.T) {
	if IsWrite(0) {
		t.Fatalf("expected WnR clear to report false")
	}

	if !IsWrite(1 << 6) {
		t.Fatalf("expected WnR set to report true")
	}
}

func TestBacktraceWalksRealFrameChain(t *testing.T) {
	const n = 5

	words := make([]uint64, n*2)
	base := uint64(uintptr(unsafe.Pointer(&words[0])))

	for i := 0; i < n; i++ {
		next := base + uint64(i+1)*16
		if i == n-1 {
			next = 0
		}

		words[i*2] = next
		words[i*2+1] = 0x40000000 + uint64(i)
	}

	addrs := Backtrace(base, 10, func(uint64) bool { return true })

	if len(addrs) != n {
		t.Fatalf("expected %d frames, got %d: %v", n, len(addrs), addrs)
	}

	for i, a := range addrs {
		if a != 0x40000000+uint64(i) {
			t.Errorf("frame %d: got return address %#x, want %#x", i, a, 0x40000000+uint64(i))
		}
	}
}

func TestBacktraceStopsOutsideRAM(t *testing.T) {
	words := make([]uint64, 4)
	base := uint64(uintptr(unsafe.Pointer(&words[0])))

	words[0] = base + 16
	words[1] = 0x1

	addrs := Backtrace(base, 10, func(uint64) bool { return false })

	if len(addrs) != 0 {
		t.Fatalf("expected no frames when inRAM always false, got %v", addrs)
	}
}

func TestBacktraceRejectsMisalignedFP(t *testing.T) {
	addrs := Backtrace(0x1001, 10, func(uint64) bool { return true })

	if len(addrs) != 0 {
		t.Fatalf("expected no frames for misaligned fp, got %v", addrs)
	}
}
