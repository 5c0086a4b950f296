// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"testing"
	"unsafe"
)

func newTestHeap(t *testing.T, size int) *Heap {
	t.Helper()

	arena := make([]byte, size)
	base := uintptr(unsafe.Pointer(&arena[0]))

	// keep arena alive for the lifetime of the test
	t.Cleanup(func() { _ = arena })

	return NewHeap(base, size)
}

func TestMallocAlignment(t *testing.T) {
	h := newTestHeap(t, 4096)

	ptr, err := h.Malloc(3)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	if ptr%align != 0 {
		t.Fatalf("pointer %#x not %d-byte aligned", ptr, align)
	}
}

func TestMallocAlignmentAcrossSplits(t *testing.T) {
	h := newTestHeap(t, 4096)

	sizes := []int{3, 17, 1, 64, 9, 200, 5}

	for _, size := range sizes {
		ptr, err := h.Malloc(size)
		if err != nil {
			t.Fatalf("Malloc(%d): %v", size, err)
		}

		if ptr%align != 0 {
			t.Fatalf("Malloc(%d): pointer %#x not %d-byte aligned", size, ptr, align)
		}
	}
}

func TestMallocFreeReusesSpace(t *testing.T) {
	h := newTestHeap(t, 4096)

	_, used, _ := h.Stats()
	_ = used

	a, err := h.Malloc(64)
	if err != nil {
		t.Fatalf("Malloc a: %v", err)
	}

	h.Free(a)

	b, err := h.Malloc(64)
	if err != nil {
		t.Fatalf("Malloc b: %v", err)
	}

	if a != b {
		t.Fatalf("expected reused address %#x, got %#x", a, b)
	}
}

func TestCoalesceMergesAdjacentFreeBlocks(t *testing.T) {
	h := newTestHeap(t, 4096)

	a, _ := h.Malloc(64)
	b, _ := h.Malloc(64)
	c, _ := h.Malloc(64)

	h.Free(a)
	h.Free(b)
	h.Free(c)

	// after freeing every block in the arena, a single allocation
	// spanning nearly the whole arena must succeed, proving full
	// coalescing occurred.
	_, err := h.Malloc(4096 - 4*int(headerSize))
	if err != nil {
		t.Fatalf("Malloc after full coalesce: %v", err)
	}
}

func TestMallocOutOfMemory(t *testing.T) {
	h := newTestHeap(t, 128)

	if _, err := h.Malloc(1 << 20); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
}

func TestReallocGrowsAndPreservesData(t *testing.T) {
	h := newTestHeap(t, 4096)

	ptr, err := h.Malloc(16)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	*(*byte)(unsafe.Pointer(ptr)) = 0x42

	grown, err := h.Realloc(ptr, 256)
	if err != nil {
		t.Fatalf("Realloc: %v", err)
	}

	if got := *(*byte)(unsafe.Pointer(grown)); got != 0x42 {
		t.Fatalf("data not preserved across realloc: got %#x", got)
	}
}

func TestStatsAccounting(t *testing.T) {
	h := newTestHeap(t, 4096)

	usedBefore, freeBefore, countBefore := h.Stats()
	if usedBefore != 0 || countBefore != 0 {
		t.Fatalf("expected zeroed stats, got used=%d count=%d", usedBefore, countBefore)
	}

	ptr, _ := h.Malloc(64)

	usedAfter, freeAfter, countAfter := h.Stats()
	if countAfter != countBefore+1 {
		t.Fatalf("alloc_count not incremented")
	}
	if usedAfter <= usedBefore {
		t.Fatalf("used_bytes did not increase")
	}
	if freeAfter >= freeBefore {
		t.Fatalf("free_bytes did not decrease")
	}

	h.Free(ptr)
}
