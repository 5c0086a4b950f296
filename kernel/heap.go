// First-fit heap allocator
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"errors"
	"unsafe"
)

// ErrOutOfMemory is returned when no free block satisfies a request.
var ErrOutOfMemory = errors.New("kernel: out of memory")

const align = 16

// header precedes every block, free or allocated, contiguous across the
// whole arena. next threads only the free list and is meaningless on an
// allocated block. pad brings the struct up to a 16-byte multiple (32
// bytes) so cur+headerSize stays 16-byte aligned across an arbitrary
// chain of splits, not just for the first block off an aligned base.
type header struct {
	size uint64
	free uint64
	next uintptr
	pad  uintptr
}

var headerSize = uintptr(unsafe.Sizeof(header{}))

// Heap is a first-fit free-list allocator over a single contiguous byte
// range. It is safe for use by a single kernel thread only; callers that
// allocate from interrupt context must disable interrupts around the
// call.
type Heap struct {
	base, limit uintptr
	freeHead    uintptr

	usedBytes  uint64
	freeBytes  uint64
	allocCount uint64
}

// NewHeap installs a single free block spanning [base, base+size).
func NewHeap(base uintptr, size int) *Heap {
	h := &Heap{base: base, limit: base + uintptr(size)}

	h.freeHead = base
	writeHeader(base, header{size: uint64(size) - uint64(headerSize), free: 1})

	h.freeBytes = uint64(size) - uint64(headerSize)

	return h
}

func readHeader(addr uintptr) header {
	return *(*header)(unsafe.Pointer(addr))
}

func writeHeader(addr uintptr, h header) {
	*(*header)(unsafe.Pointer(addr)) = h
}

func alignUp(n uint64, to uint64) uint64 {
	return (n + to - 1) &^ (to - 1)
}

// Malloc allocates at least size bytes, 16-byte aligned, returning the
// address just past the block's header (§4.4).
func (h *Heap) Malloc(size int) (uintptr, error) {
	if size <= 0 {
		return 0, ErrOutOfMemory
	}

	need := alignUp(uint64(size), align)

	var prev uintptr

	cur := h.freeHead

	for cur != 0 {
		hdr := readHeader(cur)

		if hdr.free == 1 && hdr.size >= need {
			if hdr.size >= need+uint64(headerSize)+align {
				newAddr := cur + uintptr(headerSize) + uintptr(need)
				newSize := hdr.size - need - uint64(headerSize)

				writeHeader(newAddr, header{size: newSize, free: 1, next: hdr.next})

				if prev == 0 {
					h.freeHead = newAddr
				} else {
					p := readHeader(prev)
					p.next = newAddr
					writeHeader(prev, p)
				}

				hdr.size = need
			} else {
				if prev == 0 {
					h.freeHead = hdr.next
				} else {
					p := readHeader(prev)
					p.next = hdr.next
					writeHeader(prev, p)
				}
			}

			hdr.free = 0
			hdr.next = 0
			writeHeader(cur, hdr)

			h.usedBytes += hdr.size
			h.freeBytes -= need
			h.allocCount++

			return cur + headerSize, nil
		}

		prev = cur
		cur = hdr.next
	}

	return 0, ErrOutOfMemory
}

// Free releases a block previously returned by Malloc, then walks the
// free list once coalescing adjacent pairs (§4.4).
func (h *Heap) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}

	addr := ptr - headerSize
	hdr := readHeader(addr)

	if hdr.free == 1 {
		return
	}

	hdr.free = 1
	h.usedBytes -= hdr.size
	h.freeBytes += hdr.size

	h.insertFree(addr, hdr)
	h.coalesce()
}

func (h *Heap) insertFree(addr uintptr, hdr header) {
	var prev uintptr

	cur := h.freeHead

	for cur != 0 && cur < addr {
		prev = cur
		cur = readHeader(cur).next
	}

	hdr.next = cur
	writeHeader(addr, hdr)

	if prev == 0 {
		h.freeHead = addr
	} else {
		p := readHeader(prev)
		p.next = addr
		writeHeader(prev, p)
	}
}

func (h *Heap) coalesce() {
	cur := h.freeHead

	for cur != 0 {
		hdr := readHeader(cur)
		next := hdr.next

		if next != 0 && cur+headerSize+uintptr(hdr.size) == next {
			nextHdr := readHeader(next)

			hdr.size += uint64(headerSize) + nextHdr.size
			hdr.next = nextHdr.next

			writeHeader(cur, hdr)

			h.freeBytes += uint64(headerSize)

			continue
		}

		cur = next
	}
}

// Calloc allocates n*size bytes, zeroed.
func (h *Heap) Calloc(n, size int) (uintptr, error) {
	total := n * size

	addr, err := h.Malloc(total)
	if err != nil {
		return 0, err
	}

	for i := 0; i < total; i++ {
		*(*byte)(unsafe.Pointer(addr + uintptr(i))) = 0
	}

	return addr, nil
}

// Realloc resizes the allocation at ptr to newSize, preserving its
// contents up to min(oldSize, newSize). Returns the original pointer if
// its block already has sufficient capacity (§4.4).
func (h *Heap) Realloc(ptr uintptr, newSize int) (uintptr, error) {
	if ptr == 0 {
		return h.Malloc(newSize)
	}

	hdr := readHeader(ptr - headerSize)

	if hdr.size >= alignUp(uint64(newSize), align) {
		return ptr, nil
	}

	newPtr, err := h.Malloc(newSize)
	if err != nil {
		return 0, err
	}

	n := hdr.size
	if uint64(newSize) < n {
		n = uint64(newSize)
	}

	for i := uint64(0); i < n; i++ {
		b := *(*byte)(unsafe.Pointer(ptr + uintptr(i)))
		*(*byte)(unsafe.Pointer(newPtr + uintptr(i))) = b
	}

	h.Free(ptr)

	return newPtr, nil
}

// Stats returns the three O(1) accounting counters (§3.1).
func (h *Heap) Stats() (usedBytes, freeBytes, allocCount uint64) {
	return h.usedBytes, h.freeBytes, h.allocCount
}
