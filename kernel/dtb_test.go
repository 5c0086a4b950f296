// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"
)

// buildFDT assembles a minimal synthetic flattened device tree containing
// a root node with #address-cells=2/#size-cells=1 and a single
// memory@0 node, to exercise ParseMemoryRegion without real hardware.
func buildFDT(base, size uint64) []byte {
	var strings bytes.Buffer
	offsets := map[string]uint32{}

	intern := func(s string) uint32 {
		if off, ok := offsets[s]; ok {
			return off
		}

		off := uint32(strings.Len())
		offsets[s] = off
		strings.WriteString(s)
		strings.WriteByte(0)

		return off
	}

	putU32 := func(buf *bytes.Buffer, v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	pad4 := func(buf *bytes.Buffer) {
		for buf.Len()%4 != 0 {
			buf.WriteByte(0)
		}
	}

	prop := func(buf *bytes.Buffer, name string, value []byte) {
		putU32(buf, fdtProp)
		putU32(buf, uint32(len(value)))
		putU32(buf, intern(name))
		buf.Write(value)
		pad4(buf)
	}

	beginNode := func(buf *bytes.Buffer, name string) {
		putU32(buf, fdtBeginNode)
		buf.WriteString(name)
		buf.WriteByte(0)
		pad4(buf)
	}

	endNode := func(buf *bytes.Buffer) {
		putU32(buf, fdtEndNode)
	}

	var structure bytes.Buffer

	beginNode(&structure, "")

	addrCells := make([]byte, 4)
	binary.BigEndian.PutUint32(addrCells, 2)
	prop(&structure, "#address-cells", addrCells)

	sizeCells := make([]byte, 4)
	binary.BigEndian.PutUint32(sizeCells, 1)
	prop(&structure, "#size-cells", sizeCells)

	beginNode(&structure, "memory@0")

	reg := make([]byte, 12)
	binary.BigEndian.PutUint64(reg[0:8], base)
	binary.BigEndian.PutUint32(reg[8:12], uint32(size))
	prop(&structure, "reg", reg)

	endNode(&structure) // memory
	endNode(&structure) // root
	putU32(&structure, fdtEnd)

	header := make([]byte, 40)
	binary.BigEndian.PutUint32(header[0:4], fdtMagic)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(header)))
	binary.BigEndian.PutUint32(header[12:16], uint32(len(header)+structure.Len()))

	out := append(header, structure.Bytes()...)
	out = append(out, strings.Bytes()...)

	return out
}

func TestParseMemoryRegion(t *testing.T) {
	raw := buildFDT(0x40000000, 0x20000000)

	addr := uintptr(unsafe.Pointer(&raw[0]))

	region, ok := ParseMemoryRegion(addr, len(raw))
	if !ok {
		t.Fatalf("ParseMemoryRegion failed to parse synthetic FDT")
	}

	if region.Base != 0x40000000 || region.Size != 0x20000000 {
		t.Fatalf("got region %+v", region)
	}
}

func TestParseMemoryRegionRejectsBadMagic(t *testing.T) {
	raw := make([]byte, 64)

	addr := uintptr(unsafe.Pointer(&raw[0]))

	if _, ok := ParseMemoryRegion(addr, len(raw)); ok {
		t.Fatalf("expected parse failure on zeroed buffer")
	}
}
