// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fat32

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// memBlock is an in-memory hal.Block backing a hand-built FAT32 image,
// small enough to exercise mount/read/write/directory logic without
// real hardware.
type memBlock struct {
	data []byte
}

func (m *memBlock) Init() error { return nil }

func (m *memBlock) Read(sector uint64, buf []byte, count int) error {
	off := sector * sectorSize
	copy(buf, m.data[off:off+uint64(count)*sectorSize])
	return nil
}

func (m *memBlock) Write(sector uint64, buf []byte, count int) error {
	off := sector * sectorSize
	copy(m.data[off:off+uint64(count)*sectorSize], buf)
	return nil
}

const (
	testReserved  = 32
	testNumFATs   = 2
	testFATSize   = 8
	testDataStart = testReserved + testNumFATs*testFATSize
	testClusters  = 1024
	testTotalSec  = testDataStart + testClusters
)

func buildImage() *memBlock {
	raw := make([]byte, testTotalSec*sectorSize)

	binary.LittleEndian.PutUint16(raw[11:13], sectorSize)
	raw[13] = 1 // sectors per cluster
	binary.LittleEndian.PutUint16(raw[14:16], testReserved)
	raw[16] = testNumFATs
	binary.LittleEndian.PutUint16(raw[17:19], 0) // root_entry_count == 0 (FAT32)
	binary.LittleEndian.PutUint16(raw[22:24], 0) // fat_size_16 == 0 (FAT32)
	binary.LittleEndian.PutUint32(raw[32:36], testTotalSec)
	binary.LittleEndian.PutUint32(raw[36:40], testFATSize)
	binary.LittleEndian.PutUint32(raw[44:48], 2) // root cluster

	raw[510] = 0x55
	raw[511] = 0xAA // the boot sector's own signature, unrelated to MBR partitioning

	// Mark cluster 2 (the root directory) as EOC in both FAT copies.
	markEOC := func(fatStart int) {
		off := fatStart*sectorSize + 2*4
		binary.LittleEndian.PutUint32(raw[off:off+4], clusterEOC)
	}
	markEOC(testReserved)
	markEOC(testReserved + testFATSize)

	return &memBlock{data: raw}
}

func mountTestFS(t *testing.T) *FS {
	t.Helper()

	dev := buildImage()

	fs, err := Mount(dev)
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	return fs
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := mountTestFS(t)

	sizes := []int{0, 1, 511, 512, 513, 4095, 4096, 4097}

	for _, size := range sizes {
		data := bytes.Repeat([]byte{0xAB}, size)

		h, err := fs.Create("file.bin")
		if err != nil {
			t.Fatalf("size %d: Create: %v", size, err)
		}

		if len(data) > 0 {
			if _, err := fs.Write(h, data); err != nil {
				t.Fatalf("size %d: Write: %v", size, err)
			}
		}

		rh, err := fs.Open("file.bin")
		if err != nil {
			t.Fatalf("size %d: Open: %v", size, err)
		}

		buf := make([]byte, size)
		n, err := fs.Read(rh, buf)
		if err != nil {
			t.Fatalf("size %d: Read: %v", size, err)
		}

		if n != size {
			t.Fatalf("size %d: read %d bytes", size, n)
		}

		if !bytes.Equal(buf, data) {
			t.Fatalf("size %d: round trip mismatch", size)
		}
	}
}

func TestMkdirRmdirIdempotent(t *testing.T) {
	fs := mountTestFS(t)

	before := make([]byte, len(fs.dev.(*memBlock).data))
	copy(before, fs.dev.(*memBlock).data)

	if err := fs.Mkdir("sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	if err := fs.Rmdir("sub"); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}

	after := fs.dev.(*memBlock).data

	if !bytes.Equal(before, after) {
		t.Errorf("expected byte-identical filesystem after mkdir+rmdir")
	}
}

func TestLongFileNameRoundTrip(t *testing.T) {
	fs := mountTestFS(t)

	name := "Répertoire très long avec accents.txt"

	if _, err := fs.Create(name); err != nil {
		t.Fatalf("Create: %v", err)
	}

	names, err := fs.Readdir("")
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}

	found := false
	for _, n := range names {
		if n == name {
			found = true
		}
	}

	if !found {
		t.Fatalf("expected %q in listing, got %v", name, names)
	}
}

func TestFAT1FAT2Equality(t *testing.T) {
	fs := mountTestFS(t)

	if _, err := fs.Create("a.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	h, _ := fs.Open("a.txt")
	fs.Write(h, bytes.Repeat([]byte{1}, 4096))

	raw := fs.dev.(*memBlock).data

	fat1 := raw[testReserved*sectorSize : (testReserved+testFATSize)*sectorSize]
	fat2 := raw[(testReserved+testFATSize)*sectorSize : (testReserved+2*testFATSize)*sectorSize]

	if !bytes.Equal(fat1, fat2) {
		t.Errorf("expected FAT1 and FAT2 to be byte-identical after mutation")
	}
}

func TestDeleteFreesChain(t *testing.T) {
	fs := mountTestFS(t)

	if _, err := fs.Create("b.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	h, _ := fs.Open("b.txt")
	fs.Write(h, bytes.Repeat([]byte{2}, 2048))

	if err := fs.Delete("b.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := fs.Open("b.txt"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRenamePreservesSize(t *testing.T) {
	fs := mountTestFS(t)

	if _, err := fs.Create("old.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	h, _ := fs.Open("old.txt")
	fs.Write(h, bytes.Repeat([]byte{3}, 600))

	if err := fs.Rename("old.txt", "NEW.TXT"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	size, err := fs.FileSize("NEW.TXT")
	if err != nil {
		t.Fatalf("FileSize: %v", err)
	}

	if size != 600 {
		t.Errorf("expected size 600 preserved across rename, got %d", size)
	}
}
