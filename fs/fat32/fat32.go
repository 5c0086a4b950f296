// FAT32 filesystem mount and on-disk layout (C10)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package fat32 implements a standard Microsoft FAT32 filesystem with
// long file names, against the sector-addressed hal.Block the board
// wiring supplies (the SDHCI/EMMC driver on Pi, a virtio-blk-backed
// device on QEMU).
package fat32

import (
	"encoding/binary"
	"errors"

	"github.com/kirakira-dev/kikios/hal"
)

// Failure taxonomy, §4.10.7.
var (
	ErrNotFound      = errors.New("fat32: not found")
	ErrIsADirectory  = errors.New("fat32: is a directory")
	ErrNotADirectory = errors.New("fat32: not a directory")
	ErrNotEmpty      = errors.New("fat32: directory not empty")
	ErrIOError       = errors.New("fat32: I/O error")
	ErrOutOfSpace    = errors.New("fat32: out of space")
	ErrNameTooLong   = errors.New("fat32: name too long")
	ErrNotFAT32      = errors.New("fat32: not a FAT32 volume")
	ErrExists        = errors.New("fat32: already exists")
)

const sectorSize = 512

// partition type codes recognized for FAT32, §6.
const (
	partTypeFAT32LBA  = 0x0C
	partTypeFAT32CHS  = 0x0B
)

// bootSector holds the fields of the BIOS Parameter Block the mount
// sequence (§4.10.1) actually consumes.
type bootSector struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	rootEntryCount    uint16
	fatSize16         uint16
	totalSectors32    uint32
	fatSize32         uint32
	rootCluster       uint32
}

// FS is a mounted FAT32 volume.
type FS struct {
	dev    hal.Block
	origin uint64 // partition's starting LBA

	boot bootSector

	dataStart     uint32 // first data-region sector, relative to origin
	totalClusters uint32

	fat     *fatCache
	handles Handles
}

// readSector reads one 512-byte sector at an origin-relative LBA.
func (fs *FS) readSector(lba uint32, buf []byte) error {
	if err := fs.dev.Read(fs.origin+uint64(lba), buf, 1); err != nil {
		return ErrIOError
	}

	return nil
}

func (fs *FS) writeSector(lba uint32, buf []byte) error {
	if err := fs.dev.Write(fs.origin+uint64(lba), buf, 1); err != nil {
		return ErrIOError
	}

	return nil
}

// Mount reads the MBR, selects a FAT32 partition, reads its boot
// sector and computes the data-region geometry (§4.10.1).
func Mount(dev hal.Block) (*FS, error) {
	mbr := make([]byte, sectorSize)
	if err := dev.Read(0, mbr, 1); err != nil {
		return nil, ErrIOError
	}

	origin, err := selectPartition(mbr)
	if err != nil {
		return nil, err
	}

	fs := &FS{dev: dev, origin: origin}

	buf := make([]byte, sectorSize)
	if err := fs.readSector(0, buf); err != nil {
		return nil, err
	}

	b, err := parseBootSector(buf)
	if err != nil {
		return nil, err
	}

	fs.boot = b
	fs.dataStart = uint32(b.reservedSectors) + uint32(b.numFATs)*b.fatSize32
	fs.totalClusters = (b.totalSectors32 - fs.dataStart) / uint32(b.sectorsPerCluster)
	fs.fat = newFATCache(fs)

	return fs, nil
}

// selectPartition scans the four MBR partition entries (§4.10.1):
// prefer partition 2 if it is type 0x0B/0x0C, else partition 1, else
// any FAT32 partition. The trailing 0x55 0xAA signature is shared by
// both a partitioned MBR and an unpartitioned ("superfloppy") FAT32
// boot sector, so when none of the four entries name a FAT32 type this
// falls back to treating LBA 0 itself as the boot sector — the layout
// Pi firmware SD images and QEMU's raw disk images commonly use.
func selectPartition(mbr []byte) (uint64, error) {
	if len(mbr) < 512 || mbr[510] != 0x55 || mbr[511] != 0xAA {
		return 0, nil
	}

	type entry struct {
		typ uint8
		lba uint32
	}

	entries := make([]entry, 4)
	for i := 0; i < 4; i++ {
		off := 446 + i*16
		entries[i] = entry{
			typ: mbr[off+4],
			lba: binary.LittleEndian.Uint32(mbr[off+8 : off+12]),
		}
	}

	isFAT32 := func(t uint8) bool { return t == partTypeFAT32LBA || t == partTypeFAT32CHS }

	if isFAT32(entries[1].typ) {
		return uint64(entries[1].lba), nil
	}

	if isFAT32(entries[0].typ) {
		return uint64(entries[0].lba), nil
	}

	for _, e := range entries {
		if isFAT32(e.typ) {
			return uint64(e.lba), nil
		}
	}

	return 0, nil
}

// parseBootSector decodes the BPB fields and verifies the volume is
// FAT32 (§4.10.1): 512-byte sectors, fat_size_16==0, root_entry_count==0.
func parseBootSector(buf []byte) (bootSector, error) {
	var b bootSector

	b.bytesPerSector = binary.LittleEndian.Uint16(buf[11:13])
	b.sectorsPerCluster = buf[13]
	b.reservedSectors = binary.LittleEndian.Uint16(buf[14:16])
	b.numFATs = buf[16]
	b.rootEntryCount = binary.LittleEndian.Uint16(buf[17:19])
	b.fatSize16 = binary.LittleEndian.Uint16(buf[22:24])
	b.totalSectors32 = binary.LittleEndian.Uint32(buf[32:36])
	b.fatSize32 = binary.LittleEndian.Uint32(buf[36:40])
	b.rootCluster = binary.LittleEndian.Uint32(buf[44:48])

	if b.bytesPerSector != sectorSize || b.fatSize16 != 0 || b.rootEntryCount != 0 {
		return b, ErrNotFAT32
	}

	return b, nil
}

// clusterToSector converts a cluster number to its first absolute
// (origin-relative) sector.
func (fs *FS) clusterToSector(cluster uint32) uint32 {
	return fs.dataStart + (cluster-2)*uint32(fs.boot.sectorsPerCluster)
}

func (fs *FS) clusterSize() int {
	return int(fs.boot.sectorsPerCluster) * sectorSize
}
