// FAT32 directory entry traversal and creation (§4.10.4, §4.10.5)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fat32

import (
	"encoding/binary"
	"strings"
)

// Standard FAT directory entry attribute bits.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLFN       = 0x0F
)

const dirEntrySize = 32

// dirEntry is one decoded standard (non-LFN) 32-byte directory record.
type dirEntry struct {
	name11  [11]byte
	attr    uint8
	cluster uint32
	size    uint32
}

func parseDirEntry(b []byte) dirEntry {
	var e dirEntry

	copy(e.name11[:], b[0:11])
	e.attr = b[11]
	hi := binary.LittleEndian.Uint16(b[20:22])
	lo := binary.LittleEndian.Uint16(b[26:28])
	e.cluster = uint32(hi)<<16 | uint32(lo)
	e.size = binary.LittleEndian.Uint32(b[28:32])

	return e
}

func (e dirEntry) bytes() []byte {
	b := make([]byte, dirEntrySize)

	copy(b[0:11], e.name11[:])
	b[11] = e.attr
	binary.LittleEndian.PutUint16(b[20:22], uint16(e.cluster>>16))
	binary.LittleEndian.PutUint16(b[26:28], uint16(e.cluster&0xFFFF))
	binary.LittleEndian.PutUint32(b[28:32], e.size)

	return b
}

// dirRecord is what find_in_dir returns: the resolved entry plus enough
// location information (cluster + byte offset within it, and every
// preceding LFN slot's location) for delete/rename to patch or mark
// every associated record.
type dirRecord struct {
	entry      dirEntry
	name       string
	cluster    uint32 // directory cluster containing the 8.3 entry
	offset     int    // byte offset of the 8.3 entry within that cluster
	lfnSlots   []slotLoc
}

type slotLoc struct {
	cluster uint32
	offset  int
}

// forEachCluster walks the cluster chain starting at first, calling fn
// with each cluster's raw contents. fn returns false to stop early.
func (fs *FS) forEachCluster(first uint32, fn func(cluster uint32, buf []byte) (cont bool, err error)) error {
	c := first

	for c != 0 && c < clusterEOC {
		buf := make([]byte, fs.clusterSize())

		sector := fs.clusterToSector(c)
		for s := 0; s < int(fs.boot.sectorsPerCluster); s++ {
			if err := fs.readSector(sector+uint32(s), buf[s*sectorSize:(s+1)*sectorSize]); err != nil {
				return err
			}
		}

		cont, err := fn(c, buf)
		if err != nil {
			return err
		}

		if !cont {
			return nil
		}

		next, err := fs.next(c)
		if err != nil {
			return err
		}

		c = next
	}

	return nil
}

func (fs *FS) writeCluster(cluster uint32, buf []byte) error {
	sector := fs.clusterToSector(cluster)

	for s := 0; s < int(fs.boot.sectorsPerCluster); s++ {
		if err := fs.writeSector(sector+uint32(s), buf[s*sectorSize:(s+1)*sectorSize]); err != nil {
			return err
		}
	}

	return nil
}

// findInDir walks dirCluster's chain looking for name (case-
// insensitive), per §4.10.4: LFN entries accumulate into a name
// assembler, 0xE5 resets it, a 0x00 first byte stops the scan.
func (fs *FS) findInDir(dirCluster uint32, name string) (dirRecord, bool, error) {
	var found dirRecord
	var ok bool

	var asm lfnAssembler
	var pendingSlots []slotLoc

	err := fs.forEachCluster(dirCluster, func(cluster uint32, buf []byte) (bool, error) {
		for off := 0; off+dirEntrySize <= len(buf); off += dirEntrySize {
			rec := buf[off : off+dirEntrySize]

			switch rec[0] {
			case 0x00:
				return false, nil
			case 0xE5:
				asm.reset()
				pendingSlots = nil
				continue
			}

			if rec[11] == AttrLFN {
				var e [32]byte
				copy(e[:], rec)
				asm.add(e)
				pendingSlots = append(pendingSlots, slotLoc{cluster, off})
				continue
			}

			if rec[11]&AttrVolumeID != 0 {
				asm.reset()
				pendingSlots = nil
				continue
			}

			entry := parseDirEntry(rec)

			display := asm.assemble()
			if display == "" {
				display = shortName8_3(entry.name11)
			}

			if strings.EqualFold(display, name) {
				found = dirRecord{entry: entry, name: display, cluster: cluster, offset: off, lfnSlots: pendingSlots}
				ok = true
				return false, nil
			}

			asm.reset()
			pendingSlots = nil
		}

		return true, nil
	})

	return found, ok, err
}

// listDir returns every resolved (name, entry) pair in dirCluster, in
// on-disk order, skipping deleted/volume-label records.
func (fs *FS) listDir(dirCluster uint32) ([]dirRecord, error) {
	var records []dirRecord

	var asm lfnAssembler
	var pendingSlots []slotLoc

	err := fs.forEachCluster(dirCluster, func(cluster uint32, buf []byte) (bool, error) {
		for off := 0; off+dirEntrySize <= len(buf); off += dirEntrySize {
			rec := buf[off : off+dirEntrySize]

			switch rec[0] {
			case 0x00:
				return false, nil
			case 0xE5:
				asm.reset()
				pendingSlots = nil
				continue
			}

			if rec[11] == AttrLFN {
				var e [32]byte
				copy(e[:], rec)
				asm.add(e)
				pendingSlots = append(pendingSlots, slotLoc{cluster, off})
				continue
			}

			if rec[11]&AttrVolumeID != 0 {
				asm.reset()
				pendingSlots = nil
				continue
			}

			entry := parseDirEntry(rec)

			display := asm.assemble()
			if display == "" {
				display = shortName8_3(entry.name11)
			}

			if display != "." && display != ".." {
				records = append(records, dirRecord{entry: entry, name: display, cluster: cluster, offset: off, lfnSlots: pendingSlots})
			}

			asm.reset()
			pendingSlots = nil
		}

		return true, nil
	})

	return records, err
}

// slotCount returns how many consecutive 32-byte slots creating name
// requires: the LFN entries plus the 8.3 entry itself (§4.10.5).
func slotCount(name string) int {
	if !needsLFN(name) {
		return 1
	}

	n := (len(utf16Units(name)) + lfnCharsPerEntry - 1) / lfnCharsPerEntry
	if n == 0 {
		n = 1
	}

	return n + 1
}

func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r > 0xFFFF {
			units = append(units, 0, 0) // surrogate pair slot count approximation
		} else {
			units = append(units, uint16(r))
		}
	}

	return units
}

// createDirEntry finds (or creates, extending the directory by one
// cluster if needed) enough consecutive free slots for name and writes
// any LFN entries followed by the 8.3 entry (§4.10.5). It returns only
// an error; callers that need the new entry's location look it up again.
func (fs *FS) createDirEntry(parentCluster uint32, name string, attr uint8, firstCluster uint32) error {
	exists := func(n11 [11]byte) bool {
		_, ok, _ := fs.findInDir(parentCluster, shortName8_3(n11))
		return ok
	}

	short := makeShortName(name, exists)
	checksum := shortNameChecksum(short)

	var records [][dirEntrySize]byte

	if needsLFN(name) {
		for _, e := range encodeLFNEntries(name, checksum) {
			records = append(records, e)
		}
	}

	entry := dirEntry{name11: short, attr: attr, cluster: firstCluster}
	var e8_3 [dirEntrySize]byte
	copy(e8_3[:], entry.bytes())
	records = append(records, e8_3)

	return fs.writeConsecutiveSlots(parentCluster, records)
}

// writeConsecutiveSlots finds `need` consecutive free (0x00 or 0xE5)
// slots in the directory chain, extending it with a fresh zeroed
// cluster if necessary, then writes records into them in order.
func (fs *FS) writeConsecutiveSlots(dirCluster uint32, records [][dirEntrySize]byte) error {
	need := len(records)

	var runStart struct {
		cluster uint32
		offset  int
		count   int
	}

	var lastCluster uint32

	found := false

	err := fs.forEachCluster(dirCluster, func(cluster uint32, buf []byte) (bool, error) {
		lastCluster = cluster

		for off := 0; off+dirEntrySize <= len(buf); off += dirEntrySize {
			free := buf[off] == 0x00 || buf[off] == 0xE5
			isEnd := buf[off] == 0x00

			if free {
				if runStart.count == 0 {
					runStart.cluster = cluster
					runStart.offset = off
				}

				runStart.count++

				if runStart.count >= need {
					found = true
					return false, nil
				}

				if isEnd {
					// Everything from here to the end of the cluster is
					// virgin (0x00), so the run is satisfied as soon as
					// it fits within what's left of this cluster; no
					// need to keep stepping through zero bytes to prove
					// it. If it doesn't fit, the run has to continue
					// into a following (or newly allocated) cluster,
					// which the !found path below handles.
					if runStart.offset+need*dirEntrySize <= len(buf) {
						found = true
					}

					return false, nil
				}
			} else {
				runStart.count = 0
			}
		}

		return true, nil
	})
	if err != nil {
		return err
	}

	if !found {
		// Extend the directory with a fresh zeroed cluster.
		newCluster, err := fs.alloc()
		if err != nil {
			return err
		}
		if newCluster == 0 {
			return ErrOutOfSpace
		}

		if err := fs.set(lastCluster, newCluster); err != nil {
			return err
		}

		zero := make([]byte, fs.clusterSize())
		if err := fs.writeCluster(newCluster, zero); err != nil {
			return err
		}

		runStart.cluster = newCluster
		runStart.offset = 0
	}

	return fs.writeSlotRun(runStart.cluster, runStart.offset, records)
}

// writeSlotRun writes records starting at (cluster, offset), crossing
// into the next cluster in the chain if the run spans a boundary.
func (fs *FS) writeSlotRun(cluster uint32, offset int, records [][dirEntrySize]byte) error {
	buf := make([]byte, fs.clusterSize())

	sector := fs.clusterToSector(cluster)
	for s := 0; s < int(fs.boot.sectorsPerCluster); s++ {
		if err := fs.readSector(sector+uint32(s), buf[s*sectorSize:(s+1)*sectorSize]); err != nil {
			return err
		}
	}

	for _, rec := range records {
		if offset+dirEntrySize > len(buf) {
			if err := fs.writeCluster(cluster, buf); err != nil {
				return err
			}

			next, err := fs.next(cluster)
			if err != nil {
				return err
			}

			cluster = next
			offset = 0

			buf = make([]byte, fs.clusterSize())
			sector = fs.clusterToSector(cluster)
			for s := 0; s < int(fs.boot.sectorsPerCluster); s++ {
				if err := fs.readSector(sector+uint32(s), buf[s*sectorSize:(s+1)*sectorSize]); err != nil {
					return err
				}
			}
		}

		copy(buf[offset:offset+dirEntrySize], rec[:])
		offset += dirEntrySize
	}

	return fs.writeCluster(cluster, buf)
}
