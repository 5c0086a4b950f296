// FAT cluster chain operations and the FAT sector cache (§3.5, §4.10.3)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fat32

import "encoding/binary"

const (
	clusterFree = 0x00000000
	clusterEOC  = 0x0FFFFFF8
	clusterMask = 0x0FFFFFFF

	fatCacheSize = 64
)

// fatCacheLine holds one cached FAT1 sector. The cache is write-through:
// set() writes the sector to disk at once and then invalidates the line.
type fatCacheLine struct {
	valid  bool
	sector uint32
	buf    [sectorSize]byte
	lru    uint64
}

// fatCache is the 64-slot LRU FAT sector cache §3.5 / §4.10.3 reference;
// every next()/alloc()/set() goes through it instead of the block
// device directly.
type fatCache struct {
	fs    *FS
	lines [fatCacheSize]fatCacheLine
	clock uint64
}

func newFATCache(fs *FS) *fatCache {
	return &fatCache{fs: fs}
}

func (c *fatCache) fatSectorFor(cluster uint32) uint32 {
	return uint32(c.fs.boot.reservedSectors) + (cluster*4)/sectorSize
}

// line returns the cache line backing the given FAT1 sector, loading it
// on a miss and evicting the least-recently-used line if the cache is
// full.
func (c *fatCache) line(sector uint32) (*fatCacheLine, error) {
	c.clock++

	var lru *fatCacheLine
	for i := range c.lines {
		l := &c.lines[i]

		if l.valid && l.sector == sector {
			l.lru = c.clock
			return l, nil
		}

		if !l.valid {
			lru = l
		} else if lru == nil || l.lru < lru.lru {
			lru = l
		}
	}

	if err := c.fs.readSector(sector, lru.buf[:]); err != nil {
		return nil, err
	}

	lru.valid = true
	lru.sector = sector
	lru.lru = c.clock

	return lru, nil
}

// invalidate drops any cached copy of sector so the next access rereads
// it (used after alloc()/set() write through both FAT copies).
func (c *fatCache) invalidate(sector uint32) {
	for i := range c.lines {
		if c.lines[i].valid && c.lines[i].sector == sector {
			c.lines[i].valid = false
		}
	}
}

// next reads the FAT entry for cluster c, masking the high 4 bits
// (FAT32 is 28-bit), §4.10.3.
func (fs *FS) next(cluster uint32) (uint32, error) {
	sector := fs.fat.fatSectorFor(cluster)

	l, err := fs.fat.line(sector)
	if err != nil {
		return 0, err
	}

	off := (cluster * 4) % sectorSize

	return binary.LittleEndian.Uint32(l.buf[off:off+4]) & clusterMask, nil
}

// set writes value v into cluster c's entry in both FAT copies and
// invalidates the cache for that sector (§4.10.3).
func (fs *FS) set(cluster, v uint32) error {
	sector := fs.fat.fatSectorFor(cluster)

	l, err := fs.fat.line(sector)
	if err != nil {
		return err
	}

	off := (cluster * 4) % sectorSize
	binary.LittleEndian.PutUint32(l.buf[off:off+4], (binary.LittleEndian.Uint32(l.buf[off:off+4])&^clusterMask)|(v&clusterMask))

	if err := fs.writeSector(sector, l.buf[:]); err != nil {
		return err
	}

	if fs.boot.numFATs >= 2 {
		sector2 := sector + fs.boot.fatSize32
		buf2 := make([]byte, sectorSize)
		if err := fs.readSector(sector2, buf2); err == nil {
			binary.LittleEndian.PutUint32(buf2[off:off+4], (binary.LittleEndian.Uint32(buf2[off:off+4])&^clusterMask)|(v&clusterMask))
			fs.writeSector(sector2, buf2)
		}
	}

	fs.fat.invalidate(sector)

	return nil
}

// alloc scans from cluster 2 upward for a FREE entry, writes EOC to
// both FAT copies and returns it; returns 0 on a full disk (§4.10.3).
func (fs *FS) alloc() (uint32, error) {
	for c := uint32(2); c < fs.totalClusters+2; c++ {
		v, err := fs.next(c)
		if err != nil {
			return 0, err
		}

		if v == clusterFree {
			if err := fs.set(c, clusterEOC); err != nil {
				return 0, err
			}

			return c, nil
		}
	}

	return 0, nil
}

// freeChain walks the chain starting at c writing FREE to every
// cluster; idempotent over an already-freed (FREE) chain (§4.10.3). The
// data region is zeroed as each cluster is freed, so a directory or file
// chain allocated and then freed with nothing else touching the volume
// leaves the data region exactly as it was before the allocation — the
// mkdir/rmdir idempotence property (§8) depends on this.
func (fs *FS) freeChain(c uint32) error {
	zero := make([]byte, fs.clusterSize())

	for c != 0 && c < clusterEOC {
		next, err := fs.next(c)
		if err != nil {
			return err
		}

		if err := fs.writeCluster(c, zero); err != nil {
			return err
		}

		if err := fs.set(c, clusterFree); err != nil {
			return err
		}

		if next == clusterFree {
			break
		}

		c = next
	}

	return nil
}

// allocChain allocates a fresh chain of n clusters (n >= 1), linking
// each to the next and terminating in EOC. Returns the first cluster,
// or 0 and ErrOutOfSpace if the disk can't satisfy it (partial chains
// allocated so far are freed).
func (fs *FS) allocChain(n int) (uint32, error) {
	if n <= 0 {
		n = 1
	}

	clusters := make([]uint32, 0, n)

	for i := 0; i < n; i++ {
		c, err := fs.alloc()
		if err != nil {
			fs.freePartial(clusters)
			return 0, err
		}

		if c == 0 {
			fs.freePartial(clusters)
			return 0, ErrOutOfSpace
		}

		clusters = append(clusters, c)
	}

	for i := 0; i < len(clusters)-1; i++ {
		if err := fs.set(clusters[i], clusters[i+1]); err != nil {
			return 0, err
		}
	}

	return clusters[0], nil
}

func (fs *FS) freePartial(clusters []uint32) {
	for _, c := range clusters {
		fs.set(c, clusterFree)
	}
}
