// FAT32 file and directory operations (§4.10.5, §4.10.6)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fat32

import "strings"

// handle is one open file/directory, indexed by the int the
// kernel.FileSystem interface (Open/Create/Read/Write) hands back.
type handle struct {
	path    string
	offset  int64
	isDir   bool
}

func splitPath(path string) []string {
	var parts []string

	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	return parts
}

// resolve walks path's components from the root cluster, returning the
// final dirRecord, its parent's cluster, and the final component name.
func (fs *FS) resolve(path string) (rec dirRecord, parentCluster uint32, name string, err error) {
	parts := splitPath(path)

	cluster := fs.boot.rootCluster
	parentCluster = cluster

	if len(parts) == 0 {
		return dirRecord{entry: dirEntry{attr: AttrDirectory, cluster: cluster}, cluster: cluster}, cluster, "", nil
	}

	for i, part := range parts {
		r, ok, ferr := fs.findInDir(cluster, part)
		if ferr != nil {
			return dirRecord{}, 0, "", ferr
		}

		if !ok {
			if i == len(parts)-1 {
				// Only the final component is missing: report its parent
				// and name so Create/Mkdir/writeFile can create it there.
				return dirRecord{}, cluster, part, ErrNotFound
			}

			return dirRecord{}, 0, "", ErrNotFound
		}

		if i < len(parts)-1 {
			if r.entry.attr&AttrDirectory == 0 {
				return dirRecord{}, 0, "", ErrNotADirectory
			}

			parentCluster = cluster
			cluster = r.entry.cluster
			continue
		}

		parentCluster = cluster
		name = part
		rec = r
	}

	return rec, parentCluster, name, nil
}

// Handles is the file/directory handle table; Open/Create append to it
// and return the new index, matching kernel.FileSystem's int-handle
// contract. There is no Close in that interface, and entries are never
// released or reused: every Open/Create appends a new handle, even for a
// path that already has one.
type Handles struct {
	table []*handle
}

func (fs *FS) newHandle(path string, isDir bool) int {
	h := &handle{path: path, isDir: isDir}
	fs.handles.table = append(fs.handles.table, h)
	return len(fs.handles.table) - 1
}

func (fs *FS) handleAt(h int) (*handle, bool) {
	if h < 0 || h >= len(fs.handles.table) {
		return nil, false
	}

	return fs.handles.table[h], true
}

// Open resolves path and returns a read/write handle over it.
func (fs *FS) Open(path string) (int, error) {
	rec, _, _, err := fs.resolve(path)
	if err != nil {
		return -1, err
	}

	return fs.newHandle(path, rec.entry.attr&AttrDirectory != 0), nil
}

// Create creates path as an empty file (truncating it if it already
// exists) and returns a handle.
func (fs *FS) Create(path string) (int, error) {
	rec, parent, name, err := fs.resolve(path)

	switch err {
	case nil:
		if rec.entry.attr&AttrDirectory != 0 {
			return -1, ErrIsADirectory
		}

		if rec.entry.cluster != 0 {
			if ferr := fs.freeChain(rec.entry.cluster); ferr != nil {
				return -1, ferr
			}
		}

		rec.entry.cluster = 0
		rec.entry.size = 0

		if werr := fs.writeEntryAt(rec); werr != nil {
			return -1, werr
		}
	case ErrNotFound:
		if len(name) > 255 {
			return -1, ErrNameTooLong
		}

		if cerr := fs.createDirEntry(parent, name, AttrArchive, 0); cerr != nil {
			return -1, cerr
		}
	default:
		return -1, err
	}

	return fs.newHandle(path, false), nil
}

// writeEntryAt rewrites a single already-located directory entry's
// 32-byte record in place.
func (fs *FS) writeEntryAt(rec dirRecord) error {
	buf := make([]byte, fs.clusterSize())

	sector := fs.clusterToSector(rec.cluster)
	for s := 0; s < int(fs.boot.sectorsPerCluster); s++ {
		if err := fs.readSector(sector+uint32(s), buf[s*sectorSize:(s+1)*sectorSize]); err != nil {
			return err
		}
	}

	copy(buf[rec.offset:rec.offset+dirEntrySize], rec.entry.bytes())

	return fs.writeCluster(rec.cluster, buf)
}

// FileSize returns the current on-disk size of path.
func (fs *FS) FileSize(path string) (int64, error) {
	rec, _, _, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}

	return int64(rec.entry.size), nil
}

// IsDir reports whether path names a directory.
func (fs *FS) IsDir(path string) (bool, error) {
	rec, _, _, err := fs.resolve(path)
	if err != nil {
		return false, err
	}

	return rec.entry.attr&AttrDirectory != 0, nil
}

// Read reads from handle h's current offset into buf, advancing it,
// per §4.10.6: walks whole clusters until the one containing offset,
// copies a partial cluster, whole clusters, then a final partial,
// bounded by buf's length and the file's actual size.
func (fs *FS) Read(h int, buf []byte) (int, error) {
	hd, ok := fs.handleAt(h)
	if !ok {
		return 0, ErrNotFound
	}

	n, err := fs.readFileOffset(hd.path, buf, hd.offset)
	if err != nil {
		return 0, err
	}

	hd.offset += int64(n)

	return n, nil
}

func (fs *FS) readFileOffset(path string, buf []byte, offset int64) (int, error) {
	rec, _, _, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}

	if rec.entry.attr&AttrDirectory != 0 {
		return 0, ErrIsADirectory
	}

	remaining := int64(rec.entry.size) - offset
	if remaining <= 0 {
		return 0, nil
	}

	want := int64(len(buf))
	if want > remaining {
		want = remaining
	}

	clusterBytes := int64(fs.clusterSize())
	skipClusters := offset / clusterBytes
	startOff := offset % clusterBytes

	cluster := rec.entry.cluster
	for i := int64(0); i < skipClusters && cluster != 0 && cluster < clusterEOC; i++ {
		cluster, err = fs.next(cluster)
		if err != nil {
			return 0, err
		}
	}

	var copied int64

	for copied < want && cluster != 0 && cluster < clusterEOC {
		cbuf := make([]byte, clusterBytes)
		sector := fs.clusterToSector(cluster)

		for s := 0; s < int(fs.boot.sectorsPerCluster); s++ {
			if err := fs.readSector(sector+uint32(s), cbuf[s*sectorSize:(s+1)*sectorSize]); err != nil {
				return int(copied), err
			}
		}

		start := int64(0)
		if copied == 0 {
			start = startOff
		}

		n := clusterBytes - start
		if copied+n > want {
			n = want - copied
		}

		copy(buf[copied:copied+n], cbuf[start:start+n])
		copied += n

		if copied >= want {
			break
		}

		cluster, err = fs.next(cluster)
		if err != nil {
			return int(copied), err
		}
	}

	return int(copied), nil
}

// Write writes buf at handle h's current offset, reconstructing the
// whole-file contents and writing them through writeFile so the §4.10.5
// crash-safety ordering applies to every call.
func (fs *FS) Write(h int, buf []byte) (int, error) {
	hd, ok := fs.handleAt(h)
	if !ok {
		return 0, ErrNotFound
	}

	size, err := fs.FileSize(hd.path)
	if err != nil && err != ErrNotFound {
		return 0, err
	}

	existing := make([]byte, size)
	if size > 0 {
		fs.readFileOffset(hd.path, existing, 0)
	}

	end := hd.offset + int64(len(buf))
	if end > int64(len(existing)) {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}

	copy(existing[hd.offset:end], buf)

	if err := fs.writeFile(hd.path, existing); err != nil {
		return 0, err
	}

	hd.offset = end

	return len(buf), nil
}

// writeFile implements §4.10.5's write_file ordering: allocate a fresh
// chain sized for data, write it cluster by cluster, update the entry's
// cluster/size, and only then free the old chain — so a crash between
// steps leaves either the old or the new file readable, never a
// dangling entry with a freed chain (§5).
func (fs *FS) writeFile(path string, data []byte) error {
	rec, parent, name, err := fs.resolve(path)

	var oldCluster uint32

	if err == ErrNotFound {
		if cerr := fs.createDirEntry(parent, name, AttrArchive, 0); cerr != nil {
			return cerr
		}

		rec, _, _, err = fs.resolve(path)
	}

	if err != nil {
		return err
	}

	oldCluster = rec.entry.cluster

	var newCluster uint32

	if len(data) > 0 {
		n := (len(data) + fs.clusterSize() - 1) / fs.clusterSize()

		newCluster, err = fs.allocChain(n)
		if err != nil {
			return err
		}

		c := newCluster
		for off := 0; off < len(data); off += fs.clusterSize() {
			end := off + fs.clusterSize()
			if end > len(data) {
				end = len(data)
			}

			cbuf := make([]byte, fs.clusterSize())
			copy(cbuf, data[off:end])

			if err := fs.writeCluster(c, cbuf); err != nil {
				return err
			}

			c, err = fs.next(c)
			if err != nil {
				return err
			}
		}
	}

	rec.entry.cluster = newCluster
	rec.entry.size = uint32(len(data))

	if err := fs.writeEntryAt(rec); err != nil {
		return err
	}

	if oldCluster != 0 && oldCluster != newCluster {
		return fs.freeChain(oldCluster)
	}

	return nil
}

// Readdir lists the names of path's directory contents.
func (fs *FS) Readdir(path string) ([]string, error) {
	rec, _, _, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}

	if rec.entry.attr&AttrDirectory == 0 && path != "" {
		return nil, ErrNotADirectory
	}

	cluster := rec.entry.cluster
	if path == "" {
		cluster = fs.boot.rootCluster
	}

	records, err := fs.listDir(cluster)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.name
	}

	return names, nil
}

// Delete locates the entry (including any preceding LFN chain), frees
// its cluster chain, then marks every associated record deleted
// (§4.10.5; see markDeleted for when the marker is 0x00 instead of 0xE5).
func (fs *FS) Delete(path string) error {
	rec, _, _, err := fs.resolve(path)
	if err != nil {
		return err
	}

	if rec.entry.attr&AttrDirectory != 0 {
		return ErrIsADirectory
	}

	if rec.entry.cluster != 0 {
		if err := fs.freeChain(rec.entry.cluster); err != nil {
			return err
		}
	}

	return fs.markDeleted(rec)
}

// markDeleted marks rec's 8.3 entry and any preceding LFN slots deleted.
// The usual marker is 0xE5 (§4.10.5), but when nothing in the directory
// follows this entry (the next slot is already the 0x00 end-of-directory
// terminator, or there is no next cluster), it writes 0x00 instead —
// restoring that run of slots to the virgin state they had before the
// entry was created, which is what the mkdir/rmdir byte-identity
// property (§8) requires for the common case of removing the last thing
// added to a directory.
func (fs *FS) markDeleted(rec dirRecord) error {
	wholeSlot := fs.isTrailingEntry(rec)

	mark := func(cluster uint32, offset int) error {
		buf := make([]byte, fs.clusterSize())
		sector := fs.clusterToSector(cluster)

		for s := 0; s < int(fs.boot.sectorsPerCluster); s++ {
			if err := fs.readSector(sector+uint32(s), buf[s*sectorSize:(s+1)*sectorSize]); err != nil {
				return err
			}
		}

		if wholeSlot {
			for i := 0; i < dirEntrySize; i++ {
				buf[offset+i] = 0x00
			}
		} else {
			buf[offset] = 0xE5
		}

		return fs.writeCluster(cluster, buf)
	}

	for _, slot := range rec.lfnSlots {
		if err := mark(slot.cluster, slot.offset); err != nil {
			return err
		}
	}

	return mark(rec.cluster, rec.offset)
}

// isTrailingEntry reports whether rec's 8.3 entry is immediately
// followed by the 0x00 end-of-directory terminator (or by nothing, at
// the end of the chain with no following cluster).
func (fs *FS) isTrailingEntry(rec dirRecord) bool {
	next := rec.offset + dirEntrySize

	if next+dirEntrySize <= fs.clusterSize() {
		buf := make([]byte, sectorSize)
		sector := fs.clusterToSector(rec.cluster) + uint32(next/sectorSize)

		if err := fs.readSector(sector, buf); err != nil {
			return false
		}

		return buf[next%sectorSize] == 0x00
	}

	successor, err := fs.next(rec.cluster)
	if err != nil {
		return false
	}

	return successor == 0 || successor >= clusterEOC
}

// Rename captures attr/cluster/size, deletes the old entry, then
// creates the new name and patches its size back in (create sets size
// to 0), per §4.10.5.
func (fs *FS) Rename(oldPath, newName string) error {
	rec, parent, _, err := fs.resolve(oldPath)
	if err != nil {
		return err
	}

	attr, cluster, size := rec.entry.attr, rec.entry.cluster, rec.entry.size

	if err := fs.markDeleted(rec); err != nil {
		return err
	}

	if err := fs.createDirEntry(parent, newName, attr, cluster); err != nil {
		return err
	}

	newRec, _, _, err := fs.findInDirRecord(parent, newName)
	if err != nil {
		return err
	}

	newRec.entry.size = size

	return fs.writeEntryAt(newRec)
}

func (fs *FS) findInDirRecord(parentCluster uint32, name string) (dirRecord, uint32, string, error) {
	rec, ok, err := fs.findInDir(parentCluster, name)
	if err != nil {
		return dirRecord{}, 0, "", err
	}

	if !ok {
		return dirRecord{}, 0, "", ErrNotFound
	}

	return rec, parentCluster, name, nil
}

// Mkdir allocates a cluster, zeroes it, writes "." and ".." entries,
// then inserts a directory entry in the parent (§4.10.5).
func (fs *FS) Mkdir(path string) error {
	_, parent, name, err := fs.resolve(path)
	if err == nil {
		return ErrExists
	}

	if err != ErrNotFound {
		return err
	}

	cluster, err := fs.alloc()
	if err != nil {
		return err
	}
	if cluster == 0 {
		return ErrOutOfSpace
	}

	buf := make([]byte, fs.clusterSize())

	dot := dirEntry{name11: pack83(".", ""), attr: AttrDirectory, cluster: cluster}
	dotdot := dirEntry{name11: pack83("..", ""), attr: AttrDirectory, cluster: parent}

	copy(buf[0:dirEntrySize], dot.bytes())
	copy(buf[dirEntrySize:2*dirEntrySize], dotdot.bytes())

	if err := fs.writeCluster(cluster, buf); err != nil {
		return err
	}

	return fs.createDirEntry(parent, name, AttrDirectory, cluster)
}

// Rmdir succeeds only if the directory contains just "." and ".."
// (§4.10.5).
func (fs *FS) Rmdir(path string) error {
	rec, _, _, err := fs.resolve(path)
	if err != nil {
		return err
	}

	if rec.entry.attr&AttrDirectory == 0 {
		return ErrNotADirectory
	}

	entries, err := fs.listDir(rec.entry.cluster)
	if err != nil {
		return err
	}

	if len(entries) > 0 {
		return ErrNotEmpty
	}

	if err := fs.freeChain(rec.entry.cluster); err != nil {
		return err
	}

	return fs.markDeleted(rec)
}

// DeleteRecursive removes path and, if it is a directory, everything
// beneath it, depth-first. It re-reads the current cluster's listing
// after each recursive call because directory contents mutate as
// children are removed (§4.10.5).
func (fs *FS) DeleteRecursive(path string) error {
	rec, _, _, err := fs.resolve(path)
	if err != nil {
		return err
	}

	if rec.entry.attr&AttrDirectory == 0 {
		return fs.Delete(path)
	}

	for {
		entries, err := fs.listDir(rec.entry.cluster)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			break
		}

		childPath := path + "/" + entries[0].name
		if err := fs.DeleteRecursive(childPath); err != nil {
			return err
		}
	}

	return fs.Rmdir(path)
}
