// Kernel-to-userspace dispatch table
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import "github.com/kirakira-dev/kikios/hal"

// Console is the subset of console.Console the kapi exposes; kept as a
// local interface so this package never imports console, which otherwise
// would import kernel for the heap and create a cycle.
type Console interface {
	Putc(c byte)
	Puts(s string)
	Clear()
	SetCursor(row, col int)
	SetColor(fg, bg uint32)
	Rows() int
	Cols() int
	ClearToEOL()
	ClearRegion(row0, row1 int)
}

// FileSystem is the subset of fs/fat32.FS the kapi exposes.
type FileSystem interface {
	Open(path string) (int, error)
	Create(path string) (int, error)
	FileSize(path string) (int64, error)
	IsDir(path string) (bool, error)
	Read(handle int, buf []byte) (int, error)
	Write(handle int, buf []byte) (int, error)
	Readdir(path string) ([]string, error)
}

// Exec loads and runs a flat binary at path, returning once it exits, or
// an error if it could not be loaded (§1: "dynamic loading beyond a
// simple flat binary exec" is explicitly out of scope — Exec never links
// or relocates, it only copies bytes into a heap-carved load window and
// jumps).
type Exec func(path string) error

// KAPI is the dispatch table every userspace process's main(kapi, argc,
// argv) receives (§8, "Kernel → userspace API"). Every field is a bound
// method or closure over kernel state; no subsystem holds a back-pointer
// into a KAPI, avoiding the cyclic reference the design notes call out.
type KAPI struct {
	Console Console
	FS      FileSystem
	Input   hal.Input

	// pendingKey caches a key fetched by HasKey so the subsequent
	// GetKey doesn't consume a second report from the queue.
	pendingKey    int
	hasPendingKey bool

	SleepMs func(ms uint32)
	Yield   func()
	Exec    Exec

	Malloc func(size int) (uintptr, error)
	Free   func(ptr uintptr)

	FBBase   uintptr
	FBWidth  int
	FBHeight int
	FontData []byte

	USBDeviceCount func() int
	USBDeviceInfo  func(index int) (string, bool)

	StdioPutc func(c byte)
	StdioPuts func(s string)
}

// HasKey reports whether a key is available, pulling one from Input and
// caching it if necessary so a subsequent GetKey doesn't lose it.
func (k *KAPI) HasKey() bool {
	if k.hasPendingKey {
		return true
	}

	if k.Input == nil {
		return false
	}

	c := k.Input.KeyboardGetc()
	if c == hal.NoData {
		return false
	}

	k.pendingKey = c
	k.hasPendingKey = true

	return true
}

// GetKey returns the next key code, consuming any key cached by HasKey,
// or hal.NoData if none is available.
func (k *KAPI) GetKey() int {
	if k.hasPendingKey {
		k.hasPendingKey = false
		return k.pendingKey
	}

	if k.Input == nil {
		return hal.NoData
	}

	return k.Input.KeyboardGetc()
}
