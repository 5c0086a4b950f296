// VirtIO block device driver (QEMU virt machine)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package virtioblk drives a virtio-blk device over the virtio-mmio
// transport, implementing hal.Block for QEMU's virt machine — the
// "virtio-blk-backed device" fs/fat32 is written against there. It
// reuses input/virtio's MMIO register transport and Probe scan (C12),
// adapting the queue shape from one event queue of write-only
// descriptors to virtio-blk's three-descriptor request chain
// (header, data, status), the standard split-virtqueue layout the
// teacher's VirtIO queue descriptor code also follows.
package virtioblk

import (
	"errors"
	"time"
	"unsafe"

	"github.com/kirakira-dev/kikios/hal"
	"github.com/kirakira-dev/kikios/input/virtio"
)

// DeviceIDBlock is the virtio-blk subsystem device ID.
const DeviceIDBlock = 2

const (
	queueSize  = 3 // header, data, status
	sectorSize = 512

	// maxTransferSectors bounds one request's data descriptor so its
	// backing buffer can be a fixed-size array; larger hal.Block calls
	// are split into several requests by Read/Write.
	maxTransferSectors = 64

	reqTypeIn  = 0 // device reads the sector range into our buffer
	reqTypeOut = 1 // device writes our buffer to the sector range

	descFlagNext  = 1 << 0
	descFlagWrite = 1 << 1

	statusOK = 0
)

var (
	// ErrNoDevice is returned by Init when no virtio-blk device answers
	// any scanned slot.
	ErrNoDevice = errors.New("virtioblk: no device found")
	// ErrTimeout is returned when a request's used-ring completion
	// never arrives within the bounded poll window.
	ErrTimeout = errors.New("virtioblk: request timed out")
	// ErrDeviceError is returned when the device reports a non-OK
	// status byte for a completed request.
	ErrDeviceError = errors.New("virtioblk: device reported an error")
)

type reqHeader struct {
	typ      uint32
	reserved uint32
	sector   uint64
}

type desc struct {
	addr  uint64
	len   uint32
	flags uint16
	next  uint16
}

type avail struct {
	flags uint16
	idx   uint16
	ring  [queueSize]uint16
}

type usedElem struct {
	id  uint32
	len uint32
}

type used struct {
	flags uint16
	idx   uint16
	ring  [queueSize]usedElem
}

// Device drives one virtio-blk device. It implements hal.Block.
type Device struct {
	mmio *virtio.MMIO

	descs []desc
	avail *avail
	used  *used

	header reqHeader
	data   [maxTransferSectors * sectorSize]byte
	status byte

	lastUsedIdx uint16
}

// Init scans every virtio-mmio slot for a virtio-blk device (§4.12's scan
// window, reused here for a different device class) and binds the
// first one found.
func (d *Device) Init() error {
	for slot := 0; slot < virtio.NumSlots; slot++ {
		mmio, devID, ok := virtio.Probe(slot)
		if !ok || devID != DeviceIDBlock {
			continue
		}

		d.bind(mmio)
		return nil
	}

	return ErrNoDevice
}

func (d *Device) bind(mmio *virtio.MMIO) {
	d.mmio = mmio

	mmio.Reset()
	mmio.SetStatus(virtio.StatusAcknowledge)
	mmio.SetStatus(virtio.StatusDriver)
	mmio.AcceptNoFeatures()
	mmio.SetStatus(virtio.StatusFeaturesOK)
	mmio.SetStatus(virtio.StatusDriverOK)

	d.descs = make([]desc, queueSize)
	d.avail = &avail{}
	d.used = &used{}

	d.descs[0] = desc{addr: uint64(uintptr(unsafe.Pointer(&d.header))), len: uint32(unsafe.Sizeof(d.header)), flags: descFlagNext, next: 1}
	d.descs[2] = desc{addr: uint64(uintptr(unsafe.Pointer(&d.status))), len: 1, flags: descFlagWrite}

	mmio.SelectQueue(0)
	mmio.SetQueueSize(queueSize)
	mmio.SetQueueAddresses(
		uintptr(unsafe.Pointer(&d.descs[0])),
		uintptr(unsafe.Pointer(d.avail)),
		uintptr(unsafe.Pointer(d.used)),
	)
}

// submit programs the data descriptor for a read or write of n sectors
// starting at sector, publishes the chain, notifies the device, and
// blocks (bounded) until the used ring reports completion.
func (d *Device) submit(sector uint64, n int, write bool) error {
	d.header = reqHeader{sector: sector}

	dataLen := n * sectorSize
	dataFlags := uint16(descFlagNext)

	if write {
		d.header.typ = reqTypeOut
	} else {
		d.header.typ = reqTypeIn
		dataFlags |= descFlagWrite
	}

	d.descs[1] = desc{
		addr:  uint64(uintptr(unsafe.Pointer(&d.data[0]))),
		len:   uint32(dataLen),
		flags: dataFlags,
		next:  2,
	}

	idx := d.avail.idx
	d.avail.ring[idx%queueSize] = 0
	d.avail.idx = idx + 1

	d.mmio.QueueNotify(0)

	deadline := time.Now().Add(5 * time.Second)
	for d.used.idx == d.lastUsedIdx {
		if time.Now().After(deadline) {
			return ErrTimeout
		}
	}

	d.lastUsedIdx = d.used.idx

	if d.status != statusOK {
		return ErrDeviceError
	}

	return nil
}

// Read reads count sectors starting at sector into buf, splitting the
// transfer into maxTransferSectors-sized requests as needed.
func (d *Device) Read(sector uint64, buf []byte, count int) error {
	return d.transfer(sector, buf, count, false)
}

// Write writes count sectors starting at sector from buf, splitting the
// transfer into maxTransferSectors-sized requests as needed.
func (d *Device) Write(sector uint64, buf []byte, count int) error {
	return d.transfer(sector, buf, count, true)
}

func (d *Device) transfer(sector uint64, buf []byte, count int, write bool) error {
	done := 0

	for done < count {
		n := count - done
		if n > maxTransferSectors {
			n = maxTransferSectors
		}

		off := done * sectorSize
		length := n * sectorSize

		if write {
			copy(d.data[:length], buf[off:off+length])
		}

		if err := d.submit(sector+uint64(done), n, write); err != nil {
			return err
		}

		if !write {
			copy(buf[off:off+length], d.data[:length])
		}

		done += n
	}

	return nil
}

var _ hal.Block = (*Device)(nil)
