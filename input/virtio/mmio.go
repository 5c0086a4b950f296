// VirtIO-input MMIO transport (C12)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package virtio implements the QEMU virt machine's virtio-input
// devices (keyboard, tablet) over the virtio-mmio transport, queue
// layout grounded on the teacher's VirtIO queue descriptor and MMIO
// register map, adapted from network/RNG device classes to the
// input device class (type 18).
package virtio

import (
	"errors"
	"unsafe"
)

// VirtIO MMIO device register offsets (v2 transport).
const (
	regMagic            = 0x000
	regVersion          = 0x004
	regDeviceID         = 0x008
	regVendorID         = 0x00c
	regDeviceFeatures   = 0x010
	regDeviceFeaturesSel = 0x014
	regDriverFeatures   = 0x020
	regDriverFeaturesSel = 0x024
	regQueueSel         = 0x030
	regQueueNumMax      = 0x034
	regQueueNum         = 0x038
	regQueueReady       = 0x044
	regQueueNotify      = 0x050
	regInterruptStatus  = 0x060
	regInterruptACK     = 0x064
	regStatus           = 0x070
	regQueueDescLow     = 0x080
	regQueueDescHigh    = 0x084
	regQueueDriverLow   = 0x090
	regQueueDriverHigh  = 0x094
	regQueueDeviceLow   = 0x0a0
	regQueueDeviceHigh  = 0x0a4
	regConfigGeneration = 0x0fc
	regConfig           = 0x100
)

// Status register bits.
const (
	StatusAcknowledge = 1 << 0
	StatusDriver      = 1 << 1
	StatusDriverOK    = 1 << 2
	StatusFeaturesOK  = 1 << 3
	StatusFailed      = 1 << 7
)

const (
	magicValue = 0x74726976 // "virt"

	// DeviceIDInput is the virtio-input subsystem device ID.
	DeviceIDInput = 18

	// Base, Stride and NumSlots define the scan window §4.12 describes.
	Base     = 0x0a000000
	Stride   = 0x200
	NumSlots = 32
)

var (
	ErrInvalidMagic   = errors.New("virtio: bad magic")
	ErrNotInputDevice = errors.New("virtio: not an input device")
)

// MMIO is one virtio-mmio device register window.
type MMIO struct {
	base uintptr
}

func (m *MMIO) reg(off uint32) *uint32 { return (*uint32)(unsafe.Pointer(m.base + uintptr(off))) }
func (m *MMIO) read(off uint32) uint32  { return *m.reg(off) }
func (m *MMIO) write(off, v uint32)     { *m.reg(off) = v }

// Probe inspects the slot-th device window and returns its MMIO handle
// and device ID, or ok=false if no device is present there.
func Probe(slot int) (mm *MMIO, deviceID uint32, ok bool) {
	mm = &MMIO{base: uintptr(Base + slot*Stride)}

	if mm.read(regMagic) != magicValue {
		return nil, 0, false
	}

	return mm, mm.read(regDeviceID), true
}

// Reset, SetStatus and Status drive the standard virtio device-status
// state machine.
func (m *MMIO) Reset()           { m.write(regStatus, 0) }
func (m *MMIO) SetStatus(bits uint32) { m.write(regStatus, m.read(regStatus)|bits) }
func (m *MMIO) Status() uint32   { return m.read(regStatus) }

// AcceptNoFeatures negotiates the empty feature set §4.12 specifies
// ("accept no features" — the driver needs none of the optional virtio
// extensions for a basic input device).
func (m *MMIO) AcceptNoFeatures() {
	m.write(regDriverFeaturesSel, 0)
	m.write(regDriverFeatures, 0)
	m.write(regDriverFeaturesSel, 1)
	m.write(regDriverFeatures, 0)
}

// SelectQueue, MaxQueueSize and SetQueueSize configure queue 0.
func (m *MMIO) SelectQueue(index uint32) { m.write(regQueueSel, index) }
func (m *MMIO) MaxQueueSize() uint32     { return m.read(regQueueNumMax) }
func (m *MMIO) SetQueueSize(n uint32)    { m.write(regQueueNum, n) }

// SetQueueAddresses programs the descriptor table, available ring and
// used ring physical addresses, then marks the queue ready.
func (m *MMIO) SetQueueAddresses(desc, avail, used uintptr) {
	m.write(regQueueDescLow, uint32(desc))
	m.write(regQueueDescHigh, uint32(uint64(desc)>>32))
	m.write(regQueueDriverLow, uint32(avail))
	m.write(regQueueDriverHigh, uint32(uint64(avail)>>32))
	m.write(regQueueDeviceLow, uint32(used))
	m.write(regQueueDeviceHigh, uint32(uint64(used)>>32))
	m.write(regQueueReady, 1)
}

func (m *MMIO) QueueNotify(index uint32) { m.write(regQueueNotify, index) }

func (m *MMIO) InterruptStatus() uint32 { return m.read(regInterruptStatus) }
func (m *MMIO) InterruptACK(v uint32)   { m.write(regInterruptACK, v) }

// ConfigByte reads one byte from the device-specific configuration
// window, used for the input-config select/subsel/size/data protocol.
func (m *MMIO) ConfigByte(off uint32) byte {
	return *(*byte)(unsafe.Pointer(m.base + uintptr(regConfig+off)))
}

func (m *MMIO) ConfigWrite(off uint32, v byte) {
	*(*byte)(unsafe.Pointer(m.base + uintptr(regConfig+off))) = v
}
