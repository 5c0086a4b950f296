// USB device table (§3.2)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

// Speed identifies a device's negotiated bus speed.
type Speed int

const (
	SpeedHigh Speed = iota
	SpeedFull
	SpeedLow
)

// MaxDevices bounds the device table at 8 entries, per §3.2: enough for
// a keyboard, a mouse and a couple of hubs without the linear scan
// mattering.
const MaxDevices = 8

// UsbDevice records one enumerated device (§3.2). Address 0 is reserved
// for "device currently being enumerated" and never occupies a table
// slot; ParentHub/ParentPort/IsHub/HubPorts exist so the split-
// transaction state machine (§4.6.1) can find a device's routing
// ancestry without walking a tree.
type UsbDevice struct {
	Address       uint8
	Speed         Speed
	MaxPacketSize uint16
	ParentHub     int // index into Devices, or -1 for the root port
	ParentPort    int
	IsHub         bool
	HubPorts      int
}

// EnumContext records the split-routing information for the device
// currently at address 0, before SET_ADDRESS has assigned it a
// permanent slot (§3.2).
type EnumContext struct {
	ParentHub  int
	ParentPort int
	Speed      Speed
}

// DeviceTable is the small, non-hot ≤8-entry array §3.2 describes.
// Entries are created in address order and survive until a disconnect
// clears the subtree; lookups are a linear scan.
type DeviceTable struct {
	devices  [MaxDevices]UsbDevice
	occupied [MaxDevices]bool
	nextAddr uint8
}

// NewDeviceTable returns a table ready to assign address 1 next.
func NewDeviceTable() *DeviceTable {
	return &DeviceTable{nextAddr: 1}
}

// NextAddress returns the next address to assign and reserves it.
// Returns 0 if the table is full.
func (t *DeviceTable) NextAddress() uint8 {
	if int(t.nextAddr) > MaxDevices {
		return 0
	}

	a := t.nextAddr
	t.nextAddr++

	return a
}

// Add records a newly addressed device at index addr-1.
func (t *DeviceTable) Add(d UsbDevice) int {
	idx := int(d.Address) - 1
	if idx < 0 || idx >= MaxDevices {
		return -1
	}

	t.devices[idx] = d
	t.occupied[idx] = true

	return idx
}

// Get returns the device at the given table index.
func (t *DeviceTable) Get(idx int) (UsbDevice, bool) {
	if idx < 0 || idx >= MaxDevices || !t.occupied[idx] {
		return UsbDevice{}, false
	}

	return t.devices[idx], true
}

// ByAddress finds a device by its bus address via linear scan — fine at
// ≤8 entries, per §3.2.
func (t *DeviceTable) ByAddress(addr uint8) (int, UsbDevice, bool) {
	for i, occ := range t.occupied {
		if occ && t.devices[i].Address == addr {
			return i, t.devices[i], true
		}
	}

	return -1, UsbDevice{}, false
}

// Clear drops a device (and, by convention, is called once per node
// during a recursive subtree teardown on port disconnect).
func (t *DeviceTable) Clear(idx int) {
	if idx < 0 || idx >= MaxDevices {
		return
	}

	t.devices[idx] = UsbDevice{}
	t.occupied[idx] = false
}

// NeedsSplit reports whether transfers to dev must use the two-phase
// split-transaction state machine (§4.6.1): applies only when dev's
// speed is FS or LS and it sits behind a high-speed hub ancestor. Since
// the table only tracks one level of parent, any non-root parent at FS
// or LS speed itself is assumed to have already bridged the split, so
// only a direct FS/LS device needs one.
func NeedsSplit(speed Speed) bool {
	return speed == SpeedFull || speed == SpeedLow
}
