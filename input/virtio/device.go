// VirtIO-input device bring-up (C12)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

// Input config select values, virtio-input spec §5.8.3.
const (
	cfgIDName = 0x01
)

// Device wraps one bound virtio-input device: its MMIO window, queue 0
// and identified kind.
type Device struct {
	MMIO *MMIO
	Slot int
	Name string
	Q    *EventQueue
}

// Name strings QEMU's virtio-input devices report, used to distinguish
// keyboard from tablet (§4.12).
const (
	NameKeyboard = "QEMU Virtio Keyboard"
	NameTablet   = "QEMU Virtio Tablet"
)

// readConfigName reads the device's human-readable name from the
// input-config window (select=ID_NAME at offset 0, subsel=0 at offset
// 1): a size byte at offset 2, the string itself starting at offset 8.
func readConfigName(m *MMIO) string {
	m.ConfigWrite(0, cfgIDName) // select
	m.ConfigWrite(1, 0)         // subsel

	size := m.ConfigByte(2)

	buf := make([]byte, size)
	for i := range buf {
		buf[i] = m.ConfigByte(uint32(8 + i))
	}

	return string(buf)
}

// Init drives the standard virtio bring-up sequence for an input
// device (§4.12): reset, ACK+DRIVER status, accept no features, set
// FEATURES_OK, set up queue 0 with 16 write-only event descriptors,
// set DRIVER_OK, notify.
func Init(slot int) (*Device, bool) {
	m, devID, ok := Probe(slot)
	if !ok || devID != DeviceIDInput {
		return nil, false
	}

	m.Reset()
	m.SetStatus(StatusAcknowledge)
	m.SetStatus(StatusDriver)
	m.AcceptNoFeatures()
	m.SetStatus(StatusFeaturesOK)

	if m.Status()&StatusFeaturesOK == 0 {
		return nil, false
	}

	m.SelectQueue(0)
	m.SetQueueSize(QueueSize)

	q := NewEventQueue()
	descAddr, availAddr, usedAddr := q.addresses()
	m.SetQueueAddresses(descAddr, availAddr, usedAddr)
	q.MakeAllAvailable()

	m.SetStatus(StatusDriverOK)
	m.QueueNotify(0)

	return &Device{MMIO: m, Slot: slot, Name: readConfigName(m), Q: q}, true
}

// IRQ returns the unified IRQ number for this device's slot (§4.12:
// 48 + slot).
func (d *Device) IRQ() int { return 48 + d.Slot }

// ScanAll probes every slot in the virtio-mmio window (§4.12: base
// 0x0a000000, stride 0x200, 32 slots) and initializes every input
// device found.
func ScanAll() []*Device {
	var devices []*Device

	for slot := 0; slot < NumSlots; slot++ {
		if d, ok := Init(slot); ok {
			devices = append(devices, d)
		}
	}

	return devices
}
