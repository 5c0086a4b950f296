// USB descriptor decoding (host side)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import (
	"encoding/binary"
	"errors"
)

var ErrShortDescriptor = errors.New("usb: descriptor shorter than its declared length")

// DeviceDescriptor mirrors USB 2.0 Table 9-8, decoded rather than
// constructed: the host reads this back from the device during
// enumeration (§4.7) instead of serializing one as a device would.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	BcdUSB            uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorId          uint16
	ProductId         uint16
	BcdDevice         uint16
	Manufacturer      uint8
	Product           uint8
	SerialNumber      uint8
	NumConfigurations uint8
}

// ParseDeviceDescriptor decodes the first 18 bytes (or fewer, for the
// address-0 bMaxPacketSize0 probe of §4.7 step 1) of a GET_DESCRIPTOR(DEVICE)
// response.
func ParseDeviceDescriptor(b []byte) (DeviceDescriptor, error) {
	var d DeviceDescriptor

	if len(b) < 8 {
		return d, ErrShortDescriptor
	}

	d.Length = b[0]
	d.DescriptorType = b[1]

	if len(b) >= 18 {
		d.BcdUSB = binary.LittleEndian.Uint16(b[2:4])
		d.DeviceClass = b[4]
		d.DeviceSubClass = b[5]
		d.DeviceProtocol = b[6]
		d.MaxPacketSize0 = b[7]
		d.VendorId = binary.LittleEndian.Uint16(b[8:10])
		d.ProductId = binary.LittleEndian.Uint16(b[10:12])
		d.BcdDevice = binary.LittleEndian.Uint16(b[12:14])
		d.Manufacturer = b[14]
		d.Product = b[15]
		d.SerialNumber = b[16]
		d.NumConfigurations = b[17]
	} else {
		d.MaxPacketSize0 = b[7]
	}

	return d, nil
}

// ConfigurationDescriptor mirrors USB 2.0 Table 9-10.
type ConfigurationDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	Configuration      uint8
	Attributes         uint8
	MaxPower           uint8
}

func ParseConfigurationDescriptor(b []byte) (ConfigurationDescriptor, error) {
	var d ConfigurationDescriptor

	if len(b) < 9 {
		return d, ErrShortDescriptor
	}

	d.Length = b[0]
	d.DescriptorType = b[1]
	d.TotalLength = binary.LittleEndian.Uint16(b[2:4])
	d.NumInterfaces = b[4]
	d.ConfigurationValue = b[5]
	d.Configuration = b[6]
	d.Attributes = b[7]
	d.MaxPower = b[8]

	return d, nil
}

// InterfaceDescriptor mirrors USB 2.0 Table 9-12.
type InterfaceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	Interface         uint8
}

func ParseInterfaceDescriptor(b []byte) (InterfaceDescriptor, error) {
	var d InterfaceDescriptor

	if len(b) < 9 {
		return d, ErrShortDescriptor
	}

	d.Length = b[0]
	d.DescriptorType = b[1]
	d.InterfaceNumber = b[2]
	d.AlternateSetting = b[3]
	d.NumEndpoints = b[4]
	d.InterfaceClass = b[5]
	d.InterfaceSubClass = b[6]
	d.InterfaceProtocol = b[7]
	d.Interface = b[8]

	return d, nil
}

// HID class/subclass/protocol values identifying the boot-protocol
// devices §4.7 step 6 binds.
const (
	ClassHID          = 3
	SubClassBoot      = 1
	ProtocolKeyboard  = 1
	ProtocolMouse     = 2
	ClassHub          = 9
)

func (i InterfaceDescriptor) IsBootKeyboard() bool {
	return i.InterfaceClass == ClassHID && i.InterfaceSubClass == SubClassBoot && i.InterfaceProtocol == ProtocolKeyboard
}

func (i InterfaceDescriptor) IsBootMouse() bool {
	return i.InterfaceClass == ClassHID && i.InterfaceSubClass == SubClassBoot && i.InterfaceProtocol == ProtocolMouse
}

func (i InterfaceDescriptor) IsHub() bool {
	return i.InterfaceClass == ClassHub
}

// EndpointDescriptor mirrors USB 2.0 Table 9-13.
type EndpointDescriptor struct {
	Length          uint8
	DescriptorType  uint8
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

func ParseEndpointDescriptor(b []byte) (EndpointDescriptor, error) {
	var d EndpointDescriptor

	if len(b) < 7 {
		return d, ErrShortDescriptor
	}

	d.Length = b[0]
	d.DescriptorType = b[1]
	d.EndpointAddress = b[2]
	d.Attributes = b[3]
	d.MaxPacketSize = binary.LittleEndian.Uint16(b[4:6])
	d.Interval = b[6]

	return d, nil
}

func (e EndpointDescriptor) Number() uint8    { return e.EndpointAddress & 0x0f }
func (e EndpointDescriptor) IsIn() bool       { return e.EndpointAddress&0x80 != 0 }
func (e EndpointDescriptor) IsInterrupt() bool { return e.Attributes&0x03 == 0x03 }

// HubDescriptor mirrors USB 2.0 Table 11-13, the fields the enumeration
// walk (§4.7) actually consumes.
type HubDescriptor struct {
	Length       uint8
	DescriptorType uint8
	NumPorts     uint8
}

func ParseHubDescriptor(b []byte) (HubDescriptor, error) {
	var d HubDescriptor

	if len(b) < 3 {
		return d, ErrShortDescriptor
	}

	d.Length = b[0]
	d.DescriptorType = b[1]
	d.NumPorts = b[2]

	return d, nil
}

// Port status bits, USB 2.0 Table 11-21.
const (
	PortStatusConnection = 1 << 0
	PortStatusEnable     = 1 << 1
	PortStatusReset      = 1 << 4
	PortStatusLowSpeed   = 1 << 9
	PortStatusHighSpeed  = 1 << 10
)

// PortStatus decodes a GET_PORT_STATUS response's first word.
func PortStatus(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}

	return binary.LittleEndian.Uint32(b[0:4])
}
