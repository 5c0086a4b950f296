// USB setup packet and standard request support
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package usb implements the host-side DWC2 USB 2.0 stack: core
// initialization (C5), the control/split transfer engine (C6),
// enumeration (C7) and the boot-protocol HID ISR pipeline (C8).
//
// Descriptor and setup-packet shapes mirror the USB 2.0 specification
// structures the device-mode stack already encoded; here the host
// constructs SetupData as the requester instead of decoding it as a
// device would.
package usb

import (
	"bytes"
	"encoding/binary"
)

// Setup packet bmRequestType direction/type/recipient bits.
const (
	DirOut = 0x00
	DirIn  = 0x80

	TypeStandard = 0x00 << 5
	TypeClass    = 0x01 << 5

	RecipDevice    = 0x00
	RecipInterface = 0x01
	RecipEndpoint  = 0x02
	RecipOther     = 0x03
)

// Standard request codes, USB 2.0 Table 9-4.
const (
	ReqGetStatus        = 0
	ReqClearFeature     = 1
	ReqSetFeature       = 3
	ReqSetAddress       = 5
	ReqGetDescriptor    = 6
	ReqSetDescriptor    = 7
	ReqGetConfiguration = 8
	ReqSetConfiguration = 9
	ReqGetInterface     = 10
	ReqSetInterface     = 11
)

// HID class request codes.
const (
	ReqGetReport   = 1
	ReqSetProtocol = 11
	ReqSetIdle     = 10
)

// Descriptor type codes, USB 2.0 Table 9-5.
const (
	DescDevice        = 1
	DescConfiguration = 2
	DescString        = 3
	DescInterface     = 4
	DescEndpoint      = 5
	DescHub           = 0x29
)

// Hub class feature selectors, USB 2.0 Table 11-17.
const (
	FeaturePortConnection = 0
	FeaturePortReset      = 4
	FeaturePortPower      = 8
	FeatureCPortConnection = 16
	FeatureCPortReset      = 20
	FeatureCPortEnable     = 17
)

// SetupData is the 8-byte host->device control transfer setup stage.
type SetupData struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// Bytes serializes the setup packet to its wire layout.
func (s SetupData) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, s)
	return buf.Bytes()
}

// GetDescriptorSetup builds the standard GET_DESCRIPTOR(DEVICE, ...) style
// request used repeatedly during enumeration (§4.7).
func GetDescriptorSetup(descType, index uint8, length uint16) SetupData {
	return SetupData{
		RequestType: DirIn | TypeStandard | RecipDevice,
		Request:     ReqGetDescriptor,
		Value:       uint16(descType)<<8 | uint16(index),
		Length:      length,
	}
}

// SetAddressSetup builds SET_ADDRESS(addr).
func SetAddressSetup(addr uint8) SetupData {
	return SetupData{
		RequestType: DirOut | TypeStandard | RecipDevice,
		Request:     ReqSetAddress,
		Value:       uint16(addr),
	}
}

// SetConfigurationSetup builds SET_CONFIGURATION(value).
func SetConfigurationSetup(value uint8) SetupData {
	return SetupData{
		RequestType: DirOut | TypeStandard | RecipDevice,
		Request:     ReqSetConfiguration,
		Value:       uint16(value),
	}
}

// SetProtocolSetup builds the HID class SET_PROTOCOL request against an
// interface (boot=0, report=1).
func SetProtocolSetup(iface uint8, boot bool) SetupData {
	v := uint16(1)
	if boot {
		v = 0
	}

	return SetupData{
		RequestType: DirOut | TypeClass | RecipInterface,
		Request:     ReqSetProtocol,
		Value:       v,
		Index:       uint16(iface),
	}
}

// SetIdleSetup builds the HID class SET_IDLE(0) request.
func SetIdleSetup(iface uint8) SetupData {
	return SetupData{
		RequestType: DirOut | TypeClass | RecipInterface,
		Request:     ReqSetIdle,
		Index:       uint16(iface),
	}
}

// SetPortFeatureSetup builds a hub class SET_PORT_FEATURE request.
func SetPortFeatureSetup(feature, port uint8) SetupData {
	return SetupData{
		RequestType: DirOut | TypeClass | RecipOther,
		Request:     ReqSetFeature,
		Value:       uint16(feature),
		Index:       uint16(port),
	}
}

// ClearPortFeatureSetup builds a hub class CLEAR_PORT_FEATURE request.
func ClearPortFeatureSetup(feature, port uint8) SetupData {
	return SetupData{
		RequestType: DirOut | TypeClass | RecipOther,
		Request:     ReqClearFeature,
		Value:       uint16(feature),
		Index:       uint16(port),
	}
}

// GetPortStatusSetup builds a hub class GET_PORT_STATUS request.
func GetPortStatusSetup(port uint8) SetupData {
	return SetupData{
		RequestType: DirIn | TypeClass | RecipOther,
		Request:     ReqGetStatus,
		Index:       uint16(port),
		Length:      4,
	}
}

// GetHubDescriptorSetup builds GET_DESCRIPTOR(HUB) on the device itself.
func GetHubDescriptorSetup() SetupData {
	return SetupData{
		RequestType: DirIn | TypeClass | RecipDevice,
		Request:     ReqGetDescriptor,
		Value:       uint16(DescHub) << 8,
		Length:      8,
	}
}
