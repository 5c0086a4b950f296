// USB enumeration (C7)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import (
	"errors"
	"time"
)

var ErrDeviceTableFull = errors.New("usb: device table full")

// HIDBinding records the first bound keyboard/mouse endpoint for the
// HID ISR pipeline (C8) to pick up.
type HIDBinding struct {
	DeviceIndex int
	Interface   uint8
	Endpoint    EndpointDescriptor
}

// Enumerator walks newly connected devices per §4.7, recording them in
// a DeviceTable and binding the first keyboard/mouse it finds.
type Enumerator struct {
	Core    *Core
	Table   *DeviceTable
	Channel *Channel // a short-lived control channel reused across enumeration

	Keyboard *HIDBinding
	Mouse    *HIDBinding
}

// controlTransfer is a small convenience wrapper so enumeration code
// doesn't need to build a Transfer by hand at every step.
func (e *Enumerator) controlTransfer(addr uint8, ep0 uint16, route Route, setup SetupData, data []byte, in bool) error {
	xfer := &Transfer{
		Channel: e.Channel,
		CPU:     nil, // address-0 control transfers during bring-up run without DMA cache maintenance on PIO-sized descriptor reads; set by callers that wire a *arm64.CPU.
		DevAddr: addr,
		EP0Size: ep0,
		Route:   route,
	}

	return xfer.Control(setup, data, in)
}

// EnumerateRoot runs the full §4.7 sequence against the device
// currently occupying address 0 at the given speed, attached directly
// to the root port (parentHub = -1).
func (e *Enumerator) EnumerateRoot(speed Speed) error {
	return e.enumerateAt(-1, 0, speed)
}

// enumerateAt implements enumerate_at(parent, port, speed) from §3.2's
// lifecycle description.
func (e *Enumerator) enumerateAt(parentHub, parentPort int, speed Speed) error {
	route := routeFor(e.Table, parentHub, parentPort, speed)

	// Step 1: probe bMaxPacketSize0 with an 8-byte DEVICE descriptor read
	// at address 0.
	probe := make([]byte, 8)
	if err := e.controlTransfer(0, 64, route, GetDescriptorSetup(DescDevice, 0, 8), probe, true); err != nil {
		return err
	}

	dev0, err := ParseDeviceDescriptor(probe)
	if err != nil {
		return err
	}

	ep0 := uint16(dev0.MaxPacketSize0)
	if ep0 == 0 {
		ep0 = 8
	}

	// Step 2-3: assign and settle the new address.
	addr := e.Table.NextAddress()
	if addr == 0 {
		return ErrDeviceTableFull
	}

	if err := e.controlTransfer(0, ep0, route, SetAddressSetup(addr), nil, false); err != nil {
		return err
	}

	time.Sleep(10 * time.Millisecond)

	// Step 4: record in the table.
	idx := e.Table.Add(UsbDevice{
		Address:       addr,
		Speed:         speed,
		MaxPacketSize: ep0,
		ParentHub:     parentHub,
		ParentPort:    parentPort,
	})

	// Step 5: full descriptors.
	full := make([]byte, 18)
	if err := e.controlTransfer(addr, ep0, route, GetDescriptorSetup(DescDevice, 0, 18), full, true); err != nil {
		return err
	}

	dev, _ := ParseDeviceDescriptor(full)

	cfgHead := make([]byte, 9)
	if err := e.controlTransfer(addr, ep0, route, GetDescriptorSetup(DescConfiguration, 0, 9), cfgHead, true); err != nil {
		return err
	}

	cfg, err := ParseConfigurationDescriptor(cfgHead)
	if err != nil {
		return err
	}

	total := int(cfg.TotalLength)
	if total > 256 {
		total = 256
	}
	if total < 9 {
		total = 9
	}

	cfgFull := make([]byte, total)
	if err := e.controlTransfer(addr, ep0, route, GetDescriptorSetup(DescConfiguration, 0, uint16(total)), cfgFull, true); err != nil {
		return err
	}

	// Step 6: walk interface/endpoint descriptors.
	e.walkInterfaces(idx, addr, ep0, route, cfgFull)

	_ = dev

	// Step 7: activate the configuration.
	return e.controlTransfer(addr, ep0, route, SetConfigurationSetup(cfg.ConfigurationValue), nil, false)
}

func routeFor(table *DeviceTable, parentHub, parentPort int, speed Speed) Route {
	if parentHub < 0 {
		return Route{Split: false}
	}

	hub, ok := table.Get(parentHub)
	if !ok {
		return Route{Split: false}
	}

	return Route{
		Split:    NeedsSplit(speed),
		HubAddr:  hub.Address,
		HubPort:  uint8(parentPort),
		LowSpeed: speed == SpeedLow,
	}
}

// walkInterfaces decodes the raw configuration descriptor buffer,
// recognizing hub/HID interfaces (§4.7 step 6). Parsing failures on one
// descriptor do not abort the walk over the rest.
func (e *Enumerator) walkInterfaces(devIdx int, addr uint8, ep0 uint16, route Route, cfg []byte) {
	off := 0

	var curIface InterfaceDescriptor
	haveIface := false

	for off+2 <= len(cfg) {
		length := int(cfg[off])
		descType := cfg[off+1]

		if length == 0 || off+length > len(cfg) {
			break
		}

		body := cfg[off : off+length]

		switch descType {
		case DescInterface:
			iface, err := ParseInterfaceDescriptor(body)
			if err == nil {
				curIface = iface
				haveIface = true

				if iface.IsHub() {
					e.bindHub(devIdx, addr, ep0, route)
				}
			}
		case DescEndpoint:
			if haveIface {
				ep, err := ParseEndpointDescriptor(body)
				if err == nil && ep.IsIn() && ep.IsInterrupt() {
					e.bindHID(devIdx, curIface, ep, addr, ep0, route)
				}
			}
		}

		off += length
	}
}

// bindHID records the first boot keyboard/mouse interrupt-IN endpoint
// encountered and issues SET_PROTOCOL(Boot)/SET_IDLE(0) against it
// (§4.7 step 6). Additional HID interfaces are left enumerated but
// unsubscribed.
func (e *Enumerator) bindHID(devIdx int, iface InterfaceDescriptor, ep EndpointDescriptor, addr uint8, ep0 uint16, route Route) {
	if iface.IsBootKeyboard() && e.Keyboard == nil {
		e.controlTransfer(addr, ep0, route, SetProtocolSetup(iface.InterfaceNumber, true), nil, false)
		e.controlTransfer(addr, ep0, route, SetIdleSetup(iface.InterfaceNumber), nil, false)
		e.Keyboard = &HIDBinding{DeviceIndex: devIdx, Interface: iface.InterfaceNumber, Endpoint: ep}
	}

	if iface.IsBootMouse() && e.Mouse == nil {
		e.controlTransfer(addr, ep0, route, SetProtocolSetup(iface.InterfaceNumber, true), nil, false)
		e.controlTransfer(addr, ep0, route, SetIdleSetup(iface.InterfaceNumber), nil, false)
		e.Mouse = &HIDBinding{DeviceIndex: devIdx, Interface: iface.InterfaceNumber, Endpoint: ep}
	}
}

// bindHub marks devIdx as a hub, reads its port count, then powers and
// resets each downstream port, recursing into any that report a
// connection (§4.7).
func (e *Enumerator) bindHub(devIdx int, addr uint8, ep0 uint16, route Route) {
	hubDesc := make([]byte, 8)
	if err := e.controlTransfer(addr, ep0, route, GetHubDescriptorSetup(), hubDesc, true); err != nil {
		return
	}

	hub, err := ParseHubDescriptor(hubDesc)
	if err != nil {
		return
	}

	dev, ok := e.Table.Get(devIdx)
	if !ok {
		return
	}

	dev.IsHub = true
	dev.HubPorts = int(hub.NumPorts)
	e.Table.devices[devIdx] = dev

	for port := uint8(1); port <= hub.NumPorts; port++ {
		e.enumerateHubPort(devIdx, addr, ep0, route, port)
	}
}

func (e *Enumerator) enumerateHubPort(hubIdx int, hubAddr uint8, hubEP0 uint16, hubRoute Route, port uint8) {
	e.controlTransfer(hubAddr, hubEP0, hubRoute, SetPortFeatureSetup(FeaturePortPower, port), nil, false)
	time.Sleep(100 * time.Millisecond)

	status := make([]byte, 4)
	if err := e.controlTransfer(hubAddr, hubEP0, hubRoute, GetPortStatusSetup(port), status, true); err != nil {
		return
	}

	if PortStatus(status)&PortStatusConnection == 0 {
		return
	}

	e.controlTransfer(hubAddr, hubEP0, hubRoute, SetPortFeatureSetup(FeaturePortReset, port), nil, false)

	deadline := time.Now().Add(200 * time.Millisecond)
	for {
		if time.Now().After(deadline) {
			return
		}

		if err := e.controlTransfer(hubAddr, hubEP0, hubRoute, GetPortStatusSetup(port), status, true); err != nil {
			return
		}

		if PortStatus(status)&PortStatusReset == 0 {
			break
		}

		time.Sleep(time.Millisecond)
	}

	e.controlTransfer(hubAddr, hubEP0, hubRoute, ClearPortFeatureSetup(FeatureCPortReset, port), nil, false)
	e.controlTransfer(hubAddr, hubEP0, hubRoute, ClearPortFeatureSetup(FeatureCPortConnection, port), nil, false)
	e.controlTransfer(hubAddr, hubEP0, hubRoute, ClearPortFeatureSetup(FeatureCPortEnable, port), nil, false)

	portStatus := PortStatus(status)

	speed := SpeedFull
	switch {
	case portStatus&PortStatusLowSpeed != 0:
		speed = SpeedLow
	case portStatus&PortStatusHighSpeed != 0:
		speed = SpeedHigh
	}

	// Failures recursing into one downstream port must not abort
	// enumeration of its siblings (§4.7).
	_ = e.enumerateAt(hubIdx, int(port), speed)
}
