// Raspberry Pi Zero 2 W platform wiring
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pi assembles the hal.Platform for the Raspberry Pi Zero 2 W:
// BCM2836 two-tier interrupts, mini UART serial, mailbox framebuffer,
// SDHCI/EMMC storage and a DWC2 USB host keyboard/mouse. It follows the
// same entrypoint idiom board/qemu does — a package-level block of
// peripheral instances plus a //go:linkname'd Init hooked into the
// runtime's hardware-init callback, assembling one hal.Platform instead
// of leaving the peripherals as disconnected globals.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm64`
// as supported by the TamaGo framework for bare metal Go.
package pi

import (
	_ "unsafe"

	"github.com/kirakira-dev/kikios/arm64"
	"github.com/kirakira-dev/kikios/hal"
	"github.com/kirakira-dev/kikios/kernel"
	"github.com/kirakira-dev/kikios/soc/bcm2836"
	"github.com/kirakira-dev/kikios/soc/bcm2836/sdhci"
	"github.com/kirakira-dev/kikios/usb"
)

// Display geometry, tick cadence and the activity LED's GPIO line, per
// §4.3/§4.11.
const (
	FBWidth  = 1024
	FBHeight = 768

	TickIntervalMs = 10

	activityLEDGPIO = 47

	// dwc2Base is the BCM2836/2837 USB host controller's ARM-side MMIO
	// window: peripheral offset 0x980000 within PeripheralBase, the
	// well-known BCM283x DWC2 register base (the same offset on the
	// Pi 1/2/3/Zero family; only PeripheralBase itself changes between
	// SoC generations).
	dwc2Base = 0x980000

	// usbIRQ is the unified IRQ number the DWC2 core's legacy VideoCore
	// interrupt line is assigned: bank1 shortcut bit 9, folded into
	// Controller's linear namespace as 8+9, per §4.2.
	usbIRQ = 17
)

// Peripheral instances.
var (
	CPU = &arm64.CPU{}

	Controller = &bcm2836.Controller{}
	UART0      = &bcm2836.MiniUART{}
	Clock      = &arm64.Clock{CPU: CPU}
	FB         = &bcm2836.Framebuffer{}
	Block      = &sdhci.Device{}
	DMA        = &bcm2836.DMA{}
	Power      = arm64.Power{CPU: CPU}

	USBCore = usb.NewCore(bcm2836.PeripheralAddress(dwc2Base))
)

// LED is the green activity LED, toggled every 50 ticks (every 500 ms,
// a 1 Hz blink) from the tick handler (§4.3); nil if the GPIO line could
// not be claimed.
var LED *bcm2836.ActivityLED

// HIDTable, HIDEnumerator and HIDPipeline drive USB keyboard/mouse
// discovery and the long-lived HID ISR pollers (§4.7/§4.8), populated
// by Init.
var (
	HIDTable     = usb.NewDeviceTable()
	HIDEnumerator *usb.Enumerator
	HIDPipeline   *usb.Pipeline
)

// Input is the bound hal.Input, wired to whichever keyboard/mouse
// HIDEnumerator found (either may be nil if nothing was plugged in at
// boot).
var Input = &usb.Input{}

// Platform is the assembled HAL the kernel is handed at boot.
var Platform hal.Platform

//go:linkname nanotime1 runtime.nanotime1
func nanotime1() int64 {
	return CPU.GetTime()
}

// Init runs the lower level platform bring-up triggered early in
// runtime setup, mirroring the teacher's runtime.hwinit hook.
//
//go:linkname Init runtime.hwinit
func Init() {
	CPU.Init()
	Controller.Init()
	UART0.Init()

	if led, err := bcm2836.NewActivityLED(activityLEDGPIO); err == nil {
		LED = led
	} else {
		kernel.Logf(kernel.Warn, "pi", err.Error())
	}

	// A missing/failed SD card is not fatal here for the same reason
	// board/qemu doesn't treat a missing virtio-blk device as fatal:
	// fs/fat32.Mount surfaces its own error to whatever caller first
	// tries to use the filesystem.
	Block.CPU = CPU

	if err := Block.Init(); err != nil {
		kernel.Logf(kernel.Warn, "pi", err.Error())
	}

	initUSB()

	Platform = hal.Platform{
		Serial:      UART0,
		Framebuffer: FB,
		Interrupt:   Controller,
		Timer:       Clock,
		Block:       Block,
		Input:       Input,
		DMA:         DMA,
		Power:       Power,
	}

	Controller.RegisterHandler(bcm2836.LocalTimerIRQ, serviceTimer)
	Controller.RegisterHandler(usbIRQ, serviceUSB)
	Controller.Enable(usbIRQ)

	arm64.IRQHandler = serviceIRQ
}

// initUSB brings up the DWC2 core, enumerates whatever is attached to
// the root port and binds the first keyboard/mouse it finds to a pair
// of dedicated long-lived HID pollers (§4.7/§4.8). A failure at any
// stage (nothing plugged in, enumeration error) is logged, not fatal:
// the board still boots with no USB input.
func initUSB() {
	speed, err := USBCore.Init()
	if err != nil {
		kernel.Logf(kernel.Warn, "pi", err.Error())
		return
	}

	HIDEnumerator = &usb.Enumerator{
		Core:    USBCore,
		Table:   HIDTable,
		Channel: USBCore.Channel(0),
	}

	if err := HIDEnumerator.EnumerateRoot(speed); err != nil {
		kernel.Logf(kernel.Warn, "pi", err.Error())
	}

	HIDPipeline = &usb.Pipeline{Core: USBCore}

	if b := HIDEnumerator.Keyboard; b != nil {
		route := routeFor(HIDTable, b.DeviceIndex)
		poller := usb.NewPoller(USBCore.Channel(1), devAddr(HIDTable, b.DeviceIndex), b.Endpoint, route, CPU, usb.KeyboardRingSize)
		HIDPipeline.Keyboard = poller
		Input.Keyboard = &usb.Keyboard{Poller: poller}
	}

	if b := HIDEnumerator.Mouse; b != nil {
		route := routeFor(HIDTable, b.DeviceIndex)
		poller := usb.NewPoller(USBCore.Channel(2), devAddr(HIDTable, b.DeviceIndex), b.Endpoint, route, CPU, usb.MouseRingSize)
		HIDPipeline.Mouse = poller
		Input.Mouse = &usb.Mouse{Poller: poller, FBWidth: FBWidth, FBHeight: FBHeight}
	}

	USBCore.EnableGlobalInterrupts()
}

// routeFor builds the split-routing Route a Poller/Transfer needs from
// a device table entry; ParentHub < 0 means the device sits directly on
// the root port, which needs no split at all.
func routeFor(table *usb.DeviceTable, idx int) usb.Route {
	dev, ok := table.Get(idx)
	if !ok || dev.ParentHub < 0 {
		return usb.Route{}
	}

	hub, ok := table.Get(dev.ParentHub)
	if !ok {
		return usb.Route{}
	}

	return usb.Route{
		Split:    usb.NeedsSplit(dev.Speed),
		HubAddr:  hub.Address,
		HubPort:  uint8(dev.ParentPort),
		LowSpeed: dev.Speed == usb.SpeedLow,
	}
}

func devAddr(table *usb.DeviceTable, idx int) uint8 {
	dev, _ := table.Get(idx)
	return dev.Address
}

// serviceIRQ is installed as arm64.IRQHandler: BCM2836's Dispatch
// services both the core-local timer and every legacy VideoCore source
// (USB among them) in one unified namespace, so this just delegates.
func serviceIRQ() {
	Controller.Dispatch()
}

// serviceTimer reloads the timer countdown register and drives the
// kernel tick, mirroring board/qemu's serviceIRQ timer branch (§4.3
// step 2): Controller.Dispatch's caller must always service the timer
// itself once it reports the local timer source.
func serviceTimer() {
	Clock.SetInterval(TickIntervalMs)
	Clock.Tick()

	tickCount++
	if LED != nil && tickCount%50 == 0 {
		LED.Toggle()
	}

	if Ticker != nil {
		Ticker.Tick()
	}

	if HIDPipeline != nil {
		HIDPipeline.Tick()
	}
}

var tickCount uint64

// serviceUSB is registered for the DWC2 core's legacy VC interrupt line;
// it is a no-op before initUSB has built a Pipeline (a stray USB IRQ
// during early boot before the core is even reset shouldn't happen, but
// costs nothing to guard against).
func serviceUSB() {
	if HIDPipeline != nil {
		USBCore.ServiceInterrupt(HIDPipeline)
	}
}

// Ticker is assigned by the kernel boot sequence once the scheduler and
// heap exist; serviceTimer is a no-op on the tick side until then, so
// early timer interrupts during Init don't dereference a nil Ticker.
var Ticker interface{ Tick() }
