// DWC2 USB 2.0 host controller core (C5)
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
	"unsafe"
)

// Global DWC2 register offsets from the core's MMIO base.
const (
	regGOTGCTL    = 0x000
	regGAHBCFG    = 0x008
	regGUSBCFG    = 0x00c
	regGRSTCTL    = 0x010
	regGINTSTS    = 0x014
	regGINTMSK    = 0x018
	regGRXFSIZ    = 0x024
	regGNPTXFSIZ  = 0x028
	regHPTXFSIZ   = 0x100
	regHCFG       = 0x400
	regHFIR       = 0x404
	regHFNUM      = 0x408
	regHAINTMSK   = 0x41c
	regHPRT       = 0x440
	regHAINT      = 0x414
	regHCCHARBase = 0x500 // + 0x20*ch
	regHCSPLTBase = 0x504
	regHCINTBase  = 0x508
	regHCINTMSKBase = 0x50c
	regHCTSIZBase = 0x510
	regHCDMABase  = 0x514

	channelStride = 0x20
)

// GRSTCTL bits.
const (
	grstctlCSftRst = 1 << 0
	grstctlAHBIdle = 1 << 31
)

// GAHBCFG bits.
const (
	gahbcfgDMAEn    = 1 << 5
	gahbcfgGlblIntr = 1 << 0
)

// GUSBCFG bits.
const (
	gusbcfgULPIUTMISel = 1 << 4
	gusbcfgPHYSel      = 1 << 6
	gusbcfgForceHost   = 1 << 29
)

// GINTSTS/GINTMSK bits.
const (
	gintCurMode   = 1 << 0
	gintPrtIntr   = 1 << 24
	gintHChIntr   = 1 << 25
	gintDisconnect = 1 << 29
	gintConIDSts   = 1 << 28
)

// HCFG fields: force FS/LS only, per §4.5 — the core never handles a
// cross-speed hub split on its own.
const (
	hcfgFSLSPclkSel3060 = 1 << 0
	hcfgFSLSSupp        = 1 << 2
)

// HPRT bits. The W1C change bits (PrtConnDet, PrtEnaChDet, PrtOvrCurrChDet)
// must always be masked off before any read-modify-write of this
// register, or writing them back as 1 spuriously clears a pending
// change (§4.5).
const (
	hprtPrtConnSts  = 1 << 0
	hprtPrtEnaChDet = 1 << 3
	hprtPrtEna      = 1 << 2
	hprtPrtConnDet  = 1 << 1
	hprtPrtOvrCurrChDet = 1 << 5
	hprtPrtRst      = 1 << 8
	hprtPrtPwr      = 1 << 12
	hprtPrtSpdShift = 17
	hprtPrtSpdMask  = 0x3

	hprtW1CMask = hprtPrtConnDet | hprtPrtEnaChDet | hprtPrtOvrCurrChDet
)

var (
	ErrTimeoutDuringReset = errors.New("usb: timeout during core reset")
	ErrNotInHostMode      = errors.New("usb: core did not enter host mode")
	ErrPortNeverEnabled   = errors.New("usb: port never reached enabled state after reset")
)

// FIFO sizing, in 32-bit words, per §4.5.
const (
	fifoRxWords      = 256
	fifoNonPerTxWords = 256
	fifoNonPerTxOff   = 256
	fifoPerTxWords    = 256
	fifoPerTxOff      = 512
)

// NumChannels is the number of DWC2 host channels this core exposes.
// Channels 1 and 2 are reserved long-lived for the HID keyboard/mouse
// pollers (§4.8); the rest serve control/enumeration transfers.
const NumChannels = 8

// Core drives one DWC2 host controller instance.
type Core struct {
	base uintptr
}

// NewCore wires a Core to its MMIO base address.
func NewCore(base uintptr) *Core {
	return &Core{base: base}
}

func (c *Core) reg(offset uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(c.base + uintptr(offset)))
}

func (c *Core) read(offset uint32) uint32 {
	return *c.reg(offset)
}

func (c *Core) write(offset, val uint32) {
	*c.reg(offset) = val
}

func (c *Core) chanReg(ch int, base uint32) *uint32 {
	return c.reg(base + uint32(ch)*channelStride)
}

func pollUntil(timeout time.Duration, step time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)

	for {
		if cond() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		time.Sleep(step)
	}
}

// Reset performs the core soft reset sequence of §4.5: poll AHB idle,
// assert core soft reset, poll for self-clear, poll AHB idle again,
// settle 100ms.
func (c *Core) Reset() error {
	if !pollUntil(time.Second, time.Microsecond, func() bool {
		return c.read(regGRSTCTL)&grstctlAHBIdle != 0
	}) {
		return ErrTimeoutDuringReset
	}

	c.write(regGRSTCTL, grstctlCSftRst)

	if !pollUntil(time.Second, time.Microsecond, func() bool {
		return c.read(regGRSTCTL)&grstctlCSftRst == 0
	}) {
		return ErrTimeoutDuringReset
	}

	if !pollUntil(time.Second, time.Microsecond, func() bool {
		return c.read(regGRSTCTL)&grstctlAHBIdle != 0
	}) {
		return ErrTimeoutDuringReset
	}

	time.Sleep(100 * time.Millisecond)

	return nil
}

// ConfigureFIFOs sizes the receive and transmit FIFOs per §4.5 and
// flushes all of them.
func (c *Core) ConfigureFIFOs() {
	c.write(regGRXFSIZ, fifoRxWords)
	c.write(regGNPTXFSIZ, uint32(fifoNonPerTxOff)|uint32(fifoNonPerTxWords)<<16)
	c.write(regHPTXFSIZ, uint32(fifoPerTxOff)|uint32(fifoPerTxWords)<<16)

	// Flush all TX FIFOs (bit 10 = flush all) and the RX FIFO.
	c.write(regGRSTCTL, 1<<5|0x10<<6)
	pollUntil(time.Second, time.Microsecond, func() bool {
		return c.read(regGRSTCTL)&(1<<5) == 0
	})

	c.write(regGRSTCTL, 1<<4)
	pollUntil(time.Second, time.Microsecond, func() bool {
		return c.read(regGRSTCTL)&(1<<4) == 0
	})
}

// EnterHostMode clears PHY-select/ULPI bits (internal UTMI+ on Pi),
// forces host mode, waits 50ms, then verifies GINTSTS.CurMode (§4.5).
func (c *Core) EnterHostMode() error {
	cfg := c.read(regGUSBCFG)
	cfg &^= gusbcfgPHYSel | gusbcfgULPIUTMISel
	cfg |= gusbcfgForceHost
	c.write(regGUSBCFG, cfg)

	time.Sleep(50 * time.Millisecond)

	if c.read(regGINTSTS)&gintCurMode == 0 {
		return ErrNotInHostMode
	}

	return nil
}

// ConfigureHost programs HCFG (force FS/LS only) and HFIR (one frame at
// 60MHz), and enables AHB DMA without unmasking global interrupts yet
// (§4.5 — the handler must be installed first).
func (c *Core) ConfigureHost() {
	c.write(regHCFG, hcfgFSLSPclkSel3060|hcfgFSLSSupp)
	c.write(regHFIR, 60000)
	c.write(regGAHBCFG, gahbcfgDMAEn)
}

// EnableGlobalInterrupts unmasks port, host-channel, disconnect and
// connector-ID-change interrupts and sets GAHBCFG.GlblIntrMsk. SOF is
// deliberately left masked (§4.5: 1kHz interrupts would dominate).
func (c *Core) EnableGlobalInterrupts() {
	c.write(regGINTMSK, gintPrtIntr|gintHChIntr|gintDisconnect|gintConIDSts)
	c.write(regGAHBCFG, c.read(regGAHBCFG)|gahbcfgGlblIntr)
}

// hprtClearW1C reads HPRT with the write-1-to-clear bits masked off, so
// callers can safely read-modify-write without spuriously clearing a
// pending change (§4.5).
func (c *Core) hprtClearW1C() uint32 {
	return c.read(regHPRT) &^ hprtW1CMask
}

// PowerOnAndReset drives the port power-on and reset sequence of §4.5,
// returning the negotiated speed once HPRT.PortEnable is observed.
func (c *Core) PowerOnAndReset() (Speed, error) {
	c.write(regHPRT, c.hprtClearW1C()|hprtPrtPwr)
	time.Sleep(50 * time.Millisecond)

	c.write(regHPRT, c.hprtClearW1C()|hprtPrtPwr|hprtPrtRst)
	time.Sleep(50 * time.Millisecond)

	c.write(regHPRT, c.hprtClearW1C()|hprtPrtPwr)
	time.Sleep(20 * time.Millisecond)

	hprt := c.read(regHPRT)
	if hprt&hprtPrtEna == 0 {
		return 0, ErrPortNeverEnabled
	}

	switch (hprt >> hprtPrtSpdShift) & hprtPrtSpdMask {
	case 0:
		return SpeedHigh, nil
	case 1:
		return SpeedFull, nil
	default:
		return SpeedLow, nil
	}
}

// FrameNum returns the current frame number (the low 16 bits of HFNUM);
// callers take its low bit as the frame parity for the split state
// machine's ODDFRM selection (§4.6.1) and the HID pipeline's channel
// restart (§4.8).
func (c *Core) FrameNum() uint32 {
	return c.read(regHFNUM) & 0xffff
}

// Init runs the full C5 bring-up sequence: reset, FIFO sizing, host
// mode entry, host configuration, then port power-on/reset. Global
// interrupts are left masked — callers enable them only after
// installing the IRQ handler.
func (c *Core) Init() (Speed, error) {
	if err := c.Reset(); err != nil {
		return 0, err
	}

	c.ConfigureFIFOs()

	if err := c.EnterHostMode(); err != nil {
		return 0, err
	}

	c.ConfigureHost()

	return c.PowerOnAndReset()
}
