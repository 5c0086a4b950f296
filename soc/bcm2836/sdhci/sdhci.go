// BCM2836 SDHCI/EMMC driver
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sdhci drives the BCM2836 EMMC controller, implementing
// hal.Block (C9). Command issuing follows the shape of a uSDHC driver
// (command-index, response-type, interrupt-enable dance) adapted to the
// BCM2836's register layout and to the SD (rather than eMMC) boot
// sequence §4.9 describes.
package sdhci

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/kirakira-dev/kikios/arm64"
	"github.com/kirakira-dev/kikios/internal/reg"
	"github.com/kirakira-dev/kikios/soc/bcm2836"
)

const (
	emmcBase = 0x300000

	regBlkSizeCnt = 0x04
	regArg1       = 0x08
	regCmdTM      = 0x0c
	regResp0      = 0x10
	regResp1      = 0x14
	regResp2      = 0x18
	regResp3      = 0x1c
	regData       = 0x20
	regStatus     = 0x24
	regControl0   = 0x28
	regControl1   = 0x2c
	regInterrupt  = 0x30
	regIrptMask   = 0x34
	regIrptEn     = 0x38

	statusCmdInhibit = 0

	interruptCmdDone  = 1 << 0
	interruptDataDone = 1 << 1
	interruptErr      = 1 << 15

	cmdTMIndexShift   = 24
	cmdTMRspTypNone   = 0 << 16
	cmdTMRspTyp136    = 1 << 16
	cmdTMRspTyp48     = 2 << 16
	cmdTMRspTyp48Busy = 3 << 16
	cmdTMIsData       = 1 << 21

	// control0Dwidth4 selects 4-bit bus width on the host side (HCTL's
	// DAT3-0 width bit), set once the card accepts ACMD6's matching
	// 4-bit request.
	control0Dwidth4 = 1 << 1

	// Transfer-mode bits (CMDTM's low 16 bits, per the BCM283x
	// peripherals datasheet's EMMC register map): multi-block select,
	// block-count enable and the auto-CMD12 stop-transmission flag
	// §4.9's multi-block path needs.
	cmdTMBlockCntEn = 1 << 1
	cmdTMAutoCmd12  = 1 << 2
	cmdTMMultiBlock = 1 << 5

	// CONTROL1 bits: internal clock enable, clock-stable (read-only) and
	// SD clock output enable, plus the 8-bit divisor field and the data
	// timeout exponent field, per the same datasheet.
	control1ClkIntLen       = 1 << 0
	control1ClkEn           = 1 << 2
	control1ClkFreqShift    = 8
	control1DataTOUnitShift = 16
	control1SrstHC          = 1 << 24

	cmdTimeout  = 100 * time.Millisecond
	dataTimeout = 5 * time.Second

	sectorSize = 512

	// identFreqHz, defaultFreqHz and highSpeedFreqHz are the three clock
	// steps §4.9 walks through: 400 kHz during card identification, then
	// 25 MHz for data transfer, then 50 MHz once CMD6 confirms high speed.
	identFreqHz      = 400_000
	defaultFreqHz    = 25_000_000
	highSpeedFreqHz  = 50_000_000
	fallbackBaseHz   = 100_000_000
	emmcClockID      = 1 // VideoCore clock ID for the EMMC peripheral

	switchStatusSize = 64
)

// command indices, per §4.9's init sequence.
const (
	cmdGoIdle        = 0
	cmdSendIfCond    = 8
	cmdSendCSID      = 2
	cmdSendRCA       = 3
	cmdSelectCard    = 7
	cmdSetBlocklen   = 16
	cmdReadMulti     = 18
	cmdWriteMulti    = 25
	cmdSwitchFunc    = 6
	cmdAppCmd        = 55
	acmdSetBusWidth  = 6
	acmdSDSendOpCond = 41
)

// DMA engine constants for the EMMC controller's own channel (§4.9
// "DMA transfer path"). Channel 0 is reserved for the framebuffer
// (soc/bcm2836/dma.go); EMMC gets channel 4 and DREQ 11 so neither
// driver stalls waiting on the other's control block. There is no DMA
// driver for this peripheral anywhere in the reference corpus; this is
// the same well-known BCM283x DMA control-block layout soc/bcm2836/
// dma.go already documents, extended with the DREQ pacing fields that
// driver's memory-to-memory transfers don't need.
const (
	dmaBase        = 0x007000
	dmaChannel     = 4
	dmaChannelSize = 0x100

	dmaRegCS     = 0x00
	dmaRegConblk = 0x04

	dmaCSActive = 1 << 0
	dmaCSEnd    = 1 << 1
	dmaCSReset  = 1 << 31

	dmaTIDestInc     = 1 << 4
	dmaTIDestDREQ    = 1 << 6
	dmaTISrcInc      = 1 << 8
	dmaTISrcDREQ     = 1 << 10
	dmaTIPermapShift = 16

	dmaDREQEMMC = 11
)

// dmaControlBlock mirrors the BCM283x DMA control block layout.
type dmaControlBlock struct {
	ti       uint32
	srcAD    uint32
	destAD   uint32
	txfrLen  uint32
	stride   uint32
	nextCB   uint32
	reserved [2]uint32
}

// Device drives a single BCM2836 EMMC/SD controller instance.
type Device struct {
	// CPU performs cache maintenance around DMA transfers; when nil,
	// Read/Write fall back to the PIO path (§4.9).
	CPU *arm64.CPU

	rca         uint32
	sdhc        bool // high-capacity (block addressed) card
	base        uintptr
	baseClockHz uint32
	highSpeed   bool

	dmaCB dmaControlBlock
}

var errs = struct {
	uninitialized error
	cmdTimeout    error
	dataTimeout   error
	crc           error
}{
	uninitialized: errors.New("sdhci: uninitialized"),
	cmdTimeout:    errors.New("sdhci: command timeout"),
	dataTimeout:   errors.New("sdhci: data timeout"),
	crc:           errors.New("sdhci: crc/data error"),
}

// Init runs the §4.9 power-on, clock and card identification sequence.
func (d *Device) Init() error {
	if err := powerOn(); err != nil {
		return err
	}

	for _, num := range []int{48, 49, 50, 51, 52, 53} {
		g, err := bcm2836.NewGPIO(num)
		if err != nil {
			return err
		}

		g.SelectFunction(bcm2836.FunctionAlt3)
		g.PullUp()
	}

	d.base = emmcBase
	d.baseClockHz = getBaseClock()

	reg.Write(d.reg(regIrptEn), 0xffffffff)
	reg.Write(d.reg(regIrptMask), 0xffffffff)

	if err := d.resetController(); err != nil {
		return err
	}

	if err := d.setClock(identFreqHz); err != nil {
		return err
	}

	reg.Write(d.dmaReg(dmaRegCS), dmaCSReset)

	if err := d.cmd(cmdGoIdle, 0, cmdTMRspTypNone, 0, false); err != nil {
		return err
	}

	if err := d.cmd(cmdSendIfCond, 0x1aa, cmdTMRspTyp48, 0, false); err != nil {
		return err
	}

	if d.resp(0)&0xff != 0xaa {
		return fmt.Errorf("sdhci: interface condition echo mismatch")
	}

	deadline := time.Now().Add(time.Second)

	for {
		if err := d.cmd(cmdAppCmd, 0, cmdTMRspTyp48, 0, false); err != nil {
			return err
		}

		arg := uint32(0x40ff8000) // HCS | voltage window

		if err := d.cmd(acmdSDSendOpCond, arg, cmdTMRspTyp48, 0, false); err != nil {
			return err
		}

		ocr := d.resp(0)

		if ocr&0x80000000 != 0 {
			d.sdhc = ocr&0x40000000 != 0
			break
		}

		if time.Now().After(deadline) {
			return errs.cmdTimeout
		}
	}

	if err := d.cmd(cmdSendCSID, 0, cmdTMRspTyp136, 0, false); err != nil {
		return err
	}

	if err := d.cmd(cmdSendRCA, 0, cmdTMRspTyp48, 0, false); err != nil {
		return err
	}

	d.rca = d.resp(0) & 0xffff0000

	if err := d.cmd(cmdSelectCard, d.rca, cmdTMRspTyp48Busy, 0, false); err != nil {
		return err
	}

	if !d.sdhc {
		if err := d.cmd(cmdSetBlocklen, sectorSize, cmdTMRspTyp48, 0, false); err != nil {
			return err
		}
	}

	if err := d.cmd(cmdAppCmd, d.rca, cmdTMRspTyp48, 0, false); err == nil {
		if err := d.cmd(acmdSetBusWidth, 2, cmdTMRspTyp48, 0, false); err == nil {
			reg.Write(d.reg(regControl0), reg.Read(d.reg(regControl0))|control0Dwidth4)
		}
	}

	// Raise the clock to default speed, then try the high-speed switch
	// and step up to 50 MHz on success (§4.9). A card that doesn't
	// support the switch just keeps running at 25 MHz.
	if err := d.setClock(defaultFreqHz); err != nil {
		return err
	}

	if d.switchHighSpeed() {
		d.highSpeed = true

		if err := d.setClock(highSpeedFreqHz); err != nil {
			return err
		}
	}

	return nil
}

// getBaseClock queries the VideoCore for the EMMC peripheral's base
// clock via the mailbox GET_CLOCK_RATE property tag, falling back to
// the well-known 100 MHz default when the query fails (§4.9).
func getBaseClock() uint32 {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], emmcClockID)

	msg := &bcm2836.Message{Tags: []bcm2836.Tag{{ID: bcm2836.TagGetClockRate, Buffer: buf}}}

	if err := bcm2836.Call(bcm2836.ChPropertyTagsToVC, msg); err != nil {
		return fallbackBaseHz
	}

	tag := msg.Tag(bcm2836.TagGetClockRate)
	if tag == nil || len(tag.Buffer) < 8 {
		return fallbackBaseHz
	}

	rate := binary.LittleEndian.Uint32(tag.Buffer[4:8])
	if rate == 0 {
		return fallbackBaseHz
	}

	return rate
}

// resetController issues the controller soft reset and waits for it to
// self-clear (§4.9).
func (d *Device) resetController() error {
	reg.Write(d.reg(regControl1), control1SrstHC)

	if !reg.WaitFor(cmdTimeout, d.reg(regControl1), 24, 1, 0) {
		return errs.cmdTimeout
	}

	return nil
}

// setClock disables the SD clock, reprograms the divisor for targetHz
// against the queried base clock, waits for the internal clock to
// stabilize, then re-enables the SD clock output (§4.9).
func (d *Device) setClock(targetHz uint32) error {
	ctrl1 := reg.Read(d.reg(regControl1))
	reg.Write(d.reg(regControl1), ctrl1&^uint32(control1ClkEn))

	div := clockDivisor(d.baseClockHz, targetHz)

	ctrl1 = control1ClkIntLen | (div&0xff)<<control1ClkFreqShift | (0xe << control1DataTOUnitShift)
	reg.Write(d.reg(regControl1), ctrl1)

	if !reg.WaitFor(cmdTimeout, d.reg(regControl1), 1, 1, 1) {
		return errs.cmdTimeout
	}

	reg.Write(d.reg(regControl1), ctrl1|control1ClkEn)

	return nil
}

// clockDivisor implements the standard SDHCI divided-clock-mode search:
// the smallest power-of-two divisor that keeps base/div at or below
// target, halved because the EMMC divisor field counts in steps of two.
func clockDivisor(baseHz, targetHz uint32) uint32 {
	if targetHz == 0 || targetHz >= baseHz {
		return 0
	}

	div := uint32(1)
	for baseHz/div > targetHz && div < 0x100 {
		div *= 2
	}

	return div / 2
}

// switchHighSpeed issues CMD6 in "set" mode for function group 1 (access
// mode), requesting high speed, and inspects the 64-byte switch status
// the card returns to see whether group 1 actually landed on high speed
// (§4.9).
func (d *Device) switchHighSpeed() bool {
	status := make([]byte, switchStatusSize)

	reg.Write(d.reg(regBlkSizeCnt), (1<<16)|switchStatusSize)

	if err := d.cmd(cmdSwitchFunc, 0x80fffff1, cmdTMRspTyp48, 0, true); err != nil {
		return false
	}

	if !reg.WaitFor(dataTimeout, d.reg(regInterrupt), 5, 1, 1) {
		return false
	}

	for w := 0; w < switchStatusSize/4; w++ {
		v := reg.Read(d.reg(regData))
		status[w*4+0] = byte(v)
		status[w*4+1] = byte(v >> 8)
		status[w*4+2] = byte(v >> 16)
		status[w*4+3] = byte(v >> 24)
	}

	reg.Write(d.reg(regInterrupt), interruptDataDone)

	// Byte 16 holds the group-1 function the card accepted; 1 means
	// high speed.
	return status[16]&0xf == 1
}

func (d *Device) reg(offset uint32) uintptr {
	return bcm2836.PeripheralAddress(emmcBase + offset)
}

func (d *Device) dmaReg(offset uint32) uintptr {
	return bcm2836.PeripheralAddress(dmaBase + dmaChannel*dmaChannelSize + offset)
}

func (d *Device) resp(i int) uint32 {
	switch i {
	case 0:
		return reg.Read(d.reg(regResp0))
	case 1:
		return reg.Read(d.reg(regResp1))
	case 2:
		return reg.Read(d.reg(regResp2))
	default:
		return reg.Read(d.reg(regResp3))
	}
}

// cmd issues one command, waiting on CMD_INHIBIT first and CMD_DONE/ERR
// after. tmExtra carries any additional transfer-mode bits (block-count
// enable, multi-block, auto-CMD12) a data command needs beyond the
// baseline isData flag.
func (d *Device) cmd(index uint32, arg uint32, rspType uint32, tmExtra uint32, isData bool) error {
	if !reg.WaitFor(cmdTimeout, d.reg(regStatus), statusCmdInhibit, 1, 0) {
		return errs.cmdTimeout
	}

	reg.Write(d.reg(regInterrupt), 0xffffffff)
	reg.Write(d.reg(regArg1), arg)

	cmdtm := (index << cmdTMIndexShift) | rspType | tmExtra

	if isData {
		cmdtm |= cmdTMIsData
	}

	reg.Write(d.reg(regCmdTM), cmdtm)

	deadline := time.Now().Add(cmdTimeout)

	for reg.Read(d.reg(regInterrupt))&(interruptCmdDone|interruptErr) == 0 {
		if time.Now().After(deadline) {
			return errs.cmdTimeout
		}
	}

	status := reg.Read(d.reg(regInterrupt))

	if status&interruptErr != 0 {
		reg.Write(d.reg(regInterrupt), status)
		return errs.crc
	}

	reg.Write(d.reg(regInterrupt), interruptCmdDone)

	return nil
}

func (d *Device) blockArg(sector uint64) uint32 {
	if d.sdhc {
		return uint32(sector)
	}

	return uint32(sector * sectorSize)
}

// Read reads count sectors starting at sector, via DMA channel 4 when
// CPU is wired (§4.9's DMA path) or via PIO otherwise, both issuing a
// single CMD18 multi-block transfer with auto-CMD12 rather than looping
// CMD17 per sector.
func (d *Device) Read(sector uint64, buf []byte, count int) error {
	if d.base == 0 {
		return errs.uninitialized
	}

	if len(buf) < count*sectorSize {
		return fmt.Errorf("sdhci: buffer too small")
	}

	if d.CPU != nil {
		return d.readDMA(sector, buf, count)
	}

	return d.readPIO(sector, buf, count)
}

func (d *Device) readPIO(sector uint64, buf []byte, count int) error {
	reg.Write(d.reg(regBlkSizeCnt), (uint32(count)<<16)|sectorSize)

	if err := d.cmd(cmdReadMulti, d.blockArg(sector), cmdTMRspTyp48, multiBlockTM(count), true); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		if !reg.WaitFor(dataTimeout, d.reg(regInterrupt), 5, 1, 1) {
			return errs.dataTimeout
		}

		off := i * sectorSize

		for w := 0; w < sectorSize/4; w++ {
			v := reg.Read(d.reg(regData))
			buf[off+w*4+0] = byte(v)
			buf[off+w*4+1] = byte(v >> 8)
			buf[off+w*4+2] = byte(v >> 16)
			buf[off+w*4+3] = byte(v >> 24)
		}

		reg.Write(d.reg(regInterrupt), 1<<5)
	}

	if !reg.WaitFor(dataTimeout, d.reg(regInterrupt), 1, 1, 1) {
		return errs.dataTimeout
	}

	reg.Write(d.reg(regInterrupt), interruptDataDone)

	return nil
}

// readDMA paces a CMD18 multi-block read off DREQ 11 on DMA channel 4
// instead of polling the data FIFO word by word, cleaning/invalidating
// buf's cache lines before and after the transfer since the EMMC
// controller writes to it without CPU involvement (§4.9).
func (d *Device) readDMA(sector uint64, buf []byte, count int) error {
	d.CPU.CleanInvalidate(uintptr(unsafe.Pointer(&buf[0])), len(buf))

	reg.Write(d.reg(regBlkSizeCnt), (uint32(count)<<16)|sectorSize)

	d.dmaCB = dmaControlBlock{
		ti:      dmaTIDestInc | dmaTISrcDREQ | (dmaDREQEMMC << dmaTIPermapShift),
		srcAD:   uint32(d.reg(regData)),
		destAD:  uint32(uintptr(unsafe.Pointer(&buf[0]))),
		txfrLen: uint32(count * sectorSize),
	}

	reg.Write(d.dmaReg(dmaRegConblk), uint32(uintptr(unsafe.Pointer(&d.dmaCB))))
	reg.Write(d.dmaReg(dmaRegCS), dmaCSActive)

	if err := d.cmd(cmdReadMulti, d.blockArg(sector), cmdTMRspTyp48, multiBlockTM(count), true); err != nil {
		return err
	}

	deadline := time.Now().Add(dataTimeout)
	for reg.Get(d.dmaReg(dmaRegCS), 1, 1) == 0 {
		if time.Now().After(deadline) {
			return errs.dataTimeout
		}
	}

	reg.Write(d.dmaReg(dmaRegCS), dmaCSEnd)

	if !reg.WaitFor(dataTimeout, d.reg(regInterrupt), 1, 1, 1) {
		return errs.dataTimeout
	}

	reg.Write(d.reg(regInterrupt), interruptDataDone)

	d.CPU.CleanInvalidate(uintptr(unsafe.Pointer(&buf[0])), len(buf))

	return nil
}

// Write writes count sectors from buf starting at sector, via DMA
// channel 4 when CPU is wired or via PIO otherwise, issuing a single
// CMD25 multi-block transfer with auto-CMD12.
func (d *Device) Write(sector uint64, buf []byte, count int) error {
	if d.base == 0 {
		return errs.uninitialized
	}

	if len(buf) < count*sectorSize {
		return fmt.Errorf("sdhci: buffer too small")
	}

	if d.CPU != nil {
		return d.writeDMA(sector, buf, count)
	}

	return d.writePIO(sector, buf, count)
}

func (d *Device) writePIO(sector uint64, buf []byte, count int) error {
	reg.Write(d.reg(regBlkSizeCnt), (uint32(count)<<16)|sectorSize)

	if err := d.cmd(cmdWriteMulti, d.blockArg(sector), cmdTMRspTyp48, multiBlockTM(count), true); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		if !reg.WaitFor(dataTimeout, d.reg(regInterrupt), 4, 1, 1) {
			return errs.dataTimeout
		}

		off := i * sectorSize

		for w := 0; w < sectorSize/4; w++ {
			v := uint32(buf[off+w*4+0]) | uint32(buf[off+w*4+1])<<8 |
				uint32(buf[off+w*4+2])<<16 | uint32(buf[off+w*4+3])<<24
			reg.Write(d.reg(regData), v)
		}

		reg.Write(d.reg(regInterrupt), 1<<4)
	}

	if !reg.WaitFor(dataTimeout, d.reg(regInterrupt), 1, 1, 1) {
		return errs.dataTimeout
	}

	reg.Write(d.reg(regInterrupt), interruptDataDone)

	return nil
}

func (d *Device) writeDMA(sector uint64, buf []byte, count int) error {
	d.CPU.Clean(uintptr(unsafe.Pointer(&buf[0])), len(buf))

	reg.Write(d.reg(regBlkSizeCnt), (uint32(count)<<16)|sectorSize)

	d.dmaCB = dmaControlBlock{
		ti:      dmaTISrcInc | dmaTIDestDREQ | (dmaDREQEMMC << dmaTIPermapShift),
		srcAD:   uint32(uintptr(unsafe.Pointer(&buf[0]))),
		destAD:  uint32(d.reg(regData)),
		txfrLen: uint32(count * sectorSize),
	}

	reg.Write(d.dmaReg(dmaRegConblk), uint32(uintptr(unsafe.Pointer(&d.dmaCB))))
	reg.Write(d.dmaReg(dmaRegCS), dmaCSActive)

	if err := d.cmd(cmdWriteMulti, d.blockArg(sector), cmdTMRspTyp48, multiBlockTM(count), true); err != nil {
		return err
	}

	deadline := time.Now().Add(dataTimeout)
	for reg.Get(d.dmaReg(dmaRegCS), 1, 1) == 0 {
		if time.Now().After(deadline) {
			return errs.dataTimeout
		}
	}

	reg.Write(d.dmaReg(dmaRegCS), dmaCSEnd)

	if !reg.WaitFor(dataTimeout, d.reg(regInterrupt), 1, 1, 1) {
		return errs.dataTimeout
	}

	reg.Write(d.reg(regInterrupt), interruptDataDone)

	return nil
}

// multiBlockTM returns the transfer-mode bits a multi-block transfer
// needs beyond the single-block baseline: block-count enable always,
// plus the multi-block select and auto-CMD12 stop when count > 1.
func multiBlockTM(count int) uint32 {
	tm := uint32(cmdTMBlockCntEn)

	if count > 1 {
		tm |= cmdTMMultiBlock | cmdTMAutoCmd12
	}

	return tm
}

func powerOn() error {
	buf := make([]byte, 8)
	buf[0] = bcm2836.DeviceSD
	buf[4] = 3 // on + wait

	msg := &bcm2836.Message{Tags: []bcm2836.Tag{{ID: bcm2836.TagSetPowerState, Buffer: buf}}}

	return bcm2836.Call(bcm2836.ChPropertyTagsToVC, msg)
}
