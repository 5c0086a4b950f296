// DWC2 host channel register access
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

// HCCHAR fields.
const (
	hccharMPSMask    = 0x7ff
	hccharEPNumShift = 11
	hccharEPDirShift = 15
	hccharEPDirIn    = 1 << 15
	hccharLSpdDev    = 1 << 17
	hccharEPTypeShift = 18
	hccharMCShift     = 20
	hccharDevAddrShift = 22
	hccharOddFrm     = 1 << 29
	hccharChDis      = 1 << 30
	hccharChEna      = 1 << 31
)

// Endpoint types for HCCHAR.EPType.
const (
	EPTypeControl = 0
	EPTypeIso     = 1
	EPTypeBulk    = 2
	EPTypeInterrupt = 3
)

// HCSPLT fields.
const (
	hcspltPrtAddrShift = 0
	hcspltHubAddrShift = 7
	hcspltXactPosShift = 14
	hcspltCompSplt     = 1 << 16
	hcspltSpltEna      = 1 << 31
)

// HCINT / HCINTMSK bits.
const (
	HCIntXferCompl = 1 << 0
	HCIntChHltd    = 1 << 1
	HCIntAHBErr    = 1 << 2
	HCIntStall     = 1 << 3
	HCIntNak       = 1 << 4
	HCIntAck       = 1 << 5
	HCIntNyet      = 1 << 6
	HCIntXactErr   = 1 << 7
	HCIntBblErr    = 1 << 8
	HCIntFrmOvrun  = 1 << 9
	HCIntDataTglErr = 1 << 10
)

// TransferIntMask is the mask the engine installs on every stage (§4.6
// step 4).
const TransferIntMask = HCIntXferCompl | HCIntChHltd | HCIntStall | HCIntNak | HCIntAck | HCIntXactErr | HCIntBblErr | HCIntAHBErr

// HIDIntMask is the narrower mask the HID pipeline uses (§4.8).
const HIDIntMask = HCIntChHltd | HCIntNyet | HCIntXactErr | HCIntBblErr

// HCTSIZ fields.
const (
	hctsizXferSizeMask = 0x7ffff
	hctsizPktCntShift  = 19
	hctsizPIDShift     = 29
)

// PID values for HCTSIZ.PID.
const (
	PIDData0 = 0
	PIDData1 = 2
	PIDData2 = 1
	PIDSetup = 3
)

// Channel wraps one DWC2 host channel's register window.
type Channel struct {
	core *Core
	num  int

	// DataToggle tracks DATA0/DATA1 across transfers on this channel,
	// per the ordering guarantee of §5: no new control transfer begins
	// on the same channel until the previous STATUS stage completed.
	DataToggle int

	// Split state machine bookkeeping (§4.6.1).
	CompSplit  bool
	NyetCount  int
}

func (c *Core) Channel(num int) *Channel {
	return &Channel{core: c, num: num}
}

func (ch *Channel) hcchar() uint32    { return ch.core.read(regHCCHARBase + uint32(ch.num)*channelStride) }
func (ch *Channel) setHCChar(v uint32) { ch.core.write(regHCCHARBase+uint32(ch.num)*channelStride, v) }
func (ch *Channel) hcsplt() uint32    { return ch.core.read(regHCSPLTBase + uint32(ch.num)*channelStride) }
func (ch *Channel) setHCSplt(v uint32) { ch.core.write(regHCSPLTBase+uint32(ch.num)*channelStride, v) }
func (ch *Channel) HCInt() uint32     { return ch.core.read(regHCINTBase + uint32(ch.num)*channelStride) }
func (ch *Channel) ClearHCInt(v uint32) { ch.core.write(regHCINTBase+uint32(ch.num)*channelStride, v) }
func (ch *Channel) setHCIntMsk(v uint32) { ch.core.write(regHCINTMSKBase+uint32(ch.num)*channelStride, v) }
func (ch *Channel) setHCTSiz(v uint32)   { ch.core.write(regHCTSIZBase+uint32(ch.num)*channelStride, v) }
func (ch *Channel) setHCDMA(addr uint32) { ch.core.write(regHCDMABase+uint32(ch.num)*channelStride, addr) }

// Halt disables the channel if it is currently enabled and waits for
// CHHLTD, bounded as the watchdog's force-disable path does (§4.8): up
// to 100000 busy-loop iterations.
func (ch *Channel) Halt() {
	if ch.hcchar()&hccharChEna == 0 {
		return
	}

	ch.setHCChar(ch.hcchar() | hccharChDis | hccharChEna)

	for i := 0; i < 100000; i++ {
		if ch.HCInt()&HCIntChHltd != 0 {
			break
		}
	}
}

// ConfigureEndpoint programs EP number/direction, device address,
// endpoint type and max packet size into HCCHAR (§4.6 step 3).
func (ch *Channel) ConfigureEndpoint(devAddr, epNum uint8, in bool, epType int, maxPacketSize uint16, lowSpeedDevice bool) {
	v := uint32(maxPacketSize) & hccharMPSMask
	v |= uint32(epNum) << hccharEPNumShift
	v |= uint32(epType) << hccharEPTypeShift
	v |= 1 << hccharMCShift // multi-count 1, per §4.8
	v |= uint32(devAddr) << hccharDevAddrShift

	if in {
		v |= hccharEPDirIn
	}

	if lowSpeedDevice {
		v |= hccharLSpdDev
	}

	ch.setHCChar(v)
}

// ConfigureSplit programs HCSPLT for a split transaction against
// hubAddr/hubPort (§4.6.1). When enable is false the channel runs a
// direct (non-split) transfer.
func (ch *Channel) ConfigureSplit(enable bool, hubAddr, hubPort uint8, completeSplit bool) {
	if !enable {
		ch.setHCSplt(0)
		return
	}

	v := uint32(hccsplitPrtAddr(hubPort)) << hcspltPrtAddrShift
	v |= uint32(hubAddr) << hcspltHubAddrShift
	v |= hcspltSpltEna

	if completeSplit {
		v |= hcspltCompSplt
	}

	ch.setHCSplt(v)
}

func hccsplitPrtAddr(port uint8) uint8 { return port }

// SetOddFrame flips HCCHAR.ODDFRM to the parity of the current frame
// number, required by the DWC2 scheduler when re-enabling a channel
// (§4.6.1, §4.8).
func (ch *Channel) SetOddFrame(odd bool) {
	v := ch.hcchar() &^ hccharOddFrm
	if odd {
		v |= hccharOddFrm
	}

	ch.setHCChar(v)
}

// Program loads the DMA address, transfer size, packet count and PID,
// clears and sets the channel interrupt mask, then enables the channel
// (§4.6 steps 4-7).
func (ch *Channel) Program(dmaAddr uint32, xferSize int, packetCount int, pid int, intMask uint32) {
	ch.ClearHCInt(0xffffffff)
	ch.setHCIntMsk(intMask)
	ch.setHCDMA(dmaAddr)

	tsiz := uint32(xferSize) & hctsizXferSizeMask
	tsiz |= uint32(packetCount) << hctsizPktCntShift
	tsiz |= uint32(pid) << hctsizPIDShift
	ch.setHCTSiz(tsiz)

	ch.setHCChar(ch.hcchar() | hccharChEna)
}
