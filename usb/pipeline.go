// HID pipeline wiring and port-change recovery (§4.8)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import "time"

// Pipeline bundles the two dedicated HID pollers (channel 1 keyboard,
// channel 2 mouse) and tracks the observability counters §4.8 asks for.
type Pipeline struct {
	Core     *Core
	Keyboard *Poller
	Mouse    *Poller

	IRQCount      uint64
	ChannelIRQ    [NumChannels]uint64
	PortIRQCount  uint64

	portResetPending bool
	portResetTick    uint64
	tick             uint64
}

// Dispatch routes one host-channel interrupt to the right poller. ch is
// the channel number read from HAINT.
func (pl *Pipeline) Dispatch(ch int) {
	pl.IRQCount++

	if ch >= 0 && ch < NumChannels {
		pl.ChannelIRQ[ch]++
	}

	switch {
	case pl.Keyboard != nil && pl.Keyboard.Channel.num == ch:
		pl.Keyboard.HandleIRQ()
	case pl.Mouse != nil && pl.Mouse.Channel.num == ch:
		pl.Mouse.HandleIRQ()
	}
}

// Tick drives both pollers' watchdogs and the port-change recovery
// timer, at the 10ms cadence §4.8 specifies.
func (pl *Pipeline) Tick() {
	pl.tick++

	if pl.Keyboard != nil {
		pl.Keyboard.Tick()
	}

	if pl.Mouse != nil {
		pl.Mouse.Tick()
	}

	if pl.portResetPending && pl.tick-pl.portResetTick >= 5 {
		pl.completePortReset()
	}
}

// OnPortIRQ handles a port-status-change interrupt (§4.8 "Port change
// recovery"): if the port went disabled while still connected, it
// re-asserts reset and lets the tick handler complete it 50ms later.
func (pl *Pipeline) OnPortIRQ() {
	pl.PortIRQCount++

	hprt := pl.Core.read(regHPRT)

	stillConnected := hprt&hprtPrtConnSts != 0
	wentDisabled := hprt&hprtPrtEnaChDet != 0 && hprt&hprtPrtEna == 0

	pl.Core.write(regHPRT, pl.Core.hprtClearW1C()|hprtPrtEnaChDet|hprtPrtConnDet)

	if stillConnected && wentDisabled {
		pl.Core.write(regHPRT, pl.Core.hprtClearW1C()|hprtPrtPwr|hprtPrtRst)
		pl.portResetPending = true
		pl.portResetTick = pl.tick
	}
}

// completePortReset deasserts PRTRST, waits (via the caller's own tick
// cadence, already 50ms elapsed) for PRTENA, and restarts both HID
// pipelines, bounded at 100ms total per §4.8.
func (pl *Pipeline) completePortReset() {
	pl.Core.write(regHPRT, pl.Core.hprtClearW1C()|hprtPrtPwr)

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pl.Core.read(regHPRT)&hprtPrtEna != 0 {
			break
		}

		time.Sleep(time.Millisecond)
	}

	pl.portResetPending = false

	if pl.Keyboard != nil {
		pl.Keyboard.Start()
	}

	if pl.Mouse != nil {
		pl.Mouse.Start()
	}
}
