// DWC2 top-level interrupt dispatch (§4.8)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

// ServiceInterrupt reads the core's top-level interrupt status (GINTSTS)
// and routes it to pl: a port-status-change goes to OnPortIRQ, and each
// host channel signaled in HAINT goes to Dispatch. Board wiring installs
// this as the single USB IRQ handler it registers with the platform's
// interrupt controller.
func (c *Core) ServiceInterrupt(pl *Pipeline) {
	sts := c.read(regGINTSTS)

	if sts&gintPrtIntr != 0 {
		pl.OnPortIRQ()
	}

	if sts&gintHChIntr != 0 {
		haint := c.read(regHAINT)

		for ch := 0; ch < NumChannels; ch++ {
			if haint&(1<<uint(ch)) != 0 {
				pl.Dispatch(ch)
			}
		}
	}
}
