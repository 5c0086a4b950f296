// hal.Power adapter over the ARM64 core (§4.1)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arm64

import "github.com/kirakira-dev/kikios/hal"

// Power implements hal.Power directly over the CPU's WFI instruction and
// generic timer; both board packages share it since neither has a
// platform-specific idle or microsecond-counter primitive of its own.
type Power struct {
	CPU *CPU
}

// WFI suspends the core until the next interrupt.
func (p Power) WFI() {
	p.CPU.WaitInterrupt()
}

// GetTimeUs returns the free-running microsecond counter derived from
// the generic timer, usable before the kernel tick counter exists.
func (p Power) GetTimeUs() uint32 {
	return uint32(p.CPU.GetTime() / 1000)
}

var _ hal.Power = Power{}
