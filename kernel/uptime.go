// Uptime tracking
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"time"

	"github.com/kirakira-dev/kikios/hal"
)

// UptimeClock wraps the HAL timer to report wall-clock uptime, used by
// the WSOD renderer (§4.13) and nowhere named directly in the distilled
// spec's data model.
type UptimeClock struct {
	Timer      hal.Timer
	TickPeriod time.Duration
}

// Uptime returns the elapsed time since boot, derived from the timer's
// tick counter.
func (u UptimeClock) Uptime() time.Duration {
	if u.Timer == nil {
		return 0
	}

	return time.Duration(u.Timer.GetTicks()) * u.TickPeriod
}
