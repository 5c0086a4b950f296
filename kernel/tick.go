// Timer tick handler: scheduling, watchdog and heartbeat hooks
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

// Per §4.3: every 50 ticks the activity LED toggles (1 Hz Pi heartbeat);
// every 20 ticks the scheduler runs.
const (
	ledTickInterval      = 50
	scheduleTickInterval = 20
)

// Ticker drives the behavior the timer IRQ fans out to on every tick:
// USB watchdog service, audio pump, activity LED and preemptive
// scheduling. Each hook is optional so QEMU (no LED, no USB watchdog) and
// Pi (both) share this one type.
type Ticker struct {
	Scheduler *Scheduler

	// AudioPump drives the QEMU audio buffer; nil on Pi.
	AudioPump func()
	// USBWatchdog drives usb_keyboard_tick; nil on QEMU.
	USBWatchdog func()
	// ToggleLED drives the Pi activity LED; nil on QEMU.
	ToggleLED func()

	ticks uint64
}

// Tick is called from the timer IRQ handler with interrupts masked. It
// increments the tick counter and fires the scheduled callbacks, but
// never reloads the hardware countdown register itself — the platform's
// IRQ handler does that immediately upon entry, before this runs, so the
// tick condition is always cleared before any callback can re-enter
// (§4.3).
func (tk *Ticker) Tick() {
	tk.ticks++

	if tk.AudioPump != nil {
		tk.AudioPump()
	}

	if tk.USBWatchdog != nil {
		tk.USBWatchdog()
	}

	if tk.ToggleLED != nil && tk.ticks%ledTickInterval == 0 {
		tk.ToggleLED()
	}

	if tk.Scheduler != nil && tk.ticks%scheduleTickInterval == 0 {
		tk.Scheduler.ScheduleFromIRQ()
	}
}

// Ticks returns the 64-bit tick counter.
func (tk *Ticker) Ticks() uint64 {
	return tk.ticks
}
