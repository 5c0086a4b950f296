// BCM2836 activity LED
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bcm2836

// ActivityLED is the Pi Zero 2 W's green activity LED.
type ActivityLED struct {
	gpio *GPIO
	on   bool
}

// NewActivityLED returns the activity LED on the given GPIO line.
func NewActivityLED(gpioNum int) (*ActivityLED, error) {
	g, err := NewGPIO(gpioNum)
	if err != nil {
		return nil, err
	}

	g.SelectFunction(FunctionOutput)

	return &ActivityLED{gpio: g}, nil
}

// Toggle flips the LED state, driven every 50 ticks (§4.3) for the 1 Hz Pi
// heartbeat.
func (l *ActivityLED) Toggle() {
	l.on = !l.on

	if l.on {
		l.gpio.High()
	} else {
		l.gpio.Low()
	}
}
