//go:build rp2040

package main

import (
	"machine"

	"goclock/core"
)

const flashHalfPeriodMillis = 500

// LEDDisplay is the display stand-in on the bare reference board:
// state changes fall through to the debug writer, and the ringing
// flash drives the onboard LED at the alarm cadence.
type LEDDisplay struct {
	core.DebugDisplay

	led        machine.Pin
	flashTimer core.Timer
	flashing   bool
	ledOn      bool
}

// NewLEDDisplay configures the onboard LED
func NewLEDDisplay() *LEDDisplay {
	d := &LEDDisplay{led: machine.LED}
	d.led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.led.Low()
	d.flashTimer.Handler = d.flashTick
	return d
}

func (d *LEDDisplay) flashTick(t *core.Timer) uint8 {
	d.ledOn = !d.ledOn
	d.led.Set(d.ledOn)
	t.WakeMillis += flashHalfPeriodMillis
	return core.TimerReschedule
}

// SetBacklightFlash starts or stops the LED flash
func (d *LEDDisplay) SetBacklightFlash(active bool) {
	if active == d.flashing {
		return
	}
	d.flashing = active

	if active {
		d.ledOn = true
		d.led.High()
		d.flashTimer.WakeMillis = core.Millis() + flashHalfPeriodMillis
		core.ScheduleTimer(&d.flashTimer)
	} else {
		core.CancelTimer(&d.flashTimer)
		d.ledOn = false
		d.led.Low()
	}
}
