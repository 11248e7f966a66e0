//go:build linux

package main

import (
	"fmt"
)

// TermDisplay renders display transitions as terminal lines. Stdout is
// in raw mode while the simulator runs, hence the explicit carriage
// returns.
type TermDisplay struct{}

func termLine(format string, args ...interface{}) {
	fmt.Printf("[clock] "+format+"\r\n", args...)
}

func (TermDisplay) SetAlarmIcon(enabled, snoozing bool) {
	switch {
	case snoozing:
		termLine("alarm icon: snoozing")
	case enabled:
		termLine("alarm icon: on")
	default:
		termLine("alarm icon: off")
	}
}

func (TermDisplay) SetRingingOverlay(active bool, progress float32) {
	if active && progress > 0 {
		termLine("RINGING  hold %d%% to dismiss", int(progress*100))
		return
	}
	if active {
		termLine("RINGING  (space taps the button, hold it to dismiss)")
		return
	}
	termLine("ringing overlay cleared")
}

func (TermDisplay) SetBacklightFlash(active bool) {
	if active {
		termLine("backlight flashing")
		return
	}
	termLine("backlight steady")
}

func (TermDisplay) ShowHomePage() {
	termLine("page: home")
}

func (TermDisplay) CyclePage() {
	termLine("page: next")
}

func (TermDisplay) SetConditions(tempMilliC, humidityMilliPct int32) {
	if humidityMilliPct < 0 {
		termLine("conditions: %.1fC", float64(tempMilliC)/1000)
		return
	}
	termLine("conditions: %.1fC  %.0f%%RH", float64(tempMilliC)/1000, float64(humidityMilliPct)/1000)
}
