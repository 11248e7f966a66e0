//go:build linux

package main

import (
	"fmt"
	"log"
)

// LogDisplay reports display state transitions on the process log.
// The SBC build is headless; these lines are what an operator tails.
type LogDisplay struct{}

func (LogDisplay) SetAlarmIcon(enabled, snoozing bool) {
	log.Printf("display: alarm icon enabled=%v snoozing=%v", enabled, snoozing)
}

func (LogDisplay) SetRingingOverlay(active bool, progress float32) {
	if active && progress > 0 {
		log.Printf("display: ringing overlay, dismiss hold %d%%", int(progress*100))
		return
	}
	log.Printf("display: ringing overlay active=%v", active)
}

func (LogDisplay) SetBacklightFlash(active bool) {
	log.Printf("display: backlight flash active=%v", active)
}

func (LogDisplay) ShowHomePage() {
	log.Print("display: home page")
}

func (LogDisplay) CyclePage() {
	log.Print("display: next page")
}

func (LogDisplay) SetConditions(tempMilliC, humidityMilliPct int32) {
	if humidityMilliPct < 0 {
		log.Printf("display: conditions %s", formatMilli(tempMilliC, "C"))
		return
	}
	log.Printf("display: conditions %s %s", formatMilli(tempMilliC, "C"), formatMilli(humidityMilliPct, "%RH"))
}

func formatMilli(v int32, unit string) string {
	return fmt.Sprintf("%d.%01d%s", v/1000, abs32(v%1000)/100, unit)
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
