//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"goclock/core"
)

// RP2040 timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // Raw timer high word
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// InitClock registers the hardware timer as the core's uptime source.
// The RP2040 has a 64-bit microsecond timer at 1MHz.
func InitClock() {
	core.SetUptimeSource(func() uint64 {
		return GetHardwareUptime() / 1000
	})
}

// GetHardwareUptime reads the full 64-bit RP2040 hardware timer
func GetHardwareUptime() uint64 {
	// Read both high and low parts
	// Must read high first, then low, then high again to detect rollover
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()

		// If high didn't change, we got a consistent reading
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
		// Otherwise retry (rollover happened during read)
	}
}

// UpdateSystemTime feeds the core's wrapping millisecond counter from
// the hardware timer. Called once per main loop pass.
func UpdateSystemTime() {
	core.SetMillis(uint32(GetHardwareUptime() / 1000))
}
