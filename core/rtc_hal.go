package core

import "time"

// RTCDriver is the abstract interface over the battery-backed real-time
// clock chip. The chip stores local civil time; conversion from network
// UTC samples happens in the time manager before SetTime is called.
// Platform code binds a concrete chip driver (DS3231 over I2C, the
// /dev/rtc device on Linux, or a fake in tests).
type RTCDriver interface {
	// ReadTime returns the current time held by the chip
	ReadTime() (time.Time, error)

	// SetTime writes the chip and clears any oscillator-stop condition
	SetTime(t time.Time) error

	// LostPower reports whether the oscillator stopped since the last set
	// (battery removed, or the chip was never set at all)
	LostPower() (bool, error)

	// Temperature returns the die temperature in milli-degrees Celsius
	// Chips without a temperature register return an error
	Temperature() (int32, error)
}

// Global singleton used by core code.
var rtcDriver RTCDriver

// SetRTCDriver is called by target-specific code to register its driver.
func SetRTCDriver(d RTCDriver) {
	rtcDriver = d
}

// MustRTC returns the configured driver or panics if missing.
func MustRTC() RTCDriver {
	if rtcDriver == nil {
		panic("RTC driver not configured")
	}
	return rtcDriver
}
