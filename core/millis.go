package core

// The core runs against a wrapping 32-bit monotonic millisecond counter.
// Targets feed it from their hardware timer each loop pass; host tests set
// it directly. All comparisons must go through the wrap-safe helpers below.

var uptimeSource func() uint64

// Millis returns the current monotonic milliseconds since boot
func Millis() uint32 {
	return getMillis()
}

// SetMillis sets the millisecond counter (targets and tests)
func SetMillis(ms uint32) {
	setMillis(ms)
}

// MillisSince returns the milliseconds elapsed since an earlier reading
// Correct across counter wrap thanks to unsigned subtraction
func MillisSince(earlier uint32) uint32 {
	return getMillis() - earlier
}

// millisBefore reports whether a is earlier than b on the wrapping counter
func millisBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// millisReached reports whether the deadline has passed at instant now
func millisReached(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// GetUptime returns 64-bit uptime in milliseconds
// Falls back to the 32-bit counter when the target registered no 64-bit source
func GetUptime() uint64 {
	if uptimeSource != nil {
		return uptimeSource()
	}
	return uint64(getMillis())
}

// SetUptimeSource registers a target-provided 64-bit uptime reader
func SetUptimeSource(fn func() uint64) {
	uptimeSource = fn
}
