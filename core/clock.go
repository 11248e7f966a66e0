package core

import (
	"errors"
	"time"
)

// ErrClockUnavailable is returned when no usable RTC was found at init
// and no time has been set since.
var ErrClockUnavailable = errors.New("clock: hardware RTC unavailable")

// ClockSource wraps the RTC driver and is the single authority for the
// current local civil time. All times it handles are wall-clock values
// carried in time.Time with the UTC location; no tzdata conversion
// happens at this layer.
//
// Owned by the main loop, not safe for concurrent use.
type ClockSource struct {
	rtc        RTCDriver
	lastGood   time.Time
	lastGoodAt uint32 // Millis() at lastGood
	valid      bool
	stale      bool
	available  bool
}

func NewClockSource(rtc RTCDriver) *ClockSource {
	return &ClockSource{rtc: rtc}
}

// Init probes the RTC. The time is invalid when the chip reports a
// power loss, when the first read fails, or when the read is outside
// the century the hardware can represent. An unreadable chip leaves
// the source unavailable and is logged once.
func (cs *ClockSource) Init() {
	// Re-probes must not inherit trust from an earlier probe
	cs.valid = false
	cs.stale = false
	t, err := cs.rtc.ReadTime()
	if err != nil {
		DebugPrintln("[CLK] rtc unreadable, running without hardware clock")
		return
	}
	cs.available = true
	cs.lastGood = t
	cs.lastGoodAt = Millis()
	lost, err := cs.rtc.LostPower()
	if err != nil || lost || t.Year() < 2001 || t.Year() > 2099 {
		DebugPrintln("[CLK] rtc time invalid, waiting for network sync")
		return
	}
	cs.valid = true
}

// Now returns the current local time. On a read failure the last good
// value is advanced by the monotonic clock and the source is marked
// stale until a read succeeds again.
func (cs *ClockSource) Now() time.Time {
	if !cs.available {
		return cs.estimate()
	}
	t, err := cs.rtc.ReadTime()
	if err != nil {
		if !cs.stale {
			DebugPrintln("[CLK] rtc read failed, serving estimated time")
		}
		cs.stale = true
		return cs.estimate()
	}
	if cs.stale {
		DebugPrintln("[CLK] rtc read recovered")
		cs.stale = false
	}
	cs.lastGood = t
	cs.lastGoodAt = Millis()
	return t
}

func (cs *ClockSource) estimate() time.Time {
	return cs.lastGood.Add(time.Duration(MillisSince(cs.lastGoodAt)) * time.Millisecond)
}

// Adjust sets the hardware clock and marks the source valid. It is the
// only way an invalid or unavailable source becomes trustworthy.
func (cs *ClockSource) Adjust(t time.Time) error {
	if cs.available {
		if err := cs.rtc.SetTime(t); err != nil {
			return err
		}
	}
	cs.lastGood = t
	cs.lastGoodAt = Millis()
	cs.valid = true
	cs.stale = false
	return nil
}

// Valid reports whether the time can be trusted for alarm decisions.
func (cs *ClockSource) Valid() bool { return cs.valid }

// Stale reports whether the last hardware read failed.
func (cs *ClockSource) Stale() bool { return cs.stale }

// Available reports whether an RTC chip responded at init.
func (cs *ClockSource) Available() bool { return cs.available }

// Temperature returns the RTC die temperature in milli-degrees C.
func (cs *ClockSource) Temperature() (int32, error) {
	if !cs.available {
		return 0, ErrClockUnavailable
	}
	return cs.rtc.Temperature()
}

// EpochOf packs a local time into the 32-bit seconds count used for
// persisted instants (snooze deadlines, ring timestamps).
func EpochOf(t time.Time) uint32 {
	return uint32(t.Unix())
}

// TimeOfEpoch is the inverse of EpochOf.
func TimeOfEpoch(e uint32) time.Time {
	return time.Unix(int64(e), 0).UTC()
}
