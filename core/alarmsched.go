package core

import "time"

// catchUpWindowSeconds bounds how far back the scheduler re-examines
// missed minutes. Alarms older than this are forfeited.
const catchUpWindowSeconds = 30 * 60

// AlarmScheduler decides which single alarm starts ringing. It keeps a
// cursor of the last examined instant and walks every whole minute
// between cursor and now, so an alarm still fires after the loop was
// held up or the device slept through the firing minute.
//
// Owned by the main loop, not safe for concurrent use.
type AlarmScheduler struct {
	pa          *Persist
	rc          *RingController
	lastChecked uint32 // local epoch seconds, 0 until the first pass
}

func NewAlarmScheduler(pa *Persist, rc *RingController) *AlarmScheduler {
	return &AlarmScheduler{pa: pa, rc: rc}
}

// Check walks the minutes in (lastChecked, now], clamped to the
// catch-up window, and triggers the first alarm that matches. Slot
// order breaks ties, so the lowest slot wins even when a later slot
// matched an earlier minute. The cursor advances on every call,
// including while something is already ringing.
func (as *AlarmScheduler) Check(now time.Time) {
	nowE := EpochOf(now)
	if as.rc.IsRinging() {
		as.advanceCursor(nowE)
		return
	}
	from := as.lastChecked
	if from == 0 || nowE-from > catchUpWindowSeconds {
		from = nowE - catchUpWindowSeconds
	}
	alarms := as.pa.Alarms()
	for i := range alarms {
		for m := from - from%60 + 60; m <= nowE; m += 60 {
			if alarms[i].ShouldRing(TimeOfEpoch(m)) {
				as.rc.Trigger(alarms[i].ID)
				as.advanceCursor(nowE)
				return
			}
		}
	}
	as.advanceCursor(nowE)
}

// SweepSnoozes re-rings every alarm whose snooze hold-off has expired
// and writes the cleared snooze state back. When several expire in the
// same pass only the first can actually ring; Trigger ignores the rest.
func (as *AlarmScheduler) SweepSnoozes(now time.Time) {
	alarms := as.pa.Alarms()
	for i := range alarms {
		if alarms[i].TickSnooze(now) {
			as.pa.PutAlarm(alarms[i])
			DebugPrintln("[SCHED] snooze expired for alarm " + utoa(uint32(alarms[i].ID)))
			as.rc.Trigger(alarms[i].ID)
		}
	}
}

// LastChecked returns the cursor, 0 before the first pass.
func (as *AlarmScheduler) LastChecked() uint32 { return as.lastChecked }

// the cursor never moves backwards, whatever the wall clock does
func (as *AlarmScheduler) advanceCursor(nowE uint32) {
	if nowE > as.lastChecked {
		as.lastChecked = nowE
	}
}
