package core

import "time"

// Weekday bits for Alarm.Days, Sunday first to match time.Weekday and
// the RTC's day-of-week register.
const (
	DaySunday uint8 = 1 << iota
	DayMonday
	DayTuesday
	DayWednesday
	DayThursday
	DayFriday
	DaySaturday
)

const (
	// MaxAlarms is the number of persisted alarm slots.
	MaxAlarms = 8

	// DaysEveryDay is the full repeat mask.
	DaysEveryDay uint8 = 0x7F

	// NoDismissDay marks an alarm that has never been dismissed.
	NoDismissDay uint8 = 0xFF

	// UnassignedAlarmID marks a staged alarm that has not been given a
	// slot ID yet. Persisted alarms always carry their slot index.
	UnassignedAlarmID uint8 = 0xFF
)

var dayLetters = [7]byte{'S', 'M', 'T', 'W', 'T', 'F', 'S'}

// Alarm is one alarm record. All methods are pure state transitions;
// persistence and buzzer control live elsewhere. Days==0 means a
// one-shot alarm that disables itself on dismiss.
type Alarm struct {
	ID               uint8
	Enabled          bool
	Hour             uint8
	Minute           uint8
	Days             uint8
	Snoozed          bool
	SnoozeUntil      uint32 // local epoch seconds, valid iff Snoozed
	LastDismissedDay uint8  // weekday index, NoDismissDay if never
}

// NewAlarm returns a disabled 08:00 one-shot, the defaults a fresh
// slot is created with.
func NewAlarm() Alarm {
	return Alarm{
		ID:               UnassignedAlarmID,
		Hour:             8,
		LastDismissedDay: NoDismissDay,
	}
}

// Repeats reports whether the alarm fires on a weekday schedule.
func (a *Alarm) Repeats() bool { return a.Days != 0 }

// DayEnabled reports whether the repeat mask covers the given weekday.
func (a *Alarm) DayEnabled(d time.Weekday) bool {
	return a.Days&(1<<uint8(d)) != 0
}

// ShouldRing reports whether the alarm fires at the given minute.
// Dismissal suppression applies to repeating alarms only and compares
// the weekday index alone; a one-shot relies on Enabled going false.
func (a *Alarm) ShouldRing(now time.Time) bool {
	if !a.Enabled || a.Snoozed {
		return false
	}
	if uint8(now.Hour()) != a.Hour || uint8(now.Minute()) != a.Minute {
		return false
	}
	if a.Days == 0 {
		return true
	}
	wd := uint8(now.Weekday())
	if a.Days&(1<<wd) == 0 {
		return false
	}
	return a.LastDismissedDay != wd
}

// Snooze puts the alarm into a hold-off ending minutes from now.
func (a *Alarm) Snooze(now time.Time, minutes uint8) {
	a.Snoozed = true
	a.SnoozeUntil = EpochOf(now) + uint32(minutes)*60
}

// Dismiss ends the current ringing or snooze cycle. A one-shot is
// disabled outright; a repeating alarm records the weekday so it stays
// quiet for the rest of that weekday.
func (a *Alarm) Dismiss(now time.Time) {
	a.Snoozed = false
	a.SnoozeUntil = 0
	if a.Days == 0 {
		a.Enabled = false
		return
	}
	a.LastDismissedDay = uint8(now.Weekday())
}

// TickSnooze clears an expired snooze and reports true when the alarm
// should re-ring. Expiry is strictly after SnoozeUntil.
func (a *Alarm) TickSnooze(now time.Time) bool {
	if !a.Snoozed || EpochOf(now) <= a.SnoozeUntil {
		return false
	}
	a.Snoozed = false
	a.SnoozeUntil = 0
	return true
}

// SetEnabled flips the master switch. Disabling always clears any
// snooze hold-off.
func (a *Alarm) SetEnabled(on bool) {
	a.Enabled = on
	if !on {
		a.Snoozed = false
		a.SnoozeUntil = 0
	}
}

// SnoozeRemaining returns whole seconds until the snooze expires, or 0
// when the alarm is not snoozed or the deadline has passed.
func (a *Alarm) SnoozeRemaining(now time.Time) uint32 {
	if !a.Snoozed {
		return 0
	}
	e := EpochOf(now)
	if e >= a.SnoozeUntil {
		return 0
	}
	return a.SnoozeUntil - e
}

// TimeString formats the firing time as HH:MM (always 24-hour; the
// display applies the user's format preference itself).
func (a *Alarm) TimeString() string {
	return pad2(int(a.Hour)) + ":" + pad2(int(a.Minute))
}

// DaysString renders the repeat mask as seven day letters with dashes
// for unset days, or "once" for a one-shot.
func (a *Alarm) DaysString() string {
	if a.Days == 0 {
		return "once"
	}
	var b [7]byte
	for i := 0; i < 7; i++ {
		if a.Days&(1<<uint8(i)) != 0 {
			b[i] = dayLetters[i]
		} else {
			b[i] = '-'
		}
	}
	return string(b[:])
}
