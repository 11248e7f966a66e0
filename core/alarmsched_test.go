package core

import (
	"testing"
	"time"
)

func newSchedRig(t *testing.T) (*testRig, *Persist, *RingController, *AlarmScheduler) {
	t.Helper()
	rig := newTestRig(t)
	pa := NewPersist(rig.kv)
	if err := pa.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cs := NewClockSource(MustRTC())
	cs.Init()
	rc := NewRingController(cs, pa, &recorderDisplay{log: rig.log}, testBuzzerPin)
	rc.Init()
	return rig, pa, rc, NewAlarmScheduler(pa, rc)
}

func putAlarmAt(t *testing.T, pa *Persist, hour, minute uint8, days uint8) uint8 {
	t.Helper()
	a := NewAlarm()
	a.Enabled = true
	a.Hour = hour
	a.Minute = minute
	a.Days = days
	id, ok := pa.PutAlarm(a)
	if !ok {
		t.Fatal("PutAlarm failed")
	}
	return id
}

func TestSchedulerFiresOnTheMinute(t *testing.T) {
	_, pa, rc, as := newSchedRig(t)
	id := putAlarmAt(t, pa, 7, 0, DaysEveryDay)

	as.Check(rigTime)
	if !rc.IsRinging() {
		t.Fatal("alarm at the current minute must fire")
	}
	if rc.ActiveAlarmID() != int8(id) {
		t.Errorf("active = %d, want %d", rc.ActiveAlarmID(), id)
	}
	if as.LastChecked() != EpochOf(rigTime) {
		t.Errorf("cursor = %d, want %d", as.LastChecked(), EpochOf(rigTime))
	}
}

func TestSchedulerMinuteIsCheckedOnce(t *testing.T) {
	_, pa, rc, as := newSchedRig(t)
	putAlarmAt(t, pa, 7, 0, DaysEveryDay)

	as.Check(rigTime)
	rc.Stop()

	// Later in the same minute: that minute is behind the cursor now
	as.Check(rigTime.Add(30 * time.Second))
	if rc.IsRinging() {
		t.Error("a dismissed minute must not re-fire")
	}
}

func TestSchedulerCatchesUpMissedMinutes(t *testing.T) {
	_, pa, rc, as := newSchedRig(t)
	id := putAlarmAt(t, pa, 6, 45, DaysEveryDay)

	// First pass at 07:00; the 06:45 firing minute was never examined
	// but is inside the catch-up window
	as.Check(rigTime)
	if !rc.IsRinging() || rc.ActiveAlarmID() != int8(id) {
		t.Error("missed minute inside the window must still fire")
	}
}

func TestSchedulerForfeitsBeyondWindow(t *testing.T) {
	_, pa, rc, as := newSchedRig(t)
	putAlarmAt(t, pa, 6, 29, DaysEveryDay)

	// 06:29 is 31 minutes before 07:00, past the catch-up clamp
	as.Check(rigTime)
	if rc.IsRinging() {
		t.Error("alarm older than the window must be forfeited")
	}
}

func TestSchedulerSlotOrderBreaksTies(t *testing.T) {
	_, pa, rc, as := newSchedRig(t)
	first := putAlarmAt(t, pa, 7, 0, DaysEveryDay)
	putAlarmAt(t, pa, 6, 55, DaysEveryDay)

	// Slot 1 matched an earlier minute, but slot 0 wins the pass
	as.Check(rigTime)
	if rc.ActiveAlarmID() != int8(first) {
		t.Errorf("active = %d, want slot 0 (%d)", rc.ActiveAlarmID(), first)
	}
}

func TestSchedulerCursorAdvancesWhileRinging(t *testing.T) {
	_, pa, rc, as := newSchedRig(t)
	putAlarmAt(t, pa, 7, 1, DaysEveryDay)

	rc.Trigger(42)
	as.Check(rigTime.Add(90 * time.Second)) // 07:01:30, mid-ring
	if as.LastChecked() != EpochOf(rigTime)+90 {
		t.Fatal("cursor must advance during a ring")
	}

	// The 07:01 minute passed while ringing; it is not replayed
	rc.Stop()
	as.Check(rigTime.Add(105 * time.Second))
	if rc.IsRinging() {
		t.Error("minute consumed during a ring must not fire later")
	}
}

func TestSchedulerCursorNeverMovesBack(t *testing.T) {
	_, _, _, as := newSchedRig(t)

	as.Check(rigTime)
	was := as.LastChecked()

	// Clock stepped backwards by a sync
	as.Check(rigTime.Add(-10 * time.Minute))
	if as.LastChecked() != was {
		t.Errorf("cursor moved backwards: %d -> %d", was, as.LastChecked())
	}
}

func TestSchedulerRespectsAlarmGates(t *testing.T) {
	cases := []struct {
		name string
		prep func(a *Alarm)
	}{
		{"disabled", func(a *Alarm) { a.Enabled = false }},
		{"wrong weekday", func(a *Alarm) { a.Days = DayTuesday }},
		{"dismissed today", func(a *Alarm) { a.LastDismissedDay = uint8(rigTime.Weekday()) }},
		{"snoozed", func(a *Alarm) { a.Snoozed = true; a.SnoozeUntil = EpochOf(rigTime) + 300 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, pa, rc, as := newSchedRig(t)
			a := NewAlarm()
			a.Enabled = true
			a.Hour = 7
			a.Minute = 0
			a.Days = DaysEveryDay
			c.prep(&a)
			if _, ok := pa.PutAlarm(a); !ok {
				t.Fatal("PutAlarm failed")
			}

			as.Check(rigTime)
			if rc.IsRinging() {
				t.Errorf("%s alarm fired", c.name)
			}
		})
	}
}

func TestSweepSnoozesStrictExpiry(t *testing.T) {
	_, pa, rc, as := newSchedRig(t)
	a := NewAlarm()
	a.Enabled = true
	a.Days = DaysEveryDay
	a.Snoozed = true
	a.SnoozeUntil = EpochOf(rigTime)
	id, _ := pa.PutAlarm(a)

	// At the deadline itself nothing happens yet
	as.SweepSnoozes(rigTime)
	if rc.IsRinging() {
		t.Fatal("snooze must expire strictly after the deadline")
	}
	got, _ := pa.AlarmByID(id)
	if !got.Snoozed {
		t.Fatal("snooze cleared early")
	}

	// One second past: the alarm re-rings and the cleared state is
	// written back
	as.SweepSnoozes(rigTime.Add(1 * time.Second))
	if !rc.IsRinging() || rc.ActiveAlarmID() != int8(id) {
		t.Fatal("expired snooze did not re-ring")
	}
	got, _ = pa.AlarmByID(id)
	if got.Snoozed || got.SnoozeUntil != 0 {
		t.Error("cleared snooze not persisted")
	}
}

func TestSweepSnoozesSerializesRings(t *testing.T) {
	_, pa, rc, as := newSchedRig(t)
	mk := func() uint8 {
		a := NewAlarm()
		a.Enabled = true
		a.Days = DaysEveryDay
		a.Snoozed = true
		a.SnoozeUntil = EpochOf(rigTime)
		id, _ := pa.PutAlarm(a)
		return id
	}
	one := mk()
	two := mk()

	as.SweepSnoozes(rigTime.Add(1 * time.Second))
	if rc.ActiveAlarmID() != int8(one) {
		t.Errorf("active = %d, want first slot %d", rc.ActiveAlarmID(), one)
	}
	// Both hold-offs are cleared even though only one could ring
	a1, _ := pa.AlarmByID(one)
	a2, _ := pa.AlarmByID(two)
	if a1.Snoozed || a2.Snoozed {
		t.Error("both snoozes should be cleared in one sweep")
	}
}
