package core

import (
	"testing"
	"time"
)

// newTimeRig wires a TimeManager over the fake drivers. The sleep
// hook advances the fake monotonic clock so blocking paths finish
// instantly.
func newTimeRig(t *testing.T, q TimeQuery) (*testRig, *Persist, *NetTimeClient, *TimeManager) {
	t.Helper()
	rig := newTestRig(t)
	pa := NewPersist(rig.kv)
	if err := pa.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cs := NewClockSource(MustRTC())
	cs.Init()
	ntc := NewNetTimeClient(q)
	ntc.randFn = func() uint32 { return 0 }
	tm := NewTimeManager(cs, ntc, q, pa, func(ms uint32) { advanceMillis(ms) })
	return rig, pa, ntc, tm
}

func TestTickGate(t *testing.T) {
	_, _, _, tm := newTimeRig(t, nil)

	if tm.Tick() {
		t.Fatal("tick with no time elapsed")
	}
	advanceMillis(999)
	if tm.Tick() {
		t.Fatal("tick before a whole second")
	}
	advanceMillis(1)
	if !tm.Tick() {
		t.Fatal("no tick at one second")
	}
	if tm.Tick() {
		t.Fatal("double tick")
	}

	// A stalled loop still yields one tick, and the cadence stays on
	// the whole-second grid
	advanceMillis(2500)
	if !tm.Tick() {
		t.Fatal("no tick after a stall")
	}
	if tm.Tick() {
		t.Fatal("tick repeated after the stall")
	}
	advanceMillis(500)
	if !tm.Tick() {
		t.Error("grid lost after the stall")
	}
}

func TestFormattedTime(t *testing.T) {
	rig, pa, _, tm := newTimeRig(t, nil)

	cases := []struct {
		h, m, s int
		want12  string
		want24  string
	}{
		{7, 0, 0, " 7:00:00 AM", "07:00:00"},
		{19, 5, 9, " 7:05:09 PM", "19:05:09"},
		{0, 30, 1, "12:30:01 AM", "00:30:01"},
		{12, 0, 0, "12:00:00 PM", "12:00:00"},
		{11, 59, 59, "11:59:59 AM", "11:59:59"},
	}
	for _, c := range cases {
		rig.rtc.now = time.Date(2026, time.August, 24, c.h, c.m, c.s, 0, time.UTC)
		pa.SetHour24(false)
		if got := tm.FormattedTime(); got != c.want12 {
			t.Errorf("12h %02d:%02d:%02d = %q, want %q", c.h, c.m, c.s, got, c.want12)
		}
		pa.SetHour24(true)
		if got := tm.FormattedTime(); got != c.want24 {
			t.Errorf("24h %02d:%02d:%02d = %q, want %q", c.h, c.m, c.s, got, c.want24)
		}
	}
}

func TestFormattedDateAndWeekday(t *testing.T) {
	rig, _, _, tm := newTimeRig(t, nil)

	if got := tm.FormattedDate(); got != "Aug 24, 2026" {
		t.Errorf("date = %q", got)
	}
	if got := tm.DayOfWeek(); got != "MON" {
		t.Errorf("weekday = %q", got)
	}

	rig.rtc.now = time.Date(2026, time.January, 4, 9, 0, 0, 0, time.UTC)
	if got := tm.FormattedDate(); got != "Jan 4, 2026" {
		t.Errorf("date = %q", got)
	}
	if got := tm.DayOfWeek(); got != "SUN" {
		t.Errorf("weekday = %q", got)
	}
}

func TestBootSyncBackgroundWhenClockValid(t *testing.T) {
	rig, _, ntc, tm := newTimeRig(t, newFakeTimeQuery())

	tm.BootSync()
	if ntc.State() != SyncInProgress {
		t.Errorf("state = %v, want a background sync in flight", ntc.State())
	}
	if rig.rtc.setCount != 0 {
		t.Error("boot with a valid clock must not block on the network")
	}
}

func TestBootSyncBlocksUntilAnswer(t *testing.T) {
	q := newFakeTimeQuery()
	q.answerAll(TimeSample{
		Instant:        time.Date(2026, time.August, 24, 11, 0, 0, 0, time.UTC),
		RTTMillis:      100,
		ReceivedMillis: 0,
	})
	rig, _, _, tm := newTimeRig(t, q)
	rig.rtc.lostPower = true
	tm.cs.Init()
	if tm.cs.Valid() {
		t.Fatal("precondition: clock must be invalid")
	}

	tm.BootSync()

	if !tm.cs.Valid() {
		t.Fatal("clock still invalid after a successful boot sync")
	}
	// 11:00 UTC is 07:00 EDT; +2 s names the second being applied
	want := time.Date(2026, time.August, 24, 7, 0, 2, 0, time.UTC)
	if !rig.rtc.now.Equal(want) {
		t.Errorf("rtc = %v, want %v", rig.rtc.now, want)
	}
	// Application waits for the next whole-second boundary: received
	// at 0 with 50 ms of one-way delay puts that at 950
	if Millis() != 950 {
		t.Errorf("applied at %d ms, want 950", Millis())
	}
	if tm.LastSyncDate() != 20260824 {
		t.Errorf("LastSyncDate = %d", tm.LastSyncDate())
	}
}

func TestBootSyncGivesUpWhenNetworkDead(t *testing.T) {
	q := newFakeTimeQuery() // no answers scripted
	rig, _, ntc, tm := newTimeRig(t, q)
	rig.rtc.lostPower = true
	tm.cs.Init()

	tm.BootSync()

	if tm.cs.Valid() {
		t.Error("clock must stay invalid")
	}
	if ntc.State() != SyncFailed {
		t.Errorf("state = %v, want failed", ntc.State())
	}
	if len(q.calls) != ntpMaxRetries*len(DefaultNTPServers) {
		t.Errorf("queries = %d, want the full retry schedule", len(q.calls))
	}
}

func TestPollNtpAppliesRTTCompensation(t *testing.T) {
	q := newFakeTimeQuery()
	rig, _, ntc, tm := newTimeRig(t, q)

	advanceMillis(4000)
	q.answerAll(TimeSample{
		Instant:        time.Date(2026, time.August, 24, 11, 30, 0, 0, time.UTC),
		RTTMillis:      2400,
		ReceivedMillis: Millis(),
	})
	tm.SyncNow()
	tm.PollNtp()

	// 1.2 s one-way: one whole second folds into the value, the 200 ms
	// remainder shortens the boundary wait
	want := time.Date(2026, time.August, 24, 7, 30, 3, 0, time.UTC)
	if !rig.rtc.now.Equal(want) {
		t.Errorf("rtc = %v, want %v", rig.rtc.now, want)
	}
	if Millis() != 4800 {
		t.Errorf("applied at %d ms, want 4800", Millis())
	}
	if ntc.State() != SyncIdle {
		t.Errorf("state = %v, want idle after apply", ntc.State())
	}
}

func TestDailySync(t *testing.T) {
	q := newFakeTimeQuery()
	_, _, ntc, tm := newTimeRig(t, q)

	// Too early in the morning
	tm.CheckDailySync(time.Date(2026, time.August, 25, 2, 59, 0, 0, time.UTC))
	if ntc.State() != SyncIdle {
		t.Fatal("resync before the sync hour")
	}

	// At the hour, with no sync recorded for today
	tm.CheckDailySync(time.Date(2026, time.August, 25, 3, 0, 0, 0, time.UTC))
	if ntc.State() != SyncInProgress {
		t.Fatal("no resync at the sync hour")
	}

	// Pretend it applied today; the rest of the day stays quiet
	ntc.Reset()
	tm.lastSyncDate = 20260825
	tm.CheckDailySync(time.Date(2026, time.August, 25, 14, 0, 0, 0, time.UTC))
	if ntc.State() != SyncIdle {
		t.Error("second resync on the same day")
	}

	// Next day fires again
	tm.CheckDailySync(time.Date(2026, time.August, 26, 3, 0, 0, 0, time.UTC))
	if ntc.State() != SyncInProgress {
		t.Error("no resync on the next day")
	}
}

func TestDailySyncNeedsValidClock(t *testing.T) {
	rig, _, ntc, tm := newTimeRig(t, newFakeTimeQuery())
	rig.rtc.lostPower = true
	tm.cs.Init()

	tm.CheckDailySync(time.Date(2026, time.August, 25, 3, 0, 0, 0, time.UTC))
	if ntc.State() != SyncIdle {
		t.Error("an invalid clock cannot date a daily resync")
	}
}

func TestDriftCheckStartsResync(t *testing.T) {
	q := newFakeTimeQuery()
	// 11:00 UTC reads as 07:00:05 local against an RTC at 07:00:00
	q.answerAll(TimeSample{
		Instant: time.Date(2026, time.August, 24, 11, 0, 5, 0, time.UTC),
	})
	_, _, ntc, tm := newTimeRig(t, q)

	tm.MarkDriftCheckDue()
	tm.PollNtp()

	if ntc.State() != SyncInProgress {
		t.Fatal("5 s of drift must start a resync")
	}
	evs := EventRingSnapshot()
	if len(evs) == 0 || evs[len(evs)-1].Kind != EvtDrift || evs[len(evs)-1].Value != 5000 {
		t.Errorf("drift event missing or wrong: %+v", evs)
	}
}

func TestDriftCheckWithinThreshold(t *testing.T) {
	q := newFakeTimeQuery()
	q.answerAll(TimeSample{
		Instant: time.Date(2026, time.August, 24, 11, 0, 2, 0, time.UTC),
	})
	_, _, ntc, tm := newTimeRig(t, q)

	tm.MarkDriftCheckDue()
	tm.PollNtp()

	if ntc.State() != SyncIdle {
		t.Error("2 s of drift is within tolerance, no resync")
	}
	// One answer from the primary is all a measurement takes
	if len(q.calls) != 1 {
		t.Errorf("queries = %d, want 1", len(q.calls))
	}

	// The request does not linger
	tm.PollNtp()
	if len(q.calls) != 1 {
		t.Error("drift request ran twice")
	}
}

func TestDriftCheckCountsRoundTrip(t *testing.T) {
	q := newFakeTimeQuery()
	// The instant alone matches the RTC exactly; 6 s of round trip
	// biases the comparison by 3 s
	q.answerAll(TimeSample{
		Instant:   time.Date(2026, time.August, 24, 11, 0, 0, 0, time.UTC),
		RTTMillis: 6000,
	})
	_, _, ntc, tm := newTimeRig(t, q)

	tm.MarkDriftCheckDue()
	tm.PollNtp()
	if ntc.State() != SyncInProgress {
		t.Error("round-trip bias not applied to the drift measurement")
	}
}

func TestDriftCheckSkipsInvalidClock(t *testing.T) {
	q := newFakeTimeQuery()
	rig, _, _, tm := newTimeRig(t, q)
	rig.rtc.lostPower = true
	tm.cs.Init()

	tm.MarkDriftCheckDue()
	tm.PollNtp()
	if len(q.calls) != 0 {
		t.Error("drift check ran against an invalid clock")
	}
}

func TestTimezoneReloadOnRevision(t *testing.T) {
	_, pa, _, tm := newTimeRig(t, nil)
	if tm.tz.StdName != "EST" {
		t.Fatalf("initial zone = %q", tm.tz.StdName)
	}

	if err := pa.SetTimezone("JST-9"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}
	tm.PollNtp()
	if tm.tz.StdName != "JST" || tm.tz.StdOffset != 9*3600 {
		t.Errorf("zone after reload = %q %d", tm.tz.StdName, tm.tz.StdOffset)
	}
}

func TestTimezoneFallsBackToUTC(t *testing.T) {
	rig := newTestRig(t)
	pa := NewPersist(rig.kv)
	pa.Load()
	// A corrupt stored spec gets through Load unvalidated
	rig.kv.SetString(keyTimezone, "???")
	pa.Load()

	cs := NewClockSource(MustRTC())
	cs.Init()
	tm := NewTimeManager(cs, NewNetTimeClient(nil), nil, pa, nil)
	if tm.tz.StdName != "UTC" || tm.tz.StdOffset != 0 {
		t.Errorf("fallback zone = %q %d", tm.tz.StdName, tm.tz.StdOffset)
	}
}
