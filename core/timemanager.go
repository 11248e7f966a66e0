package core

import "time"

const (
	dailySyncHour       = 3
	driftCheckSeconds   = 4 * 3600
	driftThreshold      = 2 * time.Second
	bootSyncPollMillis  = 10
	applyWaitPollMillis = 1
)

var monthNames = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

var dayNames = [7]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// TimeManager owns the relationship between the hardware clock and the
// network: boot sync, the once-a-day resync, drift checks, and the
// 1 Hz tick gate the rest of the core hangs off. It also renders the
// time strings the display shows.
//
// Owned by the main loop, not safe for concurrent use.
type TimeManager struct {
	cs    *ClockSource
	ntc   *NetTimeClient
	query TimeQuery
	pa    *Persist
	sleep func(ms uint32)

	tz           Timezone
	paRev        uint32
	lastTick     uint32
	lastSyncDate uint32 // packed YYYYMMDD of the last applied sample
	driftDue     bool
}

func NewTimeManager(cs *ClockSource, ntc *NetTimeClient, q TimeQuery, pa *Persist, sleep func(ms uint32)) *TimeManager {
	if sleep == nil {
		sleep = func(ms uint32) {
			end := Millis() + ms
			for !millisReached(Millis(), end) {
			}
		}
	}
	tm := &TimeManager{
		cs:       cs,
		ntc:      ntc,
		query:    q,
		pa:       pa,
		sleep:    sleep,
		lastTick: Millis(),
	}
	tm.reloadTimezone()
	return tm
}

// Tick reports whether at least one whole second has elapsed since the
// last reported tick. The cadence is carried forward in whole seconds
// so a slow loop pass cannot drift the gate.
func (tm *TimeManager) Tick() bool {
	n := MillisSince(tm.lastTick) / 1000
	if n == 0 {
		return false
	}
	tm.lastTick += n * 1000
	return true
}

// Now returns the current local time from the clock source.
func (tm *TimeManager) Now() time.Time { return tm.cs.Now() }

// IsTimeSet reports whether the clock can be trusted.
func (tm *TimeManager) IsTimeSet() bool { return tm.cs.Valid() }

// Hour returns the current local hour.
func (tm *TimeManager) Hour() int { return tm.cs.Now().Hour() }

// LastSyncDate returns the packed YYYYMMDD date of the last applied
// network sample, 0 if never.
func (tm *TimeManager) LastSyncDate() uint32 { return tm.lastSyncDate }

// SyncState exposes the network client state for status reporting.
func (tm *TimeManager) SyncState() SyncState { return tm.ntc.State() }

// FormattedTime renders the time honoring the 12/24-hour preference.
// The 12-hour form pads the hour with a space, as the display expects
// a fixed-width string.
func (tm *TimeManager) FormattedTime() string {
	now := tm.cs.Now()
	if tm.pa.Hour24() {
		return pad2(now.Hour()) + ":" + pad2(now.Minute()) + ":" + pad2(now.Second())
	}
	h := now.Hour() % 12
	if h == 0 {
		h = 12
	}
	ampm := " AM"
	if now.Hour() >= 12 {
		ampm = " PM"
	}
	return padSpace2(h) + ":" + pad2(now.Minute()) + ":" + pad2(now.Second()) + ampm
}

// FormattedDate renders e.g. "Aug 24, 2026".
func (tm *TimeManager) FormattedDate() string {
	now := tm.cs.Now()
	return monthNames[now.Month()-1] + " " + itoa(now.Day()) + ", " + itoa(now.Year())
}

// DayOfWeek returns the three-letter uppercase weekday name.
func (tm *TimeManager) DayOfWeek() string {
	return dayNames[tm.cs.Now().Weekday()]
}

// BootSync is called once at startup. With a valid clock it only kicks
// off a background refresh. With an invalid clock it blocks until the
// network answers or the retry schedule is exhausted; alarms cannot be
// trusted before that.
func (tm *TimeManager) BootSync() {
	tm.reloadTimezone()
	tm.ntc.Reset()
	if tm.cs.Valid() {
		tm.ntc.Start()
		return
	}
	DebugPrintln("[TIME] clock not set, blocking on network sync")
	if !tm.ntc.Start() {
		return
	}
	for {
		switch tm.ntc.Poll() {
		case SyncSuccess:
			tm.applySample(tm.ntc.Sample())
			tm.ntc.Reset()
			return
		case SyncFailed:
			DebugPrintln("[TIME] boot sync failed, clock remains unset")
			return
		}
		tm.sleep(bootSyncPollMillis)
	}
}

// SyncNow starts a background sync unless one is already running.
func (tm *TimeManager) SyncNow() {
	if tm.ntc.State() == SyncInProgress {
		return
	}
	tm.ntc.Reset()
	tm.ntc.Start()
}

// MarkDriftCheckDue requests a drift measurement on the next poll.
// Called from the 4-hour timer.
func (tm *TimeManager) MarkDriftCheckDue() { tm.driftDue = true }

// PollNtp advances the sync machine and applies a finished sample. It
// also runs a pending drift check and picks up timezone changes.
func (tm *TimeManager) PollNtp() {
	if tm.pa != nil && tm.pa.Revision() != tm.paRev {
		tm.reloadTimezone()
	}
	if tm.ntc.Poll() == SyncSuccess {
		tm.applySample(tm.ntc.Sample())
		tm.ntc.Reset()
	}
	if tm.driftDue {
		tm.runDriftCheck()
	}
}

// CheckDailySync begins a background sync once per calendar day at or
// after the early-morning hour. The packed date comparison keeps this
// robust against time jumps in either direction.
func (tm *TimeManager) CheckDailySync(now time.Time) {
	if !tm.cs.Valid() {
		return
	}
	if now.Hour() < dailySyncHour {
		return
	}
	if tm.lastSyncDate < packDate(now) {
		DebugPrintln("[TIME] daily resync")
		tm.SyncNow()
	}
}

// applySample sets the clock from a network sample. The sample is
// biased by half the round trip and applied on the next whole-second
// boundary after reception: two seconds are added because the
// truncated sample names the second that has already begun.
func (tm *TimeManager) applySample(s TimeSample) {
	comp := s.RTTMillis / 2
	local := tm.tz.ToLocal(s.Instant).Truncate(time.Second)
	adjusted := local.Add(time.Duration(comp/1000+2) * time.Second)
	target := s.ReceivedMillis + (1000 - comp%1000)
	for !millisReached(Millis(), target) {
		tm.sleep(applyWaitPollMillis)
	}
	if err := tm.cs.Adjust(adjusted); err != nil {
		DebugPrintln("[TIME] rtc adjust failed: " + err.Error())
		return
	}
	tm.lastSyncDate = packDate(adjusted)
	if tm.pa != nil {
		tm.pa.SetDST(tm.tz.IsDST(s.Instant))
	}
	RecordEvent(EvtSync, 0, Millis(), s.RTTMillis)
	DebugPrintln("[TIME] clock set to " + adjusted.Format("2006-01-02 15:04:05") +
		" (rtt " + utoa(uint32(s.RTTMillis)) + "ms)")
}

// runDriftCheck measures the clock against the network without
// touching it; a disagreement beyond the threshold starts a real sync.
// Measurement failures are ignored until the next cycle.
func (tm *TimeManager) runDriftCheck() {
	tm.driftDue = false
	if tm.query == nil || !tm.cs.Valid() {
		return
	}
	var s TimeSample
	var err error
	for _, server := range DefaultNTPServers {
		s, err = tm.query.Query(server, ntpQueryTimeoutMillis)
		if err == nil {
			break
		}
	}
	if err != nil {
		DebugPrintln("[TIME] drift check skipped: " + err.Error())
		return
	}
	sample := tm.tz.ToLocal(s.Instant).Add(time.Duration(s.RTTMillis/2) * time.Millisecond)
	diff := sample.Sub(tm.cs.Now())
	if diff < 0 {
		diff = -diff
	}
	if diff <= driftThreshold {
		return
	}
	DebugPrintln("[TIME] clock drift " + itoa(int(diff/time.Millisecond)) + "ms, resyncing")
	RecordEvent(EvtDrift, 0, Millis(), uint32(diff/time.Millisecond))
	tm.SyncNow()
}

func (tm *TimeManager) reloadTimezone() {
	if tm.pa == nil {
		tm.tz = Timezone{}
		return
	}
	tm.paRev = tm.pa.Revision()
	spec := tm.pa.Timezone()
	if spec == tm.tz.Spec && spec != "" {
		return
	}
	tz, err := ParseTZ(spec)
	if err != nil {
		DebugPrintln("[TIME] bad timezone " + spec + ", using UTC")
		tz = Timezone{Spec: spec, StdName: "UTC"}
	}
	tm.tz = tz
}

func packDate(t time.Time) uint32 {
	return uint32(t.Year())*10000 + uint32(t.Month())*100 + uint32(t.Day())
}
