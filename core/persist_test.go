package core

import "testing"

func TestPersistFirstBoot(t *testing.T) {
	rig := newTestRig(t)

	p := NewPersist(rig.kv)
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !p.FirstBoot() {
		t.Error("empty store should report first boot")
	}
	if p.Timezone() != DefaultTimezone {
		t.Errorf("timezone = %q, want default", p.Timezone())
	}
	if p.SnoozeMinutes() != 9 || p.DismissSeconds() != 2 || p.Brightness() != 128 {
		t.Error("numeric defaults wrong")
	}
	if !p.AutoBrightness() || p.Hour24() || p.UseCelsius() {
		t.Error("boolean defaults wrong")
	}

	// Defaults are written back so the next boot is a normal one
	if rig.kv.commits == 0 {
		t.Error("first boot should commit the defaults")
	}
	if v, err := rig.kv.GetBool(keyInit); err != nil || !v {
		t.Error("init flag not stored")
	}

	p2 := NewPersist(rig.kv)
	if err := p2.Load(); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if p2.FirstBoot() {
		t.Error("initialized store should not report first boot")
	}
}

func TestPersistRoundTrip(t *testing.T) {
	rig := newTestRig(t)

	p := NewPersist(rig.kv)
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	p.SetWifi("attic", "hunter2")
	if err := p.SetTimezone("CET-1CEST,M3.5.0,M10.5.0/3"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}
	p.SetSnoozeMinutes(5)
	p.SetDismissSeconds(4)
	p.SetHour24(true)
	p.SetUseCelsius(true)
	p.SetAutoBrightness(false)
	p.SetBrightness(40)

	a := NewAlarm()
	a.Enabled = true
	a.Hour = 6
	a.Minute = 45
	a.Days = DayMonday | DayFriday
	id, ok := p.PutAlarm(a)
	if !ok {
		t.Fatal("PutAlarm failed")
	}

	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	p2 := NewPersist(rig.kv)
	if err := p2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !p2.WifiValid() || p2.WifiSSID() != "attic" || p2.WifiPassword() != "hunter2" {
		t.Error("network credentials lost")
	}
	if p2.Timezone() != "CET-1CEST,M3.5.0,M10.5.0/3" {
		t.Errorf("timezone = %q", p2.Timezone())
	}
	if p2.SnoozeMinutes() != 5 || p2.DismissSeconds() != 4 || p2.Brightness() != 40 {
		t.Error("numeric settings lost")
	}
	if !p2.Hour24() || !p2.UseCelsius() || p2.AutoBrightness() {
		t.Error("boolean settings lost")
	}
	got, found := p2.AlarmByID(id)
	if !found {
		t.Fatal("alarm lost on reload")
	}
	if !got.Enabled || got.Hour != 6 || got.Minute != 45 || got.Days != (DayMonday|DayFriday) {
		t.Errorf("alarm fields lost: %+v", got)
	}
	if got.LastDismissedDay != NoDismissDay {
		t.Errorf("LastDismissedDay = %d, want sentinel", got.LastDismissedDay)
	}
}

func TestPersistClamps(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)
	p.Load()

	p.SetSnoozeMinutes(0)
	if p.SnoozeMinutes() != 1 {
		t.Errorf("snooze clamp low: %d", p.SnoozeMinutes())
	}
	p.SetSnoozeMinutes(200)
	if p.SnoozeMinutes() != 60 {
		t.Errorf("snooze clamp high: %d", p.SnoozeMinutes())
	}
	p.SetDismissSeconds(0)
	if p.DismissSeconds() != 1 {
		t.Errorf("dismiss clamp low: %d", p.DismissSeconds())
	}
	p.SetDismissSeconds(99)
	if p.DismissSeconds() != 10 {
		t.Errorf("dismiss clamp high: %d", p.DismissSeconds())
	}
}

func TestPersistRejectsBadTimezone(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)
	p.Load()

	if err := p.SetTimezone("not a zone"); err == nil {
		t.Fatal("bad TZ spec should be rejected")
	}
	if p.Timezone() != DefaultTimezone {
		t.Error("rejected spec must not overwrite the stored zone")
	}
}

func TestPersistDebouncedFlush(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)
	p.Load()
	base := rig.kv.commits

	p.SetBrightness(10)
	if !p.Dirty() {
		t.Fatal("mutation should mark the store dirty")
	}
	advanceMillis(3000)
	ProcessTimers()
	if rig.kv.commits != base {
		t.Fatal("flush fired before the debounce window closed")
	}

	// A second mutation inside the window pushes the deadline out
	p.SetBrightness(20)
	advanceMillis(3000)
	ProcessTimers()
	if rig.kv.commits != base {
		t.Fatal("re-armed debounce fired early")
	}

	advanceMillis(2500)
	ProcessTimers()
	if rig.kv.commits != base+1 {
		t.Fatalf("expected exactly one flush, commits went %d -> %d", base, rig.kv.commits)
	}
	if p.Dirty() {
		t.Error("flush should clear the dirty flag")
	}
	if v, err := rig.kv.GetU8(keyBrightness); err != nil || v != 20 {
		t.Errorf("stored brightness = %d, %v", v, err)
	}

	// Quiet store: the timer is gone, no further commits
	advanceMillis(20000)
	ProcessTimers()
	if rig.kv.commits != base+1 {
		t.Error("idle store kept committing")
	}
}

func TestPersistRingingWriteThrough(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)
	p.Load()
	base := rig.kv.commits

	p.SetRingingAlarm(3, 1234567)
	if rig.kv.commits != base+1 {
		t.Fatal("ringing record must be committed synchronously")
	}
	if v, err := rig.kv.GetI8(keyRingID); err != nil || v != 3 {
		t.Errorf("stored ring ID = %d, %v", v, err)
	}
	if v, err := rig.kv.GetU32(keyRingTS); err != nil || v != 1234567 {
		t.Errorf("stored ring timestamp = %d, %v", v, err)
	}
	if id, ts := p.RingingAlarm(); id != 3 || ts != 1234567 {
		t.Error("RAM copy does not match")
	}

	p.ClearRingingAlarm()
	if rig.kv.commits != base+2 {
		t.Fatal("clear must also be write-through")
	}
	if id, _ := p.RingingAlarm(); id != NoActiveAlarm {
		t.Error("ringing record not cleared")
	}
}

func TestPersistPutAlarm(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)
	p.Load()

	// Fill every slot; IDs are handed out sequentially
	for i := 0; i < MaxAlarms; i++ {
		id, ok := p.PutAlarm(NewAlarm())
		if !ok {
			t.Fatalf("slot %d rejected", i)
		}
		if id != uint8(i) {
			t.Errorf("slot %d got ID %d", i, id)
		}
	}
	if _, ok := p.PutAlarm(NewAlarm()); ok {
		t.Error("full table should reject a new alarm")
	}

	// Update by ID
	a, _ := p.AlarmByID(2)
	a.Enabled = true
	a.Hour = 23
	if id, ok := p.PutAlarm(a); !ok || id != 2 {
		t.Fatal("update by ID failed")
	}
	got, _ := p.AlarmByID(2)
	if !got.Enabled || got.Hour != 23 {
		t.Error("update not applied")
	}

	// Unknown ID is an error, not an insert
	ghost := NewAlarm()
	ghost.ID = 77
	if _, ok := p.PutAlarm(ghost); ok {
		t.Error("unknown ID should not be stored")
	}
	if p.AlarmCount() != MaxAlarms {
		t.Errorf("alarm count = %d", p.AlarmCount())
	}

	if !p.RemoveAlarm(5) {
		t.Fatal("RemoveAlarm failed")
	}
	if p.RemoveAlarm(5) {
		t.Error("second remove should report missing")
	}
	if p.AlarmCount() != MaxAlarms-1 {
		t.Errorf("count after remove = %d", p.AlarmCount())
	}
}

func TestPersistAlarmIDWrap(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)
	p.Load()

	// Burn through the whole 8-bit ID space; the counter must skip the
	// unassigned sentinel and wrap to zero
	var ids []uint8
	for i := 0; i < 256; i++ {
		id, ok := p.PutAlarm(NewAlarm())
		if !ok {
			t.Fatalf("allocation %d rejected", i)
		}
		if id == UnassignedAlarmID {
			t.Fatalf("allocation %d handed out the sentinel", i)
		}
		ids = append(ids, id)
		p.RemoveAlarm(id)
	}
	if ids[254] != 254 || ids[255] != 0 {
		t.Errorf("wrap sequence wrong: ids[254]=%d ids[255]=%d", ids[254], ids[255])
	}
}

func TestPersistReplaceAlarms(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)
	p.Load()

	seed := NewAlarm()
	seed.Enabled = true
	keepID, _ := p.PutAlarm(seed)

	kept, _ := p.AlarmByID(keepID)
	fresh := NewAlarm()
	fresh.Hour = 5
	p.ReplaceAlarms([]Alarm{kept, fresh})

	if p.AlarmCount() != 2 {
		t.Fatalf("count = %d", p.AlarmCount())
	}
	if _, found := p.AlarmByID(keepID); !found {
		t.Error("record with an assigned ID must keep it")
	}
	all := p.Alarms()
	if all[1].ID == UnassignedAlarmID {
		t.Error("sentinel record did not get an ID")
	}
	if all[1].Hour != 5 {
		t.Error("replacement fields lost")
	}

	// Oversized list is truncated to the slot count
	big := make([]Alarm, MaxAlarms+3)
	for i := range big {
		big[i] = NewAlarm()
	}
	p.ReplaceAlarms(big)
	if p.AlarmCount() != MaxAlarms {
		t.Errorf("count after oversized replace = %d", p.AlarmCount())
	}
}

func TestPersistFactoryReset(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)
	p.Load()

	p.SetWifi("attic", "hunter2")
	p.SetHour24(true)
	p.SetBrightness(7)
	p.PutAlarm(NewAlarm())
	p.SetRingingAlarm(0, 99)

	if err := p.FactoryReset(); err != nil {
		t.Fatalf("FactoryReset: %v", err)
	}
	if p.WifiValid() || p.WifiSSID() != "" {
		t.Error("full reset must drop network credentials")
	}
	if p.Hour24() || p.Brightness() != 128 || p.AlarmCount() != 0 {
		t.Error("settings not back to defaults")
	}
	if id, _ := p.RingingAlarm(); id != NoActiveAlarm {
		t.Error("ringing record survived reset")
	}

	// And the store itself is reusable
	p2 := NewPersist(rig.kv)
	p2.Load()
	if p2.FirstBoot() {
		t.Error("reset store should still carry the init flag")
	}
	if p2.WifiSSID() != "" || p2.Brightness() != 128 {
		t.Error("reset state not persisted")
	}
}

func TestPersistFactoryResetKeepsNetwork(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)
	p.Load()

	p.SetWifi("attic", "hunter2")
	p.SetBrightness(7)

	if err := p.FactoryResetExceptNetwork(); err != nil {
		t.Fatalf("FactoryResetExceptNetwork: %v", err)
	}
	if !p.WifiValid() || p.WifiSSID() != "attic" || p.WifiPassword() != "hunter2" {
		t.Error("network credentials must survive")
	}
	if p.Brightness() != 128 {
		t.Error("other settings must reset")
	}
}

func TestPersistRevisionWatcher(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)

	before := p.Revision()
	p.Load()
	if p.Revision() == before {
		t.Error("Load should bump the revision")
	}

	seen := p.Revision()
	p.SetHour24(true)
	if p.Revision() == seen {
		t.Error("mutation should bump the revision")
	}
	seen = p.Revision()
	p.SetHour24(true) // no-op write
	if p.Revision() != seen {
		t.Error("no-op write should not bump the revision")
	}
}

func TestPersistLoadDiscardsCorruptAlarmFields(t *testing.T) {
	rig := newTestRig(t)
	p := NewPersist(rig.kv)
	p.Load()

	a := NewAlarm()
	a.Enabled = true
	p.PutAlarm(a)
	p.Save()

	// Corrupt the stored record out of range
	rig.kv.SetU8(alarmKey(0, "hr"), 31)
	rig.kv.SetU8(alarmKey(0, "min"), 77)
	rig.kv.SetU8(alarmKey(0, "days"), 0xC3)

	p2 := NewPersist(rig.kv)
	p2.Load()
	got := p2.Alarms()[0]
	if got.Hour != 8 || got.Minute != 0 {
		t.Errorf("out-of-range time not discarded: %d:%d", got.Hour, got.Minute)
	}
	if got.Days&^DaysEveryDay != 0 {
		t.Errorf("days mask not masked: %#x", got.Days)
	}
}
