package core

import "sync"

// Storage keys. The layout is flat typed KV; per-alarm fields live
// under "a<slot><field>".
const (
	keyInit        = "init"
	keyWifiValid   = "wifiValid"
	keyWifiSSID    = "wifiSSID"
	keyWifiPass    = "wifiPass"
	keyTimezone    = "timezone"
	keySnooze      = "snoozeDur"
	keyDismiss     = "dismissDur"
	keyHour24      = "hour24"
	keyCelsius     = "useCelsius"
	keyAutoBright  = "autoBright"
	keyBrightness  = "brightness"
	keyDST         = "dst"
	keyNumAlarms   = "numAlarms"
	keyNextAlarmID = "nextAlarmId"
	keyRingID      = "ringAlarmId"
	keyRingTS      = "ringAlarmTS"
)

const (
	// DefaultTimezone is US Eastern with the usual DST rules.
	DefaultTimezone = "EST5EDT,M3.2.0,M11.1.0"

	defaultSnoozeMinutes  = 9
	defaultDismissSeconds = 2
	defaultBrightness     = 128

	saveDebounceMillis = 5000
)

// Persist is the typed store over the non-volatile KV area. All reads
// are served from a RAM copy loaded at boot. Two write disciplines:
// configuration and alarm records are flushed by a debounced timer
// five seconds after the last mutation, while the ringing record is
// written through synchronously so it survives an immediate power cut.
//
// Safe for concurrent use; the console and future web handlers mutate
// it from outside the tick path.
type Persist struct {
	mu sync.Mutex
	kv KVDriver

	wifiValid  bool
	wifiSSID   string
	wifiPass   string
	timezone   string
	snoozeMin  uint8
	dismissSec uint8
	hour24     bool
	useCelsius bool
	autoBright bool
	brightness uint8
	dst        bool

	alarms      []Alarm
	nextAlarmID uint8

	ringID int8
	ringTS uint32

	firstBoot  bool
	dirty      bool
	revision   uint32
	flushTimer Timer
}

func NewPersist(kv KVDriver) *Persist {
	p := &Persist{kv: kv, ringID: NoActiveAlarm}
	p.flushTimer.Handler = p.flushHandler
	p.setDefaultsLocked()
	return p
}

func (p *Persist) setDefaultsLocked() {
	p.wifiValid = false
	p.wifiSSID = ""
	p.wifiPass = ""
	p.timezone = DefaultTimezone
	p.snoozeMin = defaultSnoozeMinutes
	p.dismissSec = defaultDismissSeconds
	p.hour24 = false
	p.useCelsius = false
	p.autoBright = true
	p.brightness = defaultBrightness
	p.dst = false
	p.alarms = p.alarms[:0]
	p.nextAlarmID = 0
	p.ringID = NoActiveAlarm
	p.ringTS = 0
}

// Load populates the RAM copy. A store that has never been written
// (no init flag) gets the defaults saved back so the next boot finds
// them; otherwise missing individual keys silently keep their default.
func (p *Persist) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setDefaultsLocked()
	// bump so revision watchers re-read what Load brings in
	p.revision++

	if init, err := p.kv.GetBool(keyInit); err != nil || !init {
		p.firstBoot = true
		DebugPrintln("[CFG] first boot, storing defaults")
		return p.saveAllLocked()
	}

	if v, err := p.kv.GetBool(keyWifiValid); err == nil {
		p.wifiValid = v
	}
	if v, err := p.kv.GetString(keyWifiSSID); err == nil {
		p.wifiSSID = v
	}
	if v, err := p.kv.GetString(keyWifiPass); err == nil {
		p.wifiPass = v
	}
	if v, err := p.kv.GetString(keyTimezone); err == nil && v != "" {
		p.timezone = v
	}
	if v, err := p.kv.GetU8(keySnooze); err == nil {
		p.snoozeMin = clampU8(v, 1, 60)
	}
	if v, err := p.kv.GetU8(keyDismiss); err == nil {
		p.dismissSec = clampU8(v, 1, 10)
	}
	if v, err := p.kv.GetBool(keyHour24); err == nil {
		p.hour24 = v
	}
	if v, err := p.kv.GetBool(keyCelsius); err == nil {
		p.useCelsius = v
	}
	if v, err := p.kv.GetBool(keyAutoBright); err == nil {
		p.autoBright = v
	}
	if v, err := p.kv.GetU8(keyBrightness); err == nil {
		p.brightness = v
	}
	if v, err := p.kv.GetBool(keyDST); err == nil {
		p.dst = v
	}
	if v, err := p.kv.GetU8(keyNextAlarmID); err == nil {
		p.nextAlarmID = v
	}

	n := 0
	if v, err := p.kv.GetU8(keyNumAlarms); err == nil {
		n = int(v)
		if n > MaxAlarms {
			n = MaxAlarms
		}
	}
	for i := 0; i < n; i++ {
		p.alarms = append(p.alarms, p.readAlarmLocked(i))
	}

	if v, err := p.kv.GetI8(keyRingID); err == nil {
		p.ringID = v
	}
	if v, err := p.kv.GetU32(keyRingTS); err == nil {
		p.ringTS = v
	}

	DebugPrintln("[CFG] loaded " + itoa(n) + " alarms, tz " + p.timezone)
	return nil
}

// Save flushes the RAM copy immediately, bypassing the debounce.
func (p *Persist) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveAllLocked()
}

// Flush writes the store if anything is dirty. Called by the debounce
// timer; harmless to call any time.
func (p *Persist) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty {
		return nil
	}
	return p.saveAllLocked()
}

// Dirty reports whether mutations are waiting for the debounce flush.
func (p *Persist) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// FirstBoot reports whether this boot initialized an empty store.
func (p *Persist) FirstBoot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstBoot
}

// Revision increments on every mutation; watchers poll it to notice
// configuration changes cheaply.
func (p *Persist) Revision() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revision
}

// FactoryReset wipes every stored key and restores defaults.
func (p *Persist) FactoryReset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	DebugPrintln("[CFG] factory reset")
	p.deleteAllLocked()
	p.setDefaultsLocked()
	p.revision++
	return p.saveAllLocked()
}

// FactoryResetExceptNetwork resets everything but keeps the network
// credentials, for a reconfigure that shouldn't force re-provisioning.
func (p *Persist) FactoryResetExceptNetwork() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	DebugPrintln("[CFG] factory reset (keeping network)")
	ssid, pass, valid := p.wifiSSID, p.wifiPass, p.wifiValid
	p.deleteAllLocked()
	p.setDefaultsLocked()
	p.wifiSSID, p.wifiPass, p.wifiValid = ssid, pass, valid
	p.revision++
	return p.saveAllLocked()
}

func (p *Persist) WifiValid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wifiValid
}

func (p *Persist) WifiSSID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wifiSSID
}

func (p *Persist) WifiPassword() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wifiPass
}

func (p *Persist) Timezone() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timezone
}

func (p *Persist) SnoozeMinutes() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snoozeMin
}

func (p *Persist) DismissSeconds() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismissSec
}

func (p *Persist) Hour24() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hour24
}

func (p *Persist) UseCelsius() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.useCelsius
}

func (p *Persist) AutoBrightness() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoBright
}

func (p *Persist) Brightness() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.brightness
}

func (p *Persist) DST() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dst
}

// SetWifi stores credentials and marks them valid.
func (p *Persist) SetWifi(ssid, pass string) {
	p.mu.Lock()
	p.wifiSSID = ssid
	p.wifiPass = pass
	p.wifiValid = ssid != ""
	p.markDirtyLocked()
	p.mu.Unlock()
	p.armFlush()
}

// SetTimezone validates and stores a POSIX TZ spec.
func (p *Persist) SetTimezone(tz string) error {
	if _, err := ParseTZ(tz); err != nil {
		return err
	}
	p.mu.Lock()
	p.timezone = tz
	p.markDirtyLocked()
	p.mu.Unlock()
	p.armFlush()
	return nil
}

func (p *Persist) SetSnoozeMinutes(m uint8) {
	p.mu.Lock()
	p.snoozeMin = clampU8(m, 1, 60)
	p.markDirtyLocked()
	p.mu.Unlock()
	p.armFlush()
}

func (p *Persist) SetDismissSeconds(s uint8) {
	p.mu.Lock()
	p.dismissSec = clampU8(s, 1, 10)
	p.markDirtyLocked()
	p.mu.Unlock()
	p.armFlush()
}

func (p *Persist) SetHour24(v bool)         { p.setBoolField(&p.hour24, v) }
func (p *Persist) SetUseCelsius(v bool)     { p.setBoolField(&p.useCelsius, v) }
func (p *Persist) SetAutoBrightness(v bool) { p.setBoolField(&p.autoBright, v) }
func (p *Persist) SetDST(v bool)            { p.setBoolField(&p.dst, v) }

func (p *Persist) SetBrightness(v uint8) {
	p.mu.Lock()
	p.brightness = v
	p.markDirtyLocked()
	p.mu.Unlock()
	p.armFlush()
}

func (p *Persist) setBoolField(field *bool, v bool) {
	p.mu.Lock()
	if *field == v {
		p.mu.Unlock()
		return
	}
	*field = v
	p.markDirtyLocked()
	p.mu.Unlock()
	p.armFlush()
}

// Alarms returns a copy of every alarm in slot order.
func (p *Persist) Alarms() []Alarm {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Alarm, len(p.alarms))
	copy(out, p.alarms)
	return out
}

// AlarmCount returns the number of configured alarms.
func (p *Persist) AlarmCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.alarms)
}

// AlarmByID returns a copy of the alarm with the given ID.
func (p *Persist) AlarmByID(id uint8) (Alarm, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.alarms {
		if p.alarms[i].ID == id {
			return p.alarms[i], true
		}
	}
	return Alarm{}, false
}

// AnySnoozed reports whether any alarm is in a snooze hold-off.
func (p *Persist) AnySnoozed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.alarms {
		if p.alarms[i].Snoozed {
			return true
		}
	}
	return false
}

// AnyEnabled reports whether any alarm is armed.
func (p *Persist) AnyEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.alarms {
		if p.alarms[i].Enabled {
			return true
		}
	}
	return false
}

// PutAlarm writes back a mutated record by ID, or admits a new record
// carrying the unassigned sentinel when a slot is free. Returns the
// record's ID and whether it was stored.
func (p *Persist) PutAlarm(a Alarm) (uint8, bool) {
	p.mu.Lock()
	defer func() {
		p.mu.Unlock()
		p.armFlush()
	}()
	if a.ID != UnassignedAlarmID {
		for i := range p.alarms {
			if p.alarms[i].ID == a.ID {
				p.alarms[i] = a
				p.markDirtyLocked()
				return a.ID, true
			}
		}
		return a.ID, false
	}
	if len(p.alarms) >= MaxAlarms {
		return UnassignedAlarmID, false
	}
	a.ID = p.assignIDLocked()
	p.alarms = append(p.alarms, a)
	p.markDirtyLocked()
	return a.ID, true
}

// RemoveAlarm deletes the alarm with the given ID.
func (p *Persist) RemoveAlarm(id uint8) bool {
	p.mu.Lock()
	defer func() {
		p.mu.Unlock()
		p.armFlush()
	}()
	for i := range p.alarms {
		if p.alarms[i].ID == id {
			p.alarms = append(p.alarms[:i], p.alarms[i+1:]...)
			p.markDirtyLocked()
			return true
		}
	}
	return false
}

// ReplaceAlarms swaps the whole alarm set in one step, assigning fresh
// IDs to records carrying the unassigned sentinel. Extra records
// beyond the slot count are dropped.
func (p *Persist) ReplaceAlarms(list []Alarm) {
	p.mu.Lock()
	if len(list) > MaxAlarms {
		list = list[:MaxAlarms]
	}
	p.alarms = p.alarms[:0]
	for _, a := range list {
		if a.ID == UnassignedAlarmID {
			a.ID = p.assignIDLocked()
		}
		p.alarms = append(p.alarms, a)
	}
	p.markDirtyLocked()
	p.mu.Unlock()
	p.armFlush()
}

// RingingAlarm returns the persisted ringing record.
func (p *Persist) RingingAlarm() (int8, uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ringID, p.ringTS
}

// SetRingingAlarm persists the ringing record before returning.
func (p *Persist) SetRingingAlarm(id int8, ts uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ringID = id
	p.ringTS = ts
	p.revision++
	p.writeRingingLocked()
}

// ClearRingingAlarm removes the ringing record, write-through.
func (p *Persist) ClearRingingAlarm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ringID = NoActiveAlarm
	p.ringTS = 0
	p.revision++
	p.writeRingingLocked()
}

func (p *Persist) writeRingingLocked() {
	err := p.kv.SetI8(keyRingID, p.ringID)
	if e := p.kv.SetU32(keyRingTS, p.ringTS); err == nil {
		err = e
	}
	if e := p.kv.Commit(); err == nil {
		err = e
	}
	if err != nil {
		DebugPrintln("[CFG] ringing state write failed: " + err.Error())
	}
}

func (p *Persist) assignIDLocked() uint8 {
	id := p.nextAlarmID
	p.nextAlarmID++
	if p.nextAlarmID == UnassignedAlarmID {
		p.nextAlarmID = 0
	}
	return id
}

func (p *Persist) markDirtyLocked() {
	p.dirty = true
	p.revision++
}

// armFlush re-arms the debounce timer; every mutation within the
// window pushes the flush out again.
func (p *Persist) armFlush() {
	CancelTimer(&p.flushTimer)
	p.flushTimer.WakeMillis = Millis() + saveDebounceMillis
	ScheduleTimer(&p.flushTimer)
}

func (p *Persist) flushHandler(*Timer) uint8 {
	if err := p.Flush(); err != nil {
		DebugPrintln("[CFG] flush failed: " + err.Error())
	}
	return TimerDone
}

func (p *Persist) saveAllLocked() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(p.kv.SetBool(keyWifiValid, p.wifiValid))
	keep(p.kv.SetString(keyWifiSSID, p.wifiSSID))
	keep(p.kv.SetString(keyWifiPass, p.wifiPass))
	keep(p.kv.SetString(keyTimezone, p.timezone))
	keep(p.kv.SetU8(keySnooze, p.snoozeMin))
	keep(p.kv.SetU8(keyDismiss, p.dismissSec))
	keep(p.kv.SetBool(keyHour24, p.hour24))
	keep(p.kv.SetBool(keyCelsius, p.useCelsius))
	keep(p.kv.SetBool(keyAutoBright, p.autoBright))
	keep(p.kv.SetU8(keyBrightness, p.brightness))
	keep(p.kv.SetBool(keyDST, p.dst))
	keep(p.kv.SetU8(keyNextAlarmID, p.nextAlarmID))

	keep(p.kv.SetU8(keyNumAlarms, uint8(len(p.alarms))))
	for i := range p.alarms {
		keep(p.writeAlarmLocked(i, p.alarms[i]))
	}

	keep(p.kv.SetI8(keyRingID, p.ringID))
	keep(p.kv.SetU32(keyRingTS, p.ringTS))

	keep(p.kv.SetBool(keyInit, true))
	keep(p.kv.Commit())

	if firstErr != nil {
		DebugPrintln("[CFG] save failed: " + firstErr.Error())
		return firstErr
	}
	p.dirty = false
	return nil
}

func (p *Persist) deleteAllLocked() {
	for _, k := range []string{
		keyInit, keyWifiValid, keyWifiSSID, keyWifiPass, keyTimezone,
		keySnooze, keyDismiss, keyHour24, keyCelsius, keyAutoBright,
		keyBrightness, keyDST, keyNumAlarms, keyNextAlarmID,
		keyRingID, keyRingTS,
	} {
		p.kv.Delete(k)
	}
	for i := 0; i < MaxAlarms; i++ {
		for _, suf := range alarmKeySuffixes {
			p.kv.Delete(alarmKey(i, suf))
		}
	}
	p.kv.Commit()
}

var alarmKeySuffixes = [...]string{"id", "en", "hr", "min", "days", "snz", "until", "dday"}

func alarmKey(slot int, suffix string) string {
	return "a" + utoa(uint32(slot)) + suffix
}

func (p *Persist) writeAlarmLocked(slot int, a Alarm) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(p.kv.SetU8(alarmKey(slot, "id"), a.ID))
	keep(p.kv.SetBool(alarmKey(slot, "en"), a.Enabled))
	keep(p.kv.SetU8(alarmKey(slot, "hr"), a.Hour))
	keep(p.kv.SetU8(alarmKey(slot, "min"), a.Minute))
	keep(p.kv.SetU8(alarmKey(slot, "days"), a.Days))
	keep(p.kv.SetBool(alarmKey(slot, "snz"), a.Snoozed))
	keep(p.kv.SetU32(alarmKey(slot, "until"), a.SnoozeUntil))
	keep(p.kv.SetU8(alarmKey(slot, "dday"), a.LastDismissedDay))
	return firstErr
}

func (p *Persist) readAlarmLocked(slot int) Alarm {
	a := NewAlarm()
	if v, err := p.kv.GetU8(alarmKey(slot, "id")); err == nil {
		a.ID = v
	}
	if v, err := p.kv.GetBool(alarmKey(slot, "en")); err == nil {
		a.Enabled = v
	}
	if v, err := p.kv.GetU8(alarmKey(slot, "hr")); err == nil && v < 24 {
		a.Hour = v
	}
	if v, err := p.kv.GetU8(alarmKey(slot, "min")); err == nil && v < 60 {
		a.Minute = v
	}
	if v, err := p.kv.GetU8(alarmKey(slot, "days")); err == nil {
		a.Days = v & DaysEveryDay
	}
	if v, err := p.kv.GetBool(alarmKey(slot, "snz")); err == nil {
		a.Snoozed = v
	}
	if v, err := p.kv.GetU32(alarmKey(slot, "until")); err == nil {
		a.SnoozeUntil = v
	}
	if v, err := p.kv.GetU8(alarmKey(slot, "dday")); err == nil {
		a.LastDismissedDay = v
	}
	return a
}

func clampU8(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
