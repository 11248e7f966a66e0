package core

import (
	"sync/atomic"
	"time"

	"goclock/protocol"
)

// Console owns the serial command surface: the command registry, the
// data dictionary, and the transport used to send responses. Handlers
// mutate core state only through the persist and time manager APIs.
type Console struct {
	reg       *CommandRegistry
	dict      *Dictionary
	transport *protocol.Transport
	ctx       *CoreContext

	// Staged alarm table for the atomic replace sequence
	// (alarms_begin / alarms_item / alarms_commit)
	stagedAlarms []Alarm
	staging      bool

	// resetPending is set when a reset command is received.
	// The actual reset happens in the main loop after the ACK is sent.
	resetPending uint32 // atomic bool
	resetHandler func()
}

// NewConsole creates the console and registers all commands
func NewConsole(ctx *CoreContext) *Console {
	c := &Console{
		reg: NewCommandRegistry(),
		ctx: ctx,
	}
	c.dict = NewDictionary(c.reg)
	c.registerAll()
	return c
}

// registerAll registers the command set, response messages, constants
// and enumerations.
// IMPORTANT: Command registration order matters!
// The host has a hardcoded bootstrap dictionary:
//
//	identify_response = ID 0
//	identify = ID 1
func (c *Console) registerAll() {
	// Bootstrap messages - MUST be first to match the host's defaults
	c.reg.RegisterResponse("identify_response", "offset=%u data=%*s")  // ID 0
	c.reg.Register("identify", "offset=%u count=%c", c.handleIdentify) // ID 1

	// Queries
	c.reg.Register("get_uptime", "", c.handleGetUptime)
	c.reg.Register("get_status", "", c.handleGetStatus)
	c.reg.Register("get_time", "", c.handleGetTime)
	c.reg.Register("get_temp", "", c.handleGetTemp)
	c.reg.Register("get_config", "", c.handleGetConfig)
	c.reg.Register("list_alarms", "", c.handleListAlarms)
	c.reg.Register("dump_events", "", c.handleDumpEvents)

	// Mutations
	c.reg.Register("set_time", "utc=%u", c.handleSetTime)
	c.reg.Register("sync_now", "", c.handleSyncNow)
	c.reg.Register("set_config", "key=%c value=%u", c.handleSetConfig)
	c.reg.Register("set_tz", "tz=%*s", c.handleSetTZ)
	c.reg.Register("set_alarm", "id=%c enabled=%c hour=%c minute=%c days=%c", c.handleSetAlarm)
	c.reg.Register("remove_alarm", "id=%c", c.handleRemoveAlarm)
	c.reg.Register("alarms_begin", "count=%c", c.handleAlarmsBegin)
	c.reg.Register("alarms_item", "enabled=%c hour=%c minute=%c days=%c", c.handleAlarmsItem)
	c.reg.Register("alarms_commit", "", c.handleAlarmsCommit)
	c.reg.Register("stop_ring", "", c.handleStopRing)
	c.reg.Register("factory_reset", "keep_network=%c", c.handleFactoryReset)
	c.reg.Register("reset", "", c.handleReset)

	// Response messages (clock -> host)
	c.reg.RegisterResponse("uptime", "clock=%u")
	c.reg.RegisterResponse("status", "uptime=%u time_valid=%c time_stale=%c sync=%c ringing=%i snoozing=%c alarms=%c save_pending=%c")
	c.reg.RegisterResponse("time", "epoch=%u text=%*s date=%*s dow=%*s")
	c.reg.RegisterResponse("temp", "millic=%i rh=%i")
	c.reg.RegisterResponse("config", "tz=%*s snooze=%c dismiss=%c hour24=%c celsius=%c autobright=%c brightness=%c dst=%c")
	c.reg.RegisterResponse("alarm_info", "index=%c id=%c enabled=%c hour=%c minute=%c days=%c snoozed=%c until=%u dday=%c")
	c.reg.RegisterResponse("tz", "name=%*s dst=%c offset=%i")
	c.reg.RegisterResponse("event_info", "kind=%c alarm=%c clock=%u value=%u")
	c.reg.RegisterResponse("result", "ok=%c msg=%*s")

	// Constants and enumerations exposed in the dictionary
	// Note: MCU and CLOCK_FREQ are platform-specific and registered by targets
	c.dict.AddConstant("MAX_ALARMS", uint32(MaxAlarms))
	c.dict.AddConstant("LOOP_INTERVAL_MS", uint32(LoopIntervalMillis))
	c.dict.AddConstant("ALARM_AUTO_OFF_S", uint32(autoOffSeconds))
	c.dict.AddEnumeration("weekday", dayNames[:])
	c.dict.AddEnumeration("config_key", []string{"", "snooze_minutes", "dismiss_seconds", "hour24", "celsius", "auto_brightness", "brightness"})
	c.dict.AddEnumeration("sync_state", []string{"idle", "in_progress", "success", "failed"})
}

// Registry returns the command registry
func (c *Console) Registry() *CommandRegistry { return c.reg }

// Dictionary returns the data dictionary (targets add their constants
// here before calling BuildDictionary)
func (c *Console) Dictionary() *Dictionary { return c.dict }

// AttachTransport sets the transport used for sending responses
func (c *Console) AttachTransport(t *protocol.Transport) { c.transport = t }

// HandleFrame dispatches one decoded command. Wire it as the transport's
// command handler.
func (c *Console) HandleFrame(cmdID uint16, data *[]byte) error {
	return c.reg.Dispatch(cmdID, data)
}

// SetResetHandler sets the platform-specific reset handler
func (c *Console) SetResetHandler(handler func()) { c.resetHandler = handler }

// CheckPendingReset executes a requested reset. Call from the main loop
// after all pending messages are flushed.
func (c *Console) CheckPendingReset() {
	if atomic.LoadUint32(&c.resetPending) != 0 {
		if c.resetHandler != nil {
			c.resetHandler()
			// Should never return - the handler resets the MCU
		}
	}
}

// sendResponse sends a pre-registered response message
func (c *Console) sendResponse(name string, args func(output protocol.OutputBuffer)) {
	if c.transport == nil {
		return
	}
	cmd, ok := c.reg.GetCommandByName(name)
	if !ok {
		// All responses are registered in registerAll, so this is a bug
		panic("response not registered: " + name)
	}
	c.transport.SendCommand(cmd.ID, args)
}

func (c *Console) sendResult(ok bool, msg string) {
	c.sendResponse("result", func(output protocol.OutputBuffer) {
		encodeBool(output, ok)
		protocol.EncodeVLQString(output, msg)
	})
}

func encodeBool(output protocol.OutputBuffer, v bool) {
	if v {
		protocol.EncodeVLQUint(output, 1)
	} else {
		protocol.EncodeVLQUint(output, 0)
	}
}

// handleIdentify returns chunks of the data dictionary
func (c *Console) handleIdentify(data *[]byte) error {
	// Decode arguments: offset (uint32), count (uint8)
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	count8, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count := uint8(count8)

	chunk := c.dict.GetChunk(offset, count)

	c.sendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})

	return nil
}

// handleGetUptime returns milliseconds since boot
func (c *Console) handleGetUptime(data *[]byte) error {
	uptime := Millis()

	c.sendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uptime)
	})

	return nil
}

// handleGetStatus returns a one-shot health summary
func (c *Console) handleGetStatus(data *[]byte) error {
	uptime := Millis()
	timeValid := c.ctx.TM.IsTimeSet()
	timeStale := c.ctx.CS.Stale()
	syncState := uint8(c.ctx.TM.SyncState())
	ringing := int32(c.ctx.RC.ActiveAlarmID())
	snoozing := c.ctx.PA.AnySnoozed()
	alarms := c.ctx.PA.AlarmCount()
	savePending := c.ctx.PA.Dirty()

	c.sendResponse("status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uptime)
		encodeBool(output, timeValid)
		encodeBool(output, timeStale)
		protocol.EncodeVLQUint(output, uint32(syncState))
		protocol.EncodeVLQInt(output, ringing)
		encodeBool(output, snoozing)
		protocol.EncodeVLQUint(output, uint32(alarms))
		encodeBool(output, savePending)
	})

	return nil
}

// handleGetTime returns the current local time, raw and formatted
func (c *Console) handleGetTime(data *[]byte) error {
	now := c.ctx.TM.Now()
	epoch := EpochOf(now)
	text := c.ctx.TM.FormattedTime()
	date := c.ctx.TM.FormattedDate()
	dow := c.ctx.TM.DayOfWeek()

	c.sendResponse("time", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, epoch)
		protocol.EncodeVLQString(output, text)
		protocol.EncodeVLQString(output, date)
		protocol.EncodeVLQString(output, dow)
	})

	return nil
}

// handleSetTime sets the clock from a host-supplied UTC epoch. The
// device converts to local time with its own timezone rules.
func (c *Console) handleSetTime(data *[]byte) error {
	utcEpoch, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	utc := time.Unix(int64(utcEpoch), 0).UTC()
	local := c.ctx.TM.tz.ToLocal(utc)

	old := c.ctx.CS.Now()
	if err := c.ctx.CS.Adjust(local); err != nil {
		c.sendResult(false, "clock write failed")
		return nil
	}
	c.ctx.PA.SetDST(c.ctx.TM.tz.IsDST(utc))

	oldE := EpochOf(old)
	newE := EpochOf(local)
	step := newE - oldE
	if oldE > newE {
		step = oldE - newE
	}
	RecordEvent(EvtSync, 0xFF, Millis(), step)
	DebugPrintln("[Console] Time set to " + local.Format("2006-01-02 15:04:05"))

	c.sendResult(true, "time set")
	return nil
}

// handleGetTemp returns the last sensor sample, falling back to the
// RTC die temperature when no sensor reading is available
func (c *Console) handleGetTemp(data *[]byte) error {
	milliC, rh, ok := c.ctx.Sampler.Last()
	if !ok {
		t, err := c.ctx.CS.Temperature()
		if err != nil {
			c.sendResult(false, "no temperature source")
			return nil
		}
		milliC, rh = t, -1
	}

	c.sendResponse("temp", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQInt(output, milliC)
		protocol.EncodeVLQInt(output, rh)
	})

	return nil
}

// handleSyncNow starts a network time sync
func (c *Console) handleSyncNow(data *[]byte) error {
	c.ctx.TM.SyncNow()
	c.sendResult(true, "sync started")
	return nil
}

// handleGetConfig returns the user-facing configuration
func (c *Console) handleGetConfig(data *[]byte) error {
	pa := c.ctx.PA
	tz := pa.Timezone()
	snooze := pa.SnoozeMinutes()
	dismiss := pa.DismissSeconds()
	hour24 := pa.Hour24()
	celsius := pa.UseCelsius()
	autoBright := pa.AutoBrightness()
	brightness := pa.Brightness()
	dst := pa.DST()

	c.sendResponse("config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQString(output, tz)
		protocol.EncodeVLQUint(output, uint32(snooze))
		protocol.EncodeVLQUint(output, uint32(dismiss))
		encodeBool(output, hour24)
		encodeBool(output, celsius)
		encodeBool(output, autoBright)
		protocol.EncodeVLQUint(output, uint32(brightness))
		encodeBool(output, dst)
	})

	return nil
}

// handleSetConfig sets one configuration field by key (see the
// config_key enumeration in the dictionary)
func (c *Console) handleSetConfig(data *[]byte) error {
	key, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pa := c.ctx.PA
	switch key {
	case 1:
		pa.SetSnoozeMinutes(uint8(value))
	case 2:
		pa.SetDismissSeconds(uint8(value))
	case 3:
		pa.SetHour24(value != 0)
	case 4:
		pa.SetUseCelsius(value != 0)
	case 5:
		pa.SetAutoBrightness(value != 0)
	case 6:
		pa.SetBrightness(uint8(value))
	default:
		c.sendResult(false, "unknown config key")
		return nil
	}

	c.sendResult(true, "config updated")
	return nil
}

// handleSetTZ validates and stores a POSIX TZ spec, then echoes the
// parsed zone
func (c *Console) handleSetTZ(data *[]byte) error {
	spec, err := protocol.DecodeVLQString(data)
	if err != nil {
		return err
	}

	if err := c.ctx.PA.SetTimezone(spec); err != nil {
		c.sendResult(false, err.Error())
		return nil
	}
	// The time manager reloads the zone on its next poll via the
	// persist revision counter.

	z, _ := ParseTZ(spec)
	c.sendResponse("tz", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQString(output, z.StdName)
		encodeBool(output, z.HasDST)
		protocol.EncodeVLQInt(output, z.StdOffset)
	})

	return nil
}

// handleListAlarms sends one alarm_info per stored alarm, then a result
// with the count
func (c *Console) handleListAlarms(data *[]byte) error {
	alarms := c.ctx.PA.Alarms()
	for i, a := range alarms {
		idx, al := uint32(i), a
		c.sendResponse("alarm_info", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, idx)
			protocol.EncodeVLQUint(output, uint32(al.ID))
			encodeBool(output, al.Enabled)
			protocol.EncodeVLQUint(output, uint32(al.Hour))
			protocol.EncodeVLQUint(output, uint32(al.Minute))
			protocol.EncodeVLQUint(output, uint32(al.Days))
			encodeBool(output, al.Snoozed)
			protocol.EncodeVLQUint(output, al.SnoozeUntil)
			protocol.EncodeVLQUint(output, uint32(al.LastDismissedDay))
		})
	}
	c.sendResult(true, utoa(uint32(len(alarms))))
	return nil
}

// handleSetAlarm creates or updates a single alarm. id=0xFF creates a
// new alarm and the result message carries the assigned ID.
func (c *Console) handleSetAlarm(data *[]byte) error {
	id, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	enabled, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	hour, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	minute, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	days, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if hour > 23 || minute > 59 || days > uint32(DaysEveryDay) {
		c.sendResult(false, "bad alarm fields")
		return nil
	}

	var a Alarm
	if uint8(id) == UnassignedAlarmID {
		a = NewAlarm()
	} else {
		existing, ok := c.ctx.PA.AlarmByID(uint8(id))
		if !ok {
			c.sendResult(false, "no such alarm")
			return nil
		}
		a = existing
	}

	a.Hour = uint8(hour)
	a.Minute = uint8(minute)
	a.Days = uint8(days)
	a.SetEnabled(enabled != 0)

	newID, ok := c.ctx.PA.PutAlarm(a)
	if !ok {
		c.sendResult(false, "alarm table full")
		return nil
	}

	c.sendResult(true, "alarm "+utoa(uint32(newID)))
	return nil
}

// handleRemoveAlarm deletes one alarm by ID
func (c *Console) handleRemoveAlarm(data *[]byte) error {
	id, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if !c.ctx.PA.RemoveAlarm(uint8(id)) {
		c.sendResult(false, "no such alarm")
		return nil
	}

	c.sendResult(true, "alarm removed")
	return nil
}

// handleAlarmsBegin starts an atomic alarm table replace
func (c *Console) handleAlarmsBegin(data *[]byte) error {
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if count > MaxAlarms {
		c.sendResult(false, "too many alarms")
		return nil
	}

	c.staging = true
	c.stagedAlarms = make([]Alarm, 0, count)
	c.sendResult(true, "staging")
	return nil
}

// handleAlarmsItem appends one alarm to the staged table
func (c *Console) handleAlarmsItem(data *[]byte) error {
	enabled, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	hour, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	minute, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	days, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if !c.staging {
		c.sendResult(false, "no staging in progress")
		return nil
	}
	if hour > 23 || minute > 59 || days > uint32(DaysEveryDay) {
		c.sendResult(false, "bad alarm fields")
		return nil
	}
	if len(c.stagedAlarms) >= MaxAlarms {
		c.sendResult(false, "too many alarms")
		return nil
	}

	a := NewAlarm()
	a.Hour = uint8(hour)
	a.Minute = uint8(minute)
	a.Days = uint8(days)
	a.Enabled = enabled != 0
	c.stagedAlarms = append(c.stagedAlarms, a)

	c.sendResult(true, "staged "+itoa(len(c.stagedAlarms)))
	return nil
}

// handleAlarmsCommit swaps in the staged alarm table
func (c *Console) handleAlarmsCommit(data *[]byte) error {
	if !c.staging {
		c.sendResult(false, "no staging in progress")
		return nil
	}

	c.ctx.PA.ReplaceAlarms(c.stagedAlarms)
	n := len(c.stagedAlarms)
	c.staging = false
	c.stagedAlarms = nil

	c.sendResult(true, "replaced "+itoa(n))
	return nil
}

// handleStopRing dismisses the active alarm, same as a button hold
func (c *Console) handleStopRing(data *[]byte) error {
	id := c.ctx.RC.ActiveAlarmID()
	if id == NoActiveAlarm {
		c.sendResult(false, "not ringing")
		return nil
	}

	if a, ok := c.ctx.PA.AlarmByID(uint8(id)); ok {
		a.Dismiss(c.ctx.TM.Now())
		c.ctx.PA.PutAlarm(a)
	}
	c.ctx.RC.Stop()

	c.sendResult(true, "dismissed")
	return nil
}

// handleDumpEvents sends the captured alarm event ring, oldest first
func (c *Console) handleDumpEvents(data *[]byte) error {
	events := EventRingSnapshot()
	for _, e := range events {
		ev := e
		c.sendResponse("event_info", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(ev.Kind))
			protocol.EncodeVLQUint(output, uint32(ev.AlarmID))
			protocol.EncodeVLQUint(output, ev.Clock)
			protocol.EncodeVLQUint(output, ev.Value)
		})
	}
	c.sendResult(true, itoa(len(events)))
	return nil
}

// handleFactoryReset wipes stored settings. keep_network=1 preserves
// the Wi-Fi credentials.
func (c *Console) handleFactoryReset(data *[]byte) error {
	keepNetwork, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	var rerr error
	if keepNetwork != 0 {
		rerr = c.ctx.PA.FactoryResetExceptNetwork()
	} else {
		rerr = c.ctx.PA.FactoryReset()
	}
	if rerr != nil {
		c.sendResult(false, "reset failed: "+rerr.Error())
		return nil
	}

	c.sendResult(true, "defaults restored")
	return nil
}

// handleReset triggers a hardware reset of the MCU
// NOTE: The actual reset is deferred until after the ACK is sent
func (c *Console) handleReset(_ *[]byte) error {
	// Don't reset immediately - we need to send the ACK first
	atomic.StoreUint32(&c.resetPending, 1)
	return nil
}
