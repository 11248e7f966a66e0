package core

import "time"

// RingState is the ramp stage of a ringing alarm.
type RingState uint8

const (
	RingSilent RingState = iota
	RingSlow
	RingFast
	RingContinuous
)

func (s RingState) String() string {
	switch s {
	case RingSilent:
		return "silent"
	case RingSlow:
		return "slow"
	case RingFast:
		return "fast"
	case RingContinuous:
		return "continuous"
	}
	return "unknown"
}

// NoActiveAlarm is the ID reported while nothing rings. The persisted
// ringing slot uses the same sentinel.
const NoActiveAlarm int8 = -1

const (
	stage1Seconds     = 10
	stage2Seconds     = 20
	autoOffSeconds    = 1800
	resumeDelayMillis = 5000

	slowBeepOnMillis  = 200
	slowBeepOffMillis = 800
	fastBeepOnMillis  = 150
	fastBeepOffMillis = 150
)

// RingController drives the buzzer through the three-stage ramp and
// owns the persisted ringing record that lets an alarm survive a power
// cut. Stage selection always derives from the wall-clock seconds since
// the trigger, never from uptime, so a reboot resumes mid-ramp.
//
// Owned by the main loop, not safe for concurrent use.
type RingController struct {
	cs      *ClockSource
	pa      *Persist
	display Display
	buzzer  GPIOPin

	state    RingState
	beepOn   bool
	activeID int8
	startTS  uint32 // local epoch seconds of the trigger
	lastBeep uint32 // millis of the last beep phase change
}

func NewRingController(cs *ClockSource, pa *Persist, display Display, buzzer GPIOPin) *RingController {
	if display == nil {
		display = NullDisplay{}
	}
	return &RingController{
		cs:       cs,
		pa:       pa,
		display:  display,
		buzzer:   buzzer,
		activeID: NoActiveAlarm,
	}
}

// Init claims the buzzer pin and drives it low. Checking for a ringing
// record left by a power cut is the boot sequence's job; it arms the
// resume countdown so the display stack is up before the overlay
// appears.
func (rc *RingController) Init() {
	g := MustGPIO()
	g.ConfigureOutput(rc.buzzer)
	g.SetPin(rc.buzzer, false)
}

// Trigger starts ringing the given alarm. Ignored while something is
// already ringing; the scheduler serializes candidates. The ringing
// record is durable before any display notification goes out.
func (rc *RingController) Trigger(id uint8) {
	if rc.state != RingSilent {
		return
	}
	DebugPrintln("[RING] triggering alarm " + utoa(uint32(id)))

	rc.startTS = EpochOf(rc.cs.Now())
	rc.lastBeep = Millis()
	rc.state = RingSlow
	rc.beepOn = true
	rc.activeID = int8(id)
	rc.setBuzzer(true)

	rc.pa.SetRingingAlarm(rc.activeID, rc.startTS)
	RecordEvent(EvtTrigger, id, Millis(), rc.startTS)

	rc.display.ShowHomePage()
	rc.display.SetBacklightFlash(true)
	rc.display.SetRingingOverlay(true, 0)
}

// Resume continues an alarm that was ringing when power was lost. The
// ramp stage is recomputed from the original start; a record older
// than the auto-stop window is cleared instead of rung. The record is
// not re-persisted, it is the one that got us here.
func (rc *RingController) Resume(id uint8, startTS uint32) {
	if rc.state != RingSilent {
		return
	}
	rc.activeID = int8(id)
	rc.startTS = startTS
	rc.lastBeep = Millis()
	rc.beepOn = true

	elapsed := rc.elapsedSeconds()
	switch {
	case elapsed >= stage1Seconds+stage2Seconds:
		rc.state = RingContinuous
	case elapsed >= stage1Seconds:
		rc.state = RingFast
	default:
		rc.state = RingSlow
	}
	if elapsed >= autoOffSeconds {
		DebugPrintln("[RING] stale ringing record, not resuming")
		rc.Stop()
		return
	}
	rc.setBuzzer(true)
	RecordEvent(EvtResume, id, Millis(), startTS)
	DebugPrintln("[RING] resumed alarm " + utoa(uint32(id)) + " at stage " + rc.state.String())

	rc.display.ShowHomePage()
	rc.display.SetBacklightFlash(true)
	rc.display.SetRingingOverlay(true, 0)
}

// Stop silences the buzzer and clears the persisted ringing record.
func (rc *RingController) Stop() {
	if rc.state == RingSilent {
		return
	}
	id := rc.activeID
	DebugPrintln("[RING] stopping alarm " + itoa(int(id)))

	rc.setBuzzer(false)
	rc.state = RingSilent
	rc.beepOn = false
	rc.activeID = NoActiveAlarm

	rc.pa.ClearRingingAlarm()
	RecordEvent(EvtStop, uint8(id), Millis(), 0)

	rc.display.SetBacklightFlash(false)
	rc.display.SetRingingOverlay(false, 0)
}

// Update advances the ramp and toggles the buzzer. Call once per loop
// pass with the pass's single wall-clock read, so stage selection and
// the scheduler agree on the current second.
func (rc *RingController) Update(now time.Time) {
	if rc.state == RingSilent {
		return
	}

	elapsed := rc.elapsedAt(EpochOf(now))
	if elapsed >= autoOffSeconds {
		DebugPrintln("[RING] auto-stop after 30 minutes")
		rc.Stop()
		return
	}
	if rc.state == RingSlow && elapsed >= stage1Seconds {
		DebugPrintln("[RING] ramp to fast beep")
		rc.state = RingFast
	} else if rc.state == RingFast && elapsed >= stage1Seconds+stage2Seconds {
		DebugPrintln("[RING] ramp to continuous")
		rc.state = RingContinuous
		rc.beepOn = true
		rc.setBuzzer(true)
		return
	}
	if rc.state == RingContinuous {
		return
	}

	onMs := uint32(slowBeepOnMillis)
	offMs := uint32(slowBeepOffMillis)
	if rc.state == RingFast {
		onMs = fastBeepOnMillis
		offMs = fastBeepOffMillis
	}
	since := MillisSince(rc.lastBeep)
	if rc.beepOn {
		if since >= onMs {
			rc.beepOn = false
			rc.lastBeep = Millis()
			rc.setBuzzer(false)
		}
	} else {
		if since >= offMs {
			rc.beepOn = true
			rc.lastBeep = Millis()
			rc.setBuzzer(true)
		}
	}
}

// IsRinging reports whether an alarm is sounding.
func (rc *RingController) IsRinging() bool { return rc.state != RingSilent }

// ActiveAlarmID returns the ringing alarm's ID, NoActiveAlarm if none.
func (rc *RingController) ActiveAlarmID() int8 { return rc.activeID }

// State returns the current ramp stage.
func (rc *RingController) State() RingState { return rc.state }

// BuzzerOn reports the current buzzer level.
func (rc *RingController) BuzzerOn() bool { return rc.beepOn || rc.state == RingContinuous }

// ElapsedSeconds returns how long the alarm has been ringing.
func (rc *RingController) ElapsedSeconds() uint32 {
	if rc.state == RingSilent {
		return 0
	}
	return rc.elapsedSeconds()
}

func (rc *RingController) elapsedSeconds() uint32 {
	return rc.elapsedAt(EpochOf(rc.cs.Now()))
}

func (rc *RingController) elapsedAt(nowE uint32) uint32 {
	// a backwards clock step mid-ring restarts the ramp rather than
	// underflowing into an instant auto-stop
	if nowE < rc.startTS {
		return 0
	}
	return nowE - rc.startTS
}

func (rc *RingController) setBuzzer(on bool) {
	MustGPIO().SetPin(rc.buzzer, on)
}
