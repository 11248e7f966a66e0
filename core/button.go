package core

import "time"

// ButtonMode selects how the single push-button is read and what its
// presses mean.
type ButtonMode uint8

const (
	ModeIdle    ButtonMode = iota // interrupt-driven, presses cycle pages
	ModeRinging                   // polled, press snoozes or dismisses
	ModeSnoozed                   // polled, long hold dismisses all snoozed
)

func (m ButtonMode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRinging:
		return "ringing"
	case ModeSnoozed:
		return "snoozed"
	}
	return "unknown"
}

// ButtonEvent is a semantic press, at most one per physical press.
type ButtonEvent uint8

const (
	EventNone ButtonEvent = iota
	EventPageCycle
	EventSnooze
	EventDismiss
	EventDismissAll
)

const (
	debounceMillis           = 50
	snoozedDismissHoldMillis = 3000
)

// buttonState is the polled debouncer state. It is a plain value so
// stepButton can stay a pure function.
type buttonState struct {
	pressed     bool
	pressStart  uint32
	lastEdge    uint32
	actionTaken bool
}

// stepButton advances the polled button machine by one sample.
// pinLow is the raw active-low level, holdMillis the dismiss hold
// threshold for the current mode. The returned fraction is the hold
// progress toward that threshold while a press is in flight.
//
// In ModeRinging a release at or under the threshold snoozes and a
// hold crossing it dismisses; in ModeSnoozed only the crossing acts;
// in ModeIdle any release is a page cycle. actionTaken latches after
// the first event so one physical press cannot act twice.
func stepButton(mode ButtonMode, st buttonState, pinLow bool, now uint32, holdMillis uint32) (buttonState, ButtonEvent, float32) {
	event := EventNone

	if pinLow != st.pressed && now-st.lastEdge >= debounceMillis {
		st.pressed = pinLow
		st.lastEdge = now
		if pinLow {
			st.pressStart = now
			st.actionTaken = false
		} else if !st.actionTaken {
			held := now - st.pressStart
			switch mode {
			case ModeIdle:
				event = EventPageCycle
				st.actionTaken = true
			case ModeRinging:
				if held <= holdMillis {
					event = EventSnooze
					st.actionTaken = true
				}
			case ModeSnoozed:
				// short press while snoozed does nothing
			}
		}
	}

	var progress float32
	if st.pressed && !st.actionTaken {
		held := now - st.pressStart
		switch mode {
		case ModeRinging:
			if held > holdMillis {
				event = EventDismiss
				st.actionTaken = true
			} else if holdMillis > 0 {
				progress = float32(held) / float32(holdMillis)
			}
		case ModeSnoozed:
			if held > snoozedDismissHoldMillis {
				event = EventDismissAll
				st.actionTaken = true
			} else {
				progress = float32(held) / float32(snoozedDismissHoldMillis)
			}
		}
	}
	return st, event, progress
}

// ButtonArbiter turns raw button edges into semantic events. In idle
// mode it rides the GPIO interrupt so the loop never polls; the moment
// an alarm rings or snoozes it detaches the interrupt and polls the
// pin each tick, because an edge delivered mid-hold would race the
// dismiss-progress bookkeeping. Mode changes happen at most once per
// tick and drop any half-captured press.
type ButtonArbiter struct {
	pin     GPIOPin
	pa      *Persist
	rc      *RingController
	display Display

	mode         ButtonMode
	st           buttonState
	useInterrupt bool
	attached     bool

	// written from the edge interrupt, read under a critical section
	isrPressTime uint32
	isrLastEdge  uint32
	isrDuration  uint32
	isrNewPress  bool
}

func NewButtonArbiter(pin GPIOPin, pa *Persist, rc *RingController, display Display) *ButtonArbiter {
	if display == nil {
		display = NullDisplay{}
	}
	return &ButtonArbiter{pin: pin, pa: pa, rc: rc, display: display}
}

// Init claims the pin. Targets without an edge-capable GPIO driver
// fall back to polling in every mode.
func (ba *ButtonArbiter) Init() {
	MustGPIO().ConfigureInputPullUp(ba.pin)
	ba.useInterrupt = HasGPIOInterrupt()
	if ba.useInterrupt {
		ba.attachEdge()
	} else {
		DebugPrintln("[BTN] no edge interrupts, polling only")
	}
}

// HandleEdge is the interrupt service routine for the button pin.
// level is the electrical level after the edge. Exported so targets
// can route their machine-level callbacks here; never call it from
// the main loop.
func (ba *ButtonArbiter) HandleEdge(level bool) {
	now := Millis()
	if now-ba.isrLastEdge < debounceMillis {
		return
	}
	ba.isrLastEdge = now
	if !level {
		ba.isrPressTime = now
	} else if ba.isrPressTime != 0 {
		ba.isrDuration = now - ba.isrPressTime
		ba.isrNewPress = true
		ba.isrPressTime = 0
	}
}

// Poll runs once per tick: select the mode, then dispatch either the
// latched interrupt press or the polled machine.
func (ba *ButtonArbiter) Poll(now time.Time) {
	want := ModeIdle
	if ba.rc.IsRinging() {
		want = ModeRinging
	} else if ba.pa.AnySnoozed() {
		want = ModeSnoozed
	}
	if want != ba.mode {
		ba.setMode(want)
	}

	if ba.mode == ModeIdle && ba.attached {
		if _, ok := ba.takePress(); ok {
			DebugPrintln("[BTN] page cycle")
			ba.display.CyclePage()
		}
		return
	}
	ba.stepPolled(now)
}

func (ba *ButtonArbiter) stepPolled(now time.Time) {
	pinLow := !MustGPIO().ReadPin(ba.pin)
	holdMillis := uint32(ba.pa.DismissSeconds()) * 1000
	st, event, progress := stepButton(ba.mode, ba.st, pinLow, Millis(), holdMillis)
	ba.st = st
	if ba.mode == ModeRinging {
		ba.display.SetRingingOverlay(true, progress)
	}
	switch event {
	case EventPageCycle:
		DebugPrintln("[BTN] page cycle")
		ba.display.CyclePage()
	case EventSnooze:
		ba.snoozeActive(now)
	case EventDismiss:
		ba.dismissActive(now)
	case EventDismissAll:
		ba.dismissAllSnoozed(now)
	}
}

// snoozeActive handles a short press on the ringing alarm. A repeating
// alarm goes into its hold-off; a one-shot has nothing to come back
// to, so the press ends it outright.
func (ba *ButtonArbiter) snoozeActive(now time.Time) {
	id := ba.rc.ActiveAlarmID()
	if id == NoActiveAlarm {
		return
	}
	a, ok := ba.pa.AlarmByID(uint8(id))
	if !ok {
		ba.rc.Stop()
		return
	}
	if a.Repeats() {
		mins := ba.pa.SnoozeMinutes()
		a.Snooze(now, mins)
		RecordEvent(EvtSnooze, a.ID, Millis(), a.SnoozeUntil)
		DebugPrintln("[BTN] snoozed alarm " + utoa(uint32(a.ID)) + " for " + utoa(uint32(mins)) + " min")
	} else {
		a.Dismiss(now)
		RecordEvent(EvtDismiss, a.ID, Millis(), 0)
		DebugPrintln("[BTN] one-shot alarm " + utoa(uint32(a.ID)) + " done")
	}
	ba.pa.PutAlarm(a)
	ba.rc.Stop()
}

func (ba *ButtonArbiter) dismissActive(now time.Time) {
	id := ba.rc.ActiveAlarmID()
	if id == NoActiveAlarm {
		return
	}
	if a, ok := ba.pa.AlarmByID(uint8(id)); ok {
		a.Dismiss(now)
		ba.pa.PutAlarm(a)
		RecordEvent(EvtDismiss, a.ID, Millis(), 0)
		DebugPrintln("[BTN] dismissed alarm " + utoa(uint32(a.ID)))
	}
	ba.rc.Stop()
}

func (ba *ButtonArbiter) dismissAllSnoozed(now time.Time) {
	alarms := ba.pa.Alarms()
	n := 0
	for i := range alarms {
		if alarms[i].Snoozed {
			alarms[i].Dismiss(now)
			ba.pa.PutAlarm(alarms[i])
			RecordEvent(EvtDismiss, alarms[i].ID, Millis(), 0)
			n++
		}
	}
	DebugPrintln("[BTN] dismissed " + itoa(n) + " snoozed alarms")
}

// Mode returns the current dispatch mode.
func (ba *ButtonArbiter) Mode() ButtonMode { return ba.mode }

func (ba *ButtonArbiter) setMode(m ButtonMode) {
	DebugPrintln("[BTN] mode " + ba.mode.String() + " -> " + m.String())
	if m == ModeIdle {
		ba.attachEdge()
	} else {
		ba.detachEdge()
	}
	ba.clearPending()
	ba.st = buttonState{lastEdge: Millis()}
	ba.mode = m
}

func (ba *ButtonArbiter) attachEdge() {
	if !ba.useInterrupt || ba.attached {
		return
	}
	if err := MustGPIOInterrupt().AttachChange(ba.pin, ba.HandleEdge); err != nil {
		DebugPrintln("[BTN] attach failed: " + err.Error())
		ba.useInterrupt = false
		return
	}
	ba.attached = true
}

func (ba *ButtonArbiter) detachEdge() {
	if !ba.attached {
		return
	}
	if err := MustGPIOInterrupt().Detach(ba.pin); err != nil {
		DebugPrintln("[BTN] detach failed: " + err.Error())
	}
	ba.attached = false
}

// takePress consumes the press latched by the interrupt, returning its
// duration and whether one was pending.
func (ba *ButtonArbiter) takePress() (uint32, bool) {
	mask := disableInterrupts()
	dur := ba.isrDuration
	ok := ba.isrNewPress
	ba.isrNewPress = false
	restoreInterrupts(mask)
	return dur, ok
}

func (ba *ButtonArbiter) clearPending() {
	mask := disableInterrupts()
	ba.isrNewPress = false
	ba.isrPressTime = 0
	restoreInterrupts(mask)
}
