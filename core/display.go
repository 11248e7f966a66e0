package core

// Display is the outbound notification interface to the rendering layer.
// The core never draws pixels; it only reports state changes. The display
// side owns the backlight PWM and implements the 500 ms flash cadence
// itself when flashing is requested.
type Display interface {
	// SetAlarmIcon reports whether any alarm is enabled and whether any
	// alarm is currently snoozed (the icon shows a countdown variant)
	SetAlarmIcon(enabled bool, snoozing bool)

	// SetRingingOverlay shows or hides the full-screen ringing overlay.
	// While the button is held, progress carries the dismiss-hold
	// fraction in [0,1]; otherwise it is 0.
	SetRingingOverlay(active bool, progress float32)

	// SetBacklightFlash starts or stops flashing the backlight between
	// minimum and maximum brightness
	SetBacklightFlash(active bool)

	// ShowHomePage forces the clock page (used when an alarm fires)
	ShowHomePage()

	// CyclePage advances to the next display page (idle button press)
	CyclePage()

	// SetConditions reports the latest indoor sample: temperature in
	// milli-degrees Celsius, relative humidity in milli-percent
	// (humidity is negative when the source has none, e.g. the RTC die)
	SetConditions(tempMilliC int32, humidityMilliPct int32)
}

// NullDisplay discards every notification. Used headless and in tests
// that don't inspect display traffic.
type NullDisplay struct{}

func (NullDisplay) SetAlarmIcon(bool, bool)          {}
func (NullDisplay) SetRingingOverlay(bool, float32)  {}
func (NullDisplay) SetBacklightFlash(bool)           {}
func (NullDisplay) ShowHomePage()                    {}
func (NullDisplay) CyclePage()                       {}
func (NullDisplay) SetConditions(int32, int32)       {}

// DebugDisplay logs every notification through the debug writer.
// Useful on targets before a real display layer is attached.
type DebugDisplay struct{}

func (DebugDisplay) SetAlarmIcon(enabled, snoozing bool) {
	DebugPrintln("[DISP] icon enabled=" + boolStr(enabled) + " snoozing=" + boolStr(snoozing))
}

func (DebugDisplay) SetRingingOverlay(active bool, progress float32) {
	DebugPrintln("[DISP] overlay active=" + boolStr(active) + " progress%=" + itoa(int(progress*100)))
}

func (DebugDisplay) SetBacklightFlash(active bool) {
	DebugPrintln("[DISP] flash active=" + boolStr(active))
}

func (DebugDisplay) ShowHomePage() {
	DebugPrintln("[DISP] home page")
}

func (DebugDisplay) CyclePage() {
	DebugPrintln("[DISP] cycle page")
}

func (DebugDisplay) SetConditions(tempMilliC, humidityMilliPct int32) {
	DebugPrintln("[DISP] conditions temp_mC=" + itoa(int(tempMilliC)) + " rh_mPct=" + itoa(int(humidityMilliPct)))
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
