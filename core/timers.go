package core

// Timer represents a scheduled deadline on the monotonic millisecond clock.
// The core uses these for the debounced-save flush, the boot ring-resume
// delay, the drift-check cadence and similar housekeeping. Alarm matching
// never runs off this list; it walks wall-clock minutes instead.
type Timer struct {
	WakeMillis uint32
	Handler    func(*Timer) uint8
	Next       *Timer
}

const (
	TimerDone       = 0
	TimerReschedule = 1
)

var (
	timerList *Timer
	timerNow  uint32
)

// ScheduleTimer adds a timer to the schedule
// Re-scheduling an already queued timer must go through CancelTimer first
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	insertTimer(t)
}

// insertTimer inserts a timer in sorted order by WakeMillis
// Ordering is wrap-safe so deadlines straddling the counter wrap still fire
func insertTimer(t *Timer) {
	if timerList == nil || millisBefore(t.WakeMillis, timerList.WakeMillis) {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && millisBefore(current.Next.WakeMillis, t.WakeMillis) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// CancelTimer removes a timer from the schedule if queued
// Returns true if the timer was found and removed
func CancelTimer(t *Timer) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if timerList == nil {
		return false
	}
	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return true
	}

	current := timerList
	for current.Next != nil {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return true
		}
		current = current.Next
	}
	return false
}

// TimerDispatch processes due timers
func TimerDispatch() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	// Process all timers with WakeMillis <= timerNow
	for timerList != nil && millisReached(timerNow, timerList.WakeMillis) {
		timer := timerList
		timerList = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references

		// Call handler
		result := timer.Handler(timer)

		// Reschedule if requested
		if result == TimerReschedule {
			insertTimer(timer)
		}
	}
}

// ProcessTimers samples the millisecond clock and dispatches due timers
// Called once per main loop pass
func ProcessTimers() {
	timerNow = Millis()
	TimerDispatch()
}

// ResetTimers drops all scheduled timers (tests and factory reset)
func ResetTimers() {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	timerList = nil
}
