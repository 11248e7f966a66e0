package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// AlarmEvent captures an alarm subsystem transition for post-mortem analysis
type AlarmEvent struct {
	Kind    uint8  // Event kind code
	AlarmID uint8  // Alarm identity (0xFF if not alarm-specific)
	Clock   uint32 // Uptime millis at capture
	Value   uint32 // Context-dependent value
}

// Event kind codes
const (
	EvtTrigger = 1 // Scheduler armed an alarm into ringing
	EvtStop    = 2 // Ring stopped (button, auto-off or console)
	EvtSnooze  = 3 // Ringing alarm snoozed; Value = snoozeUntil
	EvtDismiss = 4 // Ringing or snoozed alarm dismissed
	EvtResume  = 5 // Persisted ring replayed after boot; Value = original start
	EvtSync    = 6 // Clock adjusted from a network sample; Value = |step| seconds
	EvtDrift   = 7 // Drift probe result; Value = |offset| seconds
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	// Disabled by default for performance; enable from the target or console
	debugEnabled bool = false

	// Event capture ring buffer (non-blocking, for post-mortem)
	eventRing     [EventRingSize]AlarmEvent
	eventRingHead uint8
	eventsEnabled bool = true // Always capture alarm events

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16) // Buffer 16 messages
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks if debug is enabled (use DebugAsync for non-blocking)
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
			// Channel full, drop message (non-blocking)
		}
	}
}

// RecordEvent captures an alarm subsystem event in the ring buffer
// Always non-blocking; safe to call from the tick path
func RecordEvent(kind, alarmID uint8, clock, value uint32) {
	if !eventsEnabled {
		return
	}
	idx := eventRingHead
	eventRing[idx] = AlarmEvent{
		Kind:    kind,
		AlarmID: alarmID,
		Clock:   clock,
		Value:   value,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// EventRingSnapshot returns the captured events oldest-first
// Empty slots (never written) are skipped
func EventRingSnapshot() []AlarmEvent {
	out := make([]AlarmEvent, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		idx := (start + i) % EventRingSize
		if eventRing[idx].Kind == 0 {
			continue
		}
		out = append(out, eventRing[idx])
	}
	return out
}

// DumpEventRing outputs the event ring buffer (call on fault or from the console)
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENTS] === Alarm Event Dump ===")
	for _, evt := range EventRingSnapshot() {
		var name string
		switch evt.Kind {
		case EvtTrigger:
			name = "TRIGGER"
		case EvtStop:
			name = "STOP"
		case EvtSnooze:
			name = "SNOOZE"
		case EvtDismiss:
			name = "DISMISS"
		case EvtResume:
			name = "RESUME"
		case EvtSync:
			name = "SYNC"
		case EvtDrift:
			name = "DRIFT"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[EVENTS] " + name +
			" alarm=" + itoa(int(evt.AlarmID)) +
			" clock=" + utoa(evt.Clock) +
			" value=" + utoa(evt.Value))
	}
	debugPrintln("[EVENTS] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i] = AlarmEvent{}
	}
	eventRingHead = 0
}
