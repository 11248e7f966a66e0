package core

// LoopIntervalMillis is the cooperative main-loop period. Targets call
// Step at this cadence; everything inside the core is budgeted for it.
const LoopIntervalMillis = 100

const (
	driftProbeMillis = driftCheckSeconds * 1000
	dailyProbeMillis = 60000
)

// CoreConfig carries the target-supplied pieces the core cannot own:
// pins, the display sink, and the network time source.
type CoreConfig struct {
	ButtonPin GPIOPin
	BuzzerPin GPIOPin
	Display   Display
	Query     TimeQuery

	// Sleep blocks for the given milliseconds during the boot sync
	// and sample apply. nil selects a busy spin.
	Sleep func(ms uint32)
}

// CoreContext wires the clock subsystem together. One instance per
// device; everything hangs off it instead of package globals so tests
// can build as many as they like.
//
// Construction requires the RTC, KV and GPIO drivers to be set.
type CoreContext struct {
	PA      *Persist
	CS      *ClockSource
	NTC     *NetTimeClient
	TM      *TimeManager
	AS      *AlarmScheduler
	RC      *RingController
	BA      *ButtonArbiter
	Sampler *ConditionsSampler
	Console *Console
	Display Display

	resumeTimer Timer
	driftTimer  Timer
	dailyTimer  Timer
}

// NewCoreContext builds and wires all core components
func NewCoreContext(cfg CoreConfig) *CoreContext {
	display := cfg.Display
	if display == nil {
		display = NullDisplay{}
	}

	ctx := &CoreContext{Display: display}
	ctx.PA = NewPersist(MustKV())
	ctx.CS = NewClockSource(MustRTC())
	ctx.NTC = NewNetTimeClient(cfg.Query)
	ctx.TM = NewTimeManager(ctx.CS, ctx.NTC, cfg.Query, ctx.PA, cfg.Sleep)
	ctx.RC = NewRingController(ctx.CS, ctx.PA, display, cfg.BuzzerPin)
	ctx.AS = NewAlarmScheduler(ctx.PA, ctx.RC)
	ctx.BA = NewButtonArbiter(cfg.ButtonPin, ctx.PA, ctx.RC, display)
	ctx.Sampler = NewConditionsSampler(ctx.CS, display)
	ctx.Console = NewConsole(ctx)

	ctx.driftTimer.Handler = ctx.driftHandler
	ctx.dailyTimer.Handler = ctx.dailyHandler
	return ctx
}

// Boot runs the power-on sequence. It blocks only when the hardware
// clock came up invalid, in which case the first network sync gates
// everything else.
func (ctx *CoreContext) Boot() {
	if err := ctx.PA.Load(); err != nil {
		DebugPrintln("[BOOT] settings load failed: " + err.Error())
	}

	ctx.CS.Init()
	ctx.RC.Init()
	ctx.BA.Init()
	ctx.TM.BootSync()

	if id, ts := ctx.PA.RingingAlarm(); id != NoActiveAlarm {
		ctx.StartResumeCountdown(uint8(id), ts)
	}

	ctx.driftTimer.WakeMillis = Millis() + driftProbeMillis
	ScheduleTimer(&ctx.driftTimer)
	ctx.dailyTimer.WakeMillis = Millis() + dailyProbeMillis
	ScheduleTimer(&ctx.dailyTimer)

	ctx.refreshAlarmIcon()
	ctx.Display.ShowHomePage()
	DebugPrintln("[BOOT] core up")
}

// StartResumeCountdown defers a power-cut ring resume so the display
// stack is up before the overlay appears. Nothing is lost by waiting;
// the persisted start timestamp drives stage selection.
func (ctx *CoreContext) StartResumeCountdown(id uint8, startTS uint32) {
	DebugPrintln("[BOOT] pending ring resume for alarm " + utoa(uint32(id)))
	ctx.resumeTimer.Handler = func(*Timer) uint8 {
		ctx.RC.Resume(id, startTS)
		return TimerDone
	}
	ctx.resumeTimer.WakeMillis = Millis() + resumeDelayMillis
	CancelTimer(&ctx.resumeTimer)
	ScheduleTimer(&ctx.resumeTimer)
}

// Step runs one cooperative loop pass. The wall clock is read once per
// pass; the button poll, the ring ramp and the per-second scheduler
// work all see the same instant.
func (ctx *CoreContext) Step() {
	ProcessTimers()
	ctx.TM.PollNtp()
	now := ctx.TM.Now()
	ctx.BA.Poll(now)
	ctx.RC.Update(now)
	ctx.Sampler.Poll()

	if ctx.TM.Tick() {
		ctx.AS.Check(now)
		ctx.AS.SweepSnoozes(now)
		ctx.refreshAlarmIcon()
	}
}

func (ctx *CoreContext) driftHandler(t *Timer) uint8 {
	ctx.TM.MarkDriftCheckDue()
	t.WakeMillis += driftProbeMillis
	return TimerReschedule
}

func (ctx *CoreContext) dailyHandler(t *Timer) uint8 {
	ctx.TM.CheckDailySync(ctx.TM.Now())
	t.WakeMillis += dailyProbeMillis
	return TimerReschedule
}

func (ctx *CoreContext) refreshAlarmIcon() {
	ctx.Display.SetAlarmIcon(ctx.PA.AnyEnabled(), ctx.PA.AnySnoozed())
}
