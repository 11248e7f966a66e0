package core

import (
	"errors"
	"testing"
	"time"
)

// Shared fake drivers for core tests. Each test installs a fresh rig;
// the package-level driver slots make parallel tests unsafe, so none of
// these tests call t.Parallel.

var errKVMissing = errors.New("key not found")

// callLog records cross-component ordering (KV commits vs display
// notifications) for write-through assertions.
type callLog struct {
	entries []string
}

func (l *callLog) add(s string) {
	if l != nil {
		l.entries = append(l.entries, s)
	}
}

type fakeRTC struct {
	now       time.Time
	lostPower bool
	readErr   error
	setErr    error
	tempMilli int32
	tempErr   error
	setCount  int
}

func (r *fakeRTC) ReadTime() (time.Time, error) {
	if r.readErr != nil {
		return time.Time{}, r.readErr
	}
	return r.now, nil
}

func (r *fakeRTC) SetTime(t time.Time) error {
	if r.setErr != nil {
		return r.setErr
	}
	r.now = t
	r.lostPower = false
	r.setCount++
	return nil
}

func (r *fakeRTC) LostPower() (bool, error) { return r.lostPower, nil }

func (r *fakeRTC) Temperature() (int32, error) {
	if r.tempErr != nil {
		return 0, r.tempErr
	}
	return r.tempMilli, nil
}

// advance moves the fake wall clock forward
func (r *fakeRTC) advance(d time.Duration) { r.now = r.now.Add(d) }

type fakeKV struct {
	bools map[string]bool
	u8s   map[string]uint8
	i8s   map[string]int8
	u32s  map[string]uint32
	strs  map[string]string

	commits int
	failSet bool
	log     *callLog
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		bools: make(map[string]bool),
		u8s:   make(map[string]uint8),
		i8s:   make(map[string]int8),
		u32s:  make(map[string]uint32),
		strs:  make(map[string]string),
	}
}

var errKVWriteFailed = errors.New("write failed")

func (k *fakeKV) GetBool(key string) (bool, error) {
	v, ok := k.bools[key]
	if !ok {
		return false, errKVMissing
	}
	return v, nil
}

func (k *fakeKV) SetBool(key string, v bool) error {
	if k.failSet {
		return errKVWriteFailed
	}
	k.bools[key] = v
	return nil
}

func (k *fakeKV) GetU8(key string) (uint8, error) {
	v, ok := k.u8s[key]
	if !ok {
		return 0, errKVMissing
	}
	return v, nil
}

func (k *fakeKV) SetU8(key string, v uint8) error {
	if k.failSet {
		return errKVWriteFailed
	}
	k.u8s[key] = v
	return nil
}

func (k *fakeKV) GetI8(key string) (int8, error) {
	v, ok := k.i8s[key]
	if !ok {
		return 0, errKVMissing
	}
	return v, nil
}

func (k *fakeKV) SetI8(key string, v int8) error {
	if k.failSet {
		return errKVWriteFailed
	}
	k.i8s[key] = v
	return nil
}

func (k *fakeKV) GetU32(key string) (uint32, error) {
	v, ok := k.u32s[key]
	if !ok {
		return 0, errKVMissing
	}
	return v, nil
}

func (k *fakeKV) SetU32(key string, v uint32) error {
	if k.failSet {
		return errKVWriteFailed
	}
	k.u32s[key] = v
	return nil
}

func (k *fakeKV) GetString(key string) (string, error) {
	v, ok := k.strs[key]
	if !ok {
		return "", errKVMissing
	}
	return v, nil
}

func (k *fakeKV) SetString(key string, v string) error {
	if k.failSet {
		return errKVWriteFailed
	}
	k.strs[key] = v
	return nil
}

func (k *fakeKV) Delete(key string) error {
	delete(k.bools, key)
	delete(k.u8s, key)
	delete(k.i8s, key)
	delete(k.u32s, key)
	delete(k.strs, key)
	return nil
}

func (k *fakeKV) Commit() error {
	k.commits++
	k.log.add("kv.commit")
	return nil
}

type fakeGPIO struct {
	levels map[GPIOPin]bool
	modes  map[GPIOPin]string
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{
		levels: make(map[GPIOPin]bool),
		modes:  make(map[GPIOPin]string),
	}
}

func (g *fakeGPIO) ConfigureOutput(pin GPIOPin) error {
	g.modes[pin] = "out"
	g.levels[pin] = false
	return nil
}

func (g *fakeGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	g.modes[pin] = "pullup"
	if _, ok := g.levels[pin]; !ok {
		g.levels[pin] = true // pulled high until driven
	}
	return nil
}

func (g *fakeGPIO) ConfigureInputPullDown(pin GPIOPin) error {
	g.modes[pin] = "pulldown"
	if _, ok := g.levels[pin]; !ok {
		g.levels[pin] = false
	}
	return nil
}

func (g *fakeGPIO) SetPin(pin GPIOPin, value bool) error {
	g.levels[pin] = value
	return nil
}

func (g *fakeGPIO) GetPin(pin GPIOPin) (bool, error) {
	return g.levels[pin], nil
}

func (g *fakeGPIO) ReadPin(pin GPIOPin) bool {
	return g.levels[pin]
}

type fakeIRQ struct {
	attached map[GPIOPin]func(level bool)
}

func newFakeIRQ() *fakeIRQ {
	return &fakeIRQ{attached: make(map[GPIOPin]func(level bool))}
}

func (q *fakeIRQ) AttachChange(pin GPIOPin, fn func(level bool)) error {
	q.attached[pin] = fn
	return nil
}

func (q *fakeIRQ) Detach(pin GPIOPin) error {
	delete(q.attached, pin)
	return nil
}

// fire simulates an edge interrupt for the pin
func (q *fakeIRQ) fire(pin GPIOPin, level bool) {
	if fn := q.attached[pin]; fn != nil {
		fn(level)
	}
}

type recorderDisplay struct {
	log *callLog

	alarmIcon   bool
	snoozeIcon  bool
	overlay     bool
	progress    float32
	flash       bool
	homeShown   int
	pagesCycled int
	tempMilliC  int32
	rhMilliPct  int32
}

func (d *recorderDisplay) SetAlarmIcon(enabled, snoozing bool) {
	d.alarmIcon = enabled
	d.snoozeIcon = snoozing
	d.log.add("display.icon")
}

func (d *recorderDisplay) SetRingingOverlay(active bool, progress float32) {
	d.overlay = active
	d.progress = progress
	d.log.add("display.overlay")
}

func (d *recorderDisplay) SetBacklightFlash(active bool) {
	d.flash = active
	d.log.add("display.flash")
}

func (d *recorderDisplay) ShowHomePage() {
	d.homeShown++
	d.log.add("display.home")
}

func (d *recorderDisplay) CyclePage() {
	d.pagesCycled++
	d.log.add("display.cycle")
}

func (d *recorderDisplay) SetConditions(tempMilliC, humidityMilliPct int32) {
	d.tempMilliC = tempMilliC
	d.rhMilliPct = humidityMilliPct
	d.log.add("display.conditions")
}

type fakeSensor struct {
	tempMilliC int32
	rhMilliPct int32
	err        error
}

func (s *fakeSensor) Read() (int32, int32, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	return s.tempMilliC, s.rhMilliPct, nil
}

// testRig installs fresh fake drivers into the package-level slots and
// rewinds the simulated clocks.
type testRig struct {
	rtc *fakeRTC
	kv  *fakeKV
	gp  *fakeGPIO
	irq *fakeIRQ
	log *callLog
}

// rigTime is the default fake wall clock: Monday 2026-08-24 07:00:00.
var rigTime = time.Date(2026, time.August, 24, 7, 0, 0, 0, time.UTC)

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	rig := &testRig{
		rtc: &fakeRTC{now: rigTime, tempMilli: 24500},
		kv:  newFakeKV(),
		gp:  newFakeGPIO(),
		log: &callLog{},
	}
	rig.kv.log = rig.log

	SetMillis(0)
	ResetTimers()
	ClearEventRing()
	SetRTCDriver(rig.rtc)
	SetKVDriver(rig.kv)
	SetGPIODriver(rig.gp)
	SetGPIOInterruptDriver(nil)
	SetSensorDriver(nil)
	return rig
}

// withIRQ registers an edge-interrupt fake, as a board with button
// interrupts would.
func (rig *testRig) withIRQ() *fakeIRQ {
	rig.irq = newFakeIRQ()
	SetGPIOInterruptDriver(rig.irq)
	return rig.irq
}

// advanceMillis moves the monotonic clock forward
func advanceMillis(ms uint32) {
	SetMillis(Millis() + ms)
}

// fakeTimeQuery scripts network time answers per server name. Servers
// without an entry report errNoAnswer. calls records the query order.
type fakeTimeQuery struct {
	answers map[string]TimeSample
	calls   []string
}

var errNoAnswer = errors.New("no answer")

func newFakeTimeQuery() *fakeTimeQuery {
	return &fakeTimeQuery{answers: make(map[string]TimeSample)}
}

func (q *fakeTimeQuery) Query(server string, timeoutMillis uint32) (TimeSample, error) {
	q.calls = append(q.calls, server)
	s, ok := q.answers[server]
	if !ok {
		return TimeSample{}, errNoAnswer
	}
	return s, nil
}

// answerAll scripts the same sample on every default server.
func (q *fakeTimeQuery) answerAll(s TimeSample) {
	for _, srv := range DefaultNTPServers {
		q.answers[srv] = s
	}
}
