package core

import (
	"errors"
	"testing"
	"time"
)

func TestClockInitValid(t *testing.T) {
	rig := newTestRig(t)
	cs := NewClockSource(rig.rtc)
	cs.Init()

	if !cs.Available() {
		t.Fatal("clock should be available")
	}
	if !cs.Valid() {
		t.Fatal("clock should be valid")
	}
	if got := cs.Now(); !got.Equal(rigTime) {
		t.Errorf("Now: got %v, want %v", got, rigTime)
	}
}

func TestClockInitLostPower(t *testing.T) {
	rig := newTestRig(t)
	rig.rtc.lostPower = true

	cs := NewClockSource(rig.rtc)
	cs.Init()

	if !cs.Available() {
		t.Error("chip answered, should be available")
	}
	if cs.Valid() {
		t.Error("lost-power clock must not be valid")
	}
}

func TestClockInitReprobeDowngrades(t *testing.T) {
	rig := newTestRig(t)
	cs := NewClockSource(rig.rtc)
	cs.Init()
	if !cs.Valid() {
		t.Fatal("clock should be valid after first probe")
	}

	// Battery pulled between probes; the re-probe must drop trust
	rig.rtc.lostPower = true
	cs.Init()
	if cs.Valid() {
		t.Error("re-probe after power loss must invalidate the clock")
	}
	if !cs.Available() {
		t.Error("chip still answers, should stay available")
	}
}

func TestClockInitImplausibleYear(t *testing.T) {
	rig := newTestRig(t)
	rig.rtc.now = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

	cs := NewClockSource(rig.rtc)
	cs.Init()

	if cs.Valid() {
		t.Error("year 2000 must not be valid")
	}
}

func TestClockInitUnreadable(t *testing.T) {
	rig := newTestRig(t)
	rig.rtc.readErr = errors.New("i2c timeout")

	cs := NewClockSource(rig.rtc)
	cs.Init()

	if cs.Available() || cs.Valid() {
		t.Error("unreadable chip must be unavailable and invalid")
	}
}

func TestClockStaleEstimate(t *testing.T) {
	rig := newTestRig(t)
	cs := NewClockSource(rig.rtc)
	cs.Init()

	// Chip stops answering; the estimate advances with millis
	rig.rtc.readErr = errors.New("i2c timeout")
	advanceMillis(2500)

	got := cs.Now()
	if !cs.Stale() {
		t.Fatal("failed read should mark the source stale")
	}
	want := rigTime.Add(2500 * time.Millisecond)
	if !got.Equal(want) {
		t.Errorf("estimate: got %v, want %v", got, want)
	}

	// Reads recover
	rig.rtc.readErr = nil
	rig.rtc.now = rigTime.Add(3 * time.Second)
	got = cs.Now()
	if cs.Stale() {
		t.Error("successful read should clear staleness")
	}
	if !got.Equal(rig.rtc.now) {
		t.Errorf("recovered Now: got %v, want %v", got, rig.rtc.now)
	}
}

func TestClockAdjust(t *testing.T) {
	rig := newTestRig(t)
	rig.rtc.lostPower = true

	cs := NewClockSource(rig.rtc)
	cs.Init()
	if cs.Valid() {
		t.Fatal("precondition: invalid clock")
	}

	target := time.Date(2026, time.August, 24, 12, 30, 0, 0, time.UTC)
	if err := cs.Adjust(target); err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}

	if !cs.Valid() {
		t.Error("Adjust should mark the clock valid")
	}
	if !rig.rtc.now.Equal(target) {
		t.Errorf("hardware not written: got %v", rig.rtc.now)
	}
	if rig.rtc.lostPower {
		t.Error("SetTime should clear the lost-power flag")
	}
}

func TestClockAdjustWithoutHardware(t *testing.T) {
	rig := newTestRig(t)
	rig.rtc.readErr = errors.New("no chip")

	cs := NewClockSource(rig.rtc)
	cs.Init()

	target := time.Date(2026, time.August, 24, 12, 30, 0, 0, time.UTC)
	if err := cs.Adjust(target); err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}
	if !cs.Valid() {
		t.Error("Adjust should mark the clock valid even without a chip")
	}

	advanceMillis(1000)
	want := target.Add(time.Second)
	if got := cs.Now(); !got.Equal(want) {
		t.Errorf("estimated Now: got %v, want %v", got, want)
	}
}

func TestClockTemperature(t *testing.T) {
	rig := newTestRig(t)
	cs := NewClockSource(rig.rtc)
	cs.Init()

	milli, err := cs.Temperature()
	if err != nil {
		t.Fatalf("Temperature failed: %v", err)
	}
	if milli != 24500 {
		t.Errorf("Temperature: got %d, want 24500", milli)
	}
}

func TestEpochRoundTrip(t *testing.T) {
	e := EpochOf(rigTime)
	if got := TimeOfEpoch(e); !got.Equal(rigTime) {
		t.Errorf("round trip: got %v, want %v", got, rigTime)
	}
}
