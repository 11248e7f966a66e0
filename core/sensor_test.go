package core

import (
	"errors"
	"testing"
)

func newSamplerRig(t *testing.T) (*testRig, *recorderDisplay, *ConditionsSampler) {
	t.Helper()
	rig := newTestRig(t)
	cs := NewClockSource(MustRTC())
	cs.Init()
	disp := &recorderDisplay{log: rig.log}
	return rig, disp, NewConditionsSampler(cs, disp)
}

func TestSamplerFirstPollSamplesImmediately(t *testing.T) {
	_, disp, s := newSamplerRig(t)
	SetSensorDriver(&fakeSensor{tempMilliC: 21500, rhMilliPct: 43000})

	s.Poll()
	temp, rh, ok := s.Last()
	if !ok || temp != 21500 || rh != 43000 {
		t.Fatalf("Last = %d %d %v", temp, rh, ok)
	}
	if disp.tempMilliC != 21500 || disp.rhMilliPct != 43000 {
		t.Error("display not updated")
	}
}

func TestSamplerInterval(t *testing.T) {
	_, disp, s := newSamplerRig(t)
	drv := &fakeSensor{tempMilliC: 21500, rhMilliPct: 43000}
	SetSensorDriver(drv)

	s.Poll()
	drv.tempMilliC = 22000

	// Inside the interval nothing is read
	advanceMillis(sensorIntervalMillis - 1)
	s.Poll()
	if temp, _, _ := s.Last(); temp != 21500 {
		t.Error("sampled again inside the interval")
	}

	advanceMillis(1)
	s.Poll()
	if temp, _, _ := s.Last(); temp != 22000 {
		t.Error("interval elapsed but no new sample")
	}
	if disp.tempMilliC != 22000 {
		t.Error("display missed the new sample")
	}
}

func TestSamplerRTCFallback(t *testing.T) {
	// No sensor driver registered; the RTC die temperature stands in
	// and there is no humidity channel
	_, disp, s := newSamplerRig(t)

	s.Poll()
	temp, rh, ok := s.Last()
	if !ok || temp != 24500 {
		t.Fatalf("Last = %d %v, want the RTC die temperature", temp, ok)
	}
	if rh != -1 || disp.rhMilliPct != -1 {
		t.Error("missing humidity must read as negative")
	}
}

func TestSamplerKeepsLastGoodSample(t *testing.T) {
	_, disp, s := newSamplerRig(t)
	drv := &fakeSensor{tempMilliC: 21500, rhMilliPct: 43000}
	SetSensorDriver(drv)

	s.Poll()
	drv.err = errors.New("bus stuck")
	advanceMillis(sensorIntervalMillis)
	s.Poll()

	temp, _, ok := s.Last()
	if !ok || temp != 21500 {
		t.Error("failed read must keep the previous sample")
	}
	before := countEntries(disp.log, "display.conditions")
	advanceMillis(sensorIntervalMillis)
	s.Poll()
	if countEntries(disp.log, "display.conditions") != before {
		t.Error("failing sensor kept pushing to the display")
	}

	// Recovery resumes updates
	drv.err = nil
	drv.tempMilliC = 20000
	advanceMillis(sensorIntervalMillis)
	s.Poll()
	if temp, _, _ := s.Last(); temp != 20000 {
		t.Error("recovered sensor not sampled")
	}
}

func countEntries(log *callLog, name string) int {
	n := 0
	for _, e := range log.entries {
		if e == name {
			n++
		}
	}
	return n
}
