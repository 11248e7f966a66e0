package core

const sensorIntervalMillis = 30000

// ConditionsSampler reads the indoor sensor on a slow cadence and
// forwards each sample to the display. Boards without a dedicated
// sensor fall back to the RTC die temperature, which has no humidity
// channel.
type ConditionsSampler struct {
	cs      *ClockSource
	display Display

	lastSample uint32
	haveSample bool
	failing    bool
	tempMilliC int32
	rhMilliPct int32
}

func NewConditionsSampler(cs *ClockSource, display Display) *ConditionsSampler {
	if display == nil {
		display = NullDisplay{}
	}
	return &ConditionsSampler{cs: cs, display: display}
}

// Poll takes a sample when the interval has elapsed. The first call
// samples immediately so the display never starts blank.
func (s *ConditionsSampler) Poll() {
	if s.haveSample && MillisSince(s.lastSample) < sensorIntervalMillis {
		return
	}
	s.lastSample = Millis()
	t, rh, err := s.read()
	if err != nil {
		if !s.failing {
			DebugPrintln("[SENS] read failed: " + err.Error())
			s.failing = true
		}
		return
	}
	if s.failing {
		DebugPrintln("[SENS] read recovered")
		s.failing = false
	}
	s.haveSample = true
	s.tempMilliC = t
	s.rhMilliPct = rh
	s.display.SetConditions(t, rh)
}

func (s *ConditionsSampler) read() (tempMilliC, rhMilliPct int32, err error) {
	if drv := Sensor(); drv != nil {
		return drv.Read()
	}
	t, err := s.cs.Temperature()
	if err != nil {
		return 0, 0, err
	}
	return t, -1, nil
}

// Last returns the most recent sample; ok is false before the first
// successful read. Humidity is negative when the source has none.
func (s *ConditionsSampler) Last() (tempMilliC, rhMilliPct int32, ok bool) {
	return s.tempMilliC, s.rhMilliPct, s.haveSample
}
