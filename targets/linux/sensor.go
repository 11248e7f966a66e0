//go:build linux

package main

import (
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// BME280Sensor adapts the periph bmxx80 driver to the core conditions
// interface. Optional hardware; a probe failure just leaves the driver
// unregistered and the RTC die temperature takes over.
type BME280Sensor struct {
	dev *bmxx80.Dev
}

// NewBME280Sensor probes the sensor at the given address (0x76 or 0x77)
func NewBME280Sensor(bus i2c.Bus, addr uint16) (*BME280Sensor, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, err
	}
	return &BME280Sensor{dev: dev}, nil
}

// Read returns temperature in milli-degrees Celsius and relative
// humidity in milli-percent.
func (s *BME280Sensor) Read() (int32, int32, error) {
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return 0, 0, err
	}
	tempMilliC := int32(int64(env.Temperature-physic.ZeroCelsius) / int64(physic.MilliKelvin))
	humidityMilliPct := int32(env.Humidity / physic.MilliRH)
	return tempMilliC, humidityMilliPct, nil
}

// Close puts the sensor back to sleep
func (s *BME280Sensor) Close() error {
	return s.dev.Halt()
}
