//go:build rp2040

package main

import (
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ds3231"
)

// DS3231Driver adapts the battery-backed clock chip to the core RTC
// interface. The chip holds UTC; all civil-time conversion happens in
// the core.
type DS3231Driver struct {
	dev ds3231.Device
}

// NewDS3231Driver creates the driver on an already configured I2C bus
func NewDS3231Driver(bus drivers.I2C) *DS3231Driver {
	d := &DS3231Driver{dev: ds3231.New(bus)}
	d.dev.Configure()
	return d
}

// ReadTime returns the chip's current time
func (d *DS3231Driver) ReadTime() (time.Time, error) {
	return d.dev.ReadTime()
}

// SetTime writes the chip and restarts a stopped oscillator.
// Writing the seconds register alone does not clear the stop bit.
func (d *DS3231Driver) SetTime(t time.Time) error {
	if err := d.dev.SetTime(t); err != nil {
		return err
	}
	if !d.dev.IsRunning() {
		return d.dev.SetRunning(true)
	}
	return nil
}

// LostPower reports whether the oscillator stopped since the last
// SetTime. The chip latches this across battery swaps.
func (d *DS3231Driver) LostPower() (bool, error) {
	return !d.dev.IsTimeValid(), nil
}

// Temperature returns the die temperature in milli-degrees Celsius.
// Updated by the chip every 64 seconds; good enough as a room proxy
// when no dedicated sensor is fitted.
func (d *DS3231Driver) Temperature() (int32, error) {
	return d.dev.ReadTemperature()
}
