//go:build rp2040

package main

import (
	"errors"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bme280"
)

// BME280Driver adapts the room sensor to the core conditions interface
type BME280Driver struct {
	dev bme280.Device
}

// NewBME280Driver probes the sensor on the shared I2C bus. The sensor
// is optional hardware; callers skip registration when this fails.
func NewBME280Driver(bus drivers.I2C) (*BME280Driver, error) {
	d := &BME280Driver{dev: bme280.New(bus)}
	d.dev.Configure()
	if !d.dev.Connected() {
		return nil, errors.New("bme280 not responding")
	}
	return d, nil
}

// Read returns temperature in milli-degrees Celsius and relative
// humidity in milli-percent.
func (d *BME280Driver) Read() (int32, int32, error) {
	t, err := d.dev.ReadTemperature()
	if err != nil {
		return 0, 0, err
	}
	h, err := d.dev.ReadHumidity()
	if err != nil {
		return 0, 0, err
	}
	// The driver reports humidity in hundredths of a percent
	return t, h * 10, nil
}
