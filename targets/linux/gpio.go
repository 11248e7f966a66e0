//go:build linux

package main

import (
	"fmt"
	"strconv"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"goclock/core"
)

// PeriphGPIODriver maps core pin numbers onto the host's GPIO registry
// by name: pin 17 resolves as "GPIO17". No edge-interrupt driver is
// registered on this target; the button arbiter stays in polling mode.
type PeriphGPIODriver struct {
	// Track configured pins to avoid re-resolving them
	configuredPins map[core.GPIOPin]gpio.PinIO
}

// NewPeriphGPIODriver creates the driver. host.Init must have run.
func NewPeriphGPIODriver() *PeriphGPIODriver {
	return &PeriphGPIODriver{
		configuredPins: make(map[core.GPIOPin]gpio.PinIO),
	}
}

func (d *PeriphGPIODriver) resolve(pin core.GPIOPin) (gpio.PinIO, error) {
	if p, ok := d.configuredPins[pin]; ok {
		return p, nil
	}
	name := "GPIO" + strconv.Itoa(int(pin))
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no such pin %s", name)
	}
	d.configuredPins[pin] = p
	return p, nil
}

// ConfigureOutput configures a pin as a digital output, initially low
func (d *PeriphGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	return p.Out(gpio.Low)
}

// ConfigureInputPullUp configures a pin as an input with pull-up
func (d *PeriphGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	return p.In(gpio.PullUp, gpio.NoEdge)
}

// ConfigureInputPullDown configures a pin as an input with pull-down
func (d *PeriphGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	return p.In(gpio.PullDown, gpio.NoEdge)
}

// SetPin sets the pin to high (true) or low (false)
func (d *PeriphGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	return p.Out(gpio.Level(value))
}

// GetPin reads the current pin state
func (d *PeriphGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	p, err := d.resolve(pin)
	if err != nil {
		return false, err
	}
	return p.Read() == gpio.High, nil
}

// ReadPin reads the current pin state without the error return
func (d *PeriphGPIODriver) ReadPin(pin core.GPIOPin) bool {
	value, _ := d.GetPin(pin)
	return value
}
