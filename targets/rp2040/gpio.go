//go:build rp2040

package main

import (
	"machine"

	"goclock/core"
)

// RPGPIODriver implements the GPIODriver interface for RP2040.
// Core pin numbers map directly onto GPIO numbers.
type RPGPIODriver struct {
	// Track configured pins to prevent conflicts
	configuredPins map[core.GPIOPin]machine.Pin
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		// Already configured, this is OK
		return nil
	}

	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configuredPins[pin] = machinePin
	return nil
}

// ConfigureInputPullUp configures a pin as an input with pull-up resistor
func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}

	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	d.configuredPins[pin] = machinePin
	return nil
}

// ConfigureInputPullDown configures a pin as an input with pull-down resistor
func (d *RPGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}

	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	d.configuredPins[pin] = machinePin
	return nil
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		// Pin isn't configured - configure it first
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		machinePin = d.configuredPins[pin]
	}

	machinePin.Set(value)
	return nil
}

// GetPin reads the current pin state
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		return false, nil
	}
	return machinePin.Get(), nil
}

// ReadPin reads the current pin state without the error return
func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	value, _ := d.GetPin(pin)
	return value
}

// RPEdgeDriver delivers pin change interrupts to core callbacks.
// The button arbiter uses it to catch presses between loop passes.
type RPEdgeDriver struct{}

// NewRPEdgeDriver creates the edge-interrupt driver
func NewRPEdgeDriver() *RPEdgeDriver {
	return &RPEdgeDriver{}
}

// AttachChange registers a both-edges callback for the pin.
// The callback runs in interrupt context with the sampled level.
func (d *RPEdgeDriver) AttachChange(pin core.GPIOPin, fn func(level bool)) error {
	machinePin := machine.Pin(pin)
	return machinePin.SetInterrupt(machine.PinToggle, func(p machine.Pin) {
		fn(p.Get())
	})
}

// Detach removes the pin's interrupt callback
func (d *RPEdgeDriver) Detach(pin core.GPIOPin) error {
	return machine.Pin(pin).SetInterrupt(0, nil)
}
