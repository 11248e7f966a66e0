package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that core code uses.
// The clock needs exactly two pins from it: the active-high buzzer output
// and the active-low button input. Platform-specific implementations
// handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as a digital input with pull-up resistor
	ConfigureInputPullUp(pin GPIOPin) error

	// ConfigureInputPullDown configures a pin as a digital input with pull-down resistor
	ConfigureInputPullDown(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)

	// ReadPin reads the current pin state (alias for GetPin for convenience)
	ReadPin(pin GPIOPin) bool
}

// GPIOInterruptDriver delivers pin edge events to a callback.
// The button arbiter attaches in idle mode and detaches while an alarm is
// ringing or snoozed; boards without edge support simply never register one
// and the arbiter stays in polling mode.
type GPIOInterruptDriver interface {
	// AttachChange registers a callback invoked from interrupt context on
	// both edges. The callback receives the pin level at event time.
	AttachChange(pin GPIOPin, fn func(level bool)) error

	// Detach removes the callback for the pin
	Detach(pin GPIOPin) error
}

// Global singletons used by core code.
var (
	gpioDriver    GPIODriver
	gpioIrqDriver GPIOInterruptDriver
)

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}

// SetGPIOInterruptDriver registers the optional edge-interrupt driver.
func SetGPIOInterruptDriver(d GPIOInterruptDriver) {
	gpioIrqDriver = d
}

// HasGPIOInterrupt reports whether an edge-interrupt driver is registered.
func HasGPIOInterrupt() bool {
	return gpioIrqDriver != nil
}

// MustGPIOInterrupt returns the edge driver or panics if missing.
func MustGPIOInterrupt() GPIOInterruptDriver {
	if gpioIrqDriver == nil {
		panic("GPIO interrupt driver not configured")
	}
	return gpioIrqDriver
}
