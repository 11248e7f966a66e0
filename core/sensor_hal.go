package core

// SensorDriver reads the indoor environmental sensor.
// Optional: boards without one leave it unregistered and the conditions
// sampler falls back to the RTC die temperature.
type SensorDriver interface {
	// Read returns temperature in milli-degrees Celsius and relative
	// humidity in milli-percent
	Read() (tempMilliC int32, humidityMilliPct int32, err error)
}

var sensorDriver SensorDriver

// SetSensorDriver is called by target-specific code to register its driver.
func SetSensorDriver(d SensorDriver) {
	sensorDriver = d
}

// SensorAvailable reports whether a sensor driver is registered.
func SensorAvailable() bool {
	return sensorDriver != nil
}

// Sensor returns the registered driver, or nil when the board has none.
func Sensor() SensorDriver {
	return sensorDriver
}
