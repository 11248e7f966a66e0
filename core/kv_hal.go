package core

// KVDriver is the abstract typed key-value interface over the board's
// non-volatile storage area (EEPROM, flash sector, or a file on Linux).
// Getters return an error for an absent key; callers keep their RAM
// default in that case. Sets may be buffered by the driver; Commit
// makes everything written so far durable and must not return before
// it is.
type KVDriver interface {
	GetBool(key string) (bool, error)
	SetBool(key string, v bool) error

	GetU8(key string) (uint8, error)
	SetU8(key string, v uint8) error

	GetI8(key string) (int8, error)
	SetI8(key string, v int8) error

	GetU32(key string) (uint32, error)
	SetU32(key string, v uint32) error

	GetString(key string) (string, error)
	SetString(key string, v string) error

	// Delete removes a key; deleting an absent key is not an error
	Delete(key string) error

	// Commit flushes buffered writes to the storage medium
	Commit() error
}

// Global singleton used by core code.
var kvDriver KVDriver

// SetKVDriver is called by target-specific code to register its driver.
func SetKVDriver(d KVDriver) {
	kvDriver = d
}

// MustKV returns the configured driver or panics if missing.
func MustKV() KVDriver {
	if kvDriver == nil {
		panic("KV driver not configured")
	}
	return kvDriver
}
