//go:build tinygo

package core

import "sync/atomic"

var millisValue uint32

// getMillis returns the current millisecond counter
// Atomic because the button interrupt reads it from ISR context
func getMillis() uint32 {
	return atomic.LoadUint32(&millisValue)
}

// setMillis sets the millisecond counter
func setMillis(ms uint32) {
	atomic.StoreUint32(&millisValue, ms)
}
