//go:build !tinygo

package core

var millisValue uint32

// getMillis returns the current millisecond counter (regular Go implementation)
func getMillis() uint32 {
	return millisValue
}

// setMillis sets the millisecond counter (regular Go implementation)
func setMillis(ms uint32) {
	millisValue = ms
}
