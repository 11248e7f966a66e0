// Package protocol implements the framed binary link between the clock
// firmware and a host console: length/sequence header, VLQ-encoded
// command words, CRC-16 trailer and a sync byte. The same framing runs
// in both directions; Transport is the device side, HostTransport the
// host side.
package protocol

// Version is the firmware version reported to hosts.
const Version = "0.1.0"

// Protocol constants
const (
	MessageMax = 512 // Output buffer size, holds several frames between flushes

	// Low nibble of the sequence byte counts frames; the high nibble
	// is the fixed destination marker.
	MessageSeqMask = 0x0F
)
