// Package sntp implements a minimal unicast SNTP client (RFC 4330):
// one 48-byte request, one reply, enough to discipline a clock. The
// packet codec is shared by every target; the UDP plumbing differs per
// network stack and lives with the callers.
package sntp

import (
	"encoding/binary"
	"errors"
	"time"
)

// PacketSize is the fixed SNTP message length without extensions.
const PacketSize = 48

var (
	ErrShortReply  = errors.New("sntp: short reply")
	ErrBadMode     = errors.New("sntp: reply mode is not server")
	ErrKissOfDeath = errors.New("sntp: stratum 0 kiss-of-death")
	ErrZeroTime    = errors.New("sntp: empty transmit timestamp")
)

// ntpEpoch is 1900-01-01T00:00:00Z, the zero of NTP timestamps.
var ntpEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// BuildRequest fills b with a version 4 client request.
// b must hold at least PacketSize bytes; the rest is zeroed.
func BuildRequest(b []byte) {
	for i := 0; i < PacketSize; i++ {
		b[i] = 0
	}
	// LI=0, VN=4, Mode=3 (client)
	b[0] = 0x23
}

// ParseReply validates a server reply and extracts the transmit
// timestamp as UTC. Timestamps with the era-0 bit clear are taken as
// era 1; era 0 ends in February 2036.
func ParseReply(b []byte) (time.Time, error) {
	if len(b) < PacketSize {
		return time.Time{}, ErrShortReply
	}
	if b[0]&0x07 != 4 {
		return time.Time{}, ErrBadMode
	}
	if b[1] == 0 {
		return time.Time{}, ErrKissOfDeath
	}
	sec := binary.BigEndian.Uint32(b[40:44])
	frac := binary.BigEndian.Uint32(b[44:48])
	if sec == 0 && frac == 0 {
		return time.Time{}, ErrZeroTime
	}
	d := time.Duration(sec)*time.Second + (time.Duration(frac)*time.Second)>>32
	if sec&0x8000_0000 == 0 {
		d += (1 << 32) * time.Second
	}
	return ntpEpoch.Add(d), nil
}
