//go:build !wasm

package serial

import (
	"fmt"
	"net"
	"strings"
	"time"
)

const tcpScheme = "tcp:"

// IsTCP reports whether a device string names a TCP console
func IsTCP(device string) bool {
	return strings.HasPrefix(device, tcpScheme)
}

// TCPPort talks to a clock console served over TCP instead of a serial
// device. The desktop simulator listens this way; frames on the wire
// are identical.
type TCPPort struct {
	conn net.Conn
}

// OpenTCP dials the console at "tcp:host:port"
func OpenTCP(cfg *Config) (Port, error) {
	addr := strings.TrimPrefix(cfg.Device, tcpScheme)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to console %s: %w", addr, err)
	}
	return &TCPPort{conn: conn}, nil
}

// Read blocks until data arrives or the peer closes. EOF here really
// means the simulator went away.
func (p *TCPPort) Read(b []byte) (int, error) {
	return p.conn.Read(b)
}

// Write writes data to the console connection
func (p *TCPPort) Write(b []byte) (int, error) {
	return p.conn.Write(b)
}

// Close closes the connection
func (p *TCPPort) Close() error {
	return p.conn.Close()
}

// Flush is a no-op; TCP writes are not buffered here
func (p *TCPPort) Flush() error {
	return nil
}
