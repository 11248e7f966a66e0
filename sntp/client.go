package sntp

import (
	"net"
	"time"
)

// Result is one successful exchange.
type Result struct {
	Time time.Time // server transmit time, UTC
	RTT  time.Duration
}

// Exchange performs one request/reply round-trip on an open
// connection. The deadline covers the whole exchange.
func Exchange(conn net.Conn, timeout time.Duration) (Result, error) {
	var buf [PacketSize]byte
	BuildRequest(buf[:])
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Result{}, err
	}
	sent := time.Now()
	if _, err := conn.Write(buf[:]); err != nil {
		return Result{}, err
	}
	n, err := conn.Read(buf[:])
	if err != nil {
		return Result{}, err
	}
	rtt := time.Since(sent)
	t, err := ParseReply(buf[:n])
	if err != nil {
		return Result{}, err
	}
	return Result{Time: t, RTT: rtt}, nil
}

// Query dials the named server over UDP and performs one exchange.
// A bare host name gets the standard port 123.
func Query(server string, timeout time.Duration) (Result, error) {
	addr := server
	if !hasPort(server) {
		addr = server + ":123"
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()
	return Exchange(conn, timeout)
}

func hasPort(s string) bool {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ':':
			return true
		case '.':
			return false
		}
	}
	return false
}
