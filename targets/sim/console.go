//go:build linux

package main

import (
	"net"
	"sync"
	"time"
)

// consoleInput is what the console server hands the main loop: either
// raw frame bytes from the client, or a new-client marker telling it
// to reset framing state for a fresh session.
type consoleInput struct {
	data    []byte
	newConn bool
}

// consoleServer serves the framed console on a TCP listener. Exactly
// one client at a time, like a device with one serial port; a new
// connection bumps the old one. All transport state stays in the main
// loop; the server only moves bytes.
type consoleServer struct {
	mu   sync.Mutex
	conn net.Conn
}

func (s *consoleServer) serve(ln net.Listener, rx chan<- consoleInput) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()

		rx <- consoleInput{newConn: true}
		go s.readClient(conn, rx)
	}
}

func (s *consoleServer) readClient(conn net.Conn, rx chan<- consoleInput) {
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			conn.Close()
			return
		}
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			rx <- consoleInput{data: data}
		}
	}
}

// Write sends a burst to the current client, if any. A stuck client
// gets a second before the frames are dropped on the floor.
func (s *consoleServer) Write(b []byte) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.Write(b)
}

// Close drops the current client
func (s *consoleServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
