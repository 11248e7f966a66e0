package core

import (
	"math/rand"
	"time"
)

// SyncState is the network time client's coarse state.
type SyncState uint8

const (
	SyncIdle SyncState = iota
	SyncInProgress
	SyncSuccess
	SyncFailed
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncInProgress:
		return "in_progress"
	case SyncSuccess:
		return "success"
	case SyncFailed:
		return "failed"
	}
	return "unknown"
}

const (
	ntpMaxRetries         = 25
	ntpBaseDelayMillis    = 1000
	ntpMaxDelayMillis     = 30000
	ntpJitterMillis       = 1000
	ntpQueryTimeoutMillis = 1500
)

// DefaultNTPServers is the query order: primary plus two fallbacks.
var DefaultNTPServers = [3]string{"time.nist.gov", "time.cloudflare.com", "us.pool.ntp.org"}

// TimeSample is one answer from a time server. Instant is UTC;
// ReceivedMillis is the monotonic clock at the moment the reply
// arrived, so the consumer can align the application of the sample.
type TimeSample struct {
	Instant        time.Time
	RTTMillis      uint32
	ReceivedMillis uint32
}

// TimeQuery performs one blocking round-trip against a time server.
// Targets provide an implementation over whatever network stack they
// have; it may take up to timeoutMillis before returning an error.
type TimeQuery interface {
	Query(server string, timeoutMillis uint32) (TimeSample, error)
}

// NetTimeClient is a restartable sync state machine. Poll drives it:
// attempts are spaced by an exponential backoff (1 s base, doubled,
// capped at 30 s) plus up to 1 s of random jitter, and the machine
// parks in SyncFailed after 25 failed attempts. Within one attempt the
// servers are tried in order and the first answer wins.
//
// Owned by the main loop, not safe for concurrent use.
type NetTimeClient struct {
	query   TimeQuery
	servers [3]string
	state   SyncState
	attempt uint8
	nextDue uint32
	sample  TimeSample
	lastErr error
	randFn  func() uint32
}

func NewNetTimeClient(q TimeQuery) *NetTimeClient {
	return &NetTimeClient{
		query:   q,
		servers: DefaultNTPServers,
		randFn:  rand.Uint32,
	}
}

// Start begins a sync round. Valid only from SyncIdle; reports whether
// the machine actually started.
func (c *NetTimeClient) Start() bool {
	if c.state != SyncIdle {
		return false
	}
	if c.query == nil {
		DebugPrintln("[NTP] no network time source configured")
		c.state = SyncFailed
		return false
	}
	c.state = SyncInProgress
	c.attempt = 0
	c.nextDue = Millis()
	return true
}

// Poll advances the machine and returns its state. It returns quickly
// between attempts; when an attempt is due it blocks for at most the
// per-server query timeout times the number of servers.
func (c *NetTimeClient) Poll() SyncState {
	if c.state != SyncInProgress {
		return c.state
	}
	if !millisReached(Millis(), c.nextDue) {
		return c.state
	}
	for i := range c.servers {
		s, err := c.query.Query(c.servers[i], ntpQueryTimeoutMillis)
		if err != nil {
			c.lastErr = err
			DebugPrintln("[NTP] " + c.servers[i] + ": " + err.Error())
			continue
		}
		c.sample = s
		c.state = SyncSuccess
		DebugPrintln("[NTP] reply from " + c.servers[i] + " rtt=" + utoa(uint32(s.RTTMillis)) + "ms")
		return c.state
	}
	c.attempt++
	if c.attempt >= ntpMaxRetries {
		DebugPrintln("[NTP] giving up after " + utoa(uint32(c.attempt)) + " attempts")
		c.state = SyncFailed
		return c.state
	}
	c.nextDue = Millis() + backoffDelay(c.attempt, c.randFn())
	return c.state
}

// Reset returns the machine to SyncIdle so Start can be called again.
func (c *NetTimeClient) Reset() {
	c.state = SyncIdle
	c.attempt = 0
	c.lastErr = nil
}

// State returns the current state without advancing the machine.
func (c *NetTimeClient) State() SyncState { return c.state }

// Sample returns the successful sample. Valid only in SyncSuccess.
func (c *NetTimeClient) Sample() TimeSample { return c.sample }

// LastError returns the most recent query error, if any.
func (c *NetTimeClient) LastError() error { return c.lastErr }

// Attempt returns the number of failed attempts so far.
func (c *NetTimeClient) Attempt() uint8 { return c.attempt }

// backoffDelay computes the wait before the next attempt after the
// given number of failures: min(1s << (failures-1), 30s) plus jitter
// drawn from [0, 1s].
func backoffDelay(failures uint8, jitter uint32) uint32 {
	d := uint32(ntpMaxDelayMillis)
	if failures < 1 {
		failures = 1
	}
	if shift := failures - 1; shift < 5 {
		d = uint32(ntpBaseDelayMillis) << shift
	}
	return d + jitter%(ntpJitterMillis+1)
}
