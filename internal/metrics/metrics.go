// Package metrics provides lock-free counters for a running relay:
// sessions, bytes and frames per direction, short frames, upstream
// dial failures and forwarding errors.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"bgbsniff/internal/protocol"
)

// Collector tracks process-wide relay statistics.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	dialFailures   atomic.Int64
	tunnelDials    atomic.Int64
	errorsTotal    atomic.Int64
	shortFrames    atomic.Int64

	bytes  [2]atomic.Int64 // indexed by protocol.Direction
	frames [2]atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Sessions ─────────────────────────────────────────────────────────

// SessionOpened increments the active and total session counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of sessions in flight (0 or 1).
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// DialFailed records an upstream connection attempt that failed.
func (c *Collector) DialFailed() {
	if c == nil {
		return
	}
	c.dialFailures.Add(1)
}

// DialFailures returns the number of failed upstream dials.
func (c *Collector) DialFailures() int64 {
	if c == nil {
		return 0
	}
	return c.dialFailures.Load()
}

// TunnelDialed records an SSH gateway (re)connection.
func (c *Collector) TunnelDialed() {
	if c == nil {
		return
	}
	c.tunnelDials.Add(1)
}

// ── Traffic ──────────────────────────────────────────────────────────

// Forwarded records n bytes relayed in direction dir.
func (c *Collector) Forwarded(dir protocol.Direction, n int) {
	if c == nil || int(dir) >= len(c.bytes) {
		return
	}
	c.bytes[dir].Add(int64(n))
}

// FrameDecoded records one complete frame seen in direction dir.
func (c *Collector) FrameDecoded(dir protocol.Direction) {
	if c == nil || int(dir) >= len(c.frames) {
		return
	}
	c.frames[dir].Add(1)
}

// ShortFrame records a partial frame discarded at end of stream.
func (c *Collector) ShortFrame() {
	if c == nil {
		return
	}
	c.shortFrames.Add(1)
}

// Bytes returns total bytes relayed in direction dir.
func (c *Collector) Bytes(dir protocol.Direction) int64 {
	if c == nil || int(dir) >= len(c.bytes) {
		return 0
	}
	return c.bytes[dir].Load()
}

// Frames returns total frames decoded in direction dir.
func (c *Collector) Frames(dir protocol.Direction) int64 {
	if c == nil || int(dir) >= len(c.frames) {
		return 0
	}
	return c.frames[dir].Load()
}

// ── Errors ───────────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	DialFailures     int64  `json:"dial_failures"`
	TunnelDials      int64  `json:"tunnel_dials,omitempty"`
	ClientBytes      int64  `json:"client_bytes"`
	ServerBytes      int64  `json:"server_bytes"`
	ClientFrames     int64  `json:"client_frames"`
	ServerFrames     int64  `json:"server_frames"`
	ShortFrames      int64  `json:"short_frames"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		DialFailures:   c.dialFailures.Load(),
		TunnelDials:    c.tunnelDials.Load(),
		ClientBytes:    c.bytes[protocol.Client].Load(),
		ServerBytes:    c.bytes[protocol.Server].Load(),
		ClientFrames:   c.frames[protocol.Client].Load(),
		ServerFrames:   c.frames[protocol.Server].Load(),
		ShortFrames:    c.shortFrames.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	data, _ := json.MarshalIndent(c.Snapshot(), "", "  ")
	return string(data)
}
