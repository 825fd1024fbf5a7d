// Package session represents a single relayed connection: the accepted
// client socket paired with its upstream socket.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"bgbsniff/util"
)

// Session binds the two sockets of one relay lifecycle.  Close tears
// both down exactly once, whichever forwarding direction finishes
// first.
type Session struct {
	ID       string
	Client   net.Conn
	Upstream net.Conn
	Started  time.Time

	closeOnce sync.Once
	closeErr  error
}

// New creates a Session for an accepted client and its upstream.
func New(client, upstream net.Conn) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Client:   client,
		Upstream: upstream,
		Started:  time.Now(),
	}
}

// ShortID is the first block of the session ID, for log lines.
func (s *Session) ShortID() string {
	if len(s.ID) < 8 {
		return s.ID
	}
	return s.ID[:8]
}

// SetNoDelay disables Nagle's algorithm on both sockets.  BGB sends
// tiny frames at a high rate and latency matters more than packing.
func (s *Session) SetNoDelay() {
	util.SetNoDelay(s.Client)
	util.SetNoDelay(s.Upstream)
}

// Duration returns how long the session has been open.
func (s *Session) Duration() time.Duration {
	return time.Since(s.Started)
}

// Close closes both sockets.  Subsequent calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.Client != nil {
			if err := s.Client.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.Upstream != nil {
			if err := s.Upstream.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			s.closeErr = errs[0]
		}
	})
	return s.closeErr
}
