// Package tracelog fans trace lines out to the console and to a
// durable log file.
//
// Console output is unbuffered so a user can watch the link live.  The
// file is buffered and flushed every FlushEvery lines, or immediately
// after an event line (connect, connect failure, forwarding error,
// connection closed) so rare lifecycle diagnostics are never stale.
package tracelog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"bgbsniff/internal/protocol"
)

// DefaultFlushEvery is the number of packet lines buffered before the
// file is flushed.
const DefaultFlushEvery = 128

// Sink serialises writes from both forwarding directions so lines are
// never interleaved mid-line.  All methods are safe for concurrent use.
type Sink struct {
	mu         sync.Mutex
	console    io.Writer
	file       io.WriteCloser
	buf        *bufio.Writer
	path       string
	flushEvery int
	pending    int    // lines written to buf since the last flush
	seq        uint64 // sequence number of the last line written
	closed     bool

	// Now is used to stamp event lines; defaults to time.Now.
	Now func() time.Time
}

// Open creates (or appends to) the log file at path.  The file stays
// open until [Sink.Close].
func Open(path string, console io.Writer, flushEvery int) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	s := New(console, f, flushEvery)
	s.path = path
	return s, nil
}

// New returns a Sink over an already-open file.  A nil console
// discards console output; a nil file disables the durable copy.
func New(console io.Writer, file io.WriteCloser, flushEvery int) *Sink {
	if console == nil {
		console = io.Discard
	}
	if flushEvery < 1 {
		flushEvery = DefaultFlushEvery
	}
	s := &Sink{
		console:    console,
		file:       file,
		flushEvery: flushEvery,
		Now:        time.Now,
	}
	if file != nil {
		s.buf = bufio.NewWriter(file)
	}
	return s
}

// Path returns the log file path, or "" for sinks built with [New].
func (s *Sink) Path() string { return s.path }

// Packet writes one decoded-frame line and returns its sequence number.
func (s *Sink) Packet(line string) uint64 {
	return s.write(line, false)
}

// Event writes a timestamped lifecycle line and flushes the file.
func (s *Sink) Event(msg string) uint64 {
	return s.write(protocol.Stamp(s.Now())+" "+msg, true)
}

// Eventf is [Sink.Event] with fmt.Sprintf formatting.
func (s *Sink) Eventf(format string, args ...interface{}) uint64 {
	return s.Event(fmt.Sprintf(format, args...))
}

// Lines returns how many lines have been written so far.
func (s *Sink) Lines() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Sink) write(line string, flush bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	fmt.Fprintln(s.console, line)

	if s.buf == nil || s.closed {
		return s.seq
	}

	s.buf.WriteString(line) //nolint:errcheck // surfaced by Flush
	s.buf.WriteByte('\n')   //nolint:errcheck
	s.pending++

	if flush || s.pending >= s.flushEvery {
		s.buf.Flush() //nolint:errcheck
		s.pending = 0
	}
	return s.seq
}

// Flush forces buffered lines to the file.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf == nil || s.closed {
		return nil
	}
	s.pending = 0
	return s.buf.Flush()
}

// Close flushes and closes the file.  Only the first call has any
// effect; lines written afterwards still reach the console.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.file == nil {
		s.closed = true
		return nil
	}
	s.closed = true

	ferr := s.buf.Flush()
	cerr := s.file.Close()
	if ferr != nil {
		return fmt.Errorf("flush trace log: %w", ferr)
	}
	return cerr
}
