package protocol

// Splitter re-assembles frames from an arbitrarily chunked byte
// stream.  Bytes are emitted in FrameSize units in arrival order; a
// partial trailing frame is held until more bytes arrive.
//
// A Splitter is not safe for concurrent use; each direction owns one.
type Splitter struct {
	buf []byte
}

// Feed appends p and calls emit once per completed frame.  The slice
// passed to emit is only valid for the duration of the call.
func (s *Splitter) Feed(p []byte, emit func(frame []byte)) {
	s.buf = append(s.buf, p...)

	off := 0
	for len(s.buf)-off >= FrameSize {
		emit(s.buf[off : off+FrameSize])
		off += FrameSize
	}

	if off > 0 {
		n := copy(s.buf, s.buf[off:])
		s.buf = s.buf[:n]
	}
}

// Pending returns the number of buffered bytes that do not yet form a
// complete frame.
func (s *Splitter) Pending() int { return len(s.buf) }

// Reset discards any buffered partial frame and returns its length.
func (s *Splitter) Reset() int {
	n := len(s.buf)
	s.buf = s.buf[:0]
	return n
}
