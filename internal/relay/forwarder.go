package relay

import (
	"context"
	"net"
	"time"

	ncerr "bgbsniff/internal/errors"
	"bgbsniff/internal/metrics"
	"bgbsniff/internal/protocol"
	"bgbsniff/internal/tracelog"
	"bgbsniff/util"
)

// DefaultReadTimeout bounds each blocking read so a forwarder notices
// cancellation promptly.
const DefaultReadTimeout = 500 * time.Millisecond

// Forwarder relays one direction of a session: bytes read from Src are
// written to Dst unchanged and then decoded, 8 bytes at a time, into
// trace lines.
type Forwarder struct {
	Src, Dst    net.Conn
	Dir         protocol.Direction
	Sink        *tracelog.Sink
	ReadTimeout time.Duration
	Metrics     *metrics.Collector // optional
	Logger      *util.Logger

	// Now stamps packet lines; defaults to time.Now.
	Now func() time.Time

	split protocol.Splitter
}

// Run forwards until Src reaches EOF, an I/O error occurs, or ctx is
// cancelled.  Cancellation closes Src and Dst.  A clean end of stream
// or a cancellation returns nil; any other failure is logged as an
// event and returned.
func (f *Forwarder) Run(ctx context.Context) error {
	timeout := f.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	now := f.Now
	if now == nil {
		now = time.Now
	}
	if f.Logger == nil {
		f.Logger = util.NewLogger(0)
	}

	// Closing both sockets unblocks a Read on a conn without deadline
	// support (SSH channels) and a Write to a peer that stopped reading.
	unhook := context.AfterFunc(ctx, func() {
		f.Src.Close()
		f.Dst.Close()
	})
	defer unhook()

	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	for {
		if ctx.Err() != nil {
			f.stop()
			return nil
		}

		// SSH channels reject deadlines; cancellation then relies on the
		// close hook above.
		f.Src.SetReadDeadline(time.Now().Add(timeout)) //nolint:errcheck
		n, err := f.Src.Read(buf)

		if n > 0 {
			// Forward before decoding so tracing never delays the link.
			if _, werr := f.Dst.Write(buf[:n]); werr != nil {
				return f.fail(ctx, ncerr.Wrap("write", f.Dst.RemoteAddr().String(), werr))
			}
			f.Metrics.Forwarded(f.Dir, n)
			f.split.Feed(buf[:n], func(frame []byte) {
				pkt, derr := protocol.Decode(frame)
				f.Sink.Packet(protocol.FormatLine(now(), f.Dir, pkt, derr))
				f.Metrics.FrameDecoded(f.Dir)
			})
		}

		switch {
		case err == nil:
		case ncerr.IsTimeout(err):
		case ctx.Err() != nil:
			f.stop()
			return nil
		case ncerr.IsClosed(err):
			f.Logger.Debug("%s: end of stream", f.Dir)
			f.stop()
			return nil
		default:
			return f.fail(ctx, ncerr.Wrap("read", f.Src.RemoteAddr().String(), err))
		}
	}
}

// fail logs err as a forwarding event unless the session is already
// shutting down.
func (f *Forwarder) fail(ctx context.Context, err error) error {
	f.stop()
	if ctx.Err() != nil {
		return nil
	}
	f.Sink.Eventf("Forward error (%s): %v", f.Dir, err)
	f.Metrics.RecordError(err.Error())
	return err
}

// stop half-closes Dst so its peer sees EOF, and drops any trailing
// partial frame.
func (f *Forwarder) stop() {
	util.CloseWrite(f.Dst)
	if n := f.split.Reset(); n > 0 {
		f.Metrics.ShortFrame()
		f.Logger.Debug("%s: discarded %d trailing bytes", f.Dir, n)
	}
}
