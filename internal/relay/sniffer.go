// Package relay implements the sniffing proxy: it accepts one emulator
// connection at a time, dials the other emulator, and relays both
// directions byte-for-byte while tracing every frame.
package relay

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	ncerr "bgbsniff/internal/errors"
	"bgbsniff/internal/metrics"
	"bgbsniff/internal/protocol"
	"bgbsniff/internal/retry"
	"bgbsniff/internal/session"
	"bgbsniff/internal/tracelog"
	"bgbsniff/internal/transport"
	"bgbsniff/util"
)

// Sniffer listens for the connecting emulator and relays each session
// to Target.  Sessions are handled one at a time.
type Sniffer struct {
	ListenAddr string // ":5000"
	Target     string // "127.0.0.1:5001"
	Dialer     transport.Dialer
	Sink       *tracelog.Sink
	Logger     *util.Logger
	Metrics    *metrics.Collector // optional

	// AcceptTimeout and ReadTimeout bound the blocking accept and read
	// calls.  Zero means DefaultReadTimeout.
	AcceptTimeout time.Duration
	ReadTimeout   time.Duration

	// DialRetries is the number of extra upstream dial attempts made
	// before a session is abandoned.
	DialRetries int

	// Now stamps packet lines; defaults to time.Now.
	Now func() time.Time
}

// Listener is what [Sniffer.Serve] accepts on.  *net.TCPListener
// satisfies it.
type Listener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// Pause bounds after a transient accept failure.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Run binds the listener and serves until ctx is cancelled.
func (s *Sniffer) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Listen binds ListenAddr.  Binding is separate from [Sniffer.Serve] so
// a caller can fail fast before opening the trace file.
func (s *Sniffer) Listen() (*net.TCPListener, error) {
	ln, err := net.Listen("tcp", s.ListenAddr)
	if err != nil {
		return nil, ncerr.Wrap("listen", s.ListenAddr, err)
	}
	return ln.(*net.TCPListener), nil
}

// Serve accepts sessions on ln until ctx is cancelled.  It closes ln on
// return.  Cancellation is a clean shutdown and returns nil.
func (s *Sniffer) Serve(ctx context.Context, ln Listener) error {
	s.defaults()
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.Logger.Verbose("listening on %s, forwarding to %s", ln.Addr(), s.Target)

	var backoff time.Duration
	for {
		ln.SetDeadline(time.Now().Add(s.AcceptTimeout)) //nolint:errcheck
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ncerr.IsTimeout(err) {
				continue
			}
			if ncerr.IsTemporary(err) {
				backoff = min(max(2*backoff, minAcceptBackoff), maxAcceptBackoff)
				s.Logger.Warn("accept: %v; retrying in %s", err, backoff)
				s.Metrics.RecordError(err.Error())
				sleepCtx(ctx, backoff)
				continue
			}
			return ncerr.Wrap("accept", s.ListenAddr, err)
		}
		backoff = 0
		s.handle(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Sniffer) defaults() {
	if s.AcceptTimeout <= 0 {
		s.AcceptTimeout = DefaultReadTimeout
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.Logger == nil {
		s.Logger = util.NewLogger(0)
	}
	if s.Dialer == nil {
		s.Dialer = &transport.TCPDialer{}
	}
	if s.Sink == nil {
		s.Sink = tracelog.New(nil, nil, 0)
	}
}

// handle runs one session to completion.
func (s *Sniffer) handle(ctx context.Context, client net.Conn) {
	log := s.Logger.Named("relay")
	s.Sink.Eventf("Client connected from %s", client.RemoteAddr())

	upstream, err := s.dial(ctx)
	if err != nil {
		s.Sink.Eventf("Failed to connect to server: %v", err)
		s.Metrics.DialFailed()
		s.Metrics.RecordError(err.Error())
		client.Close()
		return
	}
	s.Sink.Eventf("Connected to server at %s", s.Target)

	sess := session.New(client, upstream)
	sess.SetNoDelay()
	s.Metrics.SessionOpened()
	sentBefore, recvBefore := s.Metrics.Bytes(protocol.Client), s.Metrics.Bytes(protocol.Server)
	log.Verbose("session %s started", sess.ShortID())

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range []*Forwarder{
		{Src: client, Dst: upstream, Dir: protocol.Client},
		{Src: upstream, Dst: client, Dir: protocol.Server},
	} {
		f.Sink = s.Sink
		f.ReadTimeout = s.ReadTimeout
		f.Metrics = s.Metrics
		f.Logger = log
		f.Now = s.Now
		f := f
		g.Go(func() error { return f.Run(gctx) })
	}
	if err := g.Wait(); err != nil {
		log.Debug("session %s: %v", sess.ShortID(), err)
	}

	sess.Close() //nolint:errcheck
	s.Metrics.SessionClosed()
	s.Sink.Event("Connection closed")
	log.Verbose("session %s closed after %s (client %d B, server %d B)",
		sess.ShortID(), sess.Duration().Truncate(time.Millisecond),
		s.Metrics.Bytes(protocol.Client)-sentBefore, s.Metrics.Bytes(protocol.Server)-recvBefore)
}

// dial opens the upstream connection, retrying up to DialRetries times.
func (s *Sniffer) dial(ctx context.Context) (net.Conn, error) {
	var conn net.Conn
	err := retry.DialBackoff(s.DialRetries).Do(ctx, func(attempt int) error {
		if attempt > 1 {
			s.Logger.Verbose("retrying %s (attempt %d)", s.Target, attempt)
		}
		c, err := s.Dialer.Dial(ctx, "tcp", s.Target)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}

// sleepCtx sleeps for at most d, returning early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
