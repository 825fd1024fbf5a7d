package relay

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"bgbsniff/internal/tracelog"
)

// lockedBuffer is a goroutine-safe console for a test Sink.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) lines() []string {
	s := strings.TrimSuffix(b.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// count returns how many trace lines contain sub.
func (b *lockedBuffer) count(sub string) int {
	n := 0
	for _, l := range b.lines() {
		if strings.Contains(l, sub) {
			n++
		}
	}
	return n
}

func newTestSink() (*tracelog.Sink, *lockedBuffer) {
	out := &lockedBuffer{}
	return tracelog.New(out, nil, 0), out
}

// waitFor polls cond until it holds or d elapses.
func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// tcpPair returns the two ends of a loopback TCP connection.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	a, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	b, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

var (
	versionFrame = []byte{0x01, 0x01, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00}
	statusFrame  = []byte{0x6c, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	sync1Frame   = []byte{0x68, 0x01, 0x85, 0x00, 0x55, 0xde, 0xf5, 0x02}
	sync3Frame   = []byte{0x6a, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
)

func concat(frames ...[]byte) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
