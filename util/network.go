package util

import (
	"fmt"
	"net"
	"strconv"
)

// FormatAddr returns "host:port", bracketing IPv6 literals.
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ListenAddr returns the all-interfaces listen address for port.
func ListenAddr(port int) string {
	return ":" + strconv.Itoa(port)
}

// SetNoDelay disables Nagle's algorithm on TCP connections.  Other
// connection types (SSH channels, pipes) are left untouched and report
// false.
func SetNoDelay(conn net.Conn) bool {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return false
	}
	return tc.SetNoDelay(true) == nil
}

// CloseWrite half-closes conn so the peer reads EOF while data already
// in flight toward us can still arrive.  It reports whether conn
// supports half-close.
func CloseWrite(conn net.Conn) bool {
	cw, ok := conn.(interface{ CloseWrite() error })
	if !ok {
		return false
	}
	cw.CloseWrite() //nolint:errcheck
	return true
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
