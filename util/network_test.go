package util

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestFormatAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 5001, "127.0.0.1:5001"},
		{"::1", 5001, "[::1]:5001"},
		{"emu.local", 8765, "emu.local:8765"},
	}
	for _, tt := range tests {
		if got := FormatAddr(tt.host, tt.port); got != tt.want {
			t.Errorf("FormatAddr(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestListenAddr(t *testing.T) {
	if got := ListenAddr(5000); got != ":5000" {
		t.Errorf("got %q", got)
	}
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	if port < 1 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}
}

func tcpPair(t *testing.T) (client, server net.Conn) {
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
			accepted <- nil
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server = <-accepted
	if server == nil {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestSetNoDelay(t *testing.T) {
	client, _ := tcpPair(t)
	if !SetNoDelay(client) {
		t.Error("SetNoDelay should succeed on a TCP connection")
	}

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	if SetNoDelay(a) {
		t.Error("SetNoDelay should report false for a pipe")
	}
}

func TestCloseWrite(t *testing.T) {
	client, server := tcpPair(t)

	if !CloseWrite(client) {
		t.Fatal("CloseWrite should succeed on a TCP connection")
	}

	server.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := io.ReadAll(server); err != nil {
		t.Fatalf("server should read a clean EOF, got %v", err)
	}

	// The other half is still usable.
	if _, err := server.Write([]byte("late")); err != nil {
		t.Fatalf("write after half-close: %v", err)
	}
	buf := make([]byte, 4)
	client.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := io.ReadFull(client, buf); err != nil || string(buf) != "late" {
		t.Errorf("read after half-close = %q, %v", buf, err)
	}
}
