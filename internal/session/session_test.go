package session

import (
	"net"
	"testing"

	"github.com/google/uuid"
)

type closeCounter struct {
	net.Conn
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestNew_AssignsUniqueIDs(t *testing.T) {
	a := New(nil, nil)
	b := New(nil, nil)
	if a.ID == b.ID {
		t.Fatalf("duplicate session ID %q", a.ID)
	}
	if _, err := uuid.Parse(a.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", a.ID, err)
	}
	if len(a.ShortID()) != 8 {
		t.Errorf("ShortID = %q", a.ShortID())
	}
}

func TestClose_Once(t *testing.T) {
	client := &closeCounter{}
	upstream := &closeCounter{}
	s := New(client, upstream)

	for i := 0; i < 3; i++ {
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	if client.closes != 1 || upstream.closes != 1 {
		t.Errorf("closes = %d/%d, want 1/1", client.closes, upstream.closes)
	}
}

func TestSetNoDelay_Loopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	upstream := <-accepted

	s := New(client, upstream)
	defer s.Close()
	s.SetNoDelay()

	if s.Duration() < 0 {
		t.Error("negative duration")
	}
}
