// Package sshtest runs an in-process SSH gateway for tests that need a
// real ssh.Client on the other end of a tunnel.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Gateway accepts any client and serves direct-tcpip channels the way
// sshd does: channel EOF half-closes the target socket and channel
// close closes it.
type Gateway struct {
	Host    string
	Port    int
	KeyPath string // client private key; the gateway accepts any key

	ln       net.Listener
	accepted atomic.Int32

	mu     sync.Mutex
	conns  []net.Conn
	closed bool
}

// NewGateway starts a gateway on 127.0.0.1 and stops it when t ends.
func NewGateway(t testing.TB) *Gateway {
	t.Helper()

	hostKey := newSigner(t)
	cfg := &ssh.ServerConfig{NoClientAuth: true}
	cfg.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	g := &Gateway{
		Host:    "127.0.0.1",
		Port:    ln.Addr().(*net.TCPAddr).Port,
		KeyPath: writeClientKey(t),
		ln:      ln,
	}
	t.Cleanup(g.close)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			g.accepted.Add(1)
			g.track(conn)
			go g.serve(conn, cfg)
		}
	}()
	return g
}

// Accepted returns how many SSH connections the gateway has accepted.
func (g *Gateway) Accepted() int { return int(g.accepted.Load()) }

func (g *Gateway) track(c net.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		c.Close()
		return
	}
	g.conns = append(g.conns, c)
}

func (g *Gateway) close() {
	g.ln.Close()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	for _, c := range g.conns {
		c.Close()
	}
}

func (g *Gateway) serve(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "direct-tcpip" {
			nc.Reject(ssh.UnknownChannelType, "unsupported") //nolint:errcheck
			continue
		}
		var req struct {
			DestAddr string
			DestPort uint32
			OrigAddr string
			OrigPort uint32
		}
		if err := ssh.Unmarshal(nc.ExtraData(), &req); err != nil {
			nc.Reject(ssh.ConnectionFailed, err.Error()) //nolint:errcheck
			continue
		}
		target, err := net.Dial("tcp", net.JoinHostPort(req.DestAddr, strconv.Itoa(int(req.DestPort))))
		if err != nil {
			nc.Reject(ssh.ConnectionFailed, err.Error()) //nolint:errcheck
			continue
		}
		g.track(target)
		ch, chReqs, err := nc.Accept()
		if err != nil {
			target.Close()
			continue
		}
		go pipe(ch, chReqs, target)
	}
}

// pipe relays one channel.  chReqs is closed once the channel is
// closed, which is when the target socket goes away.
func pipe(ch ssh.Channel, chReqs <-chan *ssh.Request, target net.Conn) {
	go func() {
		io.Copy(target, ch) //nolint:errcheck
		if tc, ok := target.(*net.TCPConn); ok {
			tc.CloseWrite() //nolint:errcheck
		}
	}()
	go func() {
		io.Copy(ch, target) //nolint:errcheck
		ch.CloseWrite()     //nolint:errcheck
	}()
	ssh.DiscardRequests(chReqs)
	target.Close()
	ch.Close()
}

func newSigner(t testing.TB) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

// writeClientKey writes a fresh unencrypted OpenSSH private key.
func writeClientKey(t testing.TB) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "sshtest")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
