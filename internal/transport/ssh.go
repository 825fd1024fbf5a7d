package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"bgbsniff/tunnel"
	"bgbsniff/util"
)

// SSHDialer routes connections through an SSH tunnel.  The tunnel is
// connected lazily on the first Dial, re-established on a later Dial if
// the gateway dropped, and torn down on Close.
type SSHDialer struct {
	tunnel tunnel.Tunnel
	logger *util.Logger
	mu     sync.Mutex
}

// NewSSHDialer creates a dialer that forwards connections through tun.
// The tunnel is not connected until the first Dial.
func NewSSHDialer(tun tunnel.Tunnel, logger *util.Logger) *SSHDialer {
	return &SSHDialer{tunnel: tun, logger: logger}
}

// connect establishes the tunnel if it is not already up.
func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tunnel.IsAlive() {
		return nil
	}

	d.logger.Verbose("establishing SSH tunnel")
	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	d.logger.Verbose("SSH tunnel established")
	return nil
}

// Dial connects to address through the SSH tunnel.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tunnel.Close()
}
