package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "bgbsniff/internal/errors"
	"bgbsniff/internal/metrics"
	"bgbsniff/util"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAliveInterval is how often a keepalive@openssh.com request
	// checks the gateway.  Zero disables keepalives.
	KeepAliveInterval time.Duration
}

// SSHTunnel implements [Tunnel] by opening an SSH connection and
// forwarding traffic with ssh.Client.Dial.
type SSHTunnel struct {
	config  *SSHConfig
	logger  *util.Logger
	metrics *metrics.Collector

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
	stop   chan struct{} // closed when the current client is torn down
}

// NewSSHTunnel creates a tunnel that is ready to [Connect].  m may be
// nil.
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger, m *metrics.Collector) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHTunnel{config: cfg, logger: logger.Named("ssh"), metrics: m}
}

// Addr returns the gateway's host:port.
func (t *SSHTunnel) Addr() string {
	return net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
}

// Connect dials the SSH gateway and completes the handshake.  Calling
// Connect on a live tunnel replaces the old client.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	authMethods, err := BuildAuthMethods(t.config)
	if err != nil {
		return ncerr.WrapSSH("auth", t.config.Host, t.config.Port, err)
	}

	hkCallback, err := hostKeyCallback(t.config)
	if err != nil {
		return ncerr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         t.config.ConnTimeout,
	}

	addr := t.Addr()
	t.logger.Debug("dialing %s as %s", addr, t.config.User)

	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return ncerr.WrapSSH("handshake", t.config.Host, t.config.Port, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	stop := make(chan struct{})

	t.mu.Lock()
	old, oldStop := t.client, t.stop
	t.client, t.stop, t.alive = client, stop, true
	t.mu.Unlock()

	if old != nil {
		close(oldStop)
		old.Close()
	}

	t.metrics.TunnelDialed()
	go t.monitor(client)
	if t.config.KeepAliveInterval > 0 {
		go t.keepaliveLoop(client, stop)
	}
	return nil
}

// Dial forwards a connection through the tunnel.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.RLock()
	client := t.client
	alive := t.alive
	t.mu.RUnlock()

	if !alive || client == nil {
		return nil, ncerr.ErrNotConnected
	}

	t.logger.Debug("dialing %s %s through %s", network, address, t.Addr())

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := client.Dial(network, address)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("tunnel dial %s: %w", address, r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.client == nil {
		return nil
	}
	close(t.stop)
	err := t.client.Close()
	t.client, t.stop = nil, nil
	return err
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor blocks until client's connection closes and, if client is
// still current, flips the alive flag.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("gateway connection closed: %v", err)
	} else {
		t.logger.Debug("gateway connection closed")
	}
}

// keepaliveLoop pings the gateway until stop is closed.  A failed
// ping closes client, which marks the tunnel dead so the next dial
// reconnects.
func (t *SSHTunnel) keepaliveLoop(client *ssh.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(t.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				kerr := ncerr.WrapSSH("keepalive", t.config.Host, t.config.Port, err)
				t.logger.Warn("%v", kerr)
				t.metrics.RecordError(kerr.Error())
				client.Close()
				return
			}
			t.logger.Debug("keepalive OK")
		}
	}
}
