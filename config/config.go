// Package config defines the runtime configuration for bgbsniff and
// provides helpers for parsing ports and SSH gateway specifications.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	ncerr "bgbsniff/internal/errors"
)

// Config holds every tuneable for a relay run.
type Config struct {
	// ── Relay ────────────────────────────────────────────────────────
	ListenPort   int
	ForwardHost  string
	ForwardPort  int
	PollInterval time.Duration // accept/read deadline
	DialTimeout  time.Duration
	DialRetries  int

	// ── Trace output ─────────────────────────────────────────────────
	OutPath    string // "" → DefaultTraceName(start time)
	FlushEvery int

	// ── SSH gateway (optional) ───────────────────────────────────────
	TunnelSpec     string // raw [user@]host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Diagnostics ──────────────────────────────────────────────────
	Verbose int
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		ListenPort:   DefaultListenPort,
		ForwardHost:  DefaultForwardHost,
		ForwardPort:  DefaultForwardPort,
		PollInterval: DefaultPollInterval,
		DialTimeout:  DefaultDialTimeout,
		FlushEvery:   DefaultFlushEvery,
	}
}

// DefaultTraceName returns the trace file name used when --out is not
// given, e.g. "bgb_trace_20260102_150405.log".
func DefaultTraceName(now time.Time) string {
	return "bgb_trace_" + now.Format(TraceNameLayout) + ".log"
}

// ResolveOutPath fills OutPath with the default name if it is empty.
func (c *Config) ResolveOutPath(now time.Time) string {
	if c.OutPath == "" {
		c.OutPath = DefaultTraceName(now)
	}
	return c.OutPath
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort parses a decimal TCP port.  allowZero admits port 0, which
// asks the kernel for an ephemeral listen port.
func ParsePort(s string, allowZero bool) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	lo := 1
	if allowZero {
		lo = 0
	}
	if port < lo || port > 65535 {
		return 0, fmt.Errorf("port %d out of range %d-65535", port, lo)
	}
	return port, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "pi@retro-box:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec (if set) into the Tunnel* fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &ncerr.ConfigError{
			Field:   "--tunnel",
			Value:   c.TunnelSpec,
			Message: err.Error(),
			Hint:    "example: -T pi@retro-box:22",
		}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return &ncerr.ConfigError{
			Field:   "listen_port",
			Value:   c.ListenPort,
			Message: "out of range 0-65535",
			Hint:    "point the connecting emulator at this port",
		}
	}
	if c.ForwardHost == "" {
		return &ncerr.ConfigError{
			Field:   "forward_host",
			Message: "must not be empty",
		}
	}
	if c.ForwardPort < 1 || c.ForwardPort > 65535 {
		return &ncerr.ConfigError{
			Field:   "forward_port",
			Value:   c.ForwardPort,
			Message: "out of range 1-65535",
			Hint:    "use the port the listening emulator was given",
		}
	}
	if c.PollInterval <= 0 {
		return &ncerr.ConfigError{
			Field:   "--timeout",
			Value:   c.PollInterval,
			Message: "must be positive",
			Hint:    "shutdown waits at most one interval; 500ms is a good default",
		}
	}
	if c.DialTimeout < 0 {
		return &ncerr.ConfigError{Field: "--dial-timeout", Value: c.DialTimeout, Message: "must not be negative"}
	}
	if c.DialRetries < 0 {
		return &ncerr.ConfigError{Field: "--dial-retries", Value: c.DialRetries, Message: "must not be negative"}
	}
	if c.FlushEvery < 1 {
		return &ncerr.ConfigError{
			Field:   "--flush-every",
			Value:   c.FlushEvery,
			Message: "must be at least 1",
			Hint:    "use 1 to flush the trace file after every line",
		}
	}
	if !c.TunnelEnabled && (c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent) {
		return &ncerr.ConfigError{
			Field:   "--tunnel",
			Message: "SSH options given without a gateway",
			Hint:    "add -T [user@]host[:port]",
		}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{Field: "--tunnel", Message: "gateway host is required"}
	}
	return nil
}
