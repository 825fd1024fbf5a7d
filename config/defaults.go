package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, positional arguments and environment loading.

const (
	// DefaultListenPort is where the connecting emulator is pointed.
	DefaultListenPort = 5000

	// DefaultForwardHost is the host of the listening emulator.
	DefaultForwardHost = "127.0.0.1"

	// DefaultForwardPort is the port the listening emulator was given.
	DefaultForwardPort = 5001

	// DefaultPollInterval bounds every blocking accept and read so a
	// shutdown request is honoured within one interval.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultDialTimeout caps a single upstream connection attempt.
	DefaultDialTimeout = 10 * time.Second

	// DefaultFlushEvery is the number of packet lines buffered before
	// the trace file is flushed.
	DefaultFlushEvery = 128

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKeepAliveInterval is the SSH gateway keepalive period.
	DefaultKeepAliveInterval = 30 * time.Second

	// TraceNameLayout is the time layout of the default trace file name.
	TraceNameLayout = "20060102_150405"
)
