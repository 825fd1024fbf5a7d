package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. Positional arguments and CLI flags  (cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the BGBSNIFF_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("250ms") or a bare number of milliseconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty,
// well-formed values override the existing value.  Call it before flag
// parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v, ok := envInt("BGBSNIFF_LISTEN_PORT"); ok {
		cfg.ListenPort = v
	}
	if v := os.Getenv("BGBSNIFF_FORWARD_HOST"); v != "" {
		cfg.ForwardHost = v
	}
	if v, ok := envInt("BGBSNIFF_FORWARD_PORT"); ok {
		cfg.ForwardPort = v
	}
	if v := os.Getenv("BGBSNIFF_OUT"); v != "" {
		cfg.OutPath = v
	}
	if v, ok := envDuration("BGBSNIFF_TIMEOUT"); ok {
		cfg.PollInterval = v
	}
	if v, ok := envDuration("BGBSNIFF_DIAL_TIMEOUT"); ok {
		cfg.DialTimeout = v
	}
	if v, ok := envInt("BGBSNIFF_DIAL_RETRIES"); ok {
		cfg.DialRetries = v
	}
	if v, ok := envInt("BGBSNIFF_FLUSH_EVERY"); ok {
		cfg.FlushEvery = v
	}

	// SSH gateway
	if v := os.Getenv("BGBSNIFF_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("BGBSNIFF_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("BGBSNIFF_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("BGBSNIFF_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("BGBSNIFF_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	if v, ok := envInt("BGBSNIFF_VERBOSE"); ok && v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, true
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
