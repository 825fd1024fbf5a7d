// Package cmd wires up the CLI flags and runs the sniffing relay.
package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pterm/pterm"
	flag "github.com/spf13/pflag"

	"bgbsniff/config"
	ncerr "bgbsniff/internal/errors"
	"bgbsniff/internal/metrics"
	"bgbsniff/internal/relay"
	"bgbsniff/internal/tracelog"
	"bgbsniff/internal/transport"
	"bgbsniff/tunnel"
	"bgbsniff/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X bgbsniff/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the relay until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("bgbsniff", flag.ContinueOnError)

	// ── trace ────────────────────────────────────────────────────
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Trace log file (default bgb_trace_YYYYmmdd_HHMMSS.log)")
	fs.IntVar(&cfg.FlushEvery, "flush-every", cfg.FlushEvery, "Flush the trace file every N packet lines")

	// ── relay ────────────────────────────────────────────────────
	fs.DurationVar(&cfg.PollInterval, "timeout", cfg.PollInterval, "Accept/read poll interval")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Timeout for one upstream connection attempt")
	fs.IntVar(&cfg.DialRetries, "dial-retries", cfg.DialRetries, "Extra upstream connection attempts")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach forward_host through SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	envVerbose := cfg.Verbose // CountVarP resets the target to zero
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase diagnostic verbosity (repeatable)")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !fs.Changed("verbose") {
		cfg.Verbose = envVerbose
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("bgbsniff %s\n", version)
		return nil
	}

	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dryRun {
		printPlan(cfg)
		return nil
	}
	return run(ctx, cfg)
}

// run builds the components and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	logger := util.NewLogger(cfg.Verbose)
	m := metrics.New()

	dialer := newDialer(cfg, logger, m)
	defer dialer.Close()

	target := util.FormatAddr(cfg.ForwardHost, cfg.ForwardPort)
	sniffer := &relay.Sniffer{
		ListenAddr:    util.ListenAddr(cfg.ListenPort),
		Target:        target,
		Dialer:        dialer,
		Logger:        logger,
		Metrics:       m,
		AcceptTimeout: cfg.PollInterval,
		ReadTimeout:   cfg.PollInterval,
		DialRetries:   cfg.DialRetries,
	}

	printBanner(cfg)

	// Bind before creating the trace file so a port conflict leaves no
	// empty log behind.
	ln, err := sniffer.Listen()
	if err != nil {
		return err
	}

	outPath := cfg.ResolveOutPath(time.Now())
	sink, err := tracelog.Open(outPath, os.Stdout, cfg.FlushEvery)
	if err != nil {
		ln.Close()
		return err
	}
	defer sink.Close()
	sniffer.Sink = sink

	pterm.Info.Printfln("Logging to %s", outPath)
	pterm.Info.Printfln("Listening on port %d", ln.Addr().(*net.TCPAddr).Port)
	if cfg.TunnelEnabled {
		pterm.Info.Printfln("Will forward to %s via %s", target, cfg.TunnelHost)
	} else {
		pterm.Info.Printfln("Will forward to %s", target)
	}
	pterm.Info.Println("Waiting for connection...")

	err = sniffer.Serve(ctx, ln)
	if ctx.Err() != nil {
		pterm.Println()
		pterm.Info.Println("Shutting down...")
	}

	logger.Verbose("relay metrics:\n%s", m.JSON())
	if ferr := sink.Close(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

func newDialer(cfg *config.Config, logger *util.Logger, m *metrics.Collector) transport.Dialer {
	if !cfg.TunnelEnabled {
		return &transport.TCPDialer{Timeout: cfg.DialTimeout}
	}
	tun := tunnel.NewSSHTunnel(&tunnel.SSHConfig{
		User:              cfg.TunnelUser,
		Host:              cfg.TunnelHost,
		Port:              cfg.TunnelPort,
		KeyPath:           cfg.SSHKeyPath,
		PromptPass:        cfg.SSHPassword,
		UseAgent:          cfg.UseSSHAgent,
		StrictHostKey:     cfg.StrictHostKey,
		KnownHosts:        cfg.KnownHostsPath,
		ConnTimeout:       cfg.DialTimeout,
		KeepAliveInterval: config.DefaultKeepAliveInterval,
	}, logger, m)
	return transport.NewSSHDialer(tun, logger)
}

// ── helpers ──────────────────────────────────────────────────────────

const positionalUsage = "bgbsniff [options] [listen_port [forward_host [forward_port]]]"

func parsePositional(cfg *config.Config, remaining []string) error {
	if len(remaining) > 3 {
		return &ncerr.ConfigError{
			Field:   "arguments",
			Value:   len(remaining),
			Message: "too many positional arguments",
			Hint:    "usage: " + positionalUsage,
		}
	}

	if len(remaining) >= 1 {
		port, err := config.ParsePort(remaining[0], true)
		if err != nil {
			return &ncerr.ConfigError{Field: "listen_port", Value: remaining[0], Message: err.Error()}
		}
		cfg.ListenPort = port
	}
	if len(remaining) >= 2 {
		cfg.ForwardHost = remaining[1]
	}
	if len(remaining) == 3 {
		port, err := config.ParsePort(remaining[2], false)
		if err != nil {
			return &ncerr.ConfigError{Field: "forward_port", Value: remaining[2], Message: err.Error()}
		}
		cfg.ForwardPort = port
	}
	return nil
}

// printBanner tells the user how to point each emulator at the relay.
func printBanner(cfg *config.Config) {
	pterm.DefaultSection.Println("BGB Link Cable Protocol Sniffer")
	pterm.Println("Instructions:")
	_ = pterm.DefaultBulletList.WithItems([]pterm.BulletListItem{
		{Level: 0, Text: fmt.Sprintf("1. Start BGB #1: Link -> Listen on port %d", cfg.ForwardPort)},
		{Level: 0, Text: fmt.Sprintf("2. Run this tool (listening on %d)", cfg.ListenPort)},
		{Level: 0, Text: fmt.Sprintf("3. Start BGB #2: Link -> Connect to localhost:%d", cfg.ListenPort)},
	}).Render()
}

func printPlan(cfg *config.Config) {
	pterm.Info.Printfln("listen      %s", util.ListenAddr(cfg.ListenPort))
	pterm.Info.Printfln("forward     %s", util.FormatAddr(cfg.ForwardHost, cfg.ForwardPort))
	if cfg.TunnelEnabled {
		pterm.Info.Printfln("via         %s@%s:%d", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
	}
	pterm.Info.Printfln("trace       %s (flush every %d lines)", cfg.ResolveOutPath(time.Now()), cfg.FlushEvery)
	pterm.Info.Printfln("poll        %s", cfg.PollInterval)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `bgbsniff – BGB link cable protocol sniffer v%s

Relays a link session between two BGB emulators and traces every
8-byte packet to the console and a log file.

Usage:
  %s

Arguments:
  listen_port    port the connecting emulator dials (default %d)
  forward_host   host of the listening emulator (default %s)
  forward_port   port the listening emulator listens on (default %d)

Options:
`, version, positionalUsage, config.DefaultListenPort, config.DefaultForwardHost, config.DefaultForwardPort)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  bgbsniff                                    5000 -> 127.0.0.1:5001
  bgbsniff 6000 127.0.0.1 6001 --out run.log  Custom ports and log file
  bgbsniff -T pi@retro-box 5000 127.0.0.1     Emulator on a remote host
`)
}
