// Command statlink connects to a stat platform, logs on anonymously and
// polls the player count of one application.
//
// Usage:
//
//	statlink [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-address string       Platform address host:port (empty to discover)
//	-tls                  Use TLS
//	-interval duration    Poll interval (default 5s)
//	-stat-id uint         Application id to poll (default 570)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write the protocol capture to this file
//	-discover             Discover the platform via mDNS
//	-interactive          Enable interactive command mode
//
// Flags override the values loaded from -config.
//
// Examples:
//
//	# Poll a local platform every 10 seconds
//	statlink -address localhost:27570 -interval 10s
//
//	# Discover the platform and capture the protocol
//	statlink -discover -protocol-log /tmp/statlink.log -interactive
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/statlink/statlink-go/internal/config"
	"github.com/statlink/statlink-go/pkg/discovery"
	"github.com/statlink/statlink-go/pkg/event"
	"github.com/statlink/statlink-go/pkg/log"
	"github.com/statlink/statlink-go/pkg/service"
	"github.com/statlink/statlink-go/pkg/session"
	"github.com/statlink/statlink-go/pkg/version"
)

// Flags holds the command line.
type Flags struct {
	ConfigFile  string
	Address     string
	TLS         bool
	Interval    time.Duration
	StatID      uint
	LogLevel    string
	ProtocolLog string
	Discover    bool
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Address, "address", "", "Platform address host:port (empty to discover)")
	flag.BoolVar(&flags.TLS, "tls", false, "Use TLS")
	flag.DurationVar(&flags.Interval, "interval", service.DefaultPollInterval, "Poll interval")
	flag.UintVar(&flags.StatID, "stat-id", uint(service.DefaultStatID), "Application id to poll")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write the protocol capture to this file")
	flag.BoolVar(&flags.Discover, "discover", false, "Discover the platform via mDNS")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out io.Writer = os.Stderr
	var console *Console
	if flags.Interactive {
		console, err = NewConsole()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create console: %v\n", err)
			os.Exit(1)
		}
		// Route log output through readline so it does not garble the prompt.
		out = console.Stdout()
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	stdlog.SetOutput(out)

	stdlog.Println("statlink Stat Client")
	stdlog.Println("====================")
	stdlog.Printf("Version: %s (protocol %s)", version.Build(), version.Current)
	if cfg.Server.Address != "" {
		stdlog.Printf("Platform: %s (tls=%v)", cfg.Server.Address, cfg.Server.TLS)
	} else {
		stdlog.Println("Platform: discover via mDNS")
	}
	stdlog.Printf("Polling stat %d every %s", cfg.Poll.StatID, cfg.Poll.Interval)

	plog, closeLog, err := protocolLogger(cfg.Logging.ProtocolLog, logger, level)
	if err != nil {
		logger.Error("failed to open protocol log", "path", cfg.Logging.ProtocolLog, "error", err)
		os.Exit(1)
	}
	defer closeLog()

	bus := event.NewBus(logger)

	clientCfg := session.Config{
		Address:            cfg.Server.Address,
		TLS:                cfg.Server.TLS,
		InsecureSkipVerify: cfg.Server.InsecureSkipVerify,
		ConnectTimeout:     cfg.Server.ConnectTimeout,
		KeepAlive:          cfg.KeepAlive,
		ClientName:         "statlink",
		DiscoveryTimeout:   cfg.Discovery.Timeout,
		Logger:             logger,
		ProtocolLogger:     plog,
	}
	if cfg.Discovery.Enabled {
		clientCfg.Browser = discovery.NewMDNSBrowser(discovery.BrowserConfig{
			Interface:       cfg.Discovery.Interface,
			Timeout:         cfg.Discovery.Timeout,
			ProtocolVersion: version.Current,
		})
	}
	client := session.NewClient(clientCfg, bus)

	svcCfg := service.DefaultConfig()
	svcCfg.PollInterval = cfg.Poll.Interval
	svcCfg.StatID = cfg.Poll.StatID
	svcCfg.DrainWait = cfg.Drain.Wait
	svcCfg.Logger = logger
	svcCfg.ProtocolLogger = plog

	svc, err := service.New(svcCfg, bus, client)
	if err != nil {
		logger.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Start(ctx) }()

	if console != nil {
		go console.Run(ctx, cancel, svc, client)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	case err := <-runErr:
		runErr <- err
		if err != nil {
			var connErr *session.ConnectionError
			if errors.As(err, &connErr) {
				logger.Error("could not reach platform", "address", connErr.Addr, "error", connErr.Err)
			}
			exitCode = 1
		}
	}

	logger.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := svc.Stop(stopCtx); err != nil && !errors.Is(err, service.ErrNotStarted) {
		logger.Warn("error stopping service", "error", err)
	}
	stopCancel()
	cancel()

	if err := client.Disconnect(); err != nil {
		logger.Debug("disconnect", "error", err)
	}

	if exitCode != 0 {
		closeLog()
		os.Exit(exitCode)
	}
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "address":
			cfg.Server.Address = flags.Address
		case "tls":
			cfg.Server.TLS = flags.TLS
		case "interval":
			cfg.Poll.Interval = flags.Interval
		case "stat-id":
			cfg.Poll.StatID = uint32(flags.StatID)
		case "log-level":
			cfg.Logging.Level = flags.LogLevel
		case "protocol-log":
			cfg.Logging.ProtocolLog = flags.ProtocolLog
		case "discover":
			cfg.Discovery.Enabled = flags.Discover
		}
	})
	if cfg.Discovery.Enabled && isFlagSet("discover") && !isFlagSet("address") {
		cfg.Server.Address = ""
	}
	cfg.ResolveAddress()
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// protocolLogger builds the capture sink: the file when a path is given and
// the slog adapter at debug level. The returned func closes the file.
func protocolLogger(path string, logger *slog.Logger, level slog.Level) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, closeFn, err
		}
		sinks = append(sinks, fl)
		closeFn = func() {
			if err := fl.Close(); err != nil {
				logger.Warn("closing protocol log", "error", err)
			}
		}
		logger.Info("protocol capture enabled", "path", path)
	}
	if level <= slog.LevelDebug {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}

	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return log.NewMultiLogger(sinks...), closeFn, nil
	}
}
