// Command statlink-server is a reference statlink platform.
//
// It answers anonymous logons and stat queries from a fixed table, which
// makes it useful for exercising statlink against a real socket.
//
// Usage:
//
//	statlink-server [flags]
//
// Flags:
//
//	-address string       Listen address (default ":27570")
//	-stat-id uint         Application id served (default 570)
//	-players uint         Player count reported for -stat-id (default 812000)
//	-drift uint           Vary the player count by up to this much every -drift-interval
//	-drift-interval dur   How often the player count drifts (default 5s)
//	-deny                 Deny every logon
//	-logon-result string  Answer every logon with this result (busy, rate-limited, ...)
//	-heartbeat uint       Heartbeat seconds reported in logon responses
//	-advertise            Advertise the platform via mDNS
//	-instance string      mDNS instance name (default: hostname)
//	-interface string     Restrict mDNS to one interface
//	-protocol-log string  Write the protocol capture to this file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Serve a drifting player count and advertise it
//	statlink-server -players 800000 -drift 2500 -advertise
//
//	# Refuse every logon
//	statlink-server -deny
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/statlink/statlink-go/internal/config"
	"github.com/statlink/statlink-go/pkg/discovery"
	"github.com/statlink/statlink-go/pkg/log"
	"github.com/statlink/statlink-go/pkg/service"
	"github.com/statlink/statlink-go/pkg/statserver"
	"github.com/statlink/statlink-go/pkg/transport"
	"github.com/statlink/statlink-go/pkg/version"
	"github.com/statlink/statlink-go/pkg/wire"
)

// Config holds the server command line.
type Config struct {
	Address       string
	StatID        uint
	Players       uint
	Drift         uint
	DriftInterval time.Duration
	Deny          bool
	LogonResult   string
	Heartbeat     uint
	Advertise     bool
	Instance      string
	Interface     string
	ProtocolLog   string
	LogLevel      string
}

var cfg Config

func init() {
	flag.StringVar(&cfg.Address, "address", fmt.Sprintf(":%d", transport.DefaultPort), "Listen address")
	flag.UintVar(&cfg.StatID, "stat-id", uint(service.DefaultStatID), "Application id served")
	flag.UintVar(&cfg.Players, "players", 812000, "Player count reported for -stat-id")
	flag.UintVar(&cfg.Drift, "drift", 0, "Vary the player count by up to this much every -drift-interval")
	flag.DurationVar(&cfg.DriftInterval, "drift-interval", 5*time.Second, "How often the player count drifts")
	flag.BoolVar(&cfg.Deny, "deny", false, "Deny every logon")
	flag.StringVar(&cfg.LogonResult, "logon-result", "", "Answer every logon with this result (busy, rate-limited, unavailable, fail)")
	flag.UintVar(&cfg.Heartbeat, "heartbeat", 0, "Heartbeat seconds reported in logon responses")
	flag.BoolVar(&cfg.Advertise, "advertise", false, "Advertise the platform via mDNS")
	flag.StringVar(&cfg.Instance, "instance", "", "mDNS instance name (default: hostname)")
	flag.StringVar(&cfg.Interface, "interface", "", "Restrict mDNS to one interface")
	flag.StringVar(&cfg.ProtocolLog, "protocol-log", "", "Write the protocol capture to this file")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	logonResult, err := parseResult(cfg.LogonResult)
	if err != nil {
		logger.Error("invalid -logon-result", "error", err)
		os.Exit(1)
	}

	var plog log.Logger
	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			logger.Error("failed to open protocol log", "path", cfg.ProtocolLog, "error", err)
			os.Exit(1)
		}
		defer fl.Close()
		plog = fl
		logger.Info("protocol capture enabled", "path", cfg.ProtocolLog)
	}

	statID := uint32(cfg.StatID)
	table := statserver.NewStatTable(map[uint32]uint32{statID: uint32(cfg.Players)})

	var adv discovery.Advertiser
	if cfg.Advertise {
		adv = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{Interface: cfg.Interface})
	}

	srv := statserver.New(statserver.Options{
		Address:          cfg.Address,
		DenyLogon:        cfg.Deny,
		LogonResult:      logonResult,
		HeartbeatSeconds: uint32(cfg.Heartbeat),
		Stats:            table,
		Advertiser:       adv,
		Instance:         instanceName(cfg.Instance),
		Name:             "statlink reference platform",
		Logger:           logger,
		ProtocolLogger:   plog,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", "address", cfg.Address, "error", err)
		os.Exit(1)
	}
	stdlog.Println("statlink Reference Platform")
	stdlog.Println("===========================")
	stdlog.Printf("Version: %s (protocol %s)", version.Build(), version.Current)
	stdlog.Printf("Listening on: %s", srv.Addr())
	stdlog.Printf("Serving stat %d: %d players", statID, cfg.Players)
	if cfg.Deny || logonResult != wire.ResultInvalid {
		stdlog.Println("Logons will not succeed")
	}

	if cfg.Drift > 0 {
		go drift(ctx, table, statID, uint32(cfg.Players), uint32(cfg.Drift), cfg.DriftInterval, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", "signal", sig)

	cancel()
	if err := srv.Stop(); err != nil {
		logger.Warn("error stopping server", "error", err)
	}

	c := srv.Handler().Counters()
	logger.Info("server stopped",
		"logons", c.Logons, "logons_denied", c.LogonsDenied, "queries", c.Queries, "query_errors", c.QueryErrors)
}

// drift walks the player count around base, never below zero.
func drift(ctx context.Context, table *statserver.StatTable, statID, base, spread uint32, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delta := int64(rand.Uint32N(2*spread+1)) - int64(spread)
			v := int64(base) + delta
			if v < 0 {
				v = 0
			}
			table.Set(statID, uint32(v))
			logger.Debug("player count", "stat_id", statID, "value", v)
		}
	}
}

func instanceName(name string) string {
	if name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "statlink"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return "statlink-" + host
}

func parseResult(s string) (wire.Result, error) {
	switch strings.ToLower(s) {
	case "", "ok":
		return wire.ResultInvalid, nil
	case "fail":
		return wire.ResultFail, nil
	case "denied":
		return wire.ResultLogonDenied, nil
	case "busy":
		return wire.ResultBusy, nil
	case "rate-limited":
		return wire.ResultRateLimited, nil
	case "unavailable":
		return wire.ResultServiceUnavailable, nil
	case "timeout":
		return wire.ResultTimeout, nil
	default:
		return wire.ResultInvalid, fmt.Errorf("unknown result %q", s)
	}
}
