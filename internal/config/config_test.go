package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Poll.Interval != 5*time.Second {
		t.Errorf("Poll.Interval = %v, want 5s", cfg.Poll.Interval)
	}
	if cfg.Poll.StatID != 570 {
		t.Errorf("Poll.StatID = %d, want 570", cfg.Poll.StatID)
	}
	if cfg.Drain.Wait != time.Second {
		t.Errorf("Drain.Wait = %v, want 1s", cfg.Drain.Wait)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statlink.yaml")
	data := `
server:
  address: "stats.example.net:27570"
  tls: true
poll:
  interval: 30s
keepalive:
  ping_interval: 10s
logging:
  level: debug
  protocol_log: /tmp/statlink.cbor
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "stats.example.net:27570" || !cfg.Server.TLS {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Poll.Interval != 30*time.Second {
		t.Errorf("Poll.Interval = %v, want 30s", cfg.Poll.Interval)
	}
	// Unset keys keep their defaults.
	if cfg.Poll.StatID != 570 {
		t.Errorf("Poll.StatID = %d, want 570", cfg.Poll.StatID)
	}
	if cfg.KeepAlive.PingInterval != 10*time.Second {
		t.Errorf("KeepAlive.PingInterval = %v", cfg.KeepAlive.PingInterval)
	}
	if cfg.KeepAlive.MaxMissedPongs == 0 {
		t.Error("KeepAlive.MaxMissedPongs lost its default")
	}
	if cfg.Logging.ProtocolLog != "/tmp/statlink.cbor" {
		t.Errorf("Logging.ProtocolLog = %q", cfg.Logging.ProtocolLog)
	}
}

func TestLoadDiscoveryWithoutAddress(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	cfg, err := Load(write("discover.yaml", "discovery:\n  enabled: true\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "" {
		t.Errorf("Server.Address = %q, want empty so discovery runs", cfg.Server.Address)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	// An explicit address wins over discovery.
	cfg, err = Load(write("both.yaml", "server:\n  address: \"10.0.0.5:27570\"\ndiscovery:\n  enabled: true\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "10.0.0.5:27570" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}

	// Without discovery the default address stays.
	cfg, err = Load(write("plain.yaml", "poll:\n  stat_id: 440\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != DefaultAddress {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, DefaultAddress)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("poll: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Poll.Interval = 0 }},
		{"zero drain wait", func(c *Config) { c.Drain.Wait = 0 }},
		{"no address without discovery", func(c *Config) { c.Server.Address = "" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}

	cfg := Default()
	cfg.Server.Address = ""
	cfg.Discovery.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("discovery without address: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
