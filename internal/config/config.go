// Package config loads the statlink client configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/statlink/statlink-go/pkg/discovery"
	"github.com/statlink/statlink-go/pkg/service"
	"github.com/statlink/statlink-go/pkg/transport"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultAddress is used when no address is configured and discovery is off.
var DefaultAddress = fmt.Sprintf("localhost:%d", transport.DefaultPort)

// Config is the client configuration file.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Poll      PollConfig                `yaml:"poll"`
	Drain     DrainConfig               `yaml:"drain"`
	KeepAlive transport.KeepAliveConfig `yaml:"keepalive"`
	Discovery DiscoveryConfig           `yaml:"discovery"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// ServerConfig locates the platform and secures the connection.
type ServerConfig struct {
	// Address is host:port. Empty means discover the platform.
	Address string `yaml:"address"`

	// TLS dials with TLS. InsecureSkipVerify accepts any certificate.
	TLS                bool `yaml:"tls"`
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// PollConfig selects the statistic and how often it is fetched.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`

	// StatID is the application whose player count is polled.
	StatID uint32 `yaml:"stat_id"`
}

// DrainConfig bounds each wait of the event drain loop.
type DrainConfig struct {
	Wait time.Duration `yaml:"wait"`
}

// DiscoveryConfig controls mDNS lookup of the platform. It is used only
// when server.address is empty.
type DiscoveryConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`

	// Interface restricts browsing to one network interface.
	Interface string `yaml:"interface"`
}

// LoggingConfig sets the operational log level and the capture file.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// ProtocolLog is a file receiving the CBOR protocol capture.
	ProtocolLog string `yaml:"protocol_log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        DefaultAddress,
			ConnectTimeout: transport.DefaultConnectTimeout,
		},
		Poll: PollConfig{
			Interval: service.DefaultPollInterval,
			StatID:   service.DefaultStatID,
		},
		Drain:     DrainConfig{Wait: service.DefaultDrainWait},
		KeepAlive: transport.DefaultKeepAliveConfig(),
		Discovery: DiscoveryConfig{Timeout: discovery.BrowseTimeout},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// A file that enables discovery without naming an address leaves the
// address empty so the platform is discovered.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Server.Address = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ResolveAddress()
	return cfg, nil
}

// ResolveAddress falls back to DefaultAddress when no address is set and
// discovery is off.
func (c *Config) ResolveAddress() {
	if c.Server.Address == "" && !c.Discovery.Enabled {
		c.Server.Address = DefaultAddress
	}
}

// Validate checks the values that would make the service misbehave.
func (c *Config) Validate() error {
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("%w: poll.interval must be positive", ErrInvalid)
	}
	if c.Drain.Wait <= 0 {
		return fmt.Errorf("%w: drain.wait must be positive", ErrInvalid)
	}
	if c.Server.Address == "" && !c.Discovery.Enabled {
		return fmt.Errorf("%w: server.address is empty and discovery is disabled", ErrInvalid)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalid, s)
	}
}
