package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/statlink/statlink-go/pkg/auth"
	"github.com/statlink/statlink-go/pkg/log"
)

// Service errors.
var (
	ErrAlreadyStarted = errors.New("service already started")
	ErrNotStarted     = errors.New("service not started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

const (
	// DefaultStatID is the application whose player count is polled.
	DefaultStatID uint32 = 570

	DefaultPollInterval = 5 * time.Second
	DefaultDrainWait    = time.Second
)

// ServiceState is the lifecycle state of a StatService.
type ServiceState uint8

const (
	// StateIdle - created but not started.
	StateIdle ServiceState = iota

	// StateRunning - draining events.
	StateRunning

	// StateStopping - cancellation requested.
	StateStopping

	// StateStopped - the drain loop has exited.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a StatService.
type Config struct {
	PollInterval time.Duration
	StatID       uint32

	// DrainWait bounds each wait for events in the drain loop.
	DrainWait time.Duration

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger records auth and poller state changes.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		StatID:       DefaultStatID,
		DrainWait:    DefaultDrainWait,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 || c.DrainWait <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Status is a point-in-time view of the service.
type Status struct {
	State     ServiceState
	AuthState auth.State
	Connected bool

	// Identity is nil until the anonymous logon succeeds.
	Identity *uint64

	PollerActive bool

	// LastValue is the most recent stat value, nil before the first one.
	LastValue *uint32

	// LastPollErr is the error that ended the last poll task.
	LastPollErr error

	EventsDelivered uint64
	EventsUnhandled uint64
}
