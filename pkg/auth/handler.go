// Package auth reacts to session events: it logs on anonymously once the
// transport connects and starts stat polling once the logon succeeds.
package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/statlink/statlink-go/pkg/event"
	"github.com/statlink/statlink-go/pkg/log"
	"github.com/statlink/statlink-go/pkg/poller"
	"github.com/statlink/statlink-go/pkg/session"
)

// State is the authentication state of the session.
type State uint8

const (
	// StateIdle is the resting state: not connected, or given up.
	StateIdle State = iota

	// StateConnecting is set by the driver before it connects.
	StateConnecting

	// StateConnected is passed through on the way to StateAuthenticating.
	StateConnected

	// StateAuthenticating waits for the logon result.
	StateAuthenticating

	// StateAuthenticated has an identity and a running poller.
	StateAuthenticated

	// StateDisconnected is passed through on the way back to StateIdle.
	StateDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Poller is the part of poller.Poller the handler drives.
type Poller interface {
	Start(ctx context.Context, interval time.Duration, statID uint32) (*poller.Task, error)
	Stop()
}

// Config configures a Handler.
type Config struct {
	Transport session.Transport
	Session   *session.State
	Poller    Poller

	PollInterval time.Duration
	StatID       uint32

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger records auth state changes.
	ProtocolLogger log.Logger

	// OnStateChange is called after every transition, on the goroutine
	// draining the bus.
	OnStateChange func(from, to State)
}

// Handler is the authentication state machine. Its reactions run on the
// goroutine draining the event bus; State may be read from any goroutine.
type Handler struct {
	ctx    context.Context
	config Config
	logger *slog.Logger
	plog   log.Logger

	mu      sync.RWMutex
	state   State
	pending *event.LoginResult
}

// NewHandler creates a handler in StateIdle. Poll tasks it starts derive
// from ctx.
func NewHandler(ctx context.Context, config Config) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		ctx:    ctx,
		config: config,
		logger: logger,
		plog:   log.OrNoop(config.ProtocolLogger),
		state:  StateIdle,
	}
}

// Register subscribes the handler's reactions on bus.
func (h *Handler) Register(bus *event.Bus) error {
	if err := bus.Subscribe(event.TagConnected, h.onConnected); err != nil {
		return err
	}
	if err := bus.Subscribe(event.TagDisconnected, h.onDisconnected); err != nil {
		return err
	}
	return bus.Subscribe(event.TagLoginResult, h.onLoginResult)
}

// State returns the current state.
func (h *Handler) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Pending returns the last logon result that was neither a success nor a
// denial. Such a result leaves the handler waiting in StateAuthenticating.
func (h *Handler) Pending() (event.LoginResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.pending == nil {
		return event.LoginResult{}, false
	}
	return *h.pending, true
}

// MarkConnecting records that a connection attempt is starting.
func (h *Handler) MarkConnecting() {
	h.transition(StateConnecting, "")
}

// Reset returns to StateIdle after a failed connection attempt.
func (h *Handler) Reset(reason string) {
	h.transition(StateIdle, reason)
}

func (h *Handler) onConnected(event.Event) {
	h.config.Session.SetConnected(true)
	h.setPending(nil)
	h.transition(StateConnected, "")

	if err := h.config.Transport.LogOnAnonymous(); err != nil {
		h.logger.Warn("anonymous logon not sent", "error", err)
		h.transition(StateIdle, err.Error())
		return
	}
	h.logger.Info("logging on anonymously")
	h.transition(StateAuthenticating, "")
}

func (h *Handler) onLoginResult(ev event.Event) {
	res, ok := ev.(event.LoginResult)
	if !ok {
		return
	}

	if h.State() != StateAuthenticating {
		h.logger.Warn("logon result outside authentication ignored", "state", h.State(), "result", res.Result)
		return
	}

	switch res.Result {
	case event.ResultOK:
		if !h.config.Session.SetIdentity(res.Identity) {
			h.logger.Warn("logon result after disconnect ignored", "identity", res.Identity)
			return
		}
		h.setPending(nil)
		h.logger.Info("logged on", "identity", res.Identity)
		h.transition(StateAuthenticated, "")
		h.startPoller()
	case event.ResultLogonDenied:
		h.logger.Warn("logon denied", "result", res.Result, "extended", res.Extended)
		h.transition(StateIdle, "logon denied")
	default:
		// No retry policy; the session waits for the next Connected or
		// Disconnected event.
		h.logger.Warn("logon not completed", "result", res.Result, "extended", res.Extended)
		h.setPending(&res)
	}
}

func (h *Handler) onDisconnected(ev event.Event) {
	d, _ := ev.(event.Disconnected)
	h.config.Poller.Stop()
	h.config.Session.SetConnected(false)
	h.setPending(nil)

	reason := ""
	if d.Err != nil {
		reason = d.Err.Error()
	}
	if d.UserInitiated {
		h.logger.Info("disconnected")
	} else {
		h.logger.Warn("disconnected", "error", d.Err)
	}
	h.transition(StateDisconnected, reason)
	h.transition(StateIdle, "")
}

func (h *Handler) startPoller() {
	_, err := h.config.Poller.Start(h.ctx, h.config.PollInterval, h.config.StatID)
	if err != nil {
		h.logger.Warn("poller not started", "error", err)
		return
	}
	h.logger.Info("polling started", "stat_id", h.config.StatID, "interval", h.config.PollInterval)
}

func (h *Handler) setPending(res *event.LoginResult) {
	h.mu.Lock()
	h.pending = res
	h.mu.Unlock()
}

func (h *Handler) transition(to State, reason string) {
	h.mu.Lock()
	from := h.state
	h.state = to
	h.mu.Unlock()

	if from == to {
		return
	}
	h.logger.Debug("auth state", "from", from, "to", to)
	h.plog.Log(log.StateEvent("", log.StateEntityAuth, from.String(), to.String(), reason))
	if h.config.OnStateChange != nil {
		h.config.OnStateChange(from, to)
	}
}
