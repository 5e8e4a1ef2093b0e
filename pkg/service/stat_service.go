package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/statlink/statlink-go/pkg/auth"
	"github.com/statlink/statlink-go/pkg/event"
	"github.com/statlink/statlink-go/pkg/poller"
	"github.com/statlink/statlink-go/pkg/session"
)

// StatService connects, authenticates and polls one stat.
type StatService struct {
	config    Config
	bus       *event.Bus
	transport session.Transport
	session   *session.State
	poller    *poller.Poller
	logger    *slog.Logger

	mu          sync.RWMutex
	state       ServiceState
	auth        *auth.Handler
	cancel      context.CancelFunc
	loopDone    chan struct{}
	lastPollErr error
}

// New creates a service. transport must publish its events on bus.
func New(config Config, bus *event.Bus, transport session.Transport) (*StatService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &StatService{
		config:    config,
		bus:       bus,
		transport: transport,
		session:   session.NewState(),
		logger:    logger,
		state:     StateIdle,
	}
	s.poller = poller.New(poller.Config{
		Transport:      transport,
		Session:        s.session,
		Logger:         logger,
		ProtocolLogger: config.ProtocolLogger,
		OnTaskDone:     s.onPollDone,
	})
	return s, nil
}

// Start connects and then drains events until ctx is cancelled or Stop is
// called. It returns the *session.ConnectionError of a failed connect and
// nil on cancellation. The transport is left connected on return.
func (s *StatService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.auth = auth.NewHandler(runCtx, auth.Config{
		Transport:      s.transport,
		Session:        s.session,
		Poller:         s.poller,
		PollInterval:   s.config.PollInterval,
		StatID:         s.config.StatID,
		Logger:         s.logger,
		ProtocolLogger: s.config.ProtocolLogger,
	})
	s.state = StateRunning
	done := s.loopDone
	s.mu.Unlock()

	defer func() {
		s.setState(StateStopped)
		close(done)
	}()

	if err := s.subscribe(); err != nil {
		return err
	}

	s.auth.MarkConnecting()
	if err := s.transport.Connect(runCtx); err != nil {
		s.logger.Error("connection failed", "error", err)
		s.auth.Reset(err.Error())
		return err
	}

	for {
		if runCtx.Err() != nil {
			return nil
		}
		s.debugLog("executing callbacks")
		s.bus.Drain(runCtx, s.config.DrainWait)
	}
}

func (s *StatService) subscribe() error {
	if err := s.auth.Register(s.bus); err != nil {
		return fmt.Errorf("register auth handler: %w", err)
	}
	if err := s.bus.Subscribe(event.TagStatResult, s.onStatResult); err != nil {
		return fmt.Errorf("register stat handler: %w", err)
	}
	return nil
}

// Stop cancels the drain loop and waits, bounded by ctx, for it and the
// poll task to exit. It does not disconnect the transport.
func (s *StatService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	cancel, done := s.cancel, s.loopDone
	if s.state == StateRunning {
		s.state = StateStopping
	}
	s.mu.Unlock()

	cancel()
	s.logger.Info("service stopped")

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for drain loop: %w", ctx.Err())
	}
	if err := s.poller.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for poller: %w", err)
	}
	return nil
}

// Status returns a snapshot of the service.
func (s *StatService) Status() Status {
	s.mu.RLock()
	st := Status{
		State:       s.state,
		AuthState:   auth.StateIdle,
		LastPollErr: s.lastPollErr,
	}
	if s.auth != nil {
		st.AuthState = s.auth.State()
	}
	s.mu.RUnlock()

	st.Connected = s.session.Connected()
	st.Identity = s.session.Identity()
	st.PollerActive = s.poller.Active()
	if v, ok := s.poller.LastValue(); ok {
		st.LastValue = &v
	}
	st.EventsDelivered, st.EventsUnhandled = s.bus.Stats()
	return st
}

func (s *StatService) onStatResult(ev event.Event) {
	if r, ok := ev.(event.StatResult); ok {
		s.debugLog("stat result", "stat_id", r.StatID, "value", r.Value)
	}
}

func (s *StatService) onPollDone(err error) {
	s.mu.Lock()
	s.lastPollErr = err
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("polling stopped", "error", err)
	}
}

func (s *StatService) setState(state ServiceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *StatService) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
