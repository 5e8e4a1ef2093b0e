package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/statlink/statlink-go/pkg/log"
	"github.com/statlink/statlink-go/pkg/wire"
)

// ConnectionState is the lifecycle state of a Conn.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnected
	StateClosing
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrPeerClosed       = errors.New("closed by peer")
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultCloseTimeout   = 2 * time.Second
)

// ConnHandler receives the traffic of a client connection.
type ConnHandler interface {
	// OnMessage is called on the read goroutine for every non-control frame.
	OnMessage(data []byte)

	// OnClose is called exactly once when the connection ends. err is nil
	// when the connection was closed locally with Close.
	OnClose(err error)
}

// DialerConfig configures client connections.
type DialerConfig struct {
	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	ConnectTimeout time.Duration
	CloseTimeout   time.Duration
	MaxMessageSize uint32

	KeepAlive        KeepAliveConfig
	DisableKeepAlive bool

	// Logger receives frame and control captures.
	Logger log.Logger
}

// Dialer opens client connections.
type Dialer struct {
	config DialerConfig
}

// NewDialer creates a Dialer, filling zero fields with defaults.
func NewDialer(config DialerConfig) *Dialer {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = DefaultCloseTimeout
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Dialer{config: config}
}

// Dial connects to address and starts the read loop and keep-alive.
// handler must not be nil.
func (d *Dialer) Dial(ctx context.Context, address string, handler ConnHandler) (*Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.ConnectTimeout)
		defer cancel()
	}

	nd := &net.Dialer{}
	raw, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	var nc net.Conn = raw
	if d.config.TLSConfig != nil {
		tc := tls.Client(raw, d.config.TLSConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		nc = tc
	}

	c := newConn(nc, d.config, handler)
	c.start()
	return c, nil
}

// Conn is a client connection with a background read loop.
type Conn struct {
	id      string
	nc      net.Conn
	framer  *Framer
	config  DialerConfig
	handler ConnHandler
	logger  log.Logger

	keepAlive *KeepAlive
	cancel    context.CancelFunc

	state     atomic.Int32
	closeOnce sync.Once
	closeMu   sync.Mutex
	closeErr  error
	done      chan struct{}
}

func newConn(nc net.Conn, config DialerConfig, handler ConnHandler) *Conn {
	id := uuid.New().String()
	framer := NewFramerWithMaxSize(nc, config.MaxMessageSize)
	if config.Logger != nil {
		framer.SetLogger(config.Logger, id)
	}
	c := &Conn{
		id:      id,
		nc:      nc,
		framer:  framer,
		config:  config,
		handler: handler,
		logger:  log.OrNoop(config.Logger),
		done:    make(chan struct{}),
	}
	c.state.Store(int32(StateConnected))
	return c
}

func (c *Conn) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.logState(StateDisconnected, StateConnected, "")

	if !c.config.DisableKeepAlive {
		c.keepAlive = NewKeepAlive(c.config.KeepAlive,
			func(seq uint32) error { return c.sendControl(wire.ControlPing, seq) },
			func() { c.fail(ErrKeepAliveTimeout) },
		)
		c.keepAlive.Start(ctx)
	}

	go c.readLoop()
}

// ID returns the connection's UUID, used as the protocol capture key.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// State returns the current connection state.
func (c *Conn) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// SetPingInterval changes the keep-alive ping interval. It reports false
// when keep-alive is disabled.
func (c *Conn) SetPingInterval(d time.Duration) bool {
	if c.keepAlive == nil {
		return false
	}
	c.keepAlive.SetPingInterval(d)
	return true
}

// KeepAliveStats returns the keep-alive counters, or zero values when
// keep-alive is disabled.
func (c *Conn) KeepAliveStats() KeepAliveStats {
	if c.keepAlive == nil {
		return KeepAliveStats{}
	}
	return c.keepAlive.Stats()
}

// Done is closed once the read loop has exited and OnClose has returned.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send writes one frame.
func (c *Conn) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrConnectionClosed
	}
	return c.framer.WriteFrame(data)
}

// Close sends a close message, shuts the socket and waits for the read
// loop to finish, bounded by the close timeout. Safe to call more than once.
func (c *Conn) Close() error {
	c.shutdown(nil, true)
	select {
	case <-c.done:
	case <-time.After(c.config.CloseTimeout):
	}
	return nil
}

// fail tears down the connection because of err without waiting.
func (c *Conn) fail(err error) {
	c.shutdown(err, false)
}

func (c *Conn) shutdown(reason error, graceful bool) {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closeErr = reason
		c.closeMu.Unlock()

		if graceful {
			_ = c.sendControl(wire.ControlClose, 0)
		}
		c.state.Store(int32(StateClosing))
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		if c.cancel != nil {
			c.cancel()
		}
		c.nc.Close()
	})
}

func (c *Conn) reason() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if c.State() == StateConnected {
				c.logger.Log(log.ErrorEvent(c.id, log.LayerTransport, err, "read"))
				c.fail(fmt.Errorf("read error: %w", err))
			}
			break
		}

		if kind, perr := wire.PeekKind(data); perr == nil && kind == wire.KindControl {
			if msg, derr := wire.DecodeControlMessage(data); derr == nil {
				if c.handleControl(msg) {
					break
				}
				continue
			}
		}
		c.handler.OnMessage(data)
	}

	reason := c.reason()
	c.state.Store(int32(StateDisconnected))
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	c.logState(StateClosing, StateDisconnected, msg)
	c.handler.OnClose(reason)
}

// handleControl reports whether the read loop should stop.
func (c *Conn) handleControl(msg *wire.ControlMessage) bool {
	c.logControl(msg, log.DirectionIn)
	switch msg.Type {
	case wire.ControlPing:
		_ = c.sendControl(wire.ControlPong, msg.Sequence)
	case wire.ControlPong:
		if c.keepAlive != nil {
			c.keepAlive.PongReceived(msg.Sequence)
		}
	case wire.ControlClose:
		c.fail(ErrPeerClosed)
		return true
	}
	return false
}

func (c *Conn) sendControl(t wire.ControlMessageType, seq uint32) error {
	msg := &wire.ControlMessage{Type: t, Sequence: seq}
	data, err := encodeControl(t, seq)
	if err != nil {
		return err
	}
	if err := c.framer.WriteFrame(data); err != nil {
		return err
	}
	c.logControl(msg, log.DirectionOut)
	return nil
}

func (c *Conn) logControl(msg *wire.ControlMessage, dir log.Direction) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: msg.Type, Sequence: msg.Sequence},
	})
}

func (c *Conn) logState(from, to ConnectionState, reason string) {
	ev := log.StateEvent(c.id, log.StateEntityConnection, from.String(), to.String(), reason)
	ev.Layer = log.LayerTransport
	ev.RemoteAddr = c.nc.RemoteAddr().String()
	c.logger.Log(ev)
}
