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

// DefaultPort is the default statlink platform port.
const DefaultPort = 27570

var ErrServerRunning = errors.New("server already running")

// ServerConfig configures a frame server.
type ServerConfig struct {
	// Address to listen on, e.g. ":27570" or "127.0.0.1:0".
	Address string

	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	MaxMessageSize uint32

	// Logger receives frame, control and state captures.
	Logger log.Logger

	OnConnect    func(conn *ServerConn)
	OnDisconnect func(conn *ServerConn)
	OnMessage    func(conn *ServerConn, msg []byte)
	OnError      func(conn *ServerConn, err error)
}

// Server accepts client connections and dispatches their frames.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. Zero config fields take defaults.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}
}

// Start listens and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if s.config.TLSConfig != nil {
		ln = tls.NewListener(ln, s.config.TLSConfig)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = ln
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every connection, then waits for all
// connection goroutines to exit.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	s.listener.Close()
	s.CloseAll()
	s.wg.Wait()
	return nil
}

// CloseAll drops every active connection without stopping the listener.
func (s *Server) CloseAll() {
	s.connsMu.RLock()
	conns := make([]*ServerConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(nc)
	}
}

func (s *Server) handleConnection(nc net.Conn) {
	defer s.wg.Done()

	id := uuid.New().String()
	framer := NewFramerWithMaxSize(nc, s.config.MaxMessageSize)
	if s.config.Logger != nil {
		framer.SetLogger(s.config.Logger, id)
	}

	sc := &ServerConn{
		nc:      nc,
		framer:  framer,
		server:  s,
		closeCh: make(chan struct{}),
		id:      id,
		logger:  log.OrNoop(s.config.Logger),
	}

	s.connsMu.Lock()
	s.conns[sc] = struct{}{}
	s.connsMu.Unlock()
	if !s.running.Load() {
		sc.Close()
	}

	sc.logState("", "CONNECTED")
	if s.config.OnConnect != nil {
		s.config.OnConnect(sc)
	}

	sc.readLoop()

	s.connsMu.Lock()
	delete(s.conns, sc)
	s.connsMu.Unlock()

	sc.logState("CONNECTED", "DISCONNECTED")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sc)
	}
}

// ServerConn is the server side of one client connection.
type ServerConn struct {
	nc        net.Conn
	framer    *Framer
	server    *Server
	id        string
	logger    log.Logger
	closeCh   chan struct{}
	closeOnce sync.Once
}

// ID returns the connection's UUID.
func (c *ServerConn) ID() string { return c.id }

// RemoteAddr returns the client address.
func (c *ServerConn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Send writes one frame to the client.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Close closes the connection. Safe to call more than once.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.nc.Close()
	})
	return err
}

func (c *ServerConn) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *ServerConn) readLoop() {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if !c.closed() && c.server.running.Load() && c.server.config.OnError != nil {
				c.server.config.OnError(c, err)
			}
			c.Close()
			return
		}

		if kind, perr := wire.PeekKind(data); perr == nil && kind == wire.KindControl {
			if msg, derr := wire.DecodeControlMessage(data); derr == nil {
				c.handleControl(msg)
				continue
			}
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}

func (c *ServerConn) handleControl(msg *wire.ControlMessage) {
	c.logControl(msg.Type, msg.Sequence, log.DirectionIn)

	switch msg.Type {
	case wire.ControlPing:
		if data, err := encodeControl(wire.ControlPong, msg.Sequence); err == nil && c.Send(data) == nil {
			c.logControl(wire.ControlPong, msg.Sequence, log.DirectionOut)
		}
	case wire.ControlClose:
		if data, err := encodeControl(wire.ControlClose, 0); err == nil && c.Send(data) == nil {
			c.logControl(wire.ControlClose, 0, log.DirectionOut)
		}
		c.Close()
	}
}

func (c *ServerConn) logControl(t wire.ControlMessageType, seq uint32, dir log.Direction) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		LocalRole:    log.RolePlatform,
		RemoteAddr:   c.nc.RemoteAddr().String(),
		ControlMsg:   &log.ControlMsgEvent{Type: t, Sequence: seq},
	})
}

func (c *ServerConn) logState(from, to string) {
	ev := log.StateEvent(c.id, log.StateEntityConnection, from, to, "")
	ev.Layer = log.LayerTransport
	ev.LocalRole = log.RolePlatform
	ev.RemoteAddr = c.nc.RemoteAddr().String()
	c.logger.Log(ev)
}

// encodeControl encodes a control message for either side of a connection.
func encodeControl(t wire.ControlMessageType, seq uint32) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{Type: t, Sequence: seq})
}
