package statserver

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/statlink/statlink-go/pkg/discovery"
	"github.com/statlink/statlink-go/pkg/log"
	"github.com/statlink/statlink-go/pkg/transport"
	"github.com/statlink/statlink-go/pkg/version"
	"github.com/statlink/statlink-go/pkg/wire"
)

// Options configures a Server.
type Options struct {
	// Address to listen on. Defaults to transport.DefaultPort on all
	// interfaces.
	Address   string
	TLSConfig *tls.Config

	// DenyLogon answers every logon with ResultLogonDenied.
	DenyLogon bool

	// LogonResult, when set and not ResultOK, answers every logon with it.
	// It takes precedence over DenyLogon.
	LogonResult   wire.Result
	LogonExtended wire.Result

	// HeartbeatSeconds is advertised in logon responses.
	HeartbeatSeconds uint32

	// Stats serves stat queries. Nil knows no stats.
	Stats StatSource

	// Advertiser, when set, announces the platform once it listens.
	// Instance and Name go into the announcement.
	Advertiser discovery.Advertiser
	Instance   string
	Name       string

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// Server is a statlink platform on top of transport.Server.
type Server struct {
	opts    Options
	handler *Handler
	ts      *transport.Server
	logger  *slog.Logger
	plog    log.Logger

	advertising bool
}

// New creates a server. Call Start to listen.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := NewHandler(opts.Stats)
	h.SetHeartbeat(opts.HeartbeatSeconds)
	switch {
	case opts.LogonResult != wire.ResultInvalid && opts.LogonResult != wire.ResultOK:
		h.SetLogonResult(opts.LogonResult, opts.LogonExtended)
	case opts.DenyLogon:
		h.SetLogonResult(wire.ResultLogonDenied, opts.LogonExtended)
	}

	s := &Server{
		opts:    opts,
		handler: h,
		logger:  logger,
		plog:    log.OrNoop(opts.ProtocolLogger),
	}
	s.ts = transport.NewServer(transport.ServerConfig{
		Address:   opts.Address,
		TLSConfig: opts.TLSConfig,
		Logger:    opts.ProtocolLogger,
		OnConnect: func(conn *transport.ServerConn) {
			s.logger.Info("client connected", "conn_id", conn.ID(), "remote", conn.RemoteAddr())
		},
		OnDisconnect: func(conn *transport.ServerConn) {
			s.handler.Forget(conn.ID())
			s.logger.Info("client disconnected", "conn_id", conn.ID())
		},
		OnMessage: s.onMessage,
		OnError: func(conn *transport.ServerConn, err error) {
			if conn == nil {
				s.logger.Warn("server error", "error", err)
				return
			}
			s.logger.Debug("connection error", "conn_id", conn.ID(), "error", err)
		},
	})
	return s
}

// Handler exposes the request handler for scripting.
func (s *Server) Handler() *Handler { return s.handler }

// Start begins listening and, with an Advertiser, announces the platform.
// A failed announcement is logged; the platform keeps serving.
func (s *Server) Start(ctx context.Context) error {
	if err := s.ts.Start(ctx); err != nil {
		return err
	}
	s.logger.Info("stat platform listening", "address", s.ts.Addr())

	if s.opts.Advertiser != nil {
		info := &discovery.PlatformInfo{
			Instance: s.opts.Instance,
			Port:     uint16(s.ts.Port()),
			Version:  version.Current,
			Name:     s.opts.Name,
		}
		if err := s.opts.Advertiser.Advertise(ctx, info); err != nil {
			s.logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			s.advertising = true
			s.logger.Info("advertising", "instance", info.Instance, "service", discovery.ServiceType)
		}
	}
	return nil
}

// Advertising reports whether the platform is announced.
func (s *Server) Advertising() bool { return s.advertising }

// Stop withdraws the announcement, then closes the listener and all
// connections.
func (s *Server) Stop() error {
	if s.advertising {
		if err := s.opts.Advertiser.Stop(); err != nil {
			s.logger.Debug("stop advertising", "error", err)
		}
		s.advertising = false
	}
	return s.ts.Stop()
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr { return s.ts.Addr() }

// Port returns the listen port.
func (s *Server) Port() int { return s.ts.Port() }

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int { return s.ts.ConnectionCount() }

// DisconnectAll drops every client without stopping the listener.
func (s *Server) DisconnectAll() { s.ts.CloseAll() }

func (s *Server) onMessage(conn *transport.ServerConn, data []byte) {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		s.logger.Debug("dropping invalid request", "conn_id", conn.ID(), "error", err)
		s.plog.Log(log.ErrorEvent(conn.ID(), log.LayerWire, err, "decode request"))
		return
	}
	s.capture(conn, log.DirectionIn, &log.MessageEvent{
		Kind:      wire.KindRequest,
		MessageID: req.MessageID,
		Operation: &req.Operation,
	})

	resp := s.handler.HandleRequest(conn.ID(), req)
	out, err := wire.EncodeResponse(resp)
	if err != nil {
		s.logger.Warn("encode response failed", "error", err)
		return
	}
	if err := conn.Send(out); err != nil {
		s.logger.Debug("send response failed", "conn_id", conn.ID(), "error", err)
		return
	}
	s.capture(conn, log.DirectionOut, &log.MessageEvent{
		Kind:      wire.KindResponse,
		MessageID: resp.MessageID,
		Operation: &req.Operation,
		Result:    &resp.Result,
	})
	s.logger.Debug("request served", "conn_id", conn.ID(), "op", req.Operation, "result", resp.Result)
}

func (s *Server) capture(conn *transport.ServerConn, dir log.Direction, msg *log.MessageEvent) {
	identity, _ := s.handler.Identity(conn.ID())
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ID(),
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RolePlatform,
		RemoteAddr:   conn.RemoteAddr().String(),
		Identity:     identity,
		Message:      msg,
	})
}
