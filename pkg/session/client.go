package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/statlink/statlink-go/pkg/discovery"
	"github.com/statlink/statlink-go/pkg/event"
	"github.com/statlink/statlink-go/pkg/log"
	"github.com/statlink/statlink-go/pkg/transport"
	"github.com/statlink/statlink-go/pkg/version"
	"github.com/statlink/statlink-go/pkg/wire"
)

// ErrRequestTimeout is returned when the platform does not answer in time.
var ErrRequestTimeout = errors.New("request timed out")

// DefaultRequestTimeout bounds logon and stat requests.
const DefaultRequestTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	// Address is the platform's host:port. When empty the platform is
	// located with Browser.
	Address string

	// TLS enables TLS on the connection.
	TLS                bool
	InsecureSkipVerify bool

	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	KeepAlive        transport.KeepAliveConfig
	DisableKeepAlive bool

	// ClientName is sent with the logon request.
	ClientName string

	// Browser locates a platform when Address is empty.
	Browser          discovery.Browser
	DiscoveryTimeout time.Duration

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger captures frames, messages and state changes.
	ProtocolLogger log.Logger
}

// Client implements Transport over the statlink CBOR protocol.
type Client struct {
	config Config
	pub    Publisher
	logger *slog.Logger
	plog   log.Logger

	mu   sync.Mutex
	link *link

	nextMsgID atomic.Uint32
}

var _ Transport = (*Client)(nil)

// NewClient creates a client that reports its events to pub.
func NewClient(config Config, pub Publisher) *Client {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.DiscoveryTimeout <= 0 {
		config.DiscoveryTimeout = discovery.BrowseTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		config: config,
		pub:    pub,
		logger: logger,
		plog:   log.OrNoop(config.ProtocolLogger),
	}
}

// link is one transport connection and its outstanding requests.
type link struct {
	client *Client
	conn   atomic.Pointer[transport.Conn]

	// installed and closed are guarded by client.mu.
	installed bool
	closed    bool

	identity atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint32]*pendingRequest
}

type pendingRequest struct {
	op     wire.Operation
	statID uint32
	sent   time.Time
	ch     chan *wire.Response
}

// Connect dials the platform. A dial, TLS or discovery failure is returned
// as a *ConnectionError. On success event.Connected is published.
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	addr, err := c.resolve(ctx)
	if err != nil {
		c.logger.Warn("platform address not resolved", "error", err)
		return &ConnectionError{Err: err}
	}

	dialer := transport.NewDialer(transport.DialerConfig{
		TLSConfig:        c.tlsConfig(),
		ConnectTimeout:   c.config.ConnectTimeout,
		KeepAlive:        c.config.KeepAlive,
		DisableKeepAlive: c.config.DisableKeepAlive,
		Logger:           c.config.ProtocolLogger,
	})

	l := &link{client: c, pending: make(map[uint32]*pendingRequest)}
	c.logger.Debug("connecting", "address", addr)
	conn, err := dialer.Dial(ctx, addr, l)
	if err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l.conn.Store(conn)
	if l.closed {
		return &ConnectionError{Addr: addr, Err: transport.ErrConnectionClosed}
	}
	l.installed = true
	c.link = l
	c.logState(l, "DISCONNECTED", "CONNECTED", "")
	c.logger.Info("connected", "address", addr, "conn_id", conn.ID())
	c.pub.Publish(event.Connected{})
	return nil
}

func (c *Client) resolve(ctx context.Context) (string, error) {
	if c.config.Address != "" {
		return c.config.Address, nil
	}
	if c.config.Browser == nil {
		return "", ErrNoAddress
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.DiscoveryTimeout)
	defer cancel()

	svc, err := c.config.Browser.FindFirst(ctx)
	if err != nil {
		if errors.Is(err, discovery.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrNoAddress, err)
		}
		return "", fmt.Errorf("discovery failed: %w", err)
	}
	c.logger.Info("platform discovered", "instance", svc.Instance, "address", svc.Address(), "version", svc.Version)
	return svc.Address(), nil
}

func (c *Client) tlsConfig() *tls.Config {
	if !c.config.TLS {
		return nil
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.config.InsecureSkipVerify, //nolint:gosec // opt-in for lab platforms
	}
}

// Disconnect closes the current connection. event.Disconnected is published
// by the connection's close path exactly once. It is a no-op when already
// disconnected.
func (c *Client) Disconnect() error {
	l := c.current()
	if l == nil {
		return nil
	}

	if l.identity.Load() != 0 {
		// Best effort; the platform drops the identity on close anyway.
		if req, err := wire.NewRequest(c.messageID(), wire.OpLogOff, nil); err == nil {
			_ = c.send(l, req)
		}
	}
	return l.conn.Load().Close()
}

// IsConnected reports whether a connection is open.
func (c *Client) IsConnected() bool {
	return c.current() != nil
}

func (c *Client) current() *link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// LogOnAnonymous sends a logon request and returns without waiting. The
// outcome is published as event.LoginResult.
func (c *Client) LogOnAnonymous() error {
	l := c.current()
	if l == nil {
		return ErrNotConnected
	}

	req, err := wire.NewRequest(c.messageID(), wire.OpLogOnAnonymous, wire.LogOnPayload{
		ProtocolVersion: version.Current,
		ClientName:      c.config.ClientName,
	})
	if err != nil {
		return err
	}

	p := l.register(req, 0)
	if err := c.send(l, req); err != nil {
		l.unregister(req.MessageID)
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	go c.awaitLogon(l, req.MessageID, p)
	return nil
}

func (c *Client) awaitLogon(l *link, id uint32, p *pendingRequest) {
	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-p.ch:
		if !ok {
			// Connection lost; Disconnected covers it.
			return
		}
		ev := event.LoginResult{
			Result:   toEventResult(resp.Result),
			Extended: toEventResult(resp.Extended),
		}
		if resp.IsSuccess() {
			var payload wire.LogOnResponsePayload
			if err := wire.DecodePayload(resp.Payload, &payload); err != nil {
				c.logger.Warn("malformed logon response", "error", err)
				ev.Result = event.ResultFail
			} else {
				ev.Identity = payload.Identity
				l.identity.Store(payload.Identity)
				c.applyHeartbeat(l, payload.HeartbeatSeconds)
			}
		}
		c.pub.Publish(ev)
	case <-timer.C:
		l.unregister(id)
		c.logger.Warn("logon timed out", "timeout", c.config.RequestTimeout)
		c.pub.Publish(event.LoginResult{Result: event.ResultTimeout})
	}
}

// applyHeartbeat sets the keep-alive interval the platform asked for.
func (c *Client) applyHeartbeat(l *link, seconds uint32) {
	if seconds == 0 {
		return
	}
	interval := time.Duration(seconds) * time.Second
	if l.conn.Load().SetPingInterval(interval) {
		c.logger.Debug("keep-alive interval set by platform", "interval", interval)
	}
}

// QueryStat asks the platform for a statistic and waits for the answer.
// A successful value is also published as event.StatResult.
func (c *Client) QueryStat(ctx context.Context, statID uint32) (uint32, error) {
	l := c.current()
	if l == nil {
		return 0, ErrNotConnected
	}

	req, err := wire.NewRequest(c.messageID(), wire.OpQueryStat, wire.QueryStatPayload{StatID: statID})
	if err != nil {
		return 0, &RemoteQueryError{StatID: statID, Err: err}
	}

	p := l.register(req, statID)
	defer l.unregister(req.MessageID)

	if err := c.send(l, req); err != nil {
		return 0, &RemoteQueryError{StatID: statID, Err: err}
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-p.ch:
		if !ok {
			return 0, &RemoteQueryError{StatID: statID, Err: transport.ErrConnectionClosed}
		}
		if !resp.IsSuccess() {
			return 0, &RemoteQueryError{StatID: statID, Result: toEventResult(resp.Result)}
		}
		var payload wire.QueryStatResponsePayload
		if err := wire.DecodePayload(resp.Payload, &payload); err != nil {
			return 0, &RemoteQueryError{StatID: statID, Result: event.ResultFail, Err: err}
		}
		c.pub.Publish(event.StatResult{StatID: statID, Value: payload.Value})
		return payload.Value, nil
	case <-timer.C:
		return 0, &RemoteQueryError{StatID: statID, Result: event.ResultTimeout, Err: ErrRequestTimeout}
	case <-ctx.Done():
		return 0, &RemoteQueryError{StatID: statID, Err: ctx.Err()}
	}
}

func (c *Client) messageID() uint32 {
	id := c.nextMsgID.Add(1)
	if id == 0 {
		id = c.nextMsgID.Add(1)
	}
	return id
}

func (c *Client) send(l *link, req *wire.Request) error {
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return err
	}
	if err := l.conn.Load().Send(data); err != nil {
		c.plog.Log(log.ErrorEvent(l.id(), log.LayerWire, err, "send "+req.Operation.String()))
		return err
	}
	c.logRequest(l, req)
	return nil
}

func (l *link) register(req *wire.Request, statID uint32) *pendingRequest {
	p := &pendingRequest{
		op:     req.Operation,
		statID: statID,
		sent:   time.Now(),
		ch:     make(chan *wire.Response, 1),
	}
	l.pendingMu.Lock()
	l.pending[req.MessageID] = p
	l.pendingMu.Unlock()
	return p
}

func (l *link) unregister(id uint32) {
	l.pendingMu.Lock()
	delete(l.pending, id)
	l.pendingMu.Unlock()
}

// OnMessage routes a response to the request waiting for it.
func (l *link) OnMessage(data []byte) {
	c := l.client
	resp, err := wire.DecodeResponse(data)
	if err != nil {
		c.logger.Debug("dropping undecodable frame", "error", err)
		c.plog.Log(log.ErrorEvent(l.id(), log.LayerWire, err, "decode response"))
		return
	}

	l.pendingMu.Lock()
	p, ok := l.pending[resp.MessageID]
	delete(l.pending, resp.MessageID)
	l.pendingMu.Unlock()

	if !ok {
		c.logResponse(l, resp, nil)
		c.logger.Debug("response without pending request", "message_id", resp.MessageID, "result", resp.Result)
		return
	}

	c.logResponse(l, resp, p)
	p.ch <- resp
}

// OnClose fails outstanding requests and publishes event.Disconnected.
func (l *link) OnClose(err error) {
	c := l.client

	l.pendingMu.Lock()
	for id, p := range l.pending {
		close(p.ch)
		delete(l.pending, id)
	}
	l.pendingMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	l.closed = true
	if !l.installed {
		return
	}
	if c.link == l {
		c.link = nil
	}

	reason := ""
	if err != nil {
		reason = err.Error()
		c.logger.Warn("connection lost", "error", err)
	} else {
		c.logger.Info("disconnected")
	}
	c.logState(l, "CONNECTED", "DISCONNECTED", reason)
	c.pub.Publish(event.Disconnected{UserInitiated: err == nil, Err: err})
}

func (l *link) id() string {
	if conn := l.conn.Load(); conn != nil {
		return conn.ID()
	}
	return ""
}

func (c *Client) logState(l *link, from, to, reason string) {
	ev := log.StateEvent(l.id(), log.StateEntitySession, from, to, reason)
	ev.Identity = l.identity.Load()
	c.plog.Log(ev)
}

func (c *Client) logRequest(l *link, req *wire.Request) {
	op := req.Operation
	msg := &log.MessageEvent{Kind: wire.KindRequest, MessageID: req.MessageID, Operation: &op}
	if op == wire.OpQueryStat {
		var p wire.QueryStatPayload
		if wire.DecodePayload(req.Payload, &p) == nil {
			msg.StatID = &p.StatID
		}
	}
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.id(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		Identity:     l.identity.Load(),
		Message:      msg,
	})
}

func (c *Client) logResponse(l *link, resp *wire.Response, p *pendingRequest) {
	result := resp.Result
	msg := &log.MessageEvent{Kind: wire.KindResponse, MessageID: resp.MessageID, Result: &result}
	if resp.Extended != wire.ResultInvalid {
		ext := resp.Extended
		msg.Extended = &ext
	}
	if p != nil {
		op := p.op
		rtt := time.Since(p.sent)
		msg.Operation = &op
		msg.RoundTrip = &rtt
		if op == wire.OpQueryStat {
			var payload wire.QueryStatResponsePayload
			if resp.IsSuccess() && wire.DecodePayload(resp.Payload, &payload) == nil {
				msg.StatID = &payload.StatID
				msg.Value = &payload.Value
			} else {
				statID := p.statID
				msg.StatID = &statID
			}
		}
	}
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.id(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		Identity:     l.identity.Load(),
		Message:      msg,
	})
}

// toEventResult maps a wire result code to the core's result code. The two
// enumerations share values.
func toEventResult(r wire.Result) event.Result {
	return event.Result(r)
}
