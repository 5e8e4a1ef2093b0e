package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages [][]byte
	closes   []error
	closed   chan struct{}
	msgCh    chan []byte
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan struct{}), msgCh: make(chan []byte, 16)}
}

func (h *recordingHandler) OnMessage(data []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, data)
	h.mu.Unlock()
	h.msgCh <- data
}

func (h *recordingHandler) OnClose(err error) {
	h.mu.Lock()
	h.closes = append(h.closes, err)
	h.mu.Unlock()
	close(h.closed)
}

func (h *recordingHandler) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.closes)
}

func startEchoServer(t *testing.T, logger *captureLogger) *Server {
	t.Helper()
	cfg := ServerConfig{
		Address: "127.0.0.1:0",
		OnMessage: func(conn *ServerConn, msg []byte) {
			_ = conn.Send(msg)
		},
	}
	if logger != nil {
		cfg.Logger = logger
	}
	srv := NewServer(cfg)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestDialEcho(t *testing.T) {
	srv := startEchoServer(t, nil)
	h := newRecordingHandler()

	conn, err := NewDialer(DialerConfig{DisableKeepAlive: true}).Dial(context.Background(), srv.Addr().String(), h)
	require.NoError(t, err)
	defer conn.Close()

	assert.NotEmpty(t, conn.ID())
	assert.Equal(t, StateConnected, conn.State())

	require.NoError(t, conn.Send([]byte{0xa1, 0x01, 0x01}))
	select {
	case msg := <-h.msgCh:
		assert.Equal(t, []byte{0xa1, 0x01, 0x01}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}

	waitFor(t, func() bool { return srv.ConnectionCount() == 1 })
}

func TestDialFailure(t *testing.T) {
	srv := startEchoServer(t, nil)
	addr := srv.Addr().String()
	srv.Stop()

	_, err := NewDialer(DialerConfig{ConnectTimeout: 500 * time.Millisecond}).Dial(context.Background(), addr, newRecordingHandler())
	require.Error(t, err)
}

func TestLocalCloseReportsNil(t *testing.T) {
	srv := startEchoServer(t, nil)
	h := newRecordingHandler()

	conn, err := NewDialer(DialerConfig{DisableKeepAlive: true}).Dial(context.Background(), srv.Addr().String(), h)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	<-h.closed
	assert.Equal(t, 1, h.closeCount())
	assert.Nil(t, h.closes[0])
	assert.Equal(t, StateDisconnected, conn.State())
	assert.ErrorIs(t, conn.Send([]byte{1}), ErrConnectionClosed)

	waitFor(t, func() bool { return srv.ConnectionCount() == 0 })
}

func TestPeerDropReportsError(t *testing.T) {
	srv := startEchoServer(t, nil)
	h := newRecordingHandler()

	conn, err := NewDialer(DialerConfig{DisableKeepAlive: true}).Dial(context.Background(), srv.Addr().String(), h)
	require.NoError(t, err)
	defer conn.Close()

	waitFor(t, func() bool { return srv.ConnectionCount() == 1 })
	srv.CloseAll()

	select {
	case <-h.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
	require.Error(t, h.closes[0])
	assert.Equal(t, 1, h.closeCount())
}

func TestKeepAliveAgainstServer(t *testing.T) {
	logger := &captureLogger{}
	srv := startEchoServer(t, logger)
	h := newRecordingHandler()

	conn, err := NewDialer(DialerConfig{
		KeepAlive: KeepAliveConfig{PingInterval: 20 * time.Millisecond, PongTimeout: 10 * time.Millisecond, MaxMissedPongs: 2},
	}).Dial(context.Background(), srv.Addr().String(), h)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, StateConnected, conn.State())
	assert.Zero(t, conn.keepAlive.Stats().MissedPongs)
	conn.Close()

	var pings int
	for _, e := range logger.snapshot() {
		if e.ControlMsg != nil && e.ControlMsg.Type.String() == "ping" {
			pings++
		}
	}
	assert.Positive(t, pings)
}

func TestKeepAliveTimeoutClosesConn(t *testing.T) {
	// A peer that accepts but never answers pings.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		_, _ = io.Copy(io.Discard, nc)
	}()

	h := newRecordingHandler()
	d := NewDialer(DialerConfig{
		KeepAlive: KeepAliveConfig{PingInterval: 10 * time.Millisecond, PongTimeout: 5 * time.Millisecond, MaxMissedPongs: 2},
	})
	conn, err := d.Dial(context.Background(), ln.Addr().String(), h)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-h.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive did not close the connection")
	}
	assert.True(t, errors.Is(h.closes[0], ErrKeepAliveTimeout))
}
