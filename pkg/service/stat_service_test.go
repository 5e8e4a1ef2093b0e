package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/statlink/statlink-go/pkg/auth"
	"github.com/statlink/statlink-go/pkg/event"
	"github.com/statlink/statlink-go/pkg/session"
	"github.com/statlink/statlink-go/pkg/session/mocks"
	"github.com/statlink/statlink-go/pkg/statserver"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.DrainWait = 10 * time.Millisecond
	return cfg
}

// runService starts svc on its own goroutine and returns Start's result.
func runService(t *testing.T, svc *StatService, ctx context.Context) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(ctx) }()
	return errCh
}

func stopService(t *testing.T, svc *StatService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))
}

// scriptedTransport wires a mock transport that behaves like a platform
// accepting the logon and reporting value for every query.
func scriptedTransport(t *testing.T, bus *event.Bus, value uint32) *mocks.MockTransport {
	tr := mocks.NewMockTransport(t)
	connected := make(chan struct{})
	tr.EXPECT().Connect(mock.Anything).RunAndReturn(func(context.Context) error {
		close(connected)
		bus.Publish(event.Connected{})
		return nil
	}).Once()
	tr.EXPECT().IsConnected().RunAndReturn(func() bool {
		select {
		case <-connected:
			return true
		default:
			return false
		}
	}).Maybe()
	tr.EXPECT().LogOnAnonymous().RunAndReturn(func() error {
		bus.Publish(event.LoginResult{Result: event.ResultOK, Identity: 1234})
		return nil
	}).Once()
	tr.EXPECT().QueryStat(mock.Anything, DefaultStatID).Return(value, nil).Maybe()
	return tr
}

func TestStatServicePollsAfterLogon(t *testing.T) {
	bus := event.NewBus(nil)
	svc, err := New(testConfig(), bus, scriptedTransport(t, bus, 5))
	require.NoError(t, err)

	errCh := runService(t, svc, context.Background())

	require.Eventually(t, func() bool {
		st := svc.Status()
		return st.LastValue != nil && *st.LastValue == 5
	}, 2*time.Second, 5*time.Millisecond)

	st := svc.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, auth.StateAuthenticated, st.AuthState)
	assert.True(t, st.Connected)
	require.NotNil(t, st.Identity)
	assert.Equal(t, uint64(1234), *st.Identity)
	assert.True(t, st.PollerActive)
	assert.GreaterOrEqual(t, st.EventsDelivered, uint64(2))

	stopService(t, svc)
	assert.NoError(t, <-errCh)
	assert.Equal(t, StateStopped, svc.Status().State)
	assert.False(t, svc.Status().PollerActive)
}

func TestStatServiceConnectionError(t *testing.T) {
	bus := event.NewBus(nil)
	connErr := &session.ConnectionError{Addr: "127.0.0.1:1", Err: errors.New("refused")}

	tr := mocks.NewMockTransport(t)
	tr.EXPECT().Connect(mock.Anything).Return(connErr).Once()

	svc, err := New(testConfig(), bus, tr)
	require.NoError(t, err)

	err = svc.Start(context.Background())
	assert.ErrorIs(t, err, session.ErrConnection)
	assert.Equal(t, auth.StateIdle, svc.Status().AuthState)
	assert.Equal(t, StateStopped, svc.Status().State)
}

func TestStatServicePreCancelledContext(t *testing.T) {
	bus := event.NewBus(nil)
	tr := mocks.NewMockTransport(t)
	tr.EXPECT().Connect(mock.Anything).Return(nil).Once()

	svc, err := New(testConfig(), bus, tr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, svc.Start(ctx))
	tr.AssertNotCalled(t, "LogOnAnonymous")
}

// Stop during the drain loop ends it at the next loop-top check; the poll
// task ends through its own cancellation check.
func TestStatServiceStopMidDrain(t *testing.T) {
	bus := event.NewBus(nil)
	svc, err := New(testConfig(), bus, scriptedTransport(t, bus, 7))
	require.NoError(t, err)

	errCh := runService(t, svc, context.Background())
	require.Eventually(t, func() bool { return svc.Status().PollerActive }, 2*time.Second, 5*time.Millisecond)

	stopService(t, svc)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.False(t, svc.Status().PollerActive)
	// Stop does not disconnect.
	assert.True(t, svc.Status().Connected)
}

func TestStatServiceStartTwice(t *testing.T) {
	bus := event.NewBus(nil)
	svc, err := New(testConfig(), bus, scriptedTransport(t, bus, 1))
	require.NoError(t, err)

	errCh := runService(t, svc, context.Background())
	require.Eventually(t, func() bool { return svc.Status().State == StateRunning }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyStarted)

	stopService(t, svc)
	<-errCh
}

func TestStatServiceStopBeforeStart(t *testing.T) {
	svc, err := New(testConfig(), event.NewBus(nil), mocks.NewMockTransport(t))
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Stop(context.Background()), ErrNotStarted)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 0
	_, err := New(cfg, event.NewBus(nil), mocks.NewMockTransport(t))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStatServiceEndToEnd(t *testing.T) {
	srv := statserver.New(statserver.Options{
		Address: "127.0.0.1:0",
		Stats:   statserver.NewStatTable(map[uint32]uint32{DefaultStatID: 812000}),
	})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	bus := event.NewBus(nil)
	client := session.NewClient(session.Config{
		Address:          srv.Addr().String(),
		DisableKeepAlive: true,
	}, bus)
	t.Cleanup(func() { _ = client.Disconnect() })

	svc, err := New(testConfig(), bus, client)
	require.NoError(t, err)
	errCh := runService(t, svc, context.Background())

	require.Eventually(t, func() bool {
		st := svc.Status()
		return st.LastValue != nil && *st.LastValue == 812000
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, auth.StateAuthenticated, svc.Status().AuthState)

	// The platform drops the session: the handler goes idle and the poll
	// task ends.
	srv.DisconnectAll()
	require.Eventually(t, func() bool {
		st := svc.Status()
		return st.AuthState == auth.StateIdle && !st.PollerActive && !st.Connected
	}, 3*time.Second, 10*time.Millisecond)

	stopService(t, svc)
	assert.NoError(t, <-errCh)
}

func TestServiceStateString(t *testing.T) {
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "UNKNOWN", ServiceState(99).String())
}
