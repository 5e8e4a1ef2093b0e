package statlink_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statlink/statlink-go/pkg/auth"
	"github.com/statlink/statlink-go/pkg/discovery"
	"github.com/statlink/statlink-go/pkg/event"
	"github.com/statlink/statlink-go/pkg/log"
	"github.com/statlink/statlink-go/pkg/service"
	"github.com/statlink/statlink-go/pkg/session"
	"github.com/statlink/statlink-go/pkg/statserver"
	"github.com/statlink/statlink-go/pkg/version"
	"github.com/statlink/statlink-go/pkg/wire"
)

const statID = service.DefaultStatID

// stack is one client wired the way cmd/statlink wires it.
type stack struct {
	client *session.Client
	svc    *service.StatService
	errCh  chan error
}

func startStack(t *testing.T, clientCfg session.Config, interval time.Duration, plog log.Logger) *stack {
	t.Helper()

	bus := event.NewBus(nil)
	clientCfg.DisableKeepAlive = true
	clientCfg.ProtocolLogger = plog
	client := session.NewClient(clientCfg, bus)
	t.Cleanup(func() { _ = client.Disconnect() })

	cfg := service.DefaultConfig()
	cfg.PollInterval = interval
	cfg.DrainWait = 20 * time.Millisecond
	cfg.ProtocolLogger = plog
	svc, err := service.New(cfg, bus, client)
	require.NoError(t, err)

	s := &stack{client: client, svc: svc, errCh: make(chan error, 1)}
	go func() { s.errCh <- svc.Start(context.Background()) }()
	return s
}

func (s *stack) stop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.svc.Stop(ctx))
	require.NoError(t, <-s.errCh)
}

func (s *stack) waitValue(t *testing.T, want uint32) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := s.svc.Status()
		return st.LastValue != nil && *st.LastValue == want
	}, 3*time.Second, 10*time.Millisecond)
}

func startPlatform(t *testing.T, opts statserver.Options) *statserver.Server {
	t.Helper()
	if opts.Address == "" {
		opts.Address = "127.0.0.1:0"
	}
	srv := statserver.New(opts)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

// TestE2E_PollOverTLS runs connect, anonymous logon and polling over TLS.
func TestE2E_PollOverTLS(t *testing.T) {
	cert, err := generateSelfSignedCert("statlink-test")
	require.NoError(t, err)

	table := statserver.NewStatTable(map[uint32]uint32{statID: 640000})
	srv := startPlatform(t, statserver.Options{
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		Stats:     table,
	})

	s := startStack(t, session.Config{
		Address:            srv.Addr().String(),
		TLS:                true,
		InsecureSkipVerify: true,
	}, 20*time.Millisecond, nil)

	s.waitValue(t, 640000)

	st := s.svc.Status()
	assert.Equal(t, auth.StateAuthenticated, st.AuthState)
	require.NotNil(t, st.Identity)
	assert.Equal(t, statserver.AnonymousIdentityBase, *st.Identity)

	// The value changes on the platform and the next poll picks it up.
	table.Set(statID, 641500)
	s.waitValue(t, 641500)

	s.stop(t)
	c := srv.Handler().Counters()
	assert.Equal(t, uint64(1), c.Logons)
	assert.GreaterOrEqual(t, c.Queries, uint64(2))
	assert.Zero(t, c.QueryErrors)
}

// TestE2E_PlainClientAgainstTLSPlatform fails to connect.
func TestE2E_PlainClientAgainstTLSPlatform(t *testing.T) {
	cert, err := generateSelfSignedCert("statlink-test")
	require.NoError(t, err)
	srv := startPlatform(t, statserver.Options{
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
	})

	// Verification is on: the self-signed certificate is rejected.
	bus := event.NewBus(nil)
	client := session.NewClient(session.Config{
		Address:          srv.Addr().String(),
		TLS:              true,
		DisableKeepAlive: true,
		ConnectTimeout:   2 * time.Second,
	}, bus)

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, session.ErrConnection)
	assert.False(t, client.IsConnected())
	assert.Zero(t, bus.Len())
}

// TestE2E_LogonDenied leaves the session connected but idle.
func TestE2E_LogonDenied(t *testing.T) {
	srv := startPlatform(t, statserver.Options{DenyLogon: true})

	s := startStack(t, session.Config{Address: srv.Addr().String()}, 20*time.Millisecond, nil)

	require.Eventually(t, func() bool {
		return srv.Handler().Counters().LogonsDenied == 1
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return s.svc.Status().AuthState == auth.StateIdle
	}, 3*time.Second, 10*time.Millisecond)

	st := s.svc.Status()
	assert.True(t, st.Connected)
	assert.Nil(t, st.Identity)
	assert.False(t, st.PollerActive)
	assert.Nil(t, st.LastValue)
	assert.Zero(t, srv.Handler().Counters().Queries)

	s.stop(t)
}

// TestE2E_PlatformFailureEndsPolling covers a scripted query failure: the
// poll task ends and the failure is reported in the status.
func TestE2E_PlatformFailureEndsPolling(t *testing.T) {
	srv := startPlatform(t, statserver.Options{
		Stats: statserver.NewStatTable(map[uint32]uint32{statID: 10}),
	})

	s := startStack(t, session.Config{Address: srv.Addr().String()}, 20*time.Millisecond, nil)
	s.waitValue(t, 10)

	srv.Handler().FailNextQueries(wire.ResultServiceUnavailable)
	require.Eventually(t, func() bool {
		st := s.svc.Status()
		return !st.PollerActive && st.LastPollErr != nil
	}, 3*time.Second, 10*time.Millisecond)

	var rqe *session.RemoteQueryError
	require.ErrorAs(t, s.svc.Status().LastPollErr, &rqe)
	assert.Equal(t, event.ResultServiceUnavailable, rqe.Result)
	assert.Equal(t, auth.StateAuthenticated, s.svc.Status().AuthState)

	s.stop(t)
}

// TestE2E_ProtocolCapture records a session and reads it back.
func TestE2E_ProtocolCapture(t *testing.T) {
	srv := startPlatform(t, statserver.Options{
		Stats: statserver.NewStatTable(map[uint32]uint32{statID: 99}),
	})

	path := filepath.Join(t.TempDir(), "client.slog")
	fl, err := log.NewFileLogger(path)
	require.NoError(t, err)

	s := startStack(t, session.Config{Address: srv.Addr().String()}, 20*time.Millisecond, fl)
	s.waitValue(t, 99)

	// Disconnect while the drain loop runs so the auth handler sees it.
	require.NoError(t, s.client.Disconnect())
	require.Eventually(t, func() bool {
		st := s.svc.Status()
		return !st.Connected && st.AuthState == auth.StateIdle
	}, 2*time.Second, 10*time.Millisecond)
	s.stop(t)
	require.NoError(t, fl.Close())

	category := log.CategoryMessage
	reader, err := log.NewFilteredReader(path, log.Filter{Category: &category, Layer: ptr(log.LayerWire)})
	require.NoError(t, err)
	defer reader.Close()

	var ops []wire.Operation
	var sawValue bool
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		msg := ev.Message
		require.NotNil(t, msg)
		if msg.Kind == wire.KindRequest && msg.Operation != nil {
			ops = append(ops, *msg.Operation)
		}
		if msg.Kind == wire.KindResponse && msg.Value != nil && *msg.Value == 99 {
			sawValue = true
			assert.NotNil(t, msg.RoundTrip)
		}
	}
	require.NotEmpty(t, ops)
	assert.Equal(t, wire.OpLogOnAnonymous, ops[0])
	assert.Contains(t, ops, wire.OpQueryStat)
	assert.Contains(t, ops, wire.OpLogOff)
	assert.True(t, sawValue)

	entity := log.StateEntityAuth
	authReader, err := log.NewFilteredReader(path, log.Filter{Entity: &entity})
	require.NoError(t, err)
	defer authReader.Close()

	var states []string
	for {
		ev, err := authReader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		states = append(states, ev.StateChange.NewState)
	}
	assert.Contains(t, states, auth.StateAuthenticated.String())
	assert.Equal(t, auth.StateIdle.String(), states[len(states)-1])
}

// TestE2E_Discovery finds the platform over mDNS and polls it.
func TestE2E_Discovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := startPlatform(t, statserver.Options{
		Address:    "0.0.0.0:0",
		Stats:      statserver.NewStatTable(map[uint32]uint32{statID: 5150}),
		Advertiser: discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{}),
		Instance:   "statlink-e2e",
		Name:       "e2e platform",
	})
	if !srv.Advertising() {
		t.Skip("mDNS not available")
	}

	s := startStack(t, session.Config{
		Browser: discovery.NewMDNSBrowser(discovery.BrowserConfig{
			ProtocolVersion: version.Current,
		}),
		DiscoveryTimeout: 5 * time.Second,
	}, 50*time.Millisecond, nil)

	s.waitValue(t, 5150)
	s.stop(t)
}

func ptr[T any](v T) *T { return &v }

func generateSelfSignedCert(commonName string) (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: commonName,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{commonName, "localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return tls.X509KeyPair(certPEM, keyPEM)
}
