package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepAliveDefaults(t *testing.T) {
	cfg := DefaultKeepAliveConfig()
	assert.Equal(t, 95*time.Second, cfg.DetectionDelay())

	ka := NewKeepAlive(KeepAliveConfig{}, func(uint32) error { return nil }, nil)
	assert.Equal(t, cfg, ka.config)
}

func TestKeepAlivePongResetsMisses(t *testing.T) {
	var ka *KeepAlive
	var timedOut atomic.Bool

	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(seq uint32) error {
		go ka.PongReceived(seq)
		return nil
	}, func() { timedOut.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)
	defer ka.Stop()

	time.Sleep(150 * time.Millisecond)

	assert.False(t, timedOut.Load())
	stats := ka.Stats()
	assert.GreaterOrEqual(t, stats.Sequence, uint32(3))
	assert.Equal(t, 0, stats.MissedPongs)
	assert.False(t, stats.LastPongTime.IsZero())
}

func TestKeepAliveTimeout(t *testing.T) {
	var calls atomic.Int32
	fired := make(chan struct{})

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(uint32) error { return nil }, func() {
		if calls.Add(1) == 1 {
			close(fired)
		}
	})

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout callback not called")
	}
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestKeepAliveStopIdempotent(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{PingInterval: time.Hour}, func(uint32) error { return nil }, nil)
	ka.Start(context.Background())
	assert.True(t, ka.IsRunning())
	ka.Stop()
	ka.Stop()
	assert.False(t, ka.IsRunning())
}

func TestKeepAliveSetPingInterval(t *testing.T) {
	var pings atomic.Int32
	var ka *KeepAlive
	ka = NewKeepAlive(KeepAliveConfig{PingInterval: time.Hour}, func(seq uint32) error {
		pings.Add(1)
		go ka.PongReceived(seq)
		return nil
	}, nil)

	ka.Start(context.Background())
	defer ka.Stop()

	require.Eventually(t, func() bool { return pings.Load() == 1 }, time.Second, 5*time.Millisecond)

	ka.SetPingInterval(20 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, ka.PingInterval())
	require.Eventually(t, func() bool { return pings.Load() >= 4 }, time.Second, 5*time.Millisecond)

	// Non-positive values are ignored.
	ka.SetPingInterval(0)
	assert.Equal(t, 20*time.Millisecond, ka.PingInterval())
}
