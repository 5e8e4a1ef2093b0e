package transport

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures ping/pong liveness checks.
type KeepAliveConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	MaxMissedPongs int           `yaml:"max_missed_pongs"`
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the worst-case time to notice a dead peer.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// KeepAliveStats is a snapshot of keep-alive counters.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	LastLatency  time.Duration
	MissedPongs  int
	Sequence     uint32
}

// KeepAlive sends pings on an interval and calls onTimeout once after
// MaxMissedPongs consecutive pings go unanswered.
type KeepAlive struct {
	config    KeepAliveConfig
	sendPing  func(seq uint32) error
	onTimeout func()

	mu          sync.Mutex
	stats       KeepAliveStats
	pending     bool
	running     bool
	stopCh      chan struct{}
	pongCh      chan uint32
	intervalCh  chan time.Duration
	timeoutOnce sync.Once
}

// NewKeepAlive creates a keep-alive monitor. Zero config fields take defaults.
func NewKeepAlive(config KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	return &KeepAlive{
		config:     config.withDefaults(),
		sendPing:   sendPing,
		onTimeout:  onTimeout,
		pongCh:     make(chan uint32, 1),
		intervalCh: make(chan time.Duration, 1),
	}
}

// Start runs the monitor until Stop is called or ctx is done.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.running {
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	go ka.loop(ctx, ka.stopCh)
}

// Stop halts the monitor. Safe to call more than once.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// IsRunning reports whether the monitor loop is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// PongReceived records a pong from the peer.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// SetPingInterval changes the ping interval, typically to the heartbeat the
// peer asked for. A running loop picks it up on its next iteration.
func (ka *KeepAlive) SetPingInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	ka.mu.Lock()
	ka.config.PingInterval = d
	ka.mu.Unlock()

	// Keep only the newest value.
	for {
		select {
		case ka.intervalCh <- d:
			return
		default:
		}
		select {
		case <-ka.intervalCh:
		default:
		}
	}
}

// PingInterval returns the current ping interval.
func (ka *KeepAlive) PingInterval() time.Duration {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.config.PingInterval
}

// Stats returns a snapshot of the counters.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.stats
}

func (ka *KeepAlive) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(ka.PingInterval())
	defer ticker.Stop()

	ka.ping()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case seq := <-ka.pongCh:
			ka.pong(seq)
		case d := <-ka.intervalCh:
			ticker.Reset(d)
		case <-ticker.C:
			if ka.tick() {
				ka.timeoutOnce.Do(func() {
					if ka.onTimeout != nil {
						ka.onTimeout()
					}
				})
				return
			}
			ka.ping()
		}
	}
}

func (ka *KeepAlive) ping() {
	ka.mu.Lock()
	ka.stats.Sequence++
	seq := ka.stats.Sequence
	ka.stats.LastPingTime = time.Now()
	ka.pending = true
	ka.mu.Unlock()

	// A failed send is treated like a lost pong.
	_ = ka.sendPing(seq)
}

// tick reports whether the peer should be considered dead.
func (ka *KeepAlive) tick() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.pending && time.Since(ka.stats.LastPingTime) >= ka.config.PongTimeout {
		ka.pending = false
		ka.stats.MissedPongs++
	}
	return ka.stats.MissedPongs >= ka.config.MaxMissedPongs
}

func (ka *KeepAlive) pong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	now := time.Now()
	ka.stats.LastPongTime = now
	// Late pongs for an earlier ping are ignored.
	if ka.pending && seq == ka.stats.Sequence {
		ka.pending = false
		ka.stats.MissedPongs = 0
		ka.stats.LastLatency = now.Sub(ka.stats.LastPingTime)
	}
}
