package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeDuplicate(t *testing.T) {
	bus := NewBus(nil)
	require.NoError(t, bus.Subscribe(TagConnected, func(Event) {}))

	err := bus.Subscribe(TagConnected, func(Event) {})
	assert.ErrorIs(t, err, ErrDuplicateSubscription)
}

func TestDrainDeliversInPublishOrder(t *testing.T) {
	bus := NewBus(nil)
	var got []Tag
	record := func(ev Event) { got = append(got, ev.Tag()) }
	for _, tag := range []Tag{TagConnected, TagDisconnected, TagLoginResult, TagStatResult} {
		require.NoError(t, bus.Subscribe(tag, record))
	}

	bus.Publish(Connected{})
	bus.Publish(LoginResult{Result: ResultOK, Identity: 7})
	bus.Publish(StatResult{StatID: 570, Value: 3})
	bus.Publish(Disconnected{UserInitiated: true})

	n := bus.Drain(context.Background(), time.Second)
	assert.Equal(t, 4, n)
	assert.Equal(t, []Tag{TagConnected, TagLoginResult, TagStatResult, TagDisconnected}, got)
	assert.Zero(t, bus.Len())
}

func TestDrainTimesOut(t *testing.T) {
	bus := NewBus(nil)
	start := time.Now()
	n := bus.Drain(context.Background(), 30*time.Millisecond)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestDrainHonoursContext(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.Zero(t, bus.Drain(ctx, 5*time.Second))
	assert.Less(t, time.Since(start), time.Second)
}

func TestDrainWakesOnPublish(t *testing.T) {
	bus := NewBus(nil)
	delivered := make(chan Event, 1)
	require.NoError(t, bus.Subscribe(TagStatResult, func(ev Event) { delivered <- ev }))

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Publish(StatResult{StatID: 570, Value: 42})
	}()

	start := time.Now()
	n := bus.Drain(context.Background(), 5*time.Second)
	assert.Equal(t, 1, n)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StatResult{StatID: 570, Value: 42}, <-delivered)
}

func TestPublishDuringDeliveryWaitsForNextDrain(t *testing.T) {
	bus := NewBus(nil)
	var order []string
	require.NoError(t, bus.Subscribe(TagConnected, func(Event) {
		order = append(order, "connected")
		bus.Publish(LoginResult{Result: ResultOK})
	}))
	require.NoError(t, bus.Subscribe(TagLoginResult, func(Event) {
		order = append(order, "login")
	}))

	bus.Publish(Connected{})
	assert.Equal(t, 1, bus.Drain(context.Background(), time.Second))
	assert.Equal(t, []string{"connected"}, order)
	assert.Equal(t, 1, bus.Len())

	assert.Equal(t, 1, bus.Drain(context.Background(), time.Second))
	assert.Equal(t, []string{"connected", "login"}, order)
}

func TestUnhandledEventsAreCounted(t *testing.T) {
	bus := NewBus(nil)
	bus.Publish(StatResult{})
	assert.Zero(t, bus.Drain(context.Background(), time.Second))

	delivered, unhandled := bus.Stats()
	assert.Zero(t, delivered)
	assert.Equal(t, uint64(1), unhandled)
}

func TestConcurrentPublishKeepsPerPublisherOrder(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	last := map[uint32]uint32{}
	var outOfOrder bool
	require.NoError(t, bus.Subscribe(TagStatResult, func(ev Event) {
		sr := ev.(StatResult)
		mu.Lock()
		defer mu.Unlock()
		if prev, ok := last[sr.StatID]; ok && sr.Value <= prev {
			outOfOrder = true
		}
		last[sr.StatID] = sr.Value
	}))

	var wg sync.WaitGroup
	for p := uint32(0); p < 4; p++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			for v := uint32(1); v <= 100; v++ {
				bus.Publish(StatResult{StatID: id, Value: v})
			}
		}(p)
	}
	wg.Wait()

	total := 0
	for total < 400 {
		n := bus.Drain(context.Background(), 100*time.Millisecond)
		if n == 0 {
			break
		}
		total += n
	}
	assert.Equal(t, 400, total)
	assert.False(t, outOfOrder)
}

func TestDisconnectedCarriesCause(t *testing.T) {
	cause := errors.New("reset by peer")
	ev := Disconnected{Err: cause}
	assert.Equal(t, TagDisconnected, ev.Tag())
	assert.ErrorIs(t, ev.Err, cause)
	assert.Equal(t, "LOGON_DENIED", ResultLogonDenied.String())
	assert.Equal(t, "TAG(99)", Tag(99).String())
}
