package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ErrDuplicateSubscription is returned when a tag already has a handler.
var ErrDuplicateSubscription = errors.New("duplicate subscription")

// Handler reacts to one event. Handlers run on the goroutine calling Drain.
type Handler func(Event)

// Bus queues events from any goroutine and delivers them in publish order
// on the goroutine that calls Drain.
type Bus struct {
	logger *slog.Logger

	subMu    sync.RWMutex
	handlers map[Tag]Handler

	mu    sync.Mutex
	queue []Event
	wake  chan struct{}

	delivered uint64
	dropped   uint64
}

// NewBus creates an empty bus. A nil logger discards.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[Tag]Handler),
		wake:     make(chan struct{}, 1),
	}
}

// Subscribe registers h for tag. Each tag takes one handler.
func (b *Bus) Subscribe(tag Tag, h Handler) error {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if _, ok := b.handlers[tag]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSubscription, tag)
	}
	b.handlers[tag] = h
	return nil
}

// Publish queues ev. It never blocks.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Drain waits up to maxWait for queued events, then delivers everything
// queued at that moment in FIFO order. Events published during delivery
// wait for the next call. It returns the number of events handed to a
// handler; a timeout or cancelled ctx returns 0.
func (b *Bus) Drain(ctx context.Context, maxWait time.Duration) int {
	if b.Len() == 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		select {
		case <-b.wake:
		case <-timer.C:
		case <-ctx.Done():
			return 0
		}
	}

	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	// Clear a stale wake signal for events already in this batch.
	select {
	case <-b.wake:
		if b.Len() > 0 {
			b.signal()
		}
	default:
	}

	n := 0
	for _, ev := range batch {
		b.subMu.RLock()
		h, ok := b.handlers[ev.Tag()]
		b.subMu.RUnlock()

		if !ok {
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
			b.logger.Debug("no handler for event", "tag", ev.Tag())
			continue
		}
		h(ev)
		n++
	}

	b.mu.Lock()
	b.delivered += uint64(n)
	b.mu.Unlock()
	return n
}

func (b *Bus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Stats returns how many events were delivered and how many had no handler.
func (b *Bus) Stats() (delivered, unhandled uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delivered, b.dropped
}
