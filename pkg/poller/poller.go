package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/statlink/statlink-go/pkg/log"
	"github.com/statlink/statlink-go/pkg/session"
)

// ErrAlreadyRunning is returned by Start while a task is active.
var ErrAlreadyRunning = errors.New("poller already running")

// Config configures a Poller.
type Config struct {
	Transport session.Transport
	Session   *session.State

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger records task state changes.
	ProtocolLogger log.Logger

	// OnTaskDone is called when a task ends, with the query error that
	// ended it or nil.
	OnTaskDone func(err error)
}

// Poller starts and stops poll tasks.
type Poller struct {
	config Config
	logger *slog.Logger
	plog   log.Logger

	// after is replaced in tests to drive intervals.
	after func(time.Duration) <-chan time.Time

	mu   sync.Mutex
	task *Task
	last *uint32

	// running holds every task that has not finished, including stopped
	// ones still inside a query.
	running map[*Task]struct{}
}

// New creates a poller.
func New(config Config) *Poller {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{
		config:  config,
		logger:  logger,
		plog:    log.OrNoop(config.ProtocolLogger),
		after:   time.After,
		running: make(map[*Task]struct{}),
	}
}

// Task is one run of the poll loop.
type Task struct {
	statID   uint32
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	mu        sync.Mutex
	err       error
	lastValue *uint32
	stopping  bool
}

// Done is closed when the task has ended.
func (t *Task) Done() <-chan struct{} { return t.done }

// Active reports whether the task is still running.
func (t *Task) Active() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Stopping reports whether the task was told to stop. A stopping task may
// still be inside a query but no longer counts as the poller's task.
func (t *Task) Stopping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopping
}

func (t *Task) stop() {
	t.mu.Lock()
	t.stopping = true
	t.mu.Unlock()
	t.cancel()
}

// Err returns the query error that ended the task, or nil.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// LastValue returns the most recent value fetched by this task.
func (t *Task) LastValue() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastValue == nil {
		return 0, false
	}
	return *t.lastValue, true
}

// Start spawns a task querying statID every interval. It fails with
// ErrAlreadyRunning while another task is active. A task that was stopped
// does not block a new one, even if its last query has not returned yet.
func (p *Poller) Start(ctx context.Context, interval time.Duration, statID uint32) (*Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current() != nil {
		return nil, ErrAlreadyRunning
	}

	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task{
		statID:   statID,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	p.task = t
	p.running[t] = struct{}{}
	p.logState("IDLE", "POLLING", "")

	go p.run(taskCtx, t)
	return t, nil
}

// Stop asks the active task to end. An in-flight query sees the
// cancellation through its context; the loop exits at its next checkpoint.
func (p *Poller) Stop() {
	p.mu.Lock()
	t := p.task
	p.mu.Unlock()
	if t != nil {
		t.stop()
	}
}

// Wait blocks until every task started so far has ended or ctx is done.
func (p *Poller) Wait(ctx context.Context) error {
	p.mu.Lock()
	tasks := make([]*Task, 0, len(p.running))
	for t := range p.running {
		tasks = append(tasks, t)
	}
	p.mu.Unlock()

	for _, t := range tasks {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Active reports whether a task is running and has not been told to stop.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current() != nil
}

// current returns the running, non-stopping task. p.mu must be held.
func (p *Poller) current() *Task {
	if p.task == nil || !p.task.Active() || p.task.Stopping() {
		return nil
	}
	return p.task
}

// LastValue returns the most recent value fetched by any task.
func (p *Poller) LastValue() (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return 0, false
	}
	return *p.last, true
}

func (p *Poller) run(ctx context.Context, t *Task) {
	var taskErr error
	defer func() { p.finish(t, taskErr) }()

	for {
		if ctx.Err() != nil {
			p.logger.Debug("poll task cancelled", "stat_id", t.statID)
			return
		}
		if !p.config.Transport.IsConnected() || p.config.Session.Identity() == nil {
			p.logger.Warn("stop fetching", "stat_id", t.statID)
			return
		}

		p.logger.Debug("fetching", "stat_id", t.statID)
		value, err := p.config.Transport.QueryStat(ctx, t.statID)
		if ctx.Err() != nil {
			p.logger.Debug("poll task cancelled during query", "stat_id", t.statID)
			return
		}
		if err != nil {
			p.logger.Warn("stat query failed", "stat_id", t.statID, "error", err)
			taskErr = err
			return
		}

		p.logger.Info("stat value", "stat_id", t.statID, "value", value)
		p.record(t, value)

		select {
		case <-ctx.Done():
		case <-p.after(t.interval):
		}
	}
}

func (p *Poller) record(t *Task, value uint32) {
	t.mu.Lock()
	t.lastValue = &value
	t.mu.Unlock()

	p.mu.Lock()
	v := value
	p.last = &v
	p.mu.Unlock()
}

func (p *Poller) finish(t *Task, err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	t.cancel()
	p.mu.Lock()
	delete(p.running, t)
	p.mu.Unlock()
	close(t.done)

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	p.logState("POLLING", "IDLE", reason)

	if p.config.OnTaskDone != nil {
		p.config.OnTaskDone(err)
	}
}

func (p *Poller) logState(from, to, reason string) {
	p.plog.Log(log.StateEvent("", log.StateEntityPoller, from, to, reason))
}
