package chatd

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Loop runs posted functions one at a time on a single goroutine. All
// Client, Connection and Messages state is owned by the loop: transport
// callbacks and timers never touch it directly, they Post onto the loop.
//
// The queue is unbounded so that Post never blocks a transport goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// NewLoop creates a loop. Nothing runs until Run is called.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Post queues fn to run on the loop. It is safe to call from any
// goroutine, including the loop itself.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes posted functions until ctx is cancelled. It must be called
// at most once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.stopped) })
	for {
		l.drain()
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs queued functions until the queue is empty, including any
// they post. It returns the number of functions run.
func (l *Loop) drain() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			l.execute(fn)
			n++
		}
	}
}

// execute runs fn with panic recovery.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
