// Package dispatch provides the single serialization point for state
// mutations: one goroutine drains a queue of operations, so a channel
// event and a user edit can never interleave partially.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/atelier-run/atelier/internal/logging"
)

// ErrStopped is returned when an op is submitted after the loop ended.
var ErrStopped = errors.New("dispatch loop stopped")

// Loop is a single-consumer op queue.
type Loop struct {
	ops    chan func()
	logger *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// Option configures the Loop.
type Option func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithQueueDepth sets the op buffer size.
func WithQueueDepth(n int) Option {
	return func(l *Loop) { l.ops = make(chan func(), n) }
}

// New creates a loop. Run must be called for ops to execute.
func New(opts ...Option) *Loop {
	l := &Loop{
		ops:     make(chan func(), 256),
		stopped: make(chan struct{}),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drains the queue until ctx is cancelled. Blocks; callers run it in
// a goroutine.
func (l *Loop) Run(ctx context.Context) {
	defer l.stopOnce.Do(func() { close(l.stopped) })
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-l.ops:
			op()
		}
	}
}

// Do enqueues an op. Blocks only if the queue is full; returns ErrStopped
// once the loop has ended.
func (l *Loop) Do(op func()) error {
	select {
	case <-l.stopped:
		return ErrStopped
	default:
	}
	select {
	case l.ops <- op:
		return nil
	case <-l.stopped:
		return ErrStopped
	}
}

// DoWait enqueues an op and waits for it to finish executing.
func (l *Loop) DoWait(op func()) error {
	done := make(chan struct{})
	if err := l.Do(func() {
		defer close(done)
		op()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	}
}
