// Package dispatch provides the main-thread serialization point every
// capability event and RunOnMainThread call goes through.
package dispatch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/internal/groutine"
	"github.com/srg/nearbyhal/pkg/hal"
)

// Loop runs dispatched work one item at a time on a dedicated goroutine.
// The queue is unbounded so Dispatch never blocks, even when called from
// inside a running handler.
type Loop struct {
	logger *logrus.Logger

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	done    <-chan struct{}
	loopGID uint64
}

// NewLoop starts the main-thread loop.
func NewLoop(logger *logrus.Logger) *Loop {
	if logger == nil {
		logger = logrus.New()
	}
	l := &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
	started := make(chan struct{})
	l.done = groutine.Go(context.Background(), "hal-main", func(ctx context.Context) {
		l.mu.Lock()
		l.loopGID = groutine.ID()
		l.mu.Unlock()
		close(started)
		l.run()
	})
	<-started
	return l
}

// Dispatch enqueues fn. It returns StatusHardwareNotReady after Close.
func (l *Loop) Dispatch(fn func()) hal.Status {
	if fn == nil {
		return hal.StatusInvalidArgument
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return hal.StatusHardwareNotReady
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return hal.StatusOK
}

// OnLoop reports whether the caller is running on the loop goroutine.
func (l *Loop) OnLoop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loopGID == groutine.ID()
}

// Close stops accepting work, runs what is already queued and waits for the
// loop to exit. Calling Close from a handler does not wait.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	self := l.loopGID == groutine.ID()
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	if !self {
		<-l.done
	}
}

func (l *Loop) run() {
	for {
		l.mu.Lock()
		work := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, fn := range work {
			l.invoke(fn)
		}
		if len(work) > 0 {
			continue
		}
		if closed {
			return
		}
		<-l.wake
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", r).Error("Main-thread task panicked")
		}
	}()
	fn()
}
