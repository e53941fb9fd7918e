package desktop

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/srg/nearbyhal/internal/dispatch"
	"github.com/srg/nearbyhal/internal/groutine"
	"github.com/srg/nearbyhal/pkg/hal"
)

// serialExecutor runs work in submission order on one goroutine.
type serialExecutor struct {
	loop *dispatch.Loop
}

func newSerialExecutor(logger *logrus.Logger) *serialExecutor {
	return &serialExecutor{loop: dispatch.NewLoop(logger)}
}

func (e *serialExecutor) Execute(fn func())     { e.loop.Dispatch(fn) }
func (e *serialExecutor) Submit(fn func()) bool { return e.loop.Dispatch(fn).OK() }
func (e *serialExecutor) Shutdown()             { e.loop.Close() }

// poolExecutor runs at most n submitted functions at once. Shutdown waits for
// work already submitted.
type poolExecutor struct {
	logger *logrus.Logger
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newPoolExecutor(logger *logrus.Logger, n int) *poolExecutor {
	if n <= 0 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &poolExecutor{
		logger: logger,
		sem:    semaphore.NewWeighted(int64(n)),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (e *poolExecutor) Execute(fn func()) { e.Submit(fn) }

func (e *poolExecutor) Submit(fn func()) bool {
	if fn == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	groutine.Go(e.ctx, "executor-task", func(ctx context.Context) {
		defer e.wg.Done()
		if err := e.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer e.sem.Release(1)
		runTask(e.logger, fn)
	})
	return true
}

func (e *poolExecutor) Shutdown() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	e.cancel()
}

func runTask(logger *logrus.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Executor task panicked")
		}
	}()
	fn()
}

// scheduledExecutor runs delayed work on a serial executor.
type scheduledExecutor struct {
	logger *logrus.Logger
	serial *serialExecutor

	mu      sync.Mutex
	pending map[string]*scheduledTask
	closed  bool
	entropy *ulid.MonotonicEntropy
}

func newScheduledExecutor(logger *logrus.Logger) *scheduledExecutor {
	return &scheduledExecutor{
		logger:  logger,
		serial:  newSerialExecutor(logger),
		pending: map[string]*scheduledTask{},
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

type scheduledTask struct {
	id    string
	owner *scheduledExecutor
	timer *time.Timer
	state atomic.Int32 // 0 pending, 1 ran, 2 canceled
}

func (t *scheduledTask) ID() string { return t.id }

func (t *scheduledTask) Cancel() bool {
	if !t.state.CompareAndSwap(0, 2) {
		return false
	}
	t.timer.Stop()
	t.owner.forget(t.id)
	return true
}

func (e *scheduledExecutor) Execute(fn func()) { e.serial.Execute(fn) }

// Schedule returns nil after Shutdown.
func (e *scheduledExecutor) Schedule(fn func(), delay time.Duration) hal.Cancelable {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || fn == nil {
		return nil
	}
	now := time.Now()
	t := &scheduledTask{
		id:    ulid.MustNew(ulid.Timestamp(now), e.entropy).String(),
		owner: e,
	}
	t.timer = time.AfterFunc(delay, func() {
		if !t.state.CompareAndSwap(0, 1) {
			return
		}
		e.forget(t.id)
		e.serial.Execute(fn)
	})
	e.pending[t.id] = t
	return t
}

func (e *scheduledExecutor) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, id)
}

// Shutdown cancels pending work and waits for running work.
func (e *scheduledExecutor) Shutdown() {
	e.mu.Lock()
	e.closed = true
	pending := make([]*scheduledTask, 0, len(e.pending))
	for _, t := range e.pending {
		pending = append(pending, t)
	}
	e.mu.Unlock()
	for _, t := range pending {
		t.Cancel()
	}
	e.serial.Shutdown()
}

// timer fires fn after delay and then every period.
type timer struct {
	mu     sync.Mutex
	t      *time.Timer
	fn     func()
	period time.Duration
}

func (t *timer) Create(delay, period time.Duration, fn func()) bool {
	if fn == nil || delay < 0 || period < 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t != nil {
		return false
	}
	t.fn = fn
	t.period = period
	t.t = time.AfterFunc(delay, t.fire)
	return true
}

func (t *timer) fire() {
	t.mu.Lock()
	fn := t.fn
	if t.t == nil {
		t.mu.Unlock()
		return
	}
	if t.period > 0 {
		t.t.Reset(t.period)
	}
	t.mu.Unlock()
	fn()
}

func (t *timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t == nil {
		return false
	}
	t.t.Stop()
	t.t = nil
	return true
}

func (t *timer) FireNow() bool {
	t.mu.Lock()
	fn := t.fn
	armed := t.t != nil
	t.mu.Unlock()
	if !armed {
		return false
	}
	fn()
	return true
}
