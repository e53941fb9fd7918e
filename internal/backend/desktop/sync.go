package desktop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/nearbyhal/internal/groutine"
	"github.com/srg/nearbyhal/pkg/hal"
)

type atomicBoolean struct{ v atomic.Bool }

func (a *atomicBoolean) Get() bool       { return a.v.Load() }
func (a *atomicBoolean) Set(v bool) bool { return a.v.Swap(v) }

type atomicUint32 struct{ v atomic.Uint32 }

func (a *atomicUint32) Get() uint32  { return a.v.Load() }
func (a *atomicUint32) Set(v uint32) { a.v.Store(v) }

// countDownLatch releases waiters once count reaches zero; further CountDown
// calls are ignored.
type countDownLatch struct {
	count atomic.Int32
	done  chan struct{}
	once  sync.Once
}

func newCountDownLatch(count int32) *countDownLatch {
	l := &countDownLatch{done: make(chan struct{})}
	l.count.Store(count)
	if count <= 0 {
		l.once.Do(func() { close(l.done) })
	}
	return l
}

func (l *countDownLatch) CountDown() {
	if l.count.Add(-1) == 0 {
		l.once.Do(func() { close(l.done) })
	}
}

func (l *countDownLatch) Await() { <-l.done }

func (l *countDownLatch) AwaitTimeout(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-l.done:
		return true
	case <-t.C:
		return false
	}
}

// recursiveMutex may be locked again by the goroutine that holds it; it is
// released when every Lock has been matched by an Unlock.
type recursiveMutex struct {
	mu    sync.Mutex
	owner atomic.Uint64
	depth int
}

func (m *recursiveMutex) Lock() {
	id := groutine.ID()
	if m.owner.Load() == id {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(id)
	m.depth = 1
}

func (m *recursiveMutex) Unlock() {
	if m.owner.Load() != groutine.ID() {
		panic("desktop: unlock of recursive mutex not held by caller")
	}
	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

// conditionVariable wakes every waiter on Notify.
type conditionVariable struct {
	m hal.Mutex

	mu   sync.Mutex
	wake chan struct{}
}

func newConditionVariable(m hal.Mutex) *conditionVariable {
	return &conditionVariable{m: m, wake: make(chan struct{})}
}

func (c *conditionVariable) waiter() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wake
}

func (c *conditionVariable) Wait() {
	ch := c.waiter()
	c.m.Unlock()
	<-ch
	c.m.Lock()
}

func (c *conditionVariable) WaitTimeout(d time.Duration) bool {
	ch := c.waiter()
	c.m.Unlock()
	defer c.m.Lock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

func (c *conditionVariable) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.wake)
	c.wake = make(chan struct{})
}

type plainMutex struct{ sync.Mutex }
