package desktop

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/nearbyhal/internal/testutils"
	"github.com/srg/nearbyhal/pkg/hal"
)

func newTestFactory(t *testing.T) *Factory {
	return New(testutils.NewTestHelper(t).Logger, Config{AppDataRoot: t.TempDir(), Downloads: t.TempDir()}, Deps{})
}

func TestAtomics(t *testing.T) {
	f := newTestFactory(t)
	b := f.CreateAtomicBoolean(true)
	assert.True(t, b.Set(false))
	assert.False(t, b.Get())

	u := f.CreateAtomicUint32(7)
	u.Set(9)
	assert.Equal(t, uint32(9), u.Get())
}

func TestCountDownLatch(t *testing.T) {
	f := newTestFactory(t)
	l := f.CreateCountDownLatch(2)
	assert.False(t, l.AwaitTimeout(10*time.Millisecond))
	l.CountDown()
	go l.CountDown()
	assert.True(t, l.AwaitTimeout(time.Second))
	l.CountDown()
	l.Await()

	assert.True(t, f.CreateCountDownLatch(0).AwaitTimeout(0))
}

func TestRecursiveMutexReenters(t *testing.T) {
	f := newTestFactory(t)
	m := f.CreateMutex(hal.MutexRecursive)
	m.Lock()
	m.Lock()
	m.Unlock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("other goroutine entered a held mutex")
	case <-time.After(20 * time.Millisecond):
	}
	m.Unlock()
	<-acquired
}

func TestRegularMutexExcludes(t *testing.T) {
	f := newTestFactory(t)
	for _, mode := range []hal.MutexMode{hal.MutexRegular, hal.MutexRegularNoCheck} {
		m := f.CreateMutex(mode)
		var n int
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Lock()
				n++
				m.Unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, n)
	}
}

func TestConditionVariable(t *testing.T) {
	f := newTestFactory(t)
	m := f.CreateMutex(hal.MutexRegular)
	cv := f.CreateConditionVariable(m)
	assert.Nil(t, f.CreateConditionVariable(nil))

	m.Lock()
	assert.False(t, cv.WaitTimeout(10*time.Millisecond))
	m.Unlock()

	var ready atomic.Bool
	woke := make(chan struct{})
	m.Lock()
	go func() {
		m.Lock()
		defer m.Unlock()
		for !ready.Load() {
			cv.Wait()
		}
		close(woke)
	}()
	m.Unlock()

	require.True(t, testutils.WaitFor(time.Second, func() bool {
		m.Lock()
		defer m.Unlock()
		ready.Store(true)
		cv.Notify()
		select {
		case <-woke:
			return true
		default:
			return false
		}
	}))
}
