package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/nearbyhal/pkg/hal"
)

type LoopTestSuite struct {
	suite.Suite
	logger *logrus.Logger
	hook   *logtest.Hook
	loop   *Loop
}

func (s *LoopTestSuite) SetupTest() {
	s.logger, s.hook = logtest.NewNullLogger()
	s.loop = NewLoop(s.logger)
}

func (s *LoopTestSuite) TearDownTest() {
	s.loop.Close()
}

func (s *LoopTestSuite) TestPreservesOrder() {
	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		s.Require().Equal(hal.StatusOK, s.loop.Dispatch(func() { got = append(got, i) }))
	}
	s.loop.Dispatch(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.FailNow("loop did not drain")
	}
	s.Len(got, 100)
	for i, v := range got {
		s.Equal(i, v)
	}
}

func (s *LoopTestSuite) TestNeverRunsConcurrently() {
	var active, maxActive int32
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.loop.Dispatch(func() {
					n := atomic.AddInt32(&active, 1)
					for {
						m := atomic.LoadInt32(&maxActive)
						if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
							break
						}
					}
					atomic.AddInt32(&active, -1)
				})
			}
		}()
	}
	wg.Wait()
	s.loop.Close()
	s.Equal(int32(1), atomic.LoadInt32(&maxActive))
}

func (s *LoopTestSuite) TestNestedDispatchDoesNotBlock() {
	done := make(chan bool, 1)
	s.loop.Dispatch(func() {
		s.True(s.loop.OnLoop())
		s.loop.Dispatch(func() { done <- true })
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.FailNow("nested dispatch never ran")
	}
	s.False(s.loop.OnLoop())
}

func (s *LoopTestSuite) TestCloseDrainsAndRejects() {
	var ran int32
	for i := 0; i < 10; i++ {
		s.loop.Dispatch(func() { atomic.AddInt32(&ran, 1) })
	}
	s.loop.Close()
	s.Equal(int32(10), atomic.LoadInt32(&ran))
	s.Equal(hal.StatusHardwareNotReady, s.loop.Dispatch(func() {}))
	s.Equal(hal.StatusInvalidArgument, NewInline().Dispatch(nil))
}

func (s *LoopTestSuite) TestPanicIsContained() {
	done := make(chan struct{})
	s.loop.Dispatch(func() { panic("boom") })
	s.loop.Dispatch(func() { close(done) })
	<-done
	s.Require().NotNil(s.hook.LastEntry())
	s.Equal("Main-thread task panicked", s.hook.LastEntry().Message)
}

func TestLoopTestSuite(t *testing.T) {
	suite.Run(t, new(LoopTestSuite))
}

func TestInlineSerializesAndReenters(t *testing.T) {
	d := NewInline()

	var order []string
	status := d.Dispatch(func() {
		order = append(order, "outer")
		require.Equal(t, hal.StatusOK, d.Dispatch(func() { order = append(order, "inner") }))
	})
	assert.Equal(t, hal.StatusOK, status)
	assert.Equal(t, []string{"outer", "inner"}, order)

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(func() {
				n := atomic.AddInt32(&active, 1)
				if n > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, n)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
}
