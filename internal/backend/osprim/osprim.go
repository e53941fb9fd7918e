// Package osprim implements the OS primitives capability on top of the Go runtime.
package osprim

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/pkg/hal"
)

// OS hands out heap buffers, sleeps, reads a monotonic clock and forwards
// RunOnMainThread to the platform dispatcher.
type OS struct {
	logger     *logrus.Logger
	dispatcher hal.Dispatcher
	clock      func() uint64

	outstanding atomic.Int64
}

func New(d hal.Dispatcher, logger *logrus.Logger) *OS {
	if logger == nil {
		logger = logrus.New()
	}
	return &OS{
		logger:     logger,
		dispatcher: d,
		clock:      monotonicMs,
	}
}

func (o *OS) Init() hal.Status { return hal.StatusOK }

// Malloc returns a zeroed buffer of size bytes, nil when size is not positive.
func (o *OS) Malloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	o.outstanding.Add(1)
	return make([]byte, size)
}

// Free releases a buffer obtained from Malloc. The memory itself is reclaimed
// by the garbage collector; Free only keeps the allocation count honest.
func (o *OS) Free(buf []byte) {
	if buf == nil {
		return
	}
	if o.outstanding.Add(-1) < 0 {
		o.outstanding.Store(0)
		o.logger.Warn("Free called more often than Malloc")
	}
}

// Outstanding reports buffers allocated and not yet freed.
func (o *OS) Outstanding() int64 {
	return o.outstanding.Load()
}

func (o *OS) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

func (o *OS) CurrentTimeMs() uint64 {
	return o.clock()
}

func (o *OS) RunOnMainThread(fn func()) hal.Status {
	if fn == nil {
		return hal.StatusInvalidArgument
	}
	return o.dispatcher.Dispatch(fn)
}
