package dispatch

import (
	"sync"

	"github.com/srg/nearbyhal/internal/groutine"
	"github.com/srg/nearbyhal/pkg/hal"
)

// Inline runs dispatched work synchronously on the calling goroutine, one
// caller at a time. A handler that dispatches again runs the nested work
// immediately instead of deadlocking.
type Inline struct {
	mu    sync.Mutex
	owner uint64
	gate  sync.Mutex
}

func NewInline() *Inline {
	return &Inline{}
}

func (d *Inline) Dispatch(fn func()) hal.Status {
	if fn == nil {
		return hal.StatusInvalidArgument
	}
	gid := groutine.ID()

	d.mu.Lock()
	nested := d.owner == gid
	d.mu.Unlock()
	if nested {
		fn()
		return hal.StatusOK
	}

	d.gate.Lock()
	d.mu.Lock()
	d.owner = gid
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.owner = 0
		d.mu.Unlock()
		d.gate.Unlock()
	}()
	fn()
	return hal.StatusOK
}
