package stub

import (
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/pkg/hal"
)

// SE tracks a single secure element session. It has no applet behind it, so
// every accepted APDU yields an empty response.
type SE struct {
	opts   options
	bridge *hal.Bridge[hal.SEHandler]

	mu   sync.Mutex
	open bool
}

func NewSE(d hal.Dispatcher, opts ...Option) *SE {
	return &SE{
		opts:   buildOptions(opts),
		bridge: hal.NewBridge[hal.SEHandler](d),
	}
}

func (s *SE) Init(h hal.SEHandler) hal.Status {
	s.bridge.Register(h)
	return hal.StatusOK
}

func (s *SE) OpenSession() hal.Status {
	if st := s.opts.cmdStatus; !st.OK() {
		return st
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return hal.StatusError
	}
	s.open = true
	return hal.StatusOK
}

func (s *SE) CloseSession() hal.Status {
	s.mu.Lock()
	wasOpen := s.open
	s.open = false
	s.mu.Unlock()
	if wasOpen {
		s.bridge.Emit(func(h hal.SEHandler) { h.OnSessionClosed(hal.StatusOK) })
	}
	return hal.StatusOK
}

func (s *SE) Transmit(apdu []byte, dst []byte) (int, hal.Status) {
	if st := s.opts.cmdStatus; !st.OK() {
		return 0, st
	}
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if !open {
		return 0, hal.StatusHardwareNotReady
	}
	if len(apdu) < hal.APDUHeaderLen {
		return 0, hal.StatusInvalidArgument
	}
	s.opts.logger.WithFields(logrus.Fields{
		"capability": "se",
		"cla":        apdu[0],
		"ins":        apdu[1],
	}).Debug("APDU")
	return hal.CopyOut(dst, nil)
}

// Persistence keeps values in memory for the life of the process.
type Persistence struct {
	opts   options
	values *hashmap.Map[string, []byte]
}

func NewPersistence(opts ...Option) *Persistence {
	return &Persistence{
		opts:   buildOptions(opts),
		values: hashmap.New[string, []byte](),
	}
}

func (p *Persistence) Init() hal.Status { return hal.StatusOK }

func (p *Persistence) Read(key string) ([]byte, hal.Status) {
	if key == "" {
		return nil, hal.StatusInvalidArgument
	}
	v, ok := p.values.Get(key)
	if !ok {
		return nil, hal.StatusNotFound
	}
	return append([]byte{}, v...), hal.StatusOK
}

func (p *Persistence) Write(key string, data []byte) hal.Status {
	if key == "" {
		return hal.StatusInvalidArgument
	}
	p.values.Set(key, append([]byte{}, data...))
	return hal.StatusOK
}

func (p *Persistence) Delete(key string) hal.Status {
	if key == "" {
		return hal.StatusInvalidArgument
	}
	p.values.Del(key)
	return hal.StatusOK
}
