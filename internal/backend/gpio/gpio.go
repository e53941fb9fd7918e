// Package gpio feeds sensor pins into capability backends: a charger-present
// line drives the battery's charging flag and a proximity line drives the
// audio on-head state.
package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/srg/nearbyhal/internal/groutine"
)

// edgeTimeout bounds each wait so a stopped watcher notices promptly even on
// drivers whose Halt does not interrupt WaitForEdge.
const edgeTimeout = 500 * time.Millisecond

// Pin is the part of gpio.PinIn a watcher uses.
type Pin interface {
	Name() string
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
	Halt() error
}

// Opener resolves a pin by name.
type Opener func(name string) (Pin, error)

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// OpenHostPin initializes periph.io drivers once and looks pin up by name,
// e.g. "GPIO17".
func OpenHostPin(name string) (Pin, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %s not found in hardware", name)
	}
	return p, nil
}

// Charger receives the charger-present line.
type Charger interface {
	SetCharging(charging bool)
}

// HeadSensor receives the on-head line.
type HeadSensor interface {
	SetOnHead(onHead bool)
}

type Config struct {
	ChargingPin string
	OnHeadPin   string
}

// Sensors owns the pin watchers.
type Sensors struct {
	logger *logrus.Logger
	stops  []func()
}

// Start watches each configured pin; an empty pin name is skipped. Current
// levels are delivered before Start returns.
func Start(logger *logrus.Logger, cfg Config, open Opener, charger Charger, head HeadSensor) (*Sensors, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if open == nil {
		open = OpenHostPin
	}
	s := &Sensors{logger: logger}
	if cfg.ChargingPin != "" && charger != nil {
		if err := s.watch(open, cfg.ChargingPin, charger.SetCharging); err != nil {
			s.Close()
			return nil, err
		}
	}
	if cfg.OnHeadPin != "" && head != nil {
		if err := s.watch(open, cfg.OnHeadPin, head.SetOnHead); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Sensors) watch(open Opener, name string, onLevel func(high bool)) error {
	pin, err := open(name)
	if err != nil {
		return err
	}
	if err := pin.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return fmt.Errorf("set %s to input: %w", name, err)
	}
	log := s.logger.WithField("pin", pin.Name())
	last := pin.Read() == gpio.High
	onLevel(last)

	ctx, cancel := context.WithCancel(context.Background())
	done := groutine.Go(ctx, "gpio-"+name, func(ctx context.Context) {
		for ctx.Err() == nil {
			if !pin.WaitForEdge(edgeTimeout) {
				continue
			}
			high := pin.Read() == gpio.High
			if high == last {
				continue
			}
			last = high
			log.WithField("high", high).Debug("Sensor pin changed")
			onLevel(high)
		}
	})
	s.stops = append(s.stops, func() {
		cancel()
		if err := pin.Halt(); err != nil {
			log.WithError(err).Debug("Halting pin failed")
		}
		<-done
	})
	log.Info("Watching sensor pin")
	return nil
}

// Close stops every watcher.
func (s *Sensors) Close() error {
	for _, stop := range s.stops {
		stop()
	}
	s.stops = nil
	return nil
}
