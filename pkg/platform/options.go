package platform

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/internal/backend/gpio"
	"github.com/srg/nearbyhal/internal/trace"
	"github.com/srg/nearbyhal/pkg/hal"
)

// Option overrides part of the binding New would otherwise choose.
type Option func(*options)

type options struct {
	logger      *logrus.Logger
	dispatcher  hal.Dispatcher
	audio       hal.Audio
	battery     hal.Battery
	bt          hal.BT
	ble         hal.BLE
	se          hal.SE
	persistence hal.Persistence
	factory     hal.Factory
	factorySet  bool
	tracer      trace.Tracer
	pinOpener   gpio.Opener
	bus         busConnector
}

func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDispatcher routes every capability event through d. The platform does
// not close a dispatcher it did not create.
func WithDispatcher(d hal.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

func WithAudio(a hal.Audio) Option {
	return func(o *options) { o.audio = a }
}

func WithBattery(b hal.Battery) Option {
	return func(o *options) { o.battery = b }
}

func WithBT(b hal.BT) Option {
	return func(o *options) { o.bt = b }
}

func WithBLE(b hal.BLE) Option {
	return func(o *options) { o.ble = b }
}

func WithSE(s hal.SE) Option {
	return func(o *options) { o.se = s }
}

func WithPersistence(p hal.Persistence) Option {
	return func(o *options) { o.persistence = p }
}

// WithFactory replaces the desktop factory; nil binds no factory.
func WithFactory(f hal.Factory) Option {
	return func(o *options) {
		o.factory = f
		o.factorySet = true
	}
}

// WithTracer decorates every capability with t, regardless of configuration.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithPinOpener resolves GPIO sensor pins through open instead of the host
// drivers.
func WithPinOpener(open gpio.Opener) Option {
	return func(o *options) { o.pinOpener = open }
}
