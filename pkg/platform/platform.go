// Package platform binds one backend to every capability for the selected
// target and hands the engine a fixed binding record.
package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/nearbyhal/internal/backend/bluez"
	"github.com/srg/nearbyhal/internal/backend/desktop"
	"github.com/srg/nearbyhal/internal/backend/goble"
	"github.com/srg/nearbyhal/internal/backend/gpio"
	"github.com/srg/nearbyhal/internal/backend/osprim"
	"github.com/srg/nearbyhal/internal/backend/sqlstore"
	"github.com/srg/nearbyhal/internal/backend/stub"
	"github.com/srg/nearbyhal/internal/backend/tinyble"
	"github.com/srg/nearbyhal/internal/dispatch"
	"github.com/srg/nearbyhal/internal/trace"
	"github.com/srg/nearbyhal/pkg/config"
	"github.com/srg/nearbyhal/pkg/hal"
)

// Capability names used in the binding report, in report order.
const (
	CapAudio       = "audio"
	CapBattery     = "battery"
	CapBT          = "bt"
	CapBLE         = "ble"
	CapSE          = "se"
	CapOS          = "os"
	CapPersistence = "persistence"
	CapFactory     = "factory"
)

// Absent is the binding reported for a capability with no backend.
const Absent = "absent"

// busConnector opens the system bus; tests replace it.
type busConnector func() (systemBus, error)

type systemBus interface {
	bluez.Bus
	Close() error
}

func connectSystemBus() (systemBus, error) {
	bus, err := bluez.ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	return bus, nil
}

// Platform is the binding record. It is immutable after New.
type Platform struct {
	logger     *logrus.Logger
	target     string
	dispatcher hal.Dispatcher

	audio       hal.Audio
	battery     hal.Battery
	bt          hal.BT
	ble         hal.BLE
	se          hal.SE
	os          hal.OS
	persistence hal.Persistence
	factory     hal.Factory

	// desktopCfg is set when the desktop factory is to be built once the
	// capabilities are final.
	desktopCfg *desktop.Config
	nm         desktop.BusCaller

	bindings *orderedmap.OrderedMap[string, string]
	closers  []func() error
}

// New binds backends for cfg.Target. Options take precedence over what the
// target would choose.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Platform, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := &options{bus: connectSystemBus}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = cfg.NewLogger()
	}

	p := &Platform{
		logger:   o.logger,
		target:   cfg.ResolveTarget(),
		bindings: orderedmap.New[string, string](),
	}
	for _, c := range []string{CapAudio, CapBattery, CapBT, CapBLE, CapSE, CapOS, CapPersistence, CapFactory} {
		p.bindings.Set(c, Absent)
	}
	p.dispatcher = p.bindDispatcher(cfg, o)

	var err error
	switch p.target {
	case config.TargetEmbedded:
		err = p.bindEmbedded(cfg, o)
	default:
		err = p.bindDesktop(cfg, o)
	}
	if err == nil {
		err = p.instrument(ctx, cfg, o)
	}
	if err != nil {
		p.Close()
		return nil, err
	}
	p.bindFactory()

	fields := logrus.Fields{"target": p.target}
	for pair := p.bindings.Oldest(); pair != nil; pair = pair.Next() {
		fields[pair.Key] = pair.Value
	}
	p.logger.WithFields(fields).Info("Platform bound")
	return p, nil
}

func (p *Platform) onClose(fn func() error) {
	p.closers = append(p.closers, fn)
}

func (p *Platform) bindDispatcher(cfg *config.Config, o *options) hal.Dispatcher {
	if o.dispatcher != nil {
		return o.dispatcher
	}
	mode := cfg.Dispatch.Mode
	if mode == "" {
		mode = "loop"
		if p.target == config.TargetEmbedded {
			mode = "inline"
		}
	}
	if mode == "inline" {
		return dispatch.NewInline()
	}
	loop := dispatch.NewLoop(p.logger)
	p.onClose(func() error {
		loop.Close()
		return nil
	})
	return loop
}

func (p *Platform) bindEmbedded(cfg *config.Config, o *options) error {
	d := p.dispatcher
	so := stub.WithLogger(p.logger)

	audio := stub.NewAudio(d, so)
	battery := stub.NewBattery(d, cfg.Battery.DefaultLevel, so)
	p.audio = pick[hal.Audio](p, CapAudio, o.audio, audio, "stub")
	p.battery = pick[hal.Battery](p, CapBattery, o.battery, battery, "stub")
	p.bt = pick[hal.BT](p, CapBT, o.bt, stub.NewBT(d, 0, so), "stub")
	p.ble = pick[hal.BLE](p, CapBLE, o.ble, stub.NewBLE(d, so), "stub")
	p.se = pick[hal.SE](p, CapSE, o.se, stub.NewSE(d, so), "stub")
	p.os = osprim.New(d, p.logger)
	p.bindings.Set(CapOS, "osprim")

	if err := p.bindPersistence(cfg, o, ""); err != nil {
		return err
	}
	if o.factorySet && o.factory != nil {
		p.factory = o.factory
		p.bindings.Set(CapFactory, "custom")
	}

	if cfg.GPIO.ChargingPin == "" && cfg.GPIO.OnHeadPin == "" {
		return nil
	}
	charger, _ := p.battery.(gpio.Charger)
	head, _ := p.audio.(gpio.HeadSensor)
	sensors, err := gpio.Start(p.logger, gpio.Config{
		ChargingPin: cfg.GPIO.ChargingPin,
		OnHeadPin:   cfg.GPIO.OnHeadPin,
	}, o.pinOpener, charger, head)
	if err != nil {
		return fmt.Errorf("start sensor pins: %w", err)
	}
	p.onClose(sensors.Close)
	return nil
}

func (p *Platform) bindDesktop(cfg *config.Config, o *options) error {
	d := p.dispatcher
	unsupported := []stub.Option{stub.WithLogger(p.logger), stub.WithCommandStatus(hal.StatusUnsupported)}

	var bus systemBus
	if o.bt == nil || o.battery == nil || !o.factorySet {
		b, err := o.bus()
		if err != nil {
			p.logger.WithError(err).Warn("System bus unavailable, using stand-in backends")
		} else {
			bus = b
			p.onClose(bus.Close)
		}
	}

	switch {
	case o.bt != nil:
		p.bt = pick(p, CapBT, o.bt, nil, "")
	case bus != nil:
		bt, err := bluez.NewBT(d, p.logger, bus, cfg.BLE.AdapterID)
		if err == nil {
			p.onClose(bt.Close)
			p.bt = pick(p, CapBT, nil, hal.BT(bt), "bluez")
			break
		}
		p.logger.WithError(err).Warn("BlueZ adapter unavailable")
		fallthrough
	default:
		p.bt = pick(p, CapBT, nil, hal.BT(stub.NewBT(d, 0, unsupported...)), "stub (unsupported)")
	}

	switch {
	case o.battery != nil:
		p.battery = pick(p, CapBattery, o.battery, nil, "")
	case bus != nil && cfg.Battery.Source == "upower":
		battery, err := bluez.NewBattery(d, p.logger, bus)
		if err == nil {
			p.onClose(battery.Close)
			p.battery = pick(p, CapBattery, nil, hal.Battery(battery), "upower")
			break
		}
		p.logger.WithError(err).Warn("UPower unavailable")
		fallthrough
	default:
		p.battery = pick(p, CapBattery, nil, hal.Battery(stub.NewBattery(d, cfg.Battery.DefaultLevel, unsupported...)), "stub")
	}

	if o.ble != nil {
		p.ble = pick(p, CapBLE, o.ble, nil, "")
	} else {
		p.ble = p.openBLE(cfg, unsupported)
	}

	p.audio = pick[hal.Audio](p, CapAudio, o.audio, stub.NewAudio(d, unsupported...), "stub (unsupported)")
	p.se = pick[hal.SE](p, CapSE, o.se, stub.NewSE(d, unsupported...), "stub (unsupported)")
	p.os = osprim.New(d, p.logger)
	p.bindings.Set(CapOS, "osprim")

	dbPath := ""
	if !o.factorySet {
		fcfg := desktop.Config{
			AppDataRoot:    cfg.Paths.AppDataRoot,
			Downloads:      cfg.Paths.Downloads,
			HTTPTimeout:    cfg.HTTP.Timeout,
			BreakerFails:   cfg.HTTP.BreakerFails,
			BreakerTimeout: cfg.HTTP.BreakerTimeout,
		}.WithDefaults()
		p.desktopCfg = &fcfg
		if bus != nil {
			p.nm = bus
		}
		p.bindings.Set(CapFactory, "desktop")
		dbPath = fcfg.AppDataPath("persistence.db")
	} else if o.factory != nil {
		p.factory = o.factory
		p.bindings.Set(CapFactory, "custom")
	}
	return p.bindPersistence(cfg, o, dbPath)
}

// bindFactory builds the desktop factory over the final, possibly traced,
// capabilities.
func (p *Platform) bindFactory() {
	if p.desktopCfg == nil {
		return
	}
	p.factory = desktop.New(p.logger, *p.desktopCfg, desktop.Deps{
		Dispatcher:     p.dispatcher,
		BT:             p.bt,
		BLE:            p.ble,
		Battery:        p.battery,
		NetworkManager: p.nm,
	})
}

func (p *Platform) openBLE(cfg *config.Config, unsupported []stub.Option) hal.BLE {
	switch cfg.BLE.Driver {
	case "goble":
		b := goble.New(p.dispatcher, p.logger, goble.Config{
			WriteChunk:         cfg.BLE.WriteChunk,
			WriteInterval:      cfg.BLE.WriteInterval,
			DialTimeout:        cfg.BLE.DialTimeout,
			DataService:        cfg.BLE.DataService,
			DataCharacteristic: cfg.BLE.DataCharacteristic,
		})
		p.onClose(b.Close)
		return pick(p, CapBLE, nil, hal.BLE(b), "goble")
	case "tinygo":
		b := tinyble.New(p.dispatcher, p.logger, tinyble.Config{
			AdapterID:          cfg.BLE.AdapterID,
			WriteChunk:         cfg.BLE.WriteChunk,
			WriteInterval:      cfg.BLE.WriteInterval,
			DialTimeout:        cfg.BLE.DialTimeout,
			DataService:        cfg.BLE.DataService,
			DataCharacteristic: cfg.BLE.DataCharacteristic,
		})
		p.onClose(b.Close)
		return pick(p, CapBLE, nil, hal.BLE(b), "tinygo")
	default:
		return pick(p, CapBLE, nil, hal.BLE(stub.NewBLE(p.dispatcher, unsupported...)), "stub (unsupported)")
	}
}

// bindPersistence opens SQLite at cfg.Persistence.Path, or fallback when that
// is empty; with neither it keeps values in memory.
func (p *Platform) bindPersistence(cfg *config.Config, o *options, fallback string) error {
	if o.persistence != nil {
		p.persistence = pick(p, CapPersistence, o.persistence, nil, "")
		return nil
	}
	path := cfg.Persistence.Path
	if path == "" {
		path = fallback
	}
	if cfg.Persistence.Driver != "sqlite" || path == "" {
		p.persistence = pick(p, CapPersistence, nil, hal.Persistence(stub.NewPersistence(stub.WithLogger(p.logger))), "memory")
		return nil
	}
	store, err := sqlstore.Open(path, p.logger)
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}
	p.onClose(store.Close)
	p.persistence = pick(p, CapPersistence, nil, hal.Persistence(store), "sqlite")
	return nil
}

// pick returns injected when set, recording "custom", else fallback under name.
func pick[T any](p *Platform, capability string, injected, fallback T, name string) T {
	if any(injected) != nil {
		p.bindings.Set(capability, "custom")
		return injected
	}
	p.bindings.Set(capability, name)
	return fallback
}

func (p *Platform) instrument(ctx context.Context, cfg *config.Config, o *options) error {
	tracer := o.tracer
	if tracer == nil && cfg.Trace.Enabled {
		var err error
		if tracer, err = p.buildTracer(ctx, cfg); err != nil {
			return err
		}
	}
	if tracer == nil {
		return nil
	}
	p.audio = trace.WrapAudio(p.audio, tracer)
	p.battery = trace.WrapBattery(p.battery, tracer)
	p.bt = trace.WrapBT(p.bt, tracer)
	p.ble = trace.WrapBLE(p.ble, tracer)
	p.se = trace.WrapSE(p.se, tracer)
	p.os = trace.WrapOS(p.os, tracer)
	p.persistence = trace.WrapPersistence(p.persistence, tracer)
	return nil
}

func (p *Platform) buildTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, error) {
	var sinks []trace.Tracer
	sink := cfg.Trace.Sink
	if sink == "log" || sink == "all" {
		sinks = append(sinks, trace.NewLogTracer(p.logger))
	}
	if sink == "otel" || sink == "all" {
		shutdown, err := trace.SetupOtel(ctx, cfg.Trace.Exporter, cfg.Trace.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}
		p.onClose(func() error { return shutdown(context.Background()) })
		sinks = append(sinks, trace.NewOtelTracer(nil))
	}
	if sink == "metrics" || sink == "all" {
		m, err := trace.NewMetricsTracer(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		sinks = append(sinks, m)
	}
	return trace.Multi(sinks...), nil
}

func (p *Platform) Target() string               { return p.target }
func (p *Platform) Dispatcher() hal.Dispatcher   { return p.dispatcher }
func (p *Platform) Audio() hal.Audio             { return p.audio }
func (p *Platform) Battery() hal.Battery         { return p.battery }
func (p *Platform) BT() hal.BT                   { return p.bt }
func (p *Platform) BLE() hal.BLE                 { return p.ble }
func (p *Platform) SE() hal.SE                   { return p.se }
func (p *Platform) OS() hal.OS                   { return p.os }
func (p *Platform) Persistence() hal.Persistence { return p.persistence }

// Factory is nil on the embedded target.
func (p *Platform) Factory() hal.Factory { return p.factory }

// Bindings reports the backend bound to each capability, in a fixed order.
func (p *Platform) Bindings() *orderedmap.OrderedMap[string, string] {
	out := orderedmap.New[string, string]()
	for pair := p.bindings.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

// Close releases backends in the reverse order they were bound.
func (p *Platform) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
