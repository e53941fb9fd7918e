// Package goble implements the BLE capability on desktop hosts with go-ble:
// HCI sockets on Linux, CoreBluetooth on macOS.
package goble

import (
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/internal/link"
	"github.com/srg/nearbyhal/pkg/hal"
)

// Config tunes the backend.
type Config struct {
	WriteChunk    int
	WriteInterval time.Duration
	DialTimeout   time.Duration
	// DataService narrows the data characteristic lookup to one service;
	// empty searches every service.
	DataService        string
	DataCharacteristic string
}

const (
	DefaultWriteChunk    = 20
	DefaultWriteInterval = 10 * time.Millisecond
	DefaultDialTimeout   = 10 * time.Second
)

// Option configures a BLE backend.
type Option func(*BLE)

// WithRadio uses r instead of opening the host radio.
func WithRadio(r Radio) Option {
	return func(b *BLE) { b.radio = r }
}

// BLE drives one host radio. Scans and advertisements run on their own
// goroutines until stopped; link events and inbound data are reported
// through the registered handler.
type BLE struct {
	logger *logrus.Logger
	cfg    Config
	bridge *hal.Bridge[hal.BLEHandler]
	peers  *link.Peers
	links  *link.Table
	conns  *hashmap.Map[hal.Address, *connection]
	rssi   *hashmap.Map[hal.Address, int8]

	mu          sync.Mutex
	radio       Radio
	enabled     bool
	scan        *task
	advertise   *task
	dataService ble.UUID
	dataChar    ble.UUID
}

// New opens the host radio unless WithRadio supplies one. A host without a
// usable radio still yields a backend; it reports itself disabled.
func New(d hal.Dispatcher, logger *logrus.Logger, cfg Config, opts ...Option) *BLE {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.WriteChunk <= 0 {
		cfg.WriteChunk = DefaultWriteChunk
	}
	if cfg.WriteInterval < 0 {
		cfg.WriteInterval = DefaultWriteInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	b := &BLE{
		logger:  logger,
		cfg:     cfg,
		bridge:  hal.NewBridge[hal.BLEHandler](d),
		peers:   link.NewPeers(),
		conns:   hashmap.New[hal.Address, *connection](),
		rssi:    hashmap.New[hal.Address, int8](),
		enabled: true,
	}
	b.links = link.NewTable(logger, func(peer hal.Address, state hal.LinkState) {
		b.bridge.Emit(func(h hal.BLEHandler) { h.OnConnectionStateChanged(peer, state) })
	})
	if cfg.DataCharacteristic != "" {
		if u, err := ble.Parse(cfg.DataCharacteristic); err == nil {
			b.dataChar = u
		} else {
			logger.WithError(err).WithField("uuid", cfg.DataCharacteristic).Warn("Ignoring malformed data characteristic")
		}
	}
	if cfg.DataService != "" {
		if u, err := ble.Parse(cfg.DataService); err == nil {
			b.dataService = u
		} else {
			logger.WithError(err).WithField("uuid", cfg.DataService).Warn("Ignoring malformed data service")
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.radio == nil {
		r, err := openRadio()
		if err != nil {
			logger.WithError(err).Warn("BLE radio unavailable")
		}
		b.radio = r
	}
	return b
}

func (b *BLE) Init(h hal.BLEHandler) hal.Status {
	b.bridge.Register(h)
	return hal.StatusOK
}

func (b *BLE) IsEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled && b.radio != nil
}

// SetEnabled(false) stops scanning and advertising and drops every link.
// SetEnabled(true) retries opening the host radio if it was unavailable.
func (b *BLE) SetEnabled(enabled bool) hal.Status {
	if !enabled {
		b.StopScanning()
		b.StopAdvertising()
		for _, peer := range b.links.Connected() {
			b.Disconnect(peer)
		}
		b.mu.Lock()
		b.enabled = false
		b.mu.Unlock()
		return hal.StatusOK
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.radio == nil {
		r, err := openRadio()
		if err != nil {
			b.logger.WithError(err).Warn("BLE radio unavailable")
			return hal.StatusHardwareNotReady
		}
		b.radio = r
	}
	b.enabled = true
	return hal.StatusOK
}

// ready returns the radio when commands may use it.
func (b *BLE) ready() (Radio, hal.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.radio == nil || !b.enabled {
		return nil, hal.StatusHardwareNotReady
	}
	return b.radio, hal.StatusOK
}

// Close stops all radio activity and releases the host radio.
func (b *BLE) Close() error {
	b.SetEnabled(false)
	b.mu.Lock()
	r := b.radio
	b.radio = nil
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Stop()
}
