// Package tinyble implements the BLE capability over tinygo bluetooth, an
// alternative to go-ble for hosts where BlueZ D-Bus, CoreBluetooth or WinRT
// is preferred over raw HCI sockets.
package tinyble

import (
	"context"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"tinygo.org/x/bluetooth"

	"github.com/srg/nearbyhal/internal/groutine"
	"github.com/srg/nearbyhal/internal/link"
	"github.com/srg/nearbyhal/pkg/hal"
)

const (
	stopScanAttempts = 20
	stopScanRetry    = 50 * time.Millisecond
)

type Config struct {
	AdapterID     string
	WriteChunk    int
	WriteInterval time.Duration
	DialTimeout   time.Duration
	// DataService narrows GATT discovery to one service.
	DataService        string
	DataCharacteristic string
}

type Option func(*BLE)

// WithAdapter uses a instead of the host adapter.
func WithAdapter(a Adapter) Option {
	return func(b *BLE) { b.adapter = a }
}

type BLE struct {
	logger *logrus.Logger
	cfg    Config
	bridge *hal.Bridge[hal.BLEHandler]
	peers  *link.Peers
	links  *link.Table
	conns  *hashmap.Map[hal.Address, Peripheral]
	rssi   *hashmap.Map[hal.Address, int8]
	writes *rate.Limiter

	mu       sync.Mutex
	adapter  Adapter
	powered  bool
	enabled  bool
	scanDone <-chan struct{}
	stopAdv  func() error
	data     DataPath
}

func New(d hal.Dispatcher, logger *logrus.Logger, cfg Config, opts ...Option) *BLE {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.WriteChunk <= 0 {
		cfg.WriteChunk = 20
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	b := &BLE{
		logger:  logger,
		cfg:     cfg,
		bridge:  hal.NewBridge[hal.BLEHandler](d),
		peers:   link.NewPeers(),
		conns:   hashmap.New[hal.Address, Peripheral](),
		rssi:    hashmap.New[hal.Address, int8](),
		writes:  rate.NewLimiter(rate.Inf, 1),
		enabled: true,
	}
	if cfg.WriteInterval > 0 {
		b.writes = rate.NewLimiter(rate.Every(cfg.WriteInterval), 1)
	}
	b.links = link.NewTable(logger, func(peer hal.Address, state hal.LinkState) {
		b.bridge.Emit(func(h hal.BLEHandler) { h.OnConnectionStateChanged(peer, state) })
	})
	if cfg.DataService != "" {
		if u, err := parseUUID(cfg.DataService); err == nil {
			b.data.Service = u
		} else {
			logger.WithError(err).Warn("Ignoring malformed data service")
		}
	}
	if cfg.DataCharacteristic != "" {
		if u, err := parseUUID(cfg.DataCharacteristic); err == nil {
			b.data.Characteristic = u
		} else {
			logger.WithError(err).Warn("Ignoring malformed data characteristic")
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.adapter == nil {
		b.adapter = hostAdapterFor(cfg.AdapterID)
	}
	b.mu.Lock()
	b.powerOn()
	b.mu.Unlock()
	return b
}

// powerOn enables the adapter once; callers hold b.mu.
func (b *BLE) powerOn() bool {
	if b.powered {
		return true
	}
	if err := b.adapter.Enable(b.onDisconnect); err != nil {
		b.logger.WithError(err).WithField("adapter", b.cfg.AdapterID).Warn("Bluetooth adapter unavailable")
		return false
	}
	b.powered = true
	return true
}

func (b *BLE) Init(h hal.BLEHandler) hal.Status {
	b.bridge.Register(h)
	return hal.StatusOK
}

func (b *BLE) IsEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled && b.powered
}

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
	if !b.powerOn() {
		return hal.StatusHardwareNotReady
	}
	b.enabled = true
	return hal.StatusOK
}

func (b *BLE) ready() hal.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled || !b.powered {
		return hal.StatusHardwareNotReady
	}
	return hal.StatusOK
}

func (b *BLE) StartScanning(params *hal.ScanParameters) hal.Status {
	if st := b.ready(); !st.OK() {
		return st
	}
	p := hal.ScanParameters{}
	if params != nil {
		p = *params
	}
	b.StopScanning()

	seen := hashmap.New[hal.Address, struct{}]()
	done := groutine.Go(context.Background(), "tinyble-scan", func(context.Context) {
		err := b.adapter.Scan(func(s Sighting) {
			peer := b.peers.Learn(s.Address)
			result := toScanResult(peer, s)
			b.rssi.Set(peer, result.RSSI)
			if !p.Matches(result) {
				return
			}
			if !p.AllowDuplicates {
				if _, loaded := seen.GetOrInsert(peer, struct{}{}); loaded {
					return
				}
			}
			b.bridge.Emit(func(h hal.BLEHandler) { h.OnScanResult(result) })
		})
		if err != nil {
			b.logger.WithError(err).Warn("Scan ended with error")
		}
	})

	b.mu.Lock()
	b.scanDone = done
	b.mu.Unlock()
	return hal.StatusOK
}

func (b *BLE) StopScanning() hal.Status {
	b.mu.Lock()
	done := b.scanDone
	b.scanDone = nil
	b.mu.Unlock()
	if done == nil {
		return hal.StatusOK
	}
	// StopScan is a no-op until the scan has actually started, so retry.
	for attempt := 0; attempt < stopScanAttempts; attempt++ {
		if err := b.adapter.StopScan(); err != nil {
			b.logger.WithError(err).Debug("StopScan failed")
		}
		select {
		case <-done:
			return hal.StatusOK
		case <-time.After(stopScanRetry):
		}
	}
	b.logger.Warn("Scan did not stop")
	return hal.StatusError
}

func toScanResult(peer hal.Address, s Sighting) hal.ScanResult {
	rssi := s.RSSI
	rssi = max(min(rssi, 127), -128)
	return hal.ScanResult{
		Peer:             peer,
		RSSI:             int8(rssi),
		TxPower:          127,
		LocalName:        s.LocalName,
		Connectable:      true,
		ServiceUUIDs:     s.ServiceUUIDs,
		ServiceData:      s.ServiceData,
		ManufacturerData: s.ManufacturerData,
		ObservedAt:       time.Now(),
	}
}

func (b *BLE) StartAdvertising(data *hal.AdvertisementData) hal.Status {
	if data == nil {
		return hal.StatusInvalidArgument
	}
	opts, err := advertisementOptions(*data)
	if err != nil {
		b.logger.WithError(err).Debug("Rejecting advertisement")
		return hal.StatusInvalidArgument
	}
	if st := b.ready(); !st.OK() {
		return st
	}
	b.stopAdvertising(false)

	stop, err := b.adapter.Advertise(opts)
	if err != nil {
		b.logger.WithError(err).Warn("Advertising failed to start")
		return hal.StatusError
	}
	b.mu.Lock()
	b.stopAdv = stop
	b.mu.Unlock()
	b.bridge.Emit(func(h hal.BLEHandler) { h.OnAdvertisingStateChanged(true) })
	return hal.StatusOK
}

func (b *BLE) StopAdvertising() hal.Status {
	b.stopAdvertising(true)
	return hal.StatusOK
}

func (b *BLE) stopAdvertising(notify bool) {
	b.mu.Lock()
	stop := b.stopAdv
	b.stopAdv = nil
	b.mu.Unlock()
	if stop == nil {
		return
	}
	if err := stop(); err != nil {
		b.logger.WithError(err).Debug("Stopping advertisement failed")
	}
	if notify {
		b.bridge.Emit(func(h hal.BLEHandler) { h.OnAdvertisingStateChanged(false) })
	}
}

func advertisementOptions(data hal.AdvertisementData) (bluetooth.AdvertisementOptions, error) {
	opts := bluetooth.AdvertisementOptions{LocalName: data.LocalName}
	for _, s := range data.ServiceUUIDs {
		u, err := parseUUID(s)
		if err != nil {
			return opts, err
		}
		opts.ServiceUUIDs = append(opts.ServiceUUIDs, u)
	}
	for _, sd := range data.ServiceData {
		u, err := parseUUID(sd.UUID)
		if err != nil {
			return opts, err
		}
		opts.ServiceData = append(opts.ServiceData, bluetooth.ServiceDataElement{UUID: u, Data: sd.Data})
	}
	if data.ManufacturerID != 0 || len(data.ManufacturerData) > 0 {
		opts.ManufacturerData = []bluetooth.ManufacturerDataElement{{
			CompanyID: data.ManufacturerID,
			Data:      data.ManufacturerData,
		}}
	}
	if data.Interval > 0 {
		opts.Interval = bluetooth.NewDuration(data.Interval)
	}
	if opts.LocalName == "" && len(opts.ServiceUUIDs) == 0 && len(opts.ServiceData) == 0 && len(opts.ManufacturerData) == 0 {
		return opts, hal.ErrInvalidArgument
	}
	return opts, nil
}

func (b *BLE) Connect(peer hal.Address) hal.Status {
	if st := b.ready(); !st.OK() {
		return st
	}
	if st := b.links.Begin(peer); !st.OK() {
		return st
	}
	raw := b.peers.RadioAddr(peer)
	groutine.Go(context.Background(), "tinyble-dial", func(context.Context) {
		log := b.logger.WithFields(logrus.Fields{"peer": peer, "address": raw})
		dev, err := b.adapter.Connect(raw, b.cfg.DialTimeout, b.data, func(p []byte) {
			b.bridge.Emit(func(h hal.BLEHandler) { h.OnDataReceived(peer, p) })
		})
		if err != nil {
			log.WithError(err).Warn("Connect failed")
			b.links.Failed(peer)
			return
		}
		b.conns.Set(peer, dev)
		if !b.links.Established(peer).OK() {
			b.conns.Del(peer)
			_ = dev.Disconnect()
			b.links.Closed(peer)
			return
		}
		log.Info("BLE link established")
	})
	return hal.StatusOK
}

// onDisconnect handles links dropped by the remote side or the stack.
func (b *BLE) onDisconnect(raw string) {
	peer := b.peers.Learn(raw)
	if _, ok := b.conns.Get(peer); !ok {
		return
	}
	b.conns.Del(peer)
	b.links.Closed(peer)
}

func (b *BLE) Disconnect(peer hal.Address) hal.Status {
	if !b.links.Close(peer) {
		return hal.StatusOK
	}
	if dev, ok := b.conns.Get(peer); ok {
		b.conns.Del(peer)
		if err := dev.Disconnect(); err != nil {
			b.logger.WithError(err).WithField("peer", peer).Debug("Disconnect failed")
		}
	}
	b.links.Closed(peer)
	return hal.StatusOK
}

func (b *BLE) Send(peer hal.Address, data []byte) hal.Status {
	if len(data) == 0 {
		return hal.StatusInvalidArgument
	}
	dev, ok := b.conns.Get(peer)
	if !ok || b.links.State(peer) != hal.LinkConnected {
		return hal.StatusHardwareNotReady
	}
	for len(data) > 0 {
		n := min(len(data), b.cfg.WriteChunk)
		if err := b.writes.Wait(context.Background()); err != nil {
			return hal.StatusError
		}
		if _, err := dev.Write(data[:n]); err != nil {
			b.logger.WithError(err).WithField("peer", peer).Warn("BLE write failed")
			return hal.StatusOf(err)
		}
		data = data[n:]
	}
	return hal.StatusOK
}

// GetRssi reports the last advertised RSSI; tinygo bluetooth cannot read it
// from an open connection.
func (b *BLE) GetRssi(peer hal.Address, rssi *int8) hal.Status {
	v, ok := b.rssi.Get(peer)
	if !ok {
		return hal.StatusNotFound
	}
	if rssi != nil {
		*rssi = v
	}
	return hal.StatusOK
}

func (b *BLE) Close() error {
	b.SetEnabled(false)
	return nil
}
