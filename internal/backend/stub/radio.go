package stub

import (
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/pkg/hal"
)

// BT is a Bluetooth classic radio with no peers. Discovered feeds inquiry
// results in while discovery is active.
type BT struct {
	opts   options
	bridge *hal.Bridge[hal.BTHandler]

	mu          sync.RWMutex
	enabled     bool
	discovering bool
	name        string
	addr        hal.Address
}

func NewBT(d hal.Dispatcher, addr hal.Address, opts ...Option) *BT {
	return &BT{
		opts:   buildOptions(opts),
		bridge: hal.NewBridge[hal.BTHandler](d),
		addr:   addr,
	}
}

func (b *BT) Init(h hal.BTHandler) hal.Status {
	b.bridge.Register(h)
	return hal.StatusOK
}

func (b *BT) StartDiscovery() hal.Status {
	if s := b.opts.cmdStatus; !s.OK() {
		return s
	}
	b.mu.Lock()
	started := !b.discovering
	b.discovering = true
	b.mu.Unlock()
	if started {
		b.bridge.Emit(func(h hal.BTHandler) { h.OnDiscoveryStateChanged(true) })
	}
	return hal.StatusOK
}

func (b *BT) StopDiscovery() hal.Status {
	b.mu.Lock()
	stopped := b.discovering
	b.discovering = false
	b.mu.Unlock()
	if stopped {
		b.bridge.Emit(func(h hal.BTHandler) { h.OnDiscoveryStateChanged(false) })
	}
	return hal.StatusOK
}

func (b *BT) Connect(peer hal.Address) hal.Status    { return b.command("Connect", peer) }
func (b *BT) Disconnect(peer hal.Address) hal.Status { return b.command("Disconnect", peer) }

func (b *BT) Send(peer hal.Address, data []byte) hal.Status {
	if len(data) == 0 {
		return hal.StatusInvalidArgument
	}
	return b.command("Send", peer)
}

func (b *BT) GetRssi(peer hal.Address, rssi *int8) hal.Status {
	if rssi != nil {
		*rssi = 0
	}
	return b.opts.cmdStatus
}

func (b *BT) IsEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

func (b *BT) SetEnabled(enabled bool) hal.Status {
	if s := b.opts.cmdStatus; !s.OK() {
		return s
	}
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
	return hal.StatusOK
}

func (b *BT) GetName(dst []byte) (int, hal.Status) {
	b.mu.RLock()
	name := b.name
	b.mu.RUnlock()
	return hal.CopyOut(dst, []byte(name))
}

func (b *BT) SetName(name string) hal.Status {
	if s := b.opts.cmdStatus; !s.OK() {
		return s
	}
	b.mu.Lock()
	b.name = name
	b.mu.Unlock()
	return hal.StatusOK
}

func (b *BT) GetAddress(addr *hal.Address) hal.Status {
	if addr != nil {
		*addr = b.addr
	}
	return hal.StatusOK
}

// Discovered reports an inquiry result; it is dropped unless discovery is active.
func (b *BT) Discovered(peer hal.Address, name string, rssi int8) {
	b.mu.RLock()
	active := b.discovering
	b.mu.RUnlock()
	if !active {
		return
	}
	b.bridge.Emit(func(h hal.BTHandler) { h.OnDeviceFound(peer, name, rssi) })
}

func (b *BT) command(op string, peer hal.Address) hal.Status {
	b.opts.logger.WithFields(logrus.Fields{"capability": "bt", "op": op, "peer": peer}).Debug("BT command")
	return b.opts.cmdStatus
}

// BLE is a Bluetooth LE radio with no peers. Observe feeds advertisements in
// while a scan is active.
type BLE struct {
	opts   options
	bridge *hal.Bridge[hal.BLEHandler]

	mu          sync.RWMutex
	enabled     bool
	advertising bool
	scan        *hal.ScanParameters
	seen        *hashmap.Map[hal.Address, struct{}]
}

func NewBLE(d hal.Dispatcher, opts ...Option) *BLE {
	return &BLE{
		opts:    buildOptions(opts),
		bridge:  hal.NewBridge[hal.BLEHandler](d),
		enabled: true,
		seen:    hashmap.New[hal.Address, struct{}](),
	}
}

func (b *BLE) Init(h hal.BLEHandler) hal.Status {
	b.bridge.Register(h)
	return hal.StatusOK
}

func (b *BLE) StartAdvertising(data *hal.AdvertisementData) hal.Status {
	if data == nil {
		return hal.StatusInvalidArgument
	}
	if s := b.opts.cmdStatus; !s.OK() {
		return s
	}
	b.mu.Lock()
	started := !b.advertising
	b.advertising = true
	b.mu.Unlock()
	if started {
		b.bridge.Emit(func(h hal.BLEHandler) { h.OnAdvertisingStateChanged(true) })
	}
	return hal.StatusOK
}

func (b *BLE) StopAdvertising() hal.Status {
	b.mu.Lock()
	stopped := b.advertising
	b.advertising = false
	b.mu.Unlock()
	if stopped {
		b.bridge.Emit(func(h hal.BLEHandler) { h.OnAdvertisingStateChanged(false) })
	}
	return hal.StatusOK
}

// StartScanning accepts nil params as a passive scan without filters.
func (b *BLE) StartScanning(params *hal.ScanParameters) hal.Status {
	if s := b.opts.cmdStatus; !s.OK() {
		return s
	}
	p := hal.ScanParameters{}
	if params != nil {
		p = *params
	}
	b.mu.Lock()
	b.scan = &p
	b.seen = hashmap.New[hal.Address, struct{}]()
	b.mu.Unlock()
	return hal.StatusOK
}

func (b *BLE) StopScanning() hal.Status {
	b.mu.Lock()
	b.scan = nil
	b.mu.Unlock()
	return hal.StatusOK
}

func (b *BLE) Connect(peer hal.Address) hal.Status    { return b.command("Connect", peer) }
func (b *BLE) Disconnect(peer hal.Address) hal.Status { return b.command("Disconnect", peer) }

func (b *BLE) Send(peer hal.Address, data []byte) hal.Status {
	if len(data) == 0 {
		return hal.StatusInvalidArgument
	}
	return b.command("Send", peer)
}

func (b *BLE) GetRssi(peer hal.Address, rssi *int8) hal.Status {
	if rssi != nil {
		*rssi = 0
	}
	return b.opts.cmdStatus
}

func (b *BLE) IsEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled && b.opts.cmdStatus.OK()
}

func (b *BLE) SetEnabled(enabled bool) hal.Status {
	if s := b.opts.cmdStatus; !s.OK() {
		return s
	}
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
	return hal.StatusOK
}

// Observe reports an advertisement heard by the radio. It is delivered once
// per peer per scan unless duplicates were requested, and only when it
// matches the scan's service filter.
func (b *BLE) Observe(result hal.ScanResult) {
	b.mu.RLock()
	scan := b.scan
	seen := b.seen
	b.mu.RUnlock()
	if scan == nil || !scan.Matches(result) {
		return
	}
	if !scan.AllowDuplicates {
		if _, loaded := seen.GetOrInsert(result.Peer, struct{}{}); loaded {
			return
		}
	}
	if result.ObservedAt.IsZero() {
		result.ObservedAt = time.Now()
	}
	b.bridge.Emit(func(h hal.BLEHandler) { h.OnScanResult(result) })
}

func (b *BLE) command(op string, peer hal.Address) hal.Status {
	b.opts.logger.WithFields(logrus.Fields{"capability": "ble", "op": op, "peer": peer}).Debug("BLE command")
	return b.opts.cmdStatus
}
