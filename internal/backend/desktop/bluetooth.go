package desktop

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/pkg/hal"
)

// bluetoothAdapter presents the BT capability as the engine's local adapter.
// The scan mode is remembered locally.
type bluetoothAdapter struct {
	bt hal.BT

	mu   sync.Mutex
	mode hal.ScanMode
}

func newBluetoothAdapter(bt hal.BT) *bluetoothAdapter {
	return &bluetoothAdapter{bt: bt, mode: hal.ScanModeConnectable}
}

func (a *bluetoothAdapter) SetStatus(enabled bool) bool { return a.bt.SetEnabled(enabled).OK() }
func (a *bluetoothAdapter) IsEnabled() bool             { return a.bt.IsEnabled() }

func (a *bluetoothAdapter) ScanMode() hal.ScanMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.bt.IsEnabled() {
		return hal.ScanModeNone
	}
	return a.mode
}

func (a *bluetoothAdapter) SetScanMode(mode hal.ScanMode) bool {
	if mode == hal.ScanModeUnknown {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = mode
	return true
}

func (a *bluetoothAdapter) Name() string {
	n, st := a.bt.GetName(nil)
	if !st.OK() || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	n, st = a.bt.GetName(buf)
	if !st.OK() {
		return ""
	}
	return string(buf[:n])
}

func (a *bluetoothAdapter) SetName(name string) bool { return a.bt.SetName(name).OK() }

func (a *bluetoothAdapter) MacAddress() string {
	var addr hal.Address
	if !a.bt.GetAddress(&addr).OK() {
		return ""
	}
	return addr.String()
}

// classicMedium drives discovery and links through the BT capability. It takes
// over the capability's handler slot while in use.
type classicMedium struct {
	hal.NopBTHandler
	logger *logrus.Logger
	bt     hal.BT

	mu      sync.Mutex
	onFound func(peer hal.Address, name string)
}

func newClassicMedium(logger *logrus.Logger, bt hal.BT) *classicMedium {
	m := &classicMedium{logger: logger, bt: bt}
	bt.Init(m)
	return m
}

func (m *classicMedium) OnDeviceFound(peer hal.Address, name string, _ int8) {
	m.mu.Lock()
	fn := m.onFound
	m.mu.Unlock()
	if fn != nil {
		fn(peer, name)
	}
}

func (m *classicMedium) StartDiscovery(onFound func(peer hal.Address, name string)) bool {
	m.mu.Lock()
	m.onFound = onFound
	m.mu.Unlock()
	st := m.bt.StartDiscovery()
	if !st.OK() {
		m.logger.WithField("status", st).Warn("Classic discovery did not start")
	}
	return st.OK()
}

func (m *classicMedium) StopDiscovery() bool {
	m.mu.Lock()
	m.onFound = nil
	m.mu.Unlock()
	return m.bt.StopDiscovery().OK()
}

func (m *classicMedium) Connect(peer hal.Address) hal.Status           { return m.bt.Connect(peer) }
func (m *classicMedium) Send(peer hal.Address, data []byte) hal.Status { return m.bt.Send(peer, data) }
func (m *classicMedium) Disconnect(peer hal.Address) hal.Status        { return m.bt.Disconnect(peer) }

// bleMedium drives advertising and scanning through the BLE capability. It
// takes over the capability's handler slot while in use.
type bleMedium struct {
	hal.NopBLEHandler
	logger *logrus.Logger
	ble    hal.BLE

	mu       sync.Mutex
	onResult func(hal.ScanResult)
}

func newBleMedium(logger *logrus.Logger, ble hal.BLE) *bleMedium {
	m := &bleMedium{logger: logger, ble: ble}
	ble.Init(m)
	return m
}

func (m *bleMedium) OnScanResult(r hal.ScanResult) {
	m.mu.Lock()
	fn := m.onResult
	m.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

func (m *bleMedium) StartAdvertising(data hal.AdvertisementData) bool {
	st := m.ble.StartAdvertising(&data)
	if !st.OK() {
		m.logger.WithField("status", st).Warn("BLE advertising did not start")
	}
	return st.OK()
}

func (m *bleMedium) StopAdvertising() bool { return m.ble.StopAdvertising().OK() }

func (m *bleMedium) StartScanning(params hal.ScanParameters, onResult func(hal.ScanResult)) bool {
	m.mu.Lock()
	m.onResult = onResult
	m.mu.Unlock()
	st := m.ble.StartScanning(&params)
	if !st.OK() {
		m.logger.WithField("status", st).Warn("BLE scanning did not start")
	}
	return st.OK()
}

func (m *bleMedium) StopScanning() bool {
	m.mu.Lock()
	m.onResult = nil
	m.mu.Unlock()
	return m.ble.StopScanning().OK()
}

// Close stops advertising and scanning and releases the handler slot.
func (m *bleMedium) Close() error {
	m.StopAdvertising()
	m.StopScanning()
	m.ble.Init(nil)
	return nil
}
