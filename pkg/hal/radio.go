package hal

import (
	"slices"
	"strings"
	"time"
)

// LinkState is the connection state of one peer link.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDisconnecting
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "disconnected"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// BTHandler receives Bluetooth classic events.
type BTHandler interface {
	OnDeviceFound(peer Address, name string, rssi int8)
	OnConnectionStateChanged(peer Address, state LinkState)
	OnDataReceived(peer Address, data []byte)
	OnDiscoveryStateChanged(active bool)
}

// NopBTHandler ignores Bluetooth classic events.
type NopBTHandler struct{}

func (NopBTHandler) OnDeviceFound(Address, string, int8) {}
func (NopBTHandler) OnConnectionStateChanged(Address, LinkState) {}
func (NopBTHandler) OnDataReceived(Address, []byte) {}
func (NopBTHandler) OnDiscoveryStateChanged(bool) {}

// BT is the Bluetooth classic capability.
type BT interface {
	Init(h BTHandler) Status
	StartDiscovery() Status
	StopDiscovery() Status
	Connect(peer Address) Status
	Disconnect(peer Address) Status
	Send(peer Address, data []byte) Status
	// GetRssi stores the last known RSSI of peer into rssi when non-nil.
	GetRssi(peer Address, rssi *int8) Status
	IsEnabled() bool
	SetEnabled(enabled bool) Status
	// GetName follows the CopyOut buffer convention.
	GetName(dst []byte) (int, Status)
	SetName(name string) Status
	GetAddress(addr *Address) Status
}

// AdvertisementData describes a BLE advertisement.
type AdvertisementData struct {
	LocalName        string
	ServiceUUIDs     []string
	ServiceData      []ServiceData
	ManufacturerID   uint16
	ManufacturerData []byte
	Interval         time.Duration
	Connectable      bool
}

// ServiceData is one service data AD element.
type ServiceData struct {
	UUID string
	Data []byte
}

// ScanParameters tunes a BLE scan.
type ScanParameters struct {
	Interval        time.Duration
	Window          time.Duration
	Active          bool
	AllowDuplicates bool
	// ServiceUUIDs restricts results to advertisements carrying any of these services.
	ServiceUUIDs []string
}

// Matches reports whether r carries any of the filtered services.
// An empty filter matches everything.
func (p ScanParameters) Matches(r ScanResult) bool {
	if len(p.ServiceUUIDs) == 0 {
		return true
	}
	for _, want := range p.ServiceUUIDs {
		if slices.ContainsFunc(r.ServiceUUIDs, func(got string) bool { return strings.EqualFold(got, want) }) {
			return true
		}
	}
	return false
}

// ScanResult is one observed BLE advertisement.
type ScanResult struct {
	Peer             Address
	RSSI             int8
	TxPower          int8
	LocalName        string
	Connectable      bool
	ServiceUUIDs     []string
	ServiceData      []ServiceData
	ManufacturerData []byte
	ObservedAt       time.Time
}

// BLEHandler receives BLE events.
type BLEHandler interface {
	OnScanResult(result ScanResult)
	OnConnectionStateChanged(peer Address, state LinkState)
	OnDataReceived(peer Address, data []byte)
	OnAdvertisingStateChanged(active bool)
}

// NopBLEHandler ignores BLE events.
type NopBLEHandler struct{}

func (NopBLEHandler) OnScanResult(ScanResult) {}
func (NopBLEHandler) OnConnectionStateChanged(Address, LinkState) {}
func (NopBLEHandler) OnDataReceived(Address, []byte) {}
func (NopBLEHandler) OnAdvertisingStateChanged(bool) {}

// BLE is the Bluetooth Low Energy capability.
type BLE interface {
	Init(h BLEHandler) Status
	StartAdvertising(data *AdvertisementData) Status
	StopAdvertising() Status
	StartScanning(params *ScanParameters) Status
	StopScanning() Status
	Connect(peer Address) Status
	Disconnect(peer Address) Status
	Send(peer Address, data []byte) Status
	GetRssi(peer Address, rssi *int8) Status
	IsEnabled() bool
	SetEnabled(enabled bool) Status
}
