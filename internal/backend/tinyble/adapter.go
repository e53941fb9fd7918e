package tinyble

import (
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/srg/nearbyhal/pkg/hal"
)

// Sighting is one received advertisement.
type Sighting struct {
	Address          string
	RSSI             int16
	LocalName        string
	ServiceUUIDs     []string
	ServiceData      []hal.ServiceData
	ManufacturerData []byte
}

// Adapter is the part of a tinygo bluetooth adapter the backend drives.
type Adapter interface {
	Enable(onDisconnect func(address string)) error
	// Scan blocks, calling onSighting for each advertisement until StopScan.
	Scan(onSighting func(Sighting)) error
	StopScan() error
	Advertise(opts bluetooth.AdvertisementOptions) (stop func() error, err error)
	Connect(address string, timeout time.Duration, data DataPath, onData func([]byte)) (Peripheral, error)
}

// DataPath locates the characteristic that carries payloads. A zero Service
// matches any service; a zero Characteristic skips the lookup.
type DataPath struct {
	Service        bluetooth.UUID
	Characteristic bluetooth.UUID
}

// Peripheral is a connected remote device.
type Peripheral interface {
	// Write sends p to the data characteristic; it fails when the peer has none.
	Write(p []byte) (int, error)
	Disconnect() error
}

var errNoDataChar = fmt.Errorf("peer has no data characteristic: %w", hal.ErrUnsupported)

type hostAdapter struct {
	a *bluetooth.Adapter
}

func (h hostAdapter) Enable(onDisconnect func(address string)) error {
	if err := h.a.Enable(); err != nil {
		return err
	}
	h.a.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if !connected {
			onDisconnect(device.Address.String())
		}
	})
	return nil
}

func (h hostAdapter) Scan(onSighting func(Sighting)) error {
	return h.a.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		onSighting(toSighting(r))
	})
}

func (h hostAdapter) StopScan() error {
	return h.a.StopScan()
}

func (h hostAdapter) Advertise(opts bluetooth.AdvertisementOptions) (func() error, error) {
	adv := h.a.DefaultAdvertisement()
	if err := adv.Configure(opts); err != nil {
		return nil, err
	}
	if err := adv.Start(); err != nil {
		return nil, err
	}
	return adv.Stop, nil
}

func (h hostAdapter) Connect(address string, timeout time.Duration, data DataPath, onData func([]byte)) (Peripheral, error) {
	var addr bluetooth.Address
	addr.Set(address)
	dev, err := h.a.Connect(addr, bluetooth.ConnectionParams{ConnectionTimeout: bluetooth.NewDuration(timeout)})
	if err != nil {
		return nil, err
	}
	p := &hostPeripheral{dev: dev}
	if data.Characteristic == (bluetooth.UUID{}) {
		return p, nil
	}
	var filter []bluetooth.UUID
	if data.Service != (bluetooth.UUID{}) {
		filter = []bluetooth.UUID{data.Service}
	}
	services, err := dev.DiscoverServices(filter)
	if err != nil {
		return p, nil
	}
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics([]bluetooth.UUID{data.Characteristic})
		if err != nil || len(chars) == 0 {
			continue
		}
		c := chars[0]
		p.data = &c
		// Peers without notify support still accept writes.
		_ = c.EnableNotifications(func(buf []byte) { onData(append([]byte(nil), buf...)) })
		break
	}
	return p, nil
}

type hostPeripheral struct {
	dev  bluetooth.Device
	data *bluetooth.DeviceCharacteristic
}

func (p *hostPeripheral) Write(b []byte) (int, error) {
	if p.data == nil {
		return 0, errNoDataChar
	}
	return p.data.WriteWithoutResponse(b)
}

func (p *hostPeripheral) Disconnect() error {
	return p.dev.Disconnect()
}

func toSighting(r bluetooth.ScanResult) Sighting {
	s := Sighting{
		Address:   r.Address.String(),
		RSSI:      r.RSSI,
		LocalName: r.LocalName(),
	}
	for _, u := range r.AdvertisementPayload.ServiceUUIDs() {
		s.ServiceUUIDs = append(s.ServiceUUIDs, shortUUID(u))
	}
	for _, sd := range r.AdvertisementPayload.ServiceData() {
		id := shortUUID(sd.UUID)
		s.ServiceData = append(s.ServiceData, hal.ServiceData{UUID: id, Data: sd.Data})
		s.ServiceUUIDs = append(s.ServiceUUIDs, id)
	}
	for _, md := range r.AdvertisementPayload.ManufacturerData() {
		s.ManufacturerData = append(s.ManufacturerData, byte(md.CompanyID), byte(md.CompanyID>>8))
		s.ManufacturerData = append(s.ManufacturerData, md.Data...)
	}
	return s
}

// shortUUID renders SIG base UUIDs in their 16-bit form, matching go-ble.
func shortUUID(u bluetooth.UUID) string {
	if u.Is16Bit() {
		return fmt.Sprintf("%04x", u.Get16Bit())
	}
	return strings.ToLower(u.String())
}

// parseUUID accepts 16-bit ("fe2c") and full UUIDs.
func parseUUID(s string) (bluetooth.UUID, error) {
	if len(s) == 4 {
		var id uint16
		if _, err := fmt.Sscanf(s, "%04x", &id); err != nil {
			return bluetooth.UUID{}, fmt.Errorf("malformed UUID %q: %w", s, hal.ErrInvalidArgument)
		}
		return bluetooth.New16BitUUID(id), nil
	}
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("malformed UUID %q: %w", s, hal.ErrInvalidArgument)
	}
	return u, nil
}
