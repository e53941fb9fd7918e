package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/go-ble/ble"
)

// FakeAdvertisement is a static ble.Advertisement.
type FakeAdvertisement struct {
	name        string
	addr        ble.Addr
	rssi        int
	txPower     int
	connectable bool
	manufData   []byte
	services    []ble.UUID
	serviceData []ble.ServiceData
}

func (a *FakeAdvertisement) LocalName() string              { return a.name }
func (a *FakeAdvertisement) ManufacturerData() []byte       { return a.manufData }
func (a *FakeAdvertisement) ServiceData() []ble.ServiceData { return a.serviceData }
func (a *FakeAdvertisement) Services() []ble.UUID           { return a.services }
func (a *FakeAdvertisement) OverflowService() []ble.UUID    { return nil }
func (a *FakeAdvertisement) TxPowerLevel() int              { return a.txPower }
func (a *FakeAdvertisement) Connectable() bool              { return a.connectable }
func (a *FakeAdvertisement) SolicitedService() []ble.UUID   { return nil }
func (a *FakeAdvertisement) RSSI() int                      { return a.rssi }
func (a *FakeAdvertisement) Addr() ble.Addr                 { return a.addr }

// AdvertisementBuilder builds fake advertisements with a fluent API.
// Unset fields read as zero values, except TxPowerLevel which reads 127
// (not advertised) and Connectable which defaults to true.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{txPower: 127, connectable: true}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.addr = ble.NewAddr(addr)
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.adv.txPower = power
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

// WithServices accepts short ("180D") or full UUIDs; malformed ones panic.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, s := range uuids {
		b.adv.services = append(b.adv.services, ble.MustParse(s))
	}
	return b
}

func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.adv.serviceData = append(b.adv.serviceData, ble.ServiceData{UUID: ble.MustParse(uuid), Data: data})
	return b
}

// FromJSON fills the builder from a JSON object; it panics on malformed input.
//
//	{"name": "Pixel", "address": "aa:bb:cc:dd:ee:ff", "rssi": -60,
//	 "services": ["fe2c"], "serviceData": {"fe2c": "AQI="}}
func (b *AdvertisementBuilder) FromJSON(format string, args ...any) *AdvertisementBuilder {
	var data struct {
		Name             *string           `json:"name"`
		Address          *string           `json:"address"`
		RSSI             *int              `json:"rssi"`
		TxPower          *int              `json:"txPower"`
		Connectable      *bool             `json:"connectable"`
		ManufacturerData []byte            `json:"manufacturerData"`
		Services         []string          `json:"services"`
		ServiceData      map[string][]byte `json:"serviceData"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(format, args...)), &data); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}
	if data.Name != nil {
		b.WithName(*data.Name)
	}
	if data.Address != nil {
		b.WithAddress(*data.Address)
	}
	if data.RSSI != nil {
		b.WithRSSI(*data.RSSI)
	}
	if data.TxPower != nil {
		b.WithTxPower(*data.TxPower)
	}
	if data.Connectable != nil {
		b.WithConnectable(*data.Connectable)
	}
	if data.ManufacturerData != nil {
		b.WithManufacturerData(data.ManufacturerData)
	}
	b.WithServices(data.Services...)
	for uuid, payload := range data.ServiceData {
		b.WithServiceData(uuid, payload)
	}
	return b
}

func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	return &adv
}
