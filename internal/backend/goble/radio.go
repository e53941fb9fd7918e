package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Radio is the part of ble.Device the backend drives.
type Radio interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error
	AdvertiseServiceData16(ctx context.Context, id uint16, b []byte) error
	Dial(ctx context.Context, addr ble.Addr) (Link, error)
	Stop() error
}

// Link is the part of ble.Client the backend drives.
type Link interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	ReadRSSI() int
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// deviceRadio adapts a ble.Device to Radio.
type deviceRadio struct {
	ble.Device
}

func (r deviceRadio) Dial(ctx context.Context, addr ble.Addr) (Link, error) {
	client, err := r.Device.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// openRadio creates the host radio through DeviceFactory.
func openRadio() (Radio, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	return deviceRadio{Device: dev}, nil
}
